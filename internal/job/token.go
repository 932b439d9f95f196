package job

import "sync/atomic"

// Token is the process-wide exclusivity token of the orchestrator.
// Acquisition never blocks.
type Token struct {
	held atomic.Bool
}

// TryAcquire takes the token if it is free and reports whether it did.
func (t *Token) TryAcquire() bool {
	return t.held.CompareAndSwap(false, true)
}

// Release frees the token.
func (t *Token) Release() {
	t.held.Store(false)
}

// Held reports whether some caller currently holds the token.
func (t *Token) Held() bool {
	return t.held.Load()
}
