package job

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestToken(t *testing.T) {
	var tok Token

	if !tok.TryAcquire() {
		t.Fatal("expected to acquire a free token")
	}
	if !tok.Held() {
		t.Error("expected token to be held")
	}
	if tok.TryAcquire() {
		t.Error("expected second acquire to fail")
	}

	tok.Release()
	if tok.Held() {
		t.Error("expected token to be free")
	}
	if !tok.TryAcquire() {
		t.Error("expected to reacquire after release")
	}
}

func TestToken_SingleWinner(t *testing.T) {
	var tok Token
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok.TryAcquire() {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", winners.Load())
	}
}
