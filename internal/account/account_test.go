package account

import (
	"regexp"
	"testing"
)

func TestPlan_Allowance(t *testing.T) {
	tests := []struct {
		plan    Plan
		credits int
		usage   int
	}{
		{PlanTrial, 1, 3},
		{PlanFree, 1, 3},
		{PlanStarter, 10, 100},
		{PlanPro, 50, 3000},
		{PlanAdvanced, 200, 24000},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			if !tt.plan.IsValid() {
				t.Fatalf("expected %s to be valid", tt.plan)
			}
			got := tt.plan.Allowance()
			if got.Credits != tt.credits || got.Usage != tt.usage {
				t.Errorf("expected %d/%d, got %d/%d", tt.credits, tt.usage, got.Credits, got.Usage)
			}
		})
	}
}

func TestPlan_IsValid_Unknown(t *testing.T) {
	if Plan("enterprise").IsValid() {
		t.Error("expected unknown plan to be invalid")
	}
	if Plan("").IsValid() {
		t.Error("expected empty plan to be invalid")
	}
}

func TestNew(t *testing.T) {
	a := New("ABC123", PlanStarter)

	if a.CreditsRemaining != 10 {
		t.Errorf("expected 10 credits, got %d", a.CreditsRemaining)
	}
	if a.UsageRemaining != 100 {
		t.Errorf("expected 100 usage, got %d", a.UsageRemaining)
	}
	if a.Authorized() {
		t.Error("new account should not be authorized")
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestNewCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{6}$`)
	seen := make(map[string]bool)
	for range 50 {
		code := NewCode()
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code format: %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("expected codes to vary")
	}
}
