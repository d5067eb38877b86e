package usecase

import (
	"testing"
	"time"

	"github.com/okulov/polyqa/internal/core/domain"
)

func TestLedgerInvocationCap(t *testing.T) {
	led := newLedger(domain.Budget{MaxInvocations: 3})

	for i := 0; i < 3; i++ {
		if err := led.chargeInvocation(); err != nil {
			t.Fatalf("charge %d: unexpected error: %v", i+1, err)
		}
	}
	err := led.chargeInvocation()
	if err == nil {
		t.Fatal("fourth charge against budget of 3 should fail")
	}
	if !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget error kind, got %v", err)
	}
	if got := led.snapshot().Invocations; got != 3 {
		t.Fatalf("rejected charge must not count: invocations = %d", got)
	}
}

func TestLedgerTokenOverflowChargesThenFails(t *testing.T) {
	led := newLedger(domain.Budget{MaxTokens: 100})

	if err := led.chargeTokens(90); err != nil {
		t.Fatalf("within budget: %v", err)
	}
	err := led.chargeTokens(20)
	if !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
	// The overflowing spend is still recorded.
	if got := led.snapshot().Tokens; got != 110 {
		t.Fatalf("tokens = %d, want 110", got)
	}
}

func TestLedgerZeroBudgetIsUnlimited(t *testing.T) {
	led := newLedger(domain.Budget{})

	for i := 0; i < 100; i++ {
		if err := led.chargeInvocation(); err != nil {
			t.Fatalf("unlimited invocations should never fail: %v", err)
		}
	}
	if err := led.chargeTokens(1 << 20); err != nil {
		t.Fatalf("unlimited tokens should never fail: %v", err)
	}
	if err := led.checkElapsed(); err != nil {
		t.Fatalf("unlimited elapsed should never fail: %v", err)
	}
}

func TestLedgerElapsed(t *testing.T) {
	led := newLedger(domain.Budget{MaxElapsed: time.Hour})
	if err := led.checkElapsed(); err != nil {
		t.Fatalf("fresh ledger within an hour: %v", err)
	}

	led.started = time.Now().Add(-2 * time.Hour)
	if err := led.checkElapsed(); !domain.IsKind(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected budget error after deadline, got %v", err)
	}
}

func TestCountTokensNeverZeroForText(t *testing.T) {
	if got := countTokens(""); got != 0 {
		t.Fatalf("empty text = %d tokens, want 0", got)
	}
	if got := countTokens("hello world, this is a reasonably sized sentence"); got == 0 {
		t.Fatal("non-empty text should count at least one token")
	}
}
