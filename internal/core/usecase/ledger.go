package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/okulov/polyqa/internal/core/domain"
)

// ledger tracks per-query resource consumption against the resolved
// budget. Fields only ever increase; every external-capability call
// charges an invocation before dispatch, so a budget of N invocations
// allows at most N calls.
type ledger struct {
	mu      sync.Mutex
	started time.Time
	budget  domain.Budget

	invocations int
	tokens      int
}

func newLedger(budget domain.Budget) *ledger {
	return &ledger{
		started: time.Now(),
		budget:  budget,
	}
}

func (l *ledger) chargeInvocation() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.budget.MaxInvocations > 0 && l.invocations >= l.budget.MaxInvocations {
		return domain.WrapError(domain.ErrBudgetExceeded, "charge invocation",
			fmt.Errorf("invocation budget %d spent", l.budget.MaxInvocations))
	}
	l.invocations++
	return nil
}

func (l *ledger) chargeTokens(n int) error {
	if n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens += n
	if l.budget.MaxTokens > 0 && l.tokens > l.budget.MaxTokens {
		return domain.WrapError(domain.ErrBudgetExceeded, "charge tokens",
			fmt.Errorf("token budget %d exceeded: spent %d", l.budget.MaxTokens, l.tokens))
	}
	return nil
}

func (l *ledger) checkElapsed() error {
	if l.budget.MaxElapsed <= 0 {
		return nil
	}
	if time.Since(l.started) > l.budget.MaxElapsed {
		return domain.WrapError(domain.ErrBudgetExceeded, "check elapsed",
			fmt.Errorf("time budget %s spent", l.budget.MaxElapsed))
	}
	return nil
}

func (l *ledger) snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LedgerSnapshot{
		Elapsed:     time.Since(l.started),
		Invocations: l.invocations,
		Tokens:      l.tokens,
	}
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens approximates token usage for backends that do not report
// it. cl100k_base when available, runes/4 heuristic otherwise.
func countTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
