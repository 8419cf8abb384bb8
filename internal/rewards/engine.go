package rewards

import (
	"github.com/finmatter/kestrel/internal/domain"
)

// Result is the output of one engine invocation: per-transaction audit
// records plus the period rollup.
type Result struct {
	PerTransactionRewards []domain.PerTransactionReward `json:"perTransactionRewards"`
	PeriodSummary         domain.PeriodRewardSummary    `json:"periodSummary"`
}

// Engine composes per-transaction evaluation and period aggregation into
// one call. Stateless and side-effect free: calling Compute twice with
// identical inputs yields deep-equal results (no counters, no clocks, no
// randomness), and every call returns freshly allocated outputs.
type Engine struct{}

// NewEngine creates a rewards engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Compute filters transactions to the period window (inclusive, by ISO
// date string comparison), evaluates each against the rule set and
// aggregates caps and milestones over the period.
func (e *Engine) Compute(ruleSet *domain.CardRuleSet, transactions []*domain.CategorizedTransaction, period domain.PeriodContext) *Result {
	idx := newRuleIndex(ruleSet)

	perTx := make([]domain.PerTransactionReward, 0, len(transactions))
	for _, tx := range transactions {
		if tx == nil || !period.Contains(tx.Date) {
			continue
		}
		perTx = append(perTx, idx.evaluate(tx))
	}

	summary := AggregatePeriod(perTx, ruleSet, period)

	return &Result{
		PerTransactionRewards: perTx,
		PeriodSummary:         summary,
	}
}
