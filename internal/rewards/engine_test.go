package rewards

import (
	"reflect"
	"testing"

	"github.com/finmatter/kestrel/internal/domain"
)

func TestComputeFiltersEvaluatesAggregates(t *testing.T) {
	engine := NewEngine()
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 40, Period: domain.PeriodMonthly},
	)
	txs := []*domain.CategorizedTransaction{
		creditTx("tx-1", "2025-01-05", 500, domain.CategoryDining),
		creditTx("tx-2", "2025-01-15", 500, domain.CategoryDining),
		creditTx("tx-3", "2024-12-30", 500, domain.CategoryDining), // out of window
	}

	res := engine.Compute(rs, txs, januaryMonthly())

	if len(res.PerTransactionRewards) != 2 {
		t.Fatalf("expected 2 in-period rewards, got %d", len(res.PerTransactionRewards))
	}
	// 25 + 25, capped at 40: 25 then 15.
	if res.PeriodSummary.TotalReward != 40 {
		t.Errorf("expected total 40, got %d", res.PeriodSummary.TotalReward)
	}
	if res.PerTransactionRewards[0].CappedAmount != 25 || res.PerTransactionRewards[1].CappedAmount != 15 {
		t.Errorf("unexpected allocation: %d, %d",
			res.PerTransactionRewards[0].CappedAmount, res.PerTransactionRewards[1].CappedAmount)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	engine := NewEngine()
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryTravel, RatePer100: 4},
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleExclusion, Category: domain.CategoryRent},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryTravel, MaxUnits: 100, Period: domain.PeriodMonthly},
		domain.RewardRule{Kind: domain.RuleMilestone, Threshold: 5000, Period: domain.PeriodMonthly, DeclaredReward: "bonus"},
	)
	txs := []*domain.CategorizedTransaction{
		creditTx("tx-1", "2025-01-05", 2500, domain.CategoryTravel),
		creditTx("tx-2", "2025-01-07", 2500, domain.CategoryTravel),
		creditTx("tx-3", "2025-01-10", 900, domain.CategoryDining),
		creditTx("tx-4", "2025-01-12", 12000, domain.CategoryRent),
	}

	first := engine.Compute(rs, txs, januaryMonthly())
	second := engine.Compute(rs, txs, januaryMonthly())

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must yield deep-equal results")
	}
}

func TestComputeEmptyInputs(t *testing.T) {
	engine := NewEngine()

	res := engine.Compute(&domain.CardRuleSet{CardID: "card-001"}, nil, januaryMonthly())
	if len(res.PerTransactionRewards) != 0 {
		t.Errorf("expected no rewards, got %d", len(res.PerTransactionRewards))
	}
	if res.PeriodSummary.TotalReward != 0 {
		t.Errorf("expected total 0, got %d", res.PeriodSummary.TotalReward)
	}
	if res.PeriodSummary.CapsHit == nil || res.PeriodSummary.MilestonesTriggered == nil {
		t.Error("summary slices must be non-nil")
	}
}
