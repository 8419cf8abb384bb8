package rewards

import (
	"testing"

	"github.com/finmatter/kestrel/internal/domain"
)

func januaryMonthly() domain.PeriodContext {
	return domain.PeriodContext{Type: domain.PeriodMonthly, Start: "2025-01-01", End: "2025-01-31"}
}

func evalAll(t *testing.T, rs *domain.CardRuleSet, txs ...*domain.CategorizedTransaction) []domain.PerTransactionReward {
	t.Helper()
	idx := newRuleIndex(rs)
	rewards := make([]domain.PerTransactionReward, 0, len(txs))
	for _, tx := range txs {
		rewards = append(rewards, idx.evaluate(tx))
	}
	return rewards
}

func TestPeriodKey(t *testing.T) {
	cases := []struct {
		date string
		pt   domain.PeriodType
		want string
	}{
		{"2025-01-15", domain.PeriodMonthly, "2025-01"},
		{"2025-12-31", domain.PeriodMonthly, "2025-12"},
		{"2025-01-15", domain.PeriodQuarterly, "2025-Q1"},
		{"2025-03-31", domain.PeriodQuarterly, "2025-Q1"},
		{"2025-04-01", domain.PeriodQuarterly, "2025-Q2"},
		{"2025-09-30", domain.PeriodQuarterly, "2025-Q3"},
		{"2025-10-01", domain.PeriodQuarterly, "2025-Q4"},
		{"2025-06-15", domain.PeriodYearly, "2025"},
		{"bad", domain.PeriodMonthly, ""},
	}
	for _, tc := range cases {
		if got := domain.PeriodKey(tc.date, tc.pt); got != tc.want {
			t.Errorf("PeriodKey(%q, %s) = %q, want %q", tc.date, tc.pt, got, tc.want)
		}
	}
}

func TestCapAllocationIsDateOrdered(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 50, Period: domain.PeriodMonthly},
	)

	// Later-dated transaction listed first: allocation must still favor
	// the earlier date, not input order or magnitude.
	rewards := evalAll(t, rs,
		creditTx("tx-late", "2025-01-20", 1000, domain.CategoryDining),
		creditTx("tx-early", "2025-01-05", 1000, domain.CategoryDining),
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())

	var early, late *domain.PerTransactionReward
	for i := range rewards {
		switch rewards[i].TransactionID {
		case "tx-early":
			early = &rewards[i]
		case "tx-late":
			late = &rewards[i]
		}
	}

	if early.CappedAmount != 50 {
		t.Errorf("earlier transaction should consume the cap in full: got %d", early.CappedAmount)
	}
	if late.CappedAmount != 0 {
		t.Errorf("later transaction should be zeroed once the cap is exhausted: got %d", late.CappedAmount)
	}

	if len(summary.CapsHit) != 1 {
		t.Fatalf("expected 1 cap hit, got %d", len(summary.CapsHit))
	}
	hit := summary.CapsHit[0]
	if hit.TotalEarned != 100 || hit.CapValue != 50 || hit.CappedValue != 50 || hit.OverCap != 50 {
		t.Errorf("unexpected cap hit: %+v", hit)
	}
	if hit.Scope != domain.CapScopeCategory || hit.Category != domain.CategoryDining {
		t.Errorf("expected category-scoped cap hit, got %+v", hit)
	}
	if hit.PeriodKey != "2025-01" || hit.PeriodType != domain.PeriodMonthly {
		t.Errorf("unexpected bucket identity: %+v", hit)
	}

	if summary.TotalReward != 50 {
		t.Errorf("total must come from capped amounts: expected 50, got %d", summary.TotalReward)
	}
	if summary.ByCategory[domain.CategoryDining] != 50 {
		t.Errorf("byCategory must come from capped amounts: got %d", summary.ByCategory[domain.CategoryDining])
	}
}

func TestCapPartialAllowance(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryFuel, RatePer100: 1},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryFuel, MaxUnits: 15, Period: domain.PeriodMonthly},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-03", 1000, domain.CategoryFuel), // 10 units
		creditTx("tx-2", "2025-01-10", 1000, domain.CategoryFuel), // 10 units, 5 allowed
		creditTx("tx-3", "2025-01-20", 1000, domain.CategoryFuel), // 0 allowed
	)

	AggregatePeriod(rewards, rs, januaryMonthly())

	want := []int64{10, 5, 0}
	for i, w := range want {
		if rewards[i].CappedAmount != w {
			t.Errorf("tx-%d: expected capped %d, got %d", i+1, w, rewards[i].CappedAmount)
		}
	}
}

func TestUnderCapRecordReportsDeclaredCap(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 500, Period: domain.PeriodMonthly},
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 1000, domain.CategoryDining), // 50 units, well under
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())

	if len(summary.CapsHit) != 1 {
		t.Fatalf("expected 1 cap record, got %d", len(summary.CapsHit))
	}
	hit := summary.CapsHit[0]
	// The record carries the declared cap so callers can show headroom,
	// never the bucket's own earning.
	if hit.CapValue != 500 {
		t.Errorf("expected declared cap 500, got %d", hit.CapValue)
	}
	if hit.TotalEarned != 50 || hit.CappedValue != 50 || hit.OverCap != 0 {
		t.Errorf("unexpected under-cap record: %+v", hit)
	}
}

func TestGlobalCapCollectsAllCategories(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryTravel, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCap, MaxUnits: 60, Period: domain.PeriodMonthly},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 1000, domain.CategoryDining), // 50
		creditTx("tx-2", "2025-01-10", 1000, domain.CategoryTravel), // 50, 10 allowed
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())

	if rewards[0].CappedAmount != 50 || rewards[1].CappedAmount != 10 {
		t.Errorf("global cap allocation wrong: got %d and %d", rewards[0].CappedAmount, rewards[1].CappedAmount)
	}
	if len(summary.CapsHit) != 1 {
		t.Fatalf("expected 1 cap hit, got %d", len(summary.CapsHit))
	}
	if summary.CapsHit[0].Scope != domain.CapScopeCard {
		t.Errorf("global cap must report card scope, got %s", summary.CapsHit[0].Scope)
	}
	if summary.TotalReward != 60 {
		t.Errorf("expected total 60, got %d", summary.TotalReward)
	}
}

func TestUncappedCategoryHasNoLimit(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryTravel, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 10, Period: domain.PeriodMonthly},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 1000, domain.CategoryDining),
		creditTx("tx-2", "2025-01-10", 10000, domain.CategoryTravel),
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())

	if rewards[1].CappedAmount != rewards[1].RewardAmount {
		t.Errorf("uncapped category must pass through unchanged: got %d of %d",
			rewards[1].CappedAmount, rewards[1].RewardAmount)
	}
	if summary.TotalReward != 10+500 {
		t.Errorf("expected total 510, got %d", summary.TotalReward)
	}
}

func TestFirstCapRulePerScopeWins(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 20, Period: domain.PeriodMonthly},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryDining, MaxUnits: 999, Period: domain.PeriodMonthly},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 1000, domain.CategoryDining),
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())
	if rewards[0].CappedAmount != 20 {
		t.Errorf("first cap per scope must win: expected 20, got %d", rewards[0].CappedAmount)
	}
	if len(summary.CapsHit) != 1 {
		t.Errorf("duplicate cap rules must not duplicate buckets: got %d hits", len(summary.CapsHit))
	}
}

func TestExcludedRewardsAreNotBucketed(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleExclusion, Category: domain.CategoryRent},
		domain.RewardRule{Kind: domain.RuleCap, Category: domain.CategoryRent, MaxUnits: 100, Period: domain.PeriodMonthly},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 50000, domain.CategoryRent),
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())
	if len(summary.CapsHit) != 0 {
		t.Errorf("excluded rewards must not create cap buckets, got %d", len(summary.CapsHit))
	}
	if summary.TotalReward != 0 {
		t.Errorf("expected total 0, got %d", summary.TotalReward)
	}
}

func TestMilestonesIndependentAndSimultaneous(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryShopping, RatePer100: 1},
		domain.RewardRule{Kind: domain.RuleMilestone, Threshold: 100000, Period: domain.PeriodQuarterly, DeclaredReward: "10k bonus points", RewardUnits: 10000},
		domain.RewardRule{Kind: domain.RuleMilestone, Threshold: 50000, Period: domain.PeriodQuarterly, DeclaredReward: "voucher"},
	)
	period := domain.PeriodContext{Type: domain.PeriodQuarterly, Start: "2025-01-01", End: "2025-03-31"}

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-15", 70000, domain.CategoryShopping),
		creditTx("tx-2", "2025-02-20", 50000, domain.CategoryShopping),
	)

	summary := AggregatePeriod(rewards, rs, period)

	if len(summary.MilestonesTriggered) != 2 {
		t.Fatalf("expected 2 milestone events, got %d", len(summary.MilestonesTriggered))
	}
	// Ascending threshold order.
	first, second := summary.MilestonesTriggered[0], summary.MilestonesTriggered[1]
	if first.Threshold != 50000 || second.Threshold != 100000 {
		t.Errorf("milestones must be in ascending threshold order: %d then %d", first.Threshold, second.Threshold)
	}
	// 120k spend crosses both: not an exclusive ladder.
	if !first.Crossed || !second.Crossed {
		t.Errorf("both milestones should be crossed at 120k spend: %v %v", first.Crossed, second.Crossed)
	}
	if first.SpendInPeriod != 120000 {
		t.Errorf("expected spend 120000, got %d", first.SpendInPeriod)
	}
	// Milestone bonus units are declared, never folded into totals.
	if summary.TotalReward != 1200 {
		t.Errorf("milestone units must not inflate the total: got %d", summary.TotalReward)
	}
}

func TestMilestoneSpendSkipsExcludedAndNonCredit(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleExclusion, Category: domain.CategoryWalletLoad},
		domain.RewardRule{Kind: domain.RuleMilestone, Threshold: 10000, Period: domain.PeriodMonthly, DeclaredReward: "bonus"},
	)

	refund := creditTx("tx-3", "2025-01-12", 4000, domain.CategoryShopping)
	refund.Type = domain.TypeRefund

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 8000, domain.CategoryShopping), // counts (no rate rule, still spend)
		creditTx("tx-2", "2025-01-08", 5000, domain.CategoryWalletLoad), // excluded by rule
		refund, // excluded by type
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())

	if len(summary.MilestonesTriggered) != 1 {
		t.Fatalf("expected 1 milestone event, got %d", len(summary.MilestonesTriggered))
	}
	ev := summary.MilestonesTriggered[0]
	if ev.SpendInPeriod != 8000 {
		t.Errorf("spend must count only non-excluded transactions: expected 8000, got %d", ev.SpendInPeriod)
	}
	if ev.Crossed {
		t.Error("8000 spend must not cross a 10000 threshold")
	}
}

func TestMilestonePeriodTypeMustMatch(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleMilestone, Threshold: 1000, Period: domain.PeriodQuarterly, DeclaredReward: "bonus"},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-1", "2025-01-05", 5000, domain.CategoryShopping),
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())
	if len(summary.MilestonesTriggered) != 0 {
		t.Errorf("quarterly milestone must not fire for a monthly period, got %d events", len(summary.MilestonesTriggered))
	}
}

func TestAggregateFiltersToWindow(t *testing.T) {
	rs := ruleSetWith(
		domain.RewardRule{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
	)

	rewards := evalAll(t, rs,
		creditTx("tx-in", "2025-01-31", 1000, domain.CategoryDining),  // inclusive end
		creditTx("tx-out", "2025-02-01", 1000, domain.CategoryDining), // outside
	)

	summary := AggregatePeriod(rewards, rs, januaryMonthly())
	if summary.TotalReward != 50 {
		t.Errorf("window bounds are inclusive: expected 50, got %d", summary.TotalReward)
	}
}
