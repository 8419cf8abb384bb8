package rewards

import (
	"fmt"
	"sort"

	"github.com/finmatter/kestrel/internal/domain"
)

// capBucket collects the rewards competing for one cap's budget within one
// period instance: (period type, period key, category or global scope).
type capBucket struct {
	periodType domain.PeriodType
	periodKey  string
	category   domain.SpendCategory // empty = global scope
	capValue   int64
	// positions index into the reward slice being aggregated.
	positions []int
}

// globalScope marks a card-wide cap bucket in bucket keys.
const globalScope = "global"

func bucketKey(pt domain.PeriodType, periodKey string, category domain.SpendCategory) string {
	scope := globalScope
	if category != "" {
		scope = string(category)
	}
	return fmt.Sprintf("%s:%s:%s", pt, periodKey, scope)
}

// AggregatePeriod applies cap rules to provisional per-transaction rewards
// and builds the period summary: capped totals, per-category totals, cap
// hit records and milestone events. CappedAmount is set on every in-period
// reward (mutated in place). No error paths: absent or malformed cap and
// milestone definitions degrade to "no cap" / "no milestone".
func AggregatePeriod(perTx []domain.PerTransactionReward, ruleSet *domain.CardRuleSet, period domain.PeriodContext) domain.PeriodRewardSummary {
	summary := domain.PeriodRewardSummary{
		Period:              period,
		ByCategory:          make(map[domain.SpendCategory]int64),
		CapsHit:             []domain.CapHit{},
		MilestonesTriggered: []domain.MilestoneEvent{},
	}

	var rules []domain.RewardRule
	if ruleSet != nil {
		rules = ruleSet.Rules
	}

	// In-period rewards, by position. Date strings are ISO, so the window
	// check is a string comparison.
	inPeriod := make([]int, 0, len(perTx))
	for i := range perTx {
		if period.Contains(perTx[i].TransactionDate) {
			inPeriod = append(inPeriod, i)
		}
	}

	// One-time cap index: first cap rule per (period type, scope) wins.
	type capScope struct {
		periodType domain.PeriodType
		category   domain.SpendCategory
	}
	capByScope := make(map[capScope]domain.RewardRule)
	capOrder := make([]capScope, 0)
	for _, r := range rules {
		if r.Kind != domain.RuleCap {
			continue
		}
		scope := capScope{periodType: r.Period, category: r.Category}
		if _, ok := capByScope[scope]; !ok {
			capByScope[scope] = r
			capOrder = append(capOrder, scope)
		}
	}

	// Bucket non-excluded, positive rewards under each matching cap scope.
	// An uncapped category/period combination has no bucket and no limit.
	buckets := make(map[string]*capBucket)
	keyOrder := make([]string, 0)
	bucketed := make([]bool, len(perTx))
	for _, scope := range capOrder {
		capRule := capByScope[scope]
		for _, i := range inPeriod {
			r := &perTx[i]
			if r.Excluded || r.RewardAmount <= 0 {
				continue
			}
			if capRule.Category != "" && r.Category != capRule.Category {
				continue
			}
			pk := domain.PeriodKey(r.TransactionDate, capRule.Period)
			if pk == "" {
				continue
			}
			key := bucketKey(capRule.Period, pk, capRule.Category)
			b, ok := buckets[key]
			if !ok {
				b = &capBucket{
					periodType: capRule.Period,
					periodKey:  pk,
					category:   capRule.Category,
					capValue:   capRule.MaxUnits,
				}
				buckets[key] = b
				keyOrder = append(keyOrder, key)
			}
			b.positions = append(b.positions, i)
			bucketed[i] = true
		}
	}

	// Allocate each bucket's budget by transaction date ascending, ties
	// keeping original relative order: earlier transactions consume the
	// cap in full and later ones are zeroed once it is exhausted. First
	// come, first served, not a pro-rata split.
	for _, key := range keyOrder {
		b := buckets[key]
		sort.SliceStable(b.positions, func(x, y int) bool {
			return perTx[b.positions[x]].TransactionDate < perTx[b.positions[y]].TransactionDate
		})
		var running int64
		for _, i := range b.positions {
			r := &perTx[i]
			remaining := b.capValue - running
			if remaining < 0 {
				remaining = 0
			}
			allow := r.RewardAmount
			if allow > remaining {
				allow = remaining
			}
			r.CappedAmount = allow
			running += allow
		}
	}

	// Anything outside a cap bucket passes through uncapped.
	for _, i := range inPeriod {
		if !bucketed[i] {
			perTx[i].CappedAmount = perTx[i].RewardAmount
		}
	}

	// Cap hit records, in bucket discovery order.
	for _, key := range keyOrder {
		b := buckets[key]
		var totalEarned, cappedValue int64
		for _, i := range b.positions {
			totalEarned += perTx[i].RewardAmount
			cappedValue += perTx[i].CappedAmount
		}
		var overCap int64
		if totalEarned > b.capValue {
			overCap = totalEarned - b.capValue
		}
		hit := domain.CapHit{
			Scope:       domain.CapScopeCard,
			PeriodKey:   b.periodKey,
			PeriodType:  b.periodType,
			TotalEarned: totalEarned,
			CapValue:    b.capValue,
			CappedValue: cappedValue,
			OverCap:     overCap,
		}
		if b.category != "" {
			hit.Scope = domain.CapScopeCategory
			hit.Category = b.category
		}
		summary.CapsHit = append(summary.CapsHit, hit)
	}

	// Totals come from capped amounts only, so caps always suppress the
	// reported total.
	for _, i := range inPeriod {
		r := &perTx[i]
		summary.TotalReward += r.CappedAmount
		summary.ByCategory[r.Category] += r.CappedAmount
	}

	// Milestone spend is category-agnostic and cap-agnostic: raw base
	// amounts of all non-excluded in-period transactions.
	var spendInPeriod int64
	for _, i := range inPeriod {
		if !perTx[i].Excluded {
			spendInPeriod += perTx[i].BaseAmount
		}
	}

	// Milestones whose period matches the requested window, evaluated
	// independently in ascending threshold order. Several can be crossed
	// in the same period; this is not an exclusive ladder.
	milestones := make([]domain.RewardRule, 0)
	for _, r := range rules {
		if r.Kind == domain.RuleMilestone && r.Period == period.Type {
			milestones = append(milestones, r)
		}
	}
	sort.SliceStable(milestones, func(x, y int) bool {
		return milestones[x].Threshold < milestones[y].Threshold
	})
	for _, m := range milestones {
		summary.MilestonesTriggered = append(summary.MilestonesTriggered, domain.MilestoneEvent{
			Threshold:      m.Threshold,
			SpendInPeriod:  spendInPeriod,
			Crossed:        spendInPeriod >= m.Threshold,
			DeclaredReward: m.DeclaredReward,
			RewardUnits:    m.RewardUnits,
			SourceIndex:    m.SourceIndex,
		})
	}

	return summary
}
