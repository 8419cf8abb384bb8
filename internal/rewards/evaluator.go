// Package rewards implements the deterministic rewards computation engine:
// per-transaction rule evaluation, period-scoped cap allocation and
// milestone crossing detection. Pure computation; no I/O, no persistence.
package rewards

import (
	"fmt"
	"math"

	"github.com/finmatter/kestrel/internal/domain"
)

// ruleIndex holds one-time lookups built from a rule set so evaluation and
// aggregation stay linear in (transactions + rules).
type ruleIndex struct {
	// exclusions maps category -> first exclusion rule position.
	exclusions map[domain.SpendCategory]int
	// rates maps category -> first category_rate rule position (first
	// match by list order wins).
	rates map[domain.SpendCategory]int
	rules []domain.RewardRule
}

func newRuleIndex(ruleSet *domain.CardRuleSet) *ruleIndex {
	idx := &ruleIndex{
		exclusions: make(map[domain.SpendCategory]int),
		rates:      make(map[domain.SpendCategory]int),
	}
	if ruleSet == nil {
		return idx
	}
	idx.rules = ruleSet.Rules
	for i, r := range ruleSet.Rules {
		switch r.Kind {
		case domain.RuleExclusion:
			if _, ok := idx.exclusions[r.Category]; !ok {
				idx.exclusions[r.Category] = i
			}
		case domain.RuleCategoryRate:
			if _, ok := idx.rates[r.Category]; !ok {
				idx.rates[r.Category] = i
			}
		}
	}
	return idx
}

// EvaluateTransaction applies exclusion and rate rules to one transaction,
// producing a provisional (uncapped) reward with an explanation. Pure
// function: a malformed rule set yields zero rewards, never an error.
//
// Priority order: transaction type, then category exclusion, then rate
// lookup. The type check wins the explanation even when a category
// exclusion also applies.
func EvaluateTransaction(tx *domain.CategorizedTransaction, ruleSet *domain.CardRuleSet) domain.PerTransactionReward {
	return newRuleIndex(ruleSet).evaluate(tx)
}

func (idx *ruleIndex) evaluate(tx *domain.CategorizedTransaction) domain.PerTransactionReward {
	reward := domain.PerTransactionReward{
		TransactionID:   tx.ID,
		CardID:          tx.CardID,
		Category:        tx.Category,
		BaseAmount:      tx.Amount,
		TransactionDate: tx.Date,
	}

	if tx.Type != domain.TypeCredit {
		reward.Excluded = true
		reward.AppliedRule = domain.RuleRef{Kind: domain.RuleExclusion, SourceIndex: -1}
		reward.Explanation = "ineligible transaction type (not credit)"
		return reward
	}

	if pos, ok := idx.exclusions[tx.Category]; ok {
		reward.Excluded = true
		reward.AppliedRule = domain.RuleRef{Kind: domain.RuleExclusion, SourceIndex: idx.rules[pos].SourceIndex}
		reward.Explanation = fmt.Sprintf("excluded category: %s", tx.Category)
		return reward
	}

	pos, ok := idx.rates[tx.Category]
	if !ok {
		reward.AppliedRule = domain.RuleRef{Kind: domain.RuleCategoryRate, SourceIndex: -1}
		reward.Explanation = fmt.Sprintf("no rate rule for category: %s", tx.Category)
		return reward
	}

	rate := idx.rules[pos]
	reward.RewardAmount = unitsFor(tx.Amount, rate.RatePer100)
	reward.AppliedRule = domain.RuleRef{Kind: domain.RuleCategoryRate, SourceIndex: rate.SourceIndex}
	reward.Explanation = fmt.Sprintf("%g per ₹100 on %s: %d units from ₹%d",
		rate.RatePer100, tx.Category, reward.RewardAmount, tx.Amount)
	return reward
}

// unitsFor computes ⌊(amount / 100) × ratePer100⌋. Truncation, not
// rounding: amount 999 at rate 1 earns 9 units, never 10.
func unitsFor(amount int64, ratePer100 float64) int64 {
	if amount <= 0 || ratePer100 <= 0 {
		return 0
	}
	// Multiply before dividing so integral products stay exact.
	return int64(math.Floor(float64(amount) * ratePer100 / 100.0))
}
