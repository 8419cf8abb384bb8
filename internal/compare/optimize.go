package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
)

// OptimizeParams selects the cards to compare. BaselineCardID is optional;
// when absent or not among the compared cards, the first compared card is
// the baseline (a documented fallback, not an error).
type OptimizeParams struct {
	CardIDs        []string `json:"cardIds"`
	BaselineCardID string   `json:"baselineCardId,omitempty"`
}

// ComparedCard is one card's total over the shared transaction set.
type ComparedCard struct {
	CardID      string `json:"cardId"`
	TotalReward int64  `json:"totalReward"`
}

// CategoryInsight names the best card for one spend category and the
// units the baseline left on the table there.
type CategoryInsight struct {
	Category    domain.SpendCategory `json:"category"`
	BestCardID  string               `json:"bestCardId"`
	Delta       int64                `json:"delta"`
	Explanation string               `json:"explanation"`
}

// OptimizeResult ranks the user's own cards against each other.
// BestCardID and BaselineCardID are empty when no card resolved.
type OptimizeResult struct {
	ComparedCards  []ComparedCard    `json:"comparedCards"`
	BestCardID     string            `json:"bestCardId"`
	BaselineCardID string            `json:"baselineCardId"`
	MissedReward   int64             `json:"missedReward"`
	ByCategory     []CategoryInsight `json:"byCategory"`
}

// Optimizer compares cards the user already holds.
type Optimizer struct {
	engine  *rewards.Engine
	resolve RuleSetResolver
}

// NewOptimizer creates an optimizer over the given rule-set resolver.
func NewOptimizer(resolve RuleSetResolver) *Optimizer {
	return &Optimizer{engine: rewards.NewEngine(), resolve: resolve}
}

// Optimize runs the engine once per card against one shared transaction
// set and compares the totals. Cards without a resolvable rule set are
// silently dropped from the comparison; if none resolve, the result is
// empty with MissedReward 0.
//
// Best-card ties break in favor of the earlier card in the input list
// (stable left-to-right max).
func (o *Optimizer) Optimize(ctx context.Context, txs []*domain.CategorizedTransaction, period domain.PeriodContext, params OptimizeParams) *OptimizeResult {
	summaries := computeCards(ctx, o.engine, o.resolve, params.CardIDs, txs, period)

	compared := make([]ComparedCard, 0, len(params.CardIDs))
	byCard := make(map[string]*domain.PeriodRewardSummary, len(params.CardIDs))
	for i, cardID := range params.CardIDs {
		if summaries[i] == nil {
			continue
		}
		compared = append(compared, ComparedCard{CardID: cardID, TotalReward: summaries[i].TotalReward})
		byCard[cardID] = summaries[i]
	}

	if len(compared) == 0 {
		return &OptimizeResult{
			ComparedCards: []ComparedCard{},
			ByCategory:    []CategoryInsight{},
		}
	}

	best := compared[0]
	for _, c := range compared[1:] {
		if c.TotalReward > best.TotalReward {
			best = c
		}
	}

	baselineCardID := compared[0].CardID
	if params.BaselineCardID != "" {
		for _, c := range compared {
			if c.CardID == params.BaselineCardID {
				baselineCardID = params.BaselineCardID
				break
			}
		}
	}
	var baselineReward int64
	for _, c := range compared {
		if c.CardID == baselineCardID {
			baselineReward = c.TotalReward
			break
		}
	}

	missed := best.TotalReward - baselineReward
	if missed < 0 {
		missed = 0
	}

	return &OptimizeResult{
		ComparedCards:  compared,
		BestCardID:     best.CardID,
		BaselineCardID: baselineCardID,
		MissedReward:   missed,
		ByCategory:     buildInsights(compared, byCard, baselineCardID),
	}
}

// buildInsights attributes each observed category to the card earning the
// most there. The baseline is the default winner, so it implicitly wins
// ties. Insights are sorted by delta descending.
func buildInsights(compared []ComparedCard, byCard map[string]*domain.PeriodRewardSummary, baselineCardID string) []CategoryInsight {
	summaries := make([]*domain.PeriodRewardSummary, 0, len(compared))
	for _, c := range compared {
		summaries = append(summaries, byCard[c.CardID])
	}
	baseline := byCard[baselineCardID]

	insights := make([]CategoryInsight, 0)
	for _, category := range categoriesPresent(summaries) {
		bestCardID := baselineCardID
		var bestValue int64
		for _, c := range compared {
			if v := categoryValue(byCard[c.CardID], category); v > bestValue {
				bestValue = v
				bestCardID = c.CardID
			}
		}

		baselineValue := categoryValue(baseline, category)
		delta := bestValue - baselineValue
		if delta < 0 {
			delta = 0
		}
		explanation := "same as baseline"
		if delta > 0 {
			explanation = fmt.Sprintf("best: %d units vs baseline %d units", bestValue, baselineValue)
		}

		insights = append(insights, CategoryInsight{
			Category:    category,
			BestCardID:  bestCardID,
			Delta:       delta,
			Explanation: explanation,
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Delta > insights[j].Delta
	})
	return insights
}
