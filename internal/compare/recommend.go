package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
)

// RecommendParams selects baseline (owned) cards and optional explicit
// candidates. When CandidateCardIDs is empty, candidates default to the
// full catalog minus the baselines.
type RecommendParams struct {
	BaselineCardIDs  []string `json:"baselineCardIds"`
	CandidateCardIDs []string `json:"candidateCardIds,omitempty"`
}

// Recommendation is one candidate card that strictly beats the baseline.
type Recommendation struct {
	CardID            string                 `json:"cardId"`
	TotalReward       int64                  `json:"totalReward"`
	IncrementalReward int64                  `json:"incrementalReward"`
	BestCategories    []domain.SpendCategory `json:"bestCategories"`
	Explanation       []string               `json:"explanation"`
}

// RecommendExcluded reports candidates dropped from consideration and why.
// Unlike optimization's silent drop, recommendation surfaces cards it
// could not evaluate; the exploratory use case wants that visibility.
type RecommendExcluded struct {
	NoRuleSet []string `json:"noRuleSet"`
}

// RecommendResult ranks catalog candidates against the user's best card.
// BaselineCardID is empty when no baseline card resolves to a rule set; a
// user with no usable owned-card data has baseline 0, not an error.
type RecommendResult struct {
	BaselineReward  int64             `json:"baselineReward"`
	BaselineCardID  string            `json:"baselineCardId"`
	Recommendations []Recommendation  `json:"recommendations"`
	Excluded        RecommendExcluded `json:"excluded"`
}

// Recommender compares catalog cards the user does not own against the
// best of the cards they do.
type Recommender struct {
	engine     *rewards.Engine
	resolve    RuleSetResolver
	catalogIDs CatalogIDsFunc
}

// NewRecommender creates a recommender over the given resolvers.
func NewRecommender(resolve RuleSetResolver, catalogIDs CatalogIDsFunc) *Recommender {
	return &Recommender{engine: rewards.NewEngine(), resolve: resolve, catalogIDs: catalogIDs}
}

// Recommend resolves candidates, computes the baseline as the maximum
// total among resolvable baseline cards, and keeps only candidates whose
// total strictly beats it, ranked by incremental reward descending.
func (r *Recommender) Recommend(ctx context.Context, txs []*domain.CategorizedTransaction, period domain.PeriodContext, params RecommendParams) (*RecommendResult, error) {
	baselineSet := make(map[string]bool, len(params.BaselineCardIDs))
	for _, id := range params.BaselineCardIDs {
		baselineSet[id] = true
	}

	var candidates []string
	if len(params.CandidateCardIDs) > 0 {
		for _, id := range params.CandidateCardIDs {
			if !baselineSet[id] {
				candidates = append(candidates, id)
			}
		}
	} else {
		catalog, err := r.catalogIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve catalog ids: %w", err)
		}
		for _, id := range catalog {
			if !baselineSet[id] {
				candidates = append(candidates, id)
			}
		}
	}

	allIDs := make([]string, 0, len(params.BaselineCardIDs)+len(candidates))
	allIDs = append(allIDs, params.BaselineCardIDs...)
	allIDs = append(allIDs, candidates...)
	summaries := computeCards(ctx, r.engine, r.resolve, allIDs, txs, period)
	byCard := make(map[string]*domain.PeriodRewardSummary, len(allIDs))
	for i, id := range allIDs {
		if summaries[i] != nil {
			byCard[id] = summaries[i]
		}
	}

	// Baseline = max total among owned cards that resolve. A strictly
	// positive total is required to pin the baseline card id.
	var baselineReward int64
	baselineCardID := ""
	for _, id := range params.BaselineCardIDs {
		s, ok := byCard[id]
		if !ok {
			continue
		}
		if s.TotalReward > baselineReward {
			baselineReward = s.TotalReward
			baselineCardID = id
		}
	}

	noRuleSet := make([]string, 0)
	recommendations := make([]Recommendation, 0)
	for _, id := range candidates {
		s, ok := byCard[id]
		if !ok {
			noRuleSet = append(noRuleSet, id)
			continue
		}

		incremental := s.TotalReward - baselineReward
		if incremental <= 0 {
			// Candidates that tie or lose are not recommendations.
			continue
		}

		bestCategories, explanation := explainWin(s, byCard[baselineCardID], s.TotalReward, baselineReward)
		recommendations = append(recommendations, Recommendation{
			CardID:            id,
			TotalReward:       s.TotalReward,
			IncrementalReward: incremental,
			BestCategories:    bestCategories,
			Explanation:       explanation,
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].IncrementalReward > recommendations[j].IncrementalReward
	})

	return &RecommendResult{
		BaselineReward:  baselineReward,
		BaselineCardID:  baselineCardID,
		Recommendations: recommendations,
		Excluded:        RecommendExcluded{NoRuleSet: noRuleSet},
	}, nil
}

// explainWin lists every category where the candidate strictly beats the
// baseline. When no single category improves yet the total did, it falls
// back to one total-level explanation.
func explainWin(card, baseline *domain.PeriodRewardSummary, cardTotal, baselineTotal int64) ([]domain.SpendCategory, []string) {
	bestCategories := make([]domain.SpendCategory, 0)
	explanation := make([]string, 0)

	for _, category := range categoriesPresent([]*domain.PeriodRewardSummary{card, baseline}) {
		cardVal := categoryValue(card, category)
		baseVal := categoryValue(baseline, category)
		if cardVal > baseVal {
			bestCategories = append(bestCategories, category)
			explanation = append(explanation, fmt.Sprintf("higher reward in %s vs baseline", category))
		}
	}

	if len(explanation) == 0 && cardTotal > baselineTotal {
		explanation = append(explanation, "higher total reward vs baseline")
	}

	return bestCategories, explanation
}
