package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/finmatter/kestrel/internal/domain"
)

func staticCatalog(ids ...string) CatalogIDsFunc {
	return func(ctx context.Context) ([]string, error) {
		return ids, nil
	}
}

func TestRecommendKeepsOnlyStrictImprovements(t *testing.T) {
	// Baseline total 100; cand-a 150 (kept, +50); cand-b 80 (dropped:
	// non-positive increment, not a missing rule set).
	sets := map[string]*domain.CardRuleSet{
		"owned":  flatRateSet("owned", domain.CategoryDining, 1),
		"cand-a": flatRateSet("cand-a", domain.CategoryDining, 1.5),
		"cand-b": flatRateSet("cand-b", domain.CategoryDining, 0.8),
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog())

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs:  []string{"owned"},
		CandidateCardIDs: []string{"cand-a", "cand-b"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if res.BaselineReward != 100 || res.BaselineCardID != "owned" {
		t.Errorf("unexpected baseline: %d / %q", res.BaselineReward, res.BaselineCardID)
	}
	if len(res.Recommendations) != 1 {
		t.Fatalf("expected exactly 1 recommendation, got %d", len(res.Recommendations))
	}
	got := res.Recommendations[0]
	if got.CardID != "cand-a" || got.IncrementalReward != 50 {
		t.Errorf("unexpected recommendation: %+v", got)
	}
	if len(res.Excluded.NoRuleSet) != 0 {
		t.Errorf("cand-b lost on increment, not on rule set: %+v", res.Excluded.NoRuleSet)
	}
}

func TestRecommendReportsMissingRuleSets(t *testing.T) {
	sets := map[string]*domain.CardRuleSet{
		"owned":  flatRateSet("owned", domain.CategoryDining, 1),
		"cand-a": flatRateSet("cand-a", domain.CategoryDining, 2),
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog())

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs:  []string{"owned"},
		CandidateCardIDs: []string{"cand-a", "cand-missing"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if len(res.Excluded.NoRuleSet) != 1 || res.Excluded.NoRuleSet[0] != "cand-missing" {
		t.Errorf("missing candidate rule sets must be reported: %+v", res.Excluded.NoRuleSet)
	}
	if len(res.Recommendations) != 1 || res.Recommendations[0].CardID != "cand-a" {
		t.Errorf("unexpected recommendations: %+v", res.Recommendations)
	}
}

func TestRecommendDefaultsCandidatesToCatalog(t *testing.T) {
	sets := map[string]*domain.CardRuleSet{
		"owned":    flatRateSet("owned", domain.CategoryDining, 1),
		"cat-good": flatRateSet("cat-good", domain.CategoryDining, 3),
		"cat-weak": flatRateSet("cat-weak", domain.CategoryDining, 1),
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog("owned", "cat-good", "cat-weak"))

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs: []string{"owned"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	// "owned" is excluded from candidates; "cat-weak" ties the baseline.
	if len(res.Recommendations) != 1 || res.Recommendations[0].CardID != "cat-good" {
		t.Errorf("unexpected recommendations: %+v", res.Recommendations)
	}
}

func TestRecommendNoUsableBaseline(t *testing.T) {
	sets := map[string]*domain.CardRuleSet{
		"cand-a": flatRateSet("cand-a", domain.CategoryDining, 1),
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog())

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs:  []string{"ghost"},
		CandidateCardIDs: []string{"cand-a"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if res.BaselineReward != 0 || res.BaselineCardID != "" {
		t.Errorf("no resolvable baseline should mean reward 0 and empty id, got %d / %q",
			res.BaselineReward, res.BaselineCardID)
	}
	// Anything positive beats a zero baseline.
	if len(res.Recommendations) != 1 || res.Recommendations[0].IncrementalReward != 100 {
		t.Errorf("unexpected recommendations: %+v", res.Recommendations)
	}
}

func TestRecommendRanksByIncrementalReward(t *testing.T) {
	sets := map[string]*domain.CardRuleSet{
		"owned":  flatRateSet("owned", domain.CategoryDining, 1),
		"small":  flatRateSet("small", domain.CategoryDining, 2),
		"large":  flatRateSet("large", domain.CategoryDining, 5),
		"medium": flatRateSet("medium", domain.CategoryDining, 3),
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog())

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs:  []string{"owned"},
		CandidateCardIDs: []string{"small", "large", "medium"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	want := []string{"large", "medium", "small"}
	if len(res.Recommendations) != len(want) {
		t.Fatalf("expected %d recommendations, got %d", len(want), len(res.Recommendations))
	}
	for i, id := range want {
		if res.Recommendations[i].CardID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, res.Recommendations[i].CardID)
		}
	}
}

func TestRecommendExplainsCategoryWins(t *testing.T) {
	sets := map[string]*domain.CardRuleSet{
		"owned": {
			CardID: "owned",
			Rules: []domain.RewardRule{
				{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 1},
			},
		},
		"cand": {
			CardID: "cand",
			Rules: []domain.RewardRule{
				{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 3},
			},
		},
	}
	rec := NewRecommender(resolverFor(sets), staticCatalog())

	res, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs:  []string{"owned"},
		CandidateCardIDs: []string{"cand"},
	})
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	if len(res.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(res.Recommendations))
	}
	got := res.Recommendations[0]
	if len(got.BestCategories) != 1 || got.BestCategories[0] != domain.CategoryDining {
		t.Errorf("expected dining as best category, got %+v", got.BestCategories)
	}
	if len(got.Explanation) != 1 || got.Explanation[0] != "higher reward in dining vs baseline" {
		t.Errorf("unexpected explanation: %+v", got.Explanation)
	}
}

func TestRecommendCatalogFailurePropagates(t *testing.T) {
	rec := NewRecommender(resolverFor(nil), func(ctx context.Context) ([]string, error) {
		return nil, errors.New("catalog unavailable")
	})

	_, err := rec.Recommend(context.Background(), sharedTxs(), janPeriod(), RecommendParams{
		BaselineCardIDs: []string{"owned"},
	})
	if err == nil {
		t.Fatal("catalog resolution failure must propagate")
	}
}
