// Package compare implements the multi-card comparison layer: it replays
// one shared transaction set through multiple cards' rule sets and ranks
// the outcomes. Optimization answers "would another card I already use
// have earned more?"; recommendation answers "would a card I don't own
// beat my best current card?".
package compare

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
)

// RuleSetResolver resolves a card id to its declared rule set. A nil rule
// set (or an error) means "not available", a caller-level condition rather
// than an engine error.
type RuleSetResolver func(ctx context.Context, cardID string) (*domain.CardRuleSet, error)

// CatalogIDsFunc resolves the full card catalog's variant ids, used for
// default-candidate resolution in recommendations.
type CatalogIDsFunc func(ctx context.Context) ([]string, error)

// maxParallel bounds concurrent per-card engine runs. Per-card cost is
// small (transactions × rules), so a modest fan-out is plenty.
const maxParallel = 8

// computeCards runs the engine once per card id against the shared
// transaction set. The returned slice is index-aligned with cardIDs; a nil
// entry means the card has no resolvable rule set. Input order (and
// therefore tie-break semantics) is preserved regardless of scheduling.
func computeCards(ctx context.Context, engine *rewards.Engine, resolve RuleSetResolver, cardIDs []string, txs []*domain.CategorizedTransaction, period domain.PeriodContext) []*domain.PeriodRewardSummary {
	summaries := make([]*domain.PeriodRewardSummary, len(cardIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, cardID := range cardIDs {
		g.Go(func() error {
			ruleSet, err := resolve(ctx, cardID)
			if err != nil || ruleSet == nil {
				return nil
			}
			result := engine.Compute(ruleSet, txs, period)
			summaries[i] = &result.PeriodSummary
			return nil
		})
	}
	g.Wait()

	return summaries
}

// categoriesPresent returns the taxonomy categories that appear in any of
// the given summaries, in taxonomy declaration order so output is
// deterministic.
func categoriesPresent(summaries []*domain.PeriodRewardSummary) []domain.SpendCategory {
	present := make([]domain.SpendCategory, 0)
	for _, c := range domain.SpendCategories() {
		for _, s := range summaries {
			if s == nil {
				continue
			}
			if _, ok := s.ByCategory[c]; ok {
				present = append(present, c)
				break
			}
		}
	}
	return present
}

func categoryValue(s *domain.PeriodRewardSummary, c domain.SpendCategory) int64 {
	if s == nil {
		return 0
	}
	return s.ByCategory[c]
}
