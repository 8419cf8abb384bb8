// Package catalog manages the declarative card catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/store"
)

const variantIDsKey = "catalog:variant-ids"

// Service exposes catalog reads and writes over the repository, with
// cached id listing for recommendation candidate resolution.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a catalog service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   10 * time.Minute,
	}
}

// VariantIDs returns the ids of all known catalog variants. This is the
// candidate pool for card recommendation when no explicit candidates are
// given.
func (s *Service) VariantIDs(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, domain.CatalogScope, variantIDsKey); err == nil && data != nil {
			var ids []string
			if err := json.Unmarshal(data, &ids); err == nil {
				return ids, nil
			}
		}
	}

	variants, err := s.repo.ListCardVariants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list card variants: %w", err)
	}

	ids := make([]string, 0, len(variants))
	for _, v := range variants {
		ids = append(ids, v.ID)
	}

	if s.cache != nil {
		if data, err := json.Marshal(ids); err == nil {
			_ = s.cache.Set(ctx, domain.CatalogScope, variantIDsKey, data, s.ttl)
		}
	}

	return ids, nil
}

// IDsFunc adapts VariantIDs to the resolver signature the recommendation
// flow expects.
func (s *Service) IDsFunc() func(ctx context.Context) ([]string, error) {
	return s.VariantIDs
}

// Get retrieves a catalog variant by id.
func (s *Service) Get(ctx context.Context, variantID string) (*domain.CardVariant, error) {
	return s.repo.GetCardVariant(ctx, variantID)
}

// List retrieves the full catalog.
func (s *Service) List(ctx context.Context) ([]*domain.CardVariant, error) {
	return s.repo.ListCardVariants(ctx)
}

// Save validates and stores a catalog variant, invalidating the cached
// id listing.
func (s *Service) Save(ctx context.Context, variant *domain.CardVariant) error {
	if err := Validate(variant); err != nil {
		return err
	}

	if err := s.repo.SaveCardVariant(ctx, variant); err != nil {
		return err
	}

	s.invalidateIDs(ctx)
	return nil
}

// Delete removes a catalog variant.
func (s *Service) Delete(ctx context.Context, variantID string) error {
	if err := s.repo.DeleteCardVariant(ctx, variantID); err != nil {
		return err
	}

	s.invalidateIDs(ctx)
	return nil
}

func (s *Service) invalidateIDs(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, domain.CatalogScope, variantIDsKey)
	}
}

// Validate checks a catalog variant's declarative integrity. Source and
// sourceRef are mandatory for audit; milestones must declare a positive
// threshold and a known period.
func Validate(variant *domain.CardVariant) error {
	if variant == nil {
		return fmt.Errorf("%w: variant is required", store.ErrInvalidInput)
	}

	var missing []string
	if variant.ID == "" {
		missing = append(missing, "id")
	}
	if variant.Bank == "" {
		missing = append(missing, "bank")
	}
	if variant.Family == "" {
		missing = append(missing, "family")
	}
	if variant.VariantName == "" {
		missing = append(missing, "variantName")
	}
	if variant.EffectiveFrom == "" {
		missing = append(missing, "effectiveFrom")
	}
	if variant.Source == "" {
		missing = append(missing, "source")
	}
	if variant.SourceRef == "" {
		missing = append(missing, "sourceRef")
	}
	if variant.VerifiedAt == "" {
		missing = append(missing, "verifiedAt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields %v", store.ErrInvalidInput, missing)
	}

	if variant.EffectiveTo != "" && variant.EffectiveTo < variant.EffectiveFrom {
		return fmt.Errorf("%w: effectiveTo precedes effectiveFrom", store.ErrInvalidInput)
	}

	for i, m := range variant.Milestones {
		if m.Threshold <= 0 {
			return fmt.Errorf("%w: milestone %d threshold must be positive", store.ErrInvalidInput, i)
		}
		switch m.Period {
		case domain.PeriodMonthly, domain.PeriodQuarterly, domain.PeriodYearly:
		default:
			return fmt.Errorf("%w: milestone %d has unknown period %q", store.ErrInvalidInput, i, m.Period)
		}
	}

	return nil
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
