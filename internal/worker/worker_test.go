package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finmatter/kestrel/internal/bus"
	"github.com/finmatter/kestrel/internal/cache"
	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
	"github.com/finmatter/kestrel/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, domain.Repository, domain.EventBus, domain.Cache) {
	t.Helper()

	repo, err := store.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	summaryCache := cache.NewLRUCache(100)

	w := NewWorker(eventBus, repo, summaryCache, rewards.NewEngine())
	t.Cleanup(w.Stop)

	return w, repo, eventBus, summaryCache
}

func seedCard(t *testing.T, repo domain.Repository, userID string) domain.PeriodContext {
	t.Helper()
	ctx := context.Background()

	ruleSet := &domain.CardRuleSet{
		CardID: "card-1",
		Rules: []domain.RewardRule{
			{Kind: domain.RuleCategoryRate, Category: domain.CategoryDining, RatePer100: 5},
			{Kind: domain.RuleMilestone, Threshold: 5000, Period: domain.PeriodMonthly, DeclaredReward: "bonus voucher", RewardUnits: 500},
		},
	}
	if err := repo.SaveRuleSet(ctx, ruleSet); err != nil {
		t.Fatalf("save rule set failed: %v", err)
	}

	txs := []*domain.CategorizedTransaction{
		{ID: "tx-1", CardID: "card-1", Date: "2024-01-10", Amount: 4000, Currency: "INR", Type: domain.TypeCredit, Category: domain.CategoryDining},
		{ID: "tx-2", CardID: "card-1", Date: "2024-01-20", Amount: 2000, Currency: "INR", Type: domain.TypeCredit, Category: domain.CategoryDining},
		{ID: "tx-3", CardID: "other-card", Date: "2024-01-15", Amount: 9999, Currency: "INR", Type: domain.TypeCredit, Category: domain.CategoryDining},
	}
	for _, tx := range txs {
		if err := repo.SaveTransaction(ctx, userID, tx); err != nil {
			t.Fatalf("save transaction failed: %v", err)
		}
	}

	return domain.PeriodContext{Type: domain.PeriodMonthly, Start: "2024-01-01", End: "2024-01-31"}
}

func TestRecompute(t *testing.T) {
	w, repo, _, summaryCache := newTestWorker(t)
	ctx := context.Background()
	period := seedCard(t, repo, "user-1")

	summary, err := w.Recompute(ctx, "user-1", "card-1", period)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	// 4000 and 2000 at 5 per 100; the other card's transaction is ignored
	if summary.TotalReward != 300 {
		t.Errorf("expected total 300, got %d", summary.TotalReward)
	}

	t.Run("milestone evaluated against card spend", func(t *testing.T) {
		if len(summary.MilestonesTriggered) != 1 || !summary.MilestonesTriggered[0].Crossed {
			t.Fatalf("expected crossed milestone, got %+v", summary.MilestonesTriggered)
		}
		if summary.MilestonesTriggered[0].SpendInPeriod != 6000 {
			t.Errorf("expected spend 6000, got %d", summary.MilestonesTriggered[0].SpendInPeriod)
		}
	})

	t.Run("summary persisted", func(t *testing.T) {
		stored, err := repo.GetPeriodSummary(ctx, "user-1", "card-1", period)
		if err != nil {
			t.Fatalf("get summary failed: %v", err)
		}
		if stored.TotalReward != 300 {
			t.Errorf("persisted total mismatch: %d", stored.TotalReward)
		}
	})

	t.Run("summary cached", func(t *testing.T) {
		cached, err := summaryCache.GetSummary(ctx, "user-1", "card-1", period)
		if err != nil {
			t.Fatalf("cache get failed: %v", err)
		}
		if cached == nil || cached.TotalReward != 300 {
			t.Errorf("expected cached summary, got %+v", cached)
		}
	})
}

func TestRecomputeMissingRuleSet(t *testing.T) {
	w, _, _, _ := newTestWorker(t)

	period := domain.PeriodContext{Type: domain.PeriodMonthly, Start: "2024-01-01", End: "2024-01-31"}
	_, err := w.Recompute(context.Background(), "user-1", "ghost-card", period)
	if err == nil {
		t.Fatal("expected error for missing rule set")
	}
}

func TestIngestedEventTriggersRecompute(t *testing.T) {
	w, repo, eventBus, _ := newTestWorker(t)
	ctx := context.Background()
	period := seedCard(t, repo, "user-1")

	if err := w.Start(Config{UserIDs: []string{"user-1"}}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var summaryEvents atomic.Int32
	var milestoneEvents atomic.Int32

	_, err := eventBus.Subscribe(ctx, "user-1", domain.TopicSummaryComputed, func(ctx context.Context, msg *domain.Message) error {
		var sm SummaryMessage
		if err := json.Unmarshal(msg.Payload, &sm); err != nil {
			t.Errorf("bad summary payload: %v", err)
			return err
		}
		if sm.Summary.TotalReward == 300 {
			summaryEvents.Add(1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	_, err = eventBus.Subscribe(ctx, "user-1", domain.TopicMilestoneCrossed, func(ctx context.Context, msg *domain.Message) error {
		milestoneEvents.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	payload, _ := json.Marshal(&IngestedMessage{
		UserID: "user-1",
		CardID: "card-1",
		Period: period,
	})
	if err := eventBus.Publish(ctx, "user-1", domain.TopicTransactionsIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if summaryEvents.Load() > 0 && milestoneEvents.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if summaryEvents.Load() != 1 {
		t.Errorf("expected 1 summary event, got %d", summaryEvents.Load())
	}
	if milestoneEvents.Load() != 1 {
		t.Errorf("expected 1 milestone event, got %d", milestoneEvents.Load())
	}
}
