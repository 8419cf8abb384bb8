// Package worker provides async summary recomputation off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
	"github.com/finmatter/kestrel/internal/store"
)

// Worker recomputes period summaries when transactions are ingested.
// It persists the summary for audit, refreshes the cache, and publishes
// summary-computed plus milestone-crossed events.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *rewards.Engine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	summaryTTL time.Duration
}

// Config holds worker configuration.
type Config struct {
	// UserIDs is the list of users to process.
	UserIDs []string
}

// IngestedMessage is the payload published on the transactions-ingested
// topic. The worker recomputes the named card over the named period.
type IngestedMessage struct {
	UserID string               `json:"userId"`
	CardID string               `json:"cardId"`
	Period domain.PeriodContext `json:"period"`
}

// SummaryMessage is published on the summary-computed topic.
type SummaryMessage struct {
	UserID  string                      `json:"userId"`
	CardID  string                      `json:"cardId"`
	Summary *domain.PeriodRewardSummary `json:"summary"`
}

// MilestoneMessage is published on the milestone-crossed topic, one per
// newly crossed milestone.
type MilestoneMessage struct {
	UserID    string                `json:"userId"`
	CardID    string                `json:"cardId"`
	Period    domain.PeriodContext  `json:"period"`
	Milestone domain.MilestoneEvent `json:"milestone"`
}

// NewWorker creates an async recompute worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *rewards.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		repo:       repo,
		cache:      cache,
		engine:     engine,
		ctx:        ctx,
		cancel:     cancel,
		summaryTTL: 15 * time.Minute,
	}
}

// Start subscribes to the transactions-ingested topic for each user.
func (w *Worker) Start(cfg Config) error {
	for _, userID := range cfg.UserIDs {
		if err := w.startUserWorker(userID); err != nil {
			slog.Error("failed to start worker for user",
				"user_id", userID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"user_count", len(cfg.UserIDs),
	)

	return nil
}

func (w *Worker) startUserWorker(userID string) error {
	sub, err := w.bus.Subscribe(w.ctx, userID, domain.TopicTransactionsIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processIngested(ctx, userID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("user worker started",
		"user_id", userID,
		"topic", domain.TopicTransactionsIngested,
	)

	return nil
}

// processIngested recomputes the affected card/period and fans results out.
func (w *Worker) processIngested(ctx context.Context, userID string, msg *domain.Message) error {
	start := time.Now()

	var ingested IngestedMessage
	if err := json.Unmarshal(msg.Payload, &ingested); err != nil {
		slog.Error("failed to parse ingested message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if ingested.UserID != "" {
		userID = ingested.UserID
	}
	if ingested.CardID == "" || ingested.Period.Start == "" || ingested.Period.End == "" {
		return fmt.Errorf("ingested message missing cardId or period")
	}

	summary, err := w.Recompute(ctx, userID, ingested.CardID, ingested.Period)
	if err != nil {
		slog.Error("recompute failed",
			"user_id", userID,
			"card_id", ingested.CardID,
			"error", err,
		)
		return err
	}

	slog.Debug("summary recomputed",
		"user_id", userID,
		"card_id", ingested.CardID,
		"period_start", ingested.Period.Start,
		"total_reward", summary.TotalReward,
		"process_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Recompute runs the engine over the card's transactions in the period,
// persists and caches the summary, and publishes downstream events.
func (w *Worker) Recompute(ctx context.Context, userID, cardID string, period domain.PeriodContext) (*domain.PeriodRewardSummary, error) {
	ruleSet, err := w.repo.GetRuleSet(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no rule set for card %s: %w", cardID, err)
		}
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}

	all, err := w.repo.ListTransactionsInPeriod(ctx, userID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	transactions := make([]*domain.CategorizedTransaction, 0, len(all))
	for _, tx := range all {
		if tx.CardID == cardID {
			transactions = append(transactions, tx)
		}
	}

	result := w.engine.Compute(ruleSet, transactions, period)
	summary := &result.PeriodSummary

	if err := w.repo.SavePeriodSummary(ctx, userID, cardID, summary); err != nil {
		return nil, fmt.Errorf("failed to persist summary: %w", err)
	}

	if w.cache != nil {
		if err := w.cache.SetSummary(ctx, userID, cardID, period, summary, w.summaryTTL); err != nil {
			slog.Warn("failed to cache summary",
				"user_id", userID,
				"card_id", cardID,
				"error", err,
			)
		}
	}

	w.publishOutcomes(ctx, userID, cardID, period, summary)

	return summary, nil
}

func (w *Worker) publishOutcomes(ctx context.Context, userID, cardID string, period domain.PeriodContext, summary *domain.PeriodRewardSummary) {
	if w.bus == nil {
		return
	}

	if payload, err := json.Marshal(&SummaryMessage{
		UserID:  userID,
		CardID:  cardID,
		Summary: summary,
	}); err == nil {
		if err := w.bus.Publish(ctx, userID, domain.TopicSummaryComputed, payload); err != nil {
			slog.Warn("failed to publish summary event", "error", err)
		}
	}

	for _, milestone := range summary.MilestonesTriggered {
		if !milestone.Crossed {
			continue
		}
		payload, err := json.Marshal(&MilestoneMessage{
			UserID:    userID,
			CardID:    cardID,
			Period:    period,
			Milestone: milestone,
		})
		if err != nil {
			continue
		}
		if err := w.bus.Publish(ctx, userID, domain.TopicMilestoneCrossed, payload); err != nil {
			slog.Warn("failed to publish milestone event", "error", err)
		}
	}
}

// Stop cancels all subscriptions and waits for handlers to finish.
func (w *Worker) Stop() {
	w.cancel()
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
}
