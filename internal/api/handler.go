package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finmatter/kestrel/internal/catalog"
	"github.com/finmatter/kestrel/internal/categorize"
	"github.com/finmatter/kestrel/internal/compare"
	"github.com/finmatter/kestrel/internal/domain"
	"github.com/finmatter/kestrel/internal/rewards"
	"github.com/finmatter/kestrel/internal/store"
	"github.com/finmatter/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	engine      *rewards.Engine
	optimizer   *compare.Optimizer
	recommender *compare.Recommender
	catalog     *catalog.Service
	categorizer *categorize.Categorizer
	version     string

	summaryTTL time.Duration
}

// NewHandler creates a new API handler. The rule-set resolver for the
// comparison flows reads from the repository; a missing rule set resolves
// to nil rather than an error.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rewards.Engine, catalogSvc *catalog.Service, categorizer *categorize.Categorizer, version string) *Handler {
	resolve := func(ctx context.Context, cardID string) (*domain.CardRuleSet, error) {
		rs, err := repo.GetRuleSet(ctx, cardID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return rs, err
	}

	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		engine:      engine,
		optimizer:   compare.NewOptimizer(resolve),
		recommender: compare.NewRecommender(resolve, catalogSvc.IDsFunc()),
		catalog:     catalogSvc,
		categorizer: categorizer,
		version:     version,
		summaryTTL:  15 * time.Minute,
	}
}

// ComputeRequest is the request body for POST /rewards/compute.
// Transactions are optional; when omitted the card's stored transactions
// in the period are used.
type ComputeRequest struct {
	CardID       string                           `json:"cardId"`
	Period       domain.PeriodContext             `json:"period"`
	Transactions []*domain.CategorizedTransaction `json:"transactions,omitempty"`
}

// ComputeRewards handles POST /rewards/compute.
func (h *Handler) ComputeRewards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cardId is required",
		})
		return
	}
	if msg := validatePeriod(req.Period); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	ruleSet, err := h.repo.GetRuleSet(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule set not found for card " + req.CardID,
			})
			return
		}
		slog.Error("failed to load rule set", "card_id", req.CardID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule set",
		})
		return
	}

	transactions := req.Transactions
	fromStore := len(transactions) == 0
	if fromStore {
		transactions, err = h.cardTransactions(ctx, userID, req.CardID, req.Period)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load transactions",
			})
			return
		}
	}

	result := h.engine.Compute(ruleSet, transactions, req.Period)

	// Stored-transaction results feed the summary cache; ad-hoc inputs
	// must not shadow the stored history.
	if fromStore && h.cache != nil {
		_ = h.cache.SetSummary(ctx, userID, req.CardID, req.Period, &result.PeriodSummary, h.summaryTTL)
	}

	writeJSON(w, http.StatusOK, result)
}

// GetRewardSummary handles GET /rewards/summary: the period rollup for a
// card, served from the summary cache when a compute or the async worker
// has populated it, falling back to the persisted summary. Unlike compute
// this never runs the engine, so it can return 404 for a period that was
// never computed.
func (h *Handler) GetRewardSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	q := r.URL.Query()
	cardID := q.Get("cardId")
	if cardID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cardId is required",
		})
		return
	}
	period := domain.PeriodContext{
		Type:  domain.PeriodType(q.Get("type")),
		Start: q.Get("start"),
		End:   q.Get("end"),
	}
	if msg := validatePeriod(period); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if h.cache != nil {
		summary, err := h.cache.GetSummary(ctx, userID, cardID, period)
		if err != nil {
			slog.Warn("summary cache read failed", "card_id", cardID, "error", err)
		}
		if summary != nil {
			writeJSON(w, http.StatusOK, summary)
			return
		}
	}

	summary, err := h.repo.GetPeriodSummary(ctx, userID, cardID, period)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no summary for card " + cardID + " in this period",
			})
			return
		}
		slog.Error("failed to load period summary", "card_id", cardID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load summary",
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// OptimizeRequest is the request body for POST /optimize/rewards.
type OptimizeRequest struct {
	compare.OptimizeParams
	Period       domain.PeriodContext             `json:"period"`
	Transactions []*domain.CategorizedTransaction `json:"transactions,omitempty"`
}

// OptimizeRewards handles POST /optimize/rewards: the same spend history
// replayed against every compared card.
func (h *Handler) OptimizeRewards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.CardIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cardIds is required",
		})
		return
	}
	if msg := validatePeriod(req.Period); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	transactions, ok := h.resolveTransactions(w, ctx, userID, req.Transactions, req.Period)
	if !ok {
		return
	}

	result := h.optimizer.Optimize(ctx, transactions, req.Period, req.OptimizeParams)
	writeJSON(w, http.StatusOK, result)
}

// RecommendRequest is the request body for POST /recommend/cards.
type RecommendRequest struct {
	compare.RecommendParams
	Period       domain.PeriodContext             `json:"period"`
	Transactions []*domain.CategorizedTransaction `json:"transactions,omitempty"`
}

// RecommendCards handles POST /recommend/cards.
func (h *Handler) RecommendCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.BaselineCardIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "baselineCardIds is required",
		})
		return
	}
	if msg := validatePeriod(req.Period); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	transactions, ok := h.resolveTransactions(w, ctx, userID, req.Transactions, req.Period)
	if !ok {
		return
	}

	result, err := h.recommender.Recommend(ctx, transactions, req.Period, req.RecommendParams)
	if err != nil {
		slog.Error("recommendation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "recommendation failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetRuleSet handles GET /rule-sets/{cardId}.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	ruleSet, err := h.repo.GetRuleSet(r.Context(), cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule set not found",
			})
			return
		}
		slog.Error("failed to get rule set", "card_id", cardID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule set",
		})
		return
	}

	writeJSON(w, http.StatusOK, ruleSet)
}

// ListRuleSets handles GET /rule-sets.
func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	ruleSets, err := h.repo.ListRuleSets(r.Context())
	if err != nil {
		slog.Error("failed to list rule sets", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rule sets",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ruleSets": ruleSets,
		"count":    len(ruleSets),
	})
}

// PutRuleSetRequest is the request body for PUT /rule-sets/{cardId}.
type PutRuleSetRequest struct {
	Rules []domain.RewardRule `json:"rules"`
}

// PutRuleSet handles PUT /rule-sets/{cardId}: declares or replaces a
// card's full rule set.
func (h *Handler) PutRuleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID := chi.URLParam(r, "cardId")

	var req PutRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if msg := validateRules(req.Rules); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	ruleSet := &domain.CardRuleSet{
		CardID: cardID,
		Rules:  req.Rules,
	}

	if err := h.repo.SaveRuleSet(ctx, ruleSet); err != nil {
		slog.Error("failed to save rule set", "card_id", cardID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule set",
		})
		return
	}

	writeJSON(w, http.StatusOK, ruleSet)
}

// ListCatalog handles GET /catalog.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	variants, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("failed to list catalog", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list catalog",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"variants": variants,
		"count":    len(variants),
	})
}

// GetCatalogVariant handles GET /catalog/{id}.
func (h *Handler) GetCatalogVariant(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "id")

	variant, err := h.catalog.Get(r.Context(), variantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "catalog variant not found",
			})
			return
		}
		slog.Error("failed to get catalog variant", "id", variantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get catalog variant",
		})
		return
	}

	writeJSON(w, http.StatusOK, variant)
}

// SaveCatalogVariant handles POST /catalog.
func (h *Handler) SaveCatalogVariant(w http.ResponseWriter, r *http.Request) {
	var variant domain.CardVariant
	if err := json.NewDecoder(r.Body).Decode(&variant); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.catalog.Save(r.Context(), &variant); err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save catalog variant", "id", variant.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save catalog variant",
		})
		return
	}

	writeJSON(w, http.StatusCreated, &variant)
}

// DeleteCatalogVariant handles DELETE /catalog/{id}.
func (h *Handler) DeleteCatalogVariant(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "id")

	if err := h.catalog.Delete(r.Context(), variantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "catalog variant not found",
			})
			return
		}
		slog.Error("failed to delete catalog variant", "id", variantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete catalog variant",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IngestRequest is the request body for POST /transactions.
type IngestRequest struct {
	Transactions []domain.TransactionRequest `json:"transactions"`
}

// IngestResponse is the response for POST /transactions.
type IngestResponse struct {
	Ingested     int                              `json:"ingested"`
	Transactions []*domain.CategorizedTransaction `json:"transactions"`
}

// IngestTransactions handles POST /transactions: batch ingest with
// category assignment for lines arriving uncategorized, then an ingested
// event per affected card month so the worker recomputes summaries.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions is required",
		})
		return
	}

	saved := make([]*domain.CategorizedTransaction, 0, len(req.Transactions))
	for i, line := range req.Transactions {
		tx, msg := h.buildTransaction(userID, line)
		if msg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("transaction %d: %s", i, msg),
			})
			return
		}

		if err := h.repo.SaveTransaction(ctx, userID, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save transactions",
			})
			return
		}
		saved = append(saved, tx)
	}

	h.publishIngested(ctx, userID, saved)

	writeJSON(w, http.StatusCreated, IngestResponse{
		Ingested:     len(saved),
		Transactions: saved,
	})
}

// buildTransaction validates one ingest line and assigns its category.
func (h *Handler) buildTransaction(userID string, line domain.TransactionRequest) (*domain.CategorizedTransaction, string) {
	if line.CardID == "" {
		return nil, "cardId is required"
	}
	if len(line.Date) != 10 {
		return nil, "date must be YYYY-MM-DD"
	}
	if _, err := time.Parse("2006-01-02", line.Date); err != nil {
		return nil, "date must be YYYY-MM-DD"
	}
	if line.Amount <= 0 {
		return nil, "amount must be positive"
	}
	switch line.Type {
	case domain.TypeCredit, domain.TypeDebit, domain.TypeRefund:
	default:
		return nil, fmt.Sprintf("unknown transaction type %q", line.Type)
	}

	category := line.Category
	if category != "" {
		if !domain.ValidCategory(category) {
			return nil, fmt.Sprintf("unknown spend category %q", category)
		}
	} else if h.categorizer != nil {
		category = h.categorizer.Assign(line.Merchant, line.MerchantCategory, "").Category
	} else {
		category = domain.CategoryOther
	}

	return &domain.CategorizedTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		CardID:    line.CardID,
		Date:      line.Date,
		Amount:    line.Amount,
		Currency:  line.Currency,
		Type:      line.Type,
		Merchant:  line.Merchant,
		Category:  category,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, ""
}

// publishIngested emits one ingested event per distinct (card, month).
func (h *Handler) publishIngested(ctx context.Context, userID string, txs []*domain.CategorizedTransaction) {
	if h.bus == nil {
		return
	}

	seen := make(map[string]bool)
	for _, tx := range txs {
		period := monthWindow(tx.Date)
		key := tx.CardID + ":" + period.Start
		if seen[key] {
			continue
		}
		seen[key] = true

		payload, err := json.Marshal(&worker.IngestedMessage{
			UserID: userID,
			CardID: tx.CardID,
			Period: period,
		})
		if err != nil {
			continue
		}
		if err := h.bus.Publish(ctx, userID, domain.TopicTransactionsIngested, payload); err != nil {
			slog.Warn("failed to publish ingested event",
				"card_id", tx.CardID,
				"error", err,
			)
		}
	}
}

// ListTransactions handles GET /transactions with optional start/end
// query parameters (inclusive ISO dates).
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := GetUserID(ctx)

	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" {
		start = "0000-01-01"
	}
	if end == "" {
		end = "9999-12-31"
	}

	transactions, err := h.repo.ListTransactionsInPeriod(ctx, userID, start, end)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// cardTransactions loads the user's stored transactions for one card in
// the window.
func (h *Handler) cardTransactions(ctx context.Context, userID, cardID string, period domain.PeriodContext) ([]*domain.CategorizedTransaction, error) {
	all, err := h.repo.ListTransactionsInPeriod(ctx, userID, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.CategorizedTransaction, 0, len(all))
	for _, tx := range all {
		if tx.CardID == cardID {
			matched = append(matched, tx)
		}
	}
	return matched, nil
}

// resolveTransactions returns request-supplied transactions, or the
// user's full stored history in the window for comparison flows. A false
// return means an error response was already written.
func (h *Handler) resolveTransactions(w http.ResponseWriter, ctx context.Context, userID string, provided []*domain.CategorizedTransaction, period domain.PeriodContext) ([]*domain.CategorizedTransaction, bool) {
	if len(provided) > 0 {
		return provided, true
	}

	transactions, err := h.repo.ListTransactionsInPeriod(ctx, userID, period.Start, period.End)
	if err != nil {
		slog.Error("failed to load transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transactions",
		})
		return nil, false
	}
	return transactions, true
}

// monthWindow derives the calendar-month window containing an ISO date.
func monthWindow(dateISO string) domain.PeriodContext {
	t, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return domain.PeriodContext{Type: domain.PeriodMonthly, Start: dateISO, End: dateISO}
	}

	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	return domain.PeriodContext{
		Type:  domain.PeriodMonthly,
		Start: first.Format("2006-01-02"),
		End:   last.Format("2006-01-02"),
	}
}

// validatePeriod returns a message describing the first problem, or "".
func validatePeriod(p domain.PeriodContext) string {
	switch p.Type {
	case domain.PeriodMonthly, domain.PeriodQuarterly, domain.PeriodYearly:
	default:
		return fmt.Sprintf("unknown period type %q", p.Type)
	}
	if p.Start == "" || p.End == "" {
		return "period.start and period.end are required"
	}
	if p.End < p.Start {
		return "period.end precedes period.start"
	}
	return ""
}

// validateRules checks declarative integrity of a rule list.
func validateRules(rules []domain.RewardRule) string {
	for i, rule := range rules {
		switch rule.Kind {
		case domain.RuleCategoryRate:
			if !domain.ValidCategory(rule.Category) {
				return fmt.Sprintf("rule %d: unknown category %q", i, rule.Category)
			}
			if rule.RatePer100 < 0 {
				return fmt.Sprintf("rule %d: rate must not be negative", i)
			}
		case domain.RuleExclusion:
			if !domain.ValidCategory(rule.Category) {
				return fmt.Sprintf("rule %d: unknown category %q", i, rule.Category)
			}
		case domain.RuleCap:
			if rule.MaxUnits <= 0 {
				return fmt.Sprintf("rule %d: cap maxUnits must be positive", i)
			}
			if msg := validateRulePeriod(i, rule.Period); msg != "" {
				return msg
			}
			if rule.Category != "" && !domain.ValidCategory(rule.Category) {
				return fmt.Sprintf("rule %d: unknown category %q", i, rule.Category)
			}
		case domain.RuleMilestone:
			if rule.Threshold <= 0 {
				return fmt.Sprintf("rule %d: milestone threshold must be positive", i)
			}
			if msg := validateRulePeriod(i, rule.Period); msg != "" {
				return msg
			}
		default:
			return fmt.Sprintf("rule %d: unknown kind %q", i, rule.Kind)
		}
	}
	return ""
}

func validateRulePeriod(i int, pt domain.PeriodType) string {
	switch pt {
	case domain.PeriodMonthly, domain.PeriodQuarterly, domain.PeriodYearly:
		return ""
	default:
		return fmt.Sprintf("rule %d: unknown period %q", i, pt)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
