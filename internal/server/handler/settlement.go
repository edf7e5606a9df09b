package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/server/middleware"
)

// SettlementService is what the settlement endpoints need from the service
// layer.
type SettlementService interface {
	ResolveAndSettle(ctx context.Context, marketID string, result domain.Side) (domain.Settlement, error)
	Resettle(ctx context.Context, marketID string) (domain.Settlement, error)
	Claim(ctx context.Context, userID, marketID string) (domain.Amount, error)
	ListRewards(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.ClaimableReward, error)
	MarketRewards(ctx context.Context, marketID string) ([]domain.ClaimableReward, error)
	Balance(ctx context.Context, userID string) (domain.Amount, error)
}

// SettlementHandler serves resolution, claim and reward endpoints.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

type resolveRequest struct {
	Result string `json:"result"`
}

// Resolve records the result and settles the market. Resolver only.
// POST /api/markets/{id}/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	side, err := domain.ParseSide(req.Result)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}

	id := r.PathValue("id")
	st, err := h.settlements.ResolveAndSettle(r.Context(), id, side)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: market resolved",
		slog.String("market_id", id),
		slog.String("resolver", middleware.ResolverFrom(r.Context())),
	)
	writeJSON(w, http.StatusOK, st)
}

// Resettle retries settlement of a resolved market. Resolver only.
// POST /api/markets/{id}/resettle
func (h *SettlementHandler) Resettle(w http.ResponseWriter, r *http.Request) {
	st, err := h.settlements.Resettle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "resettle market", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type claimRequest struct {
	UserID string `json:"user_id"`
}

type claimResponse struct {
	UserID   string        `json:"user_id"`
	MarketID string        `json:"market_id"`
	Amount   domain.Amount `json:"amount"`
}

// Claim pays out a user's reward for a market.
// POST /api/markets/{id}/claim
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "claim reward", err)
		return
	}
	id := r.PathValue("id")
	amount, err := h.settlements.Claim(r.Context(), req.UserID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "claim reward", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{UserID: req.UserID, MarketID: id, Amount: amount})
}

// UserRewards lists a user's rewards, newest first.
// GET /api/users/{id}/rewards
func (h *SettlementHandler) UserRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.settlements.ListRewards(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list rewards", err)
		return
	}
	if rewards == nil {
		rewards = []domain.ClaimableReward{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
}

// MarketRewards lists the rewards recorded for a market.
// GET /api/markets/{id}/rewards
func (h *SettlementHandler) MarketRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.settlements.MarketRewards(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list market rewards", err)
		return
	}
	if rewards == nil {
		rewards = []domain.ClaimableReward{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
}

type balanceResponse struct {
	UserID  string        `json:"user_id"`
	Balance domain.Amount `json:"balance"`
}

// UserBalance reports the credited balance of a user.
// GET /api/users/{id}/balance
func (h *SettlementHandler) UserBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	amount, err := h.settlements.Balance(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: id, Balance: amount})
}
