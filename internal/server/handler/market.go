package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/service"
)

// MarketService is what the market endpoints need from the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, in service.CreateMarketInput) (domain.Market, error)
	PlaceBet(ctx context.Context, marketID string, in service.PlaceBetInput) (domain.Bet, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, int64, error)
	CloseMarket(ctx context.Context, id string) (domain.Market, error)
	ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error)
}

// MarketHandler serves market and bet endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// CreateMarket opens a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMarketInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	m, err := h.markets.CreateMarket(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets pages through markets, optionally filtered by status and
// creator.
// GET /api/markets?status=open&creator=alice&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	filter := domain.MarketFilter{
		Status:  domain.MarketStatus(r.URL.Query().Get("status")),
		Creator: r.URL.Query().Get("creator"),
	}

	markets, total, err := h.markets.ListMarkets(r.Context(), filter, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a market with its bets.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type placeBetRequest struct {
	UserID string        `json:"user_id"`
	Amount domain.Amount `json:"amount"`
	Side   string        `json:"side"`
}

// PlaceBet stakes on one side of a market.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}

	bet, err := h.markets.PlaceBet(r.Context(), r.PathValue("id"), service.PlaceBetInput{
		UserID: req.UserID,
		Amount: req.Amount,
		Side:   side,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// CloseMarket stops betting early. Resolver only.
// POST /api/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.CloseMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "close market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UserBets lists a user's bets across markets with open, won or lost
// outcomes.
// GET /api/users/{id}/bets?limit=50&offset=0
func (h *MarketHandler) UserBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.markets.ListUserBets(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list user bets", err)
		return
	}
	if bets == nil {
		bets = []domain.UserBet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
