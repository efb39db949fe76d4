// Package trade provides the HTTP handlers and business logic for the
// peer-to-peer item-trading flow: publishing announcements, requesting
// trades against them, settling funds between wallets, and the read-side
// transaction/user queries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yLucasx3/gh-economy/internal/auth"
	"github.com/yLucasx3/gh-economy/internal/limit"
	"github.com/yLucasx3/gh-economy/internal/metrics"
	"github.com/yLucasx3/gh-economy/internal/model"
	"github.com/yLucasx3/gh-economy/internal/pricing"
	"github.com/yLucasx3/gh-economy/internal/store"
)

// Service handles trade operations. Settlement races are resolved at the
// store boundary (conditional updates), not here — the service stays
// lock-free and safe to scale horizontally.
type Service struct {
	store   store.Store
	limiter *limit.PurchaseLimiter
	hub     *PresenceHub // optional hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if presence broadcasting is not needed.
func NewService(st store.Store, limiter *limit.PurchaseLimiter, hub *PresenceHub) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		hub:     hub,
	}
}

// --- Request/Response types ---

// CreateAnnouncementRequest is the JSON body for POST /announcements.
type CreateAnnouncementRequest struct {
	ItemName          string          `json:"item_name"`
	ValuePerItem      decimal.Decimal `json:"value_per_item"`
	QuantityAvailable int64           `json:"quantity_available"`
}

// AskTradeRequest is the JSON body for POST /trades. Amount is deliberately
// absent: it is always derived server-side from the announcement's price.
type AskTradeRequest struct {
	AnnouncementID     string `json:"announcement_id"`
	QuantityItemsAsked int64  `json:"quantity_items_asked"`
}

// --- Announcements ---

// CreateAnnouncement handles POST /api/v1/announcements
func (s *Service) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req CreateAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ItemName == "" {
		writeError(w, "item_name is required", http.StatusBadRequest)
		return
	}
	if err := pricing.ValidateOffer(req.ValuePerItem, req.QuantityAvailable); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.FindUser(ctx, store.FindUserQuery{ID: callerID}); err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	ann := &model.Announcement{
		ID:                uuid.New().String(),
		UserID:            callerID,
		ItemName:          req.ItemName,
		ValuePerItem:      req.ValuePerItem,
		QuantityAvailable: req.QuantityAvailable,
		Status:            model.AnnouncementOpen,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.store.CreateAnnouncement(ctx, ann); err != nil {
		writeError(w, "failed to create announcement", http.StatusInternalServerError)
		return
	}

	slog.Info("announcement created",
		"id", ann.ID,
		"user", callerID,
		"item", ann.ItemName,
		"value_per_item", ann.ValuePerItem.String(),
		"quantity", ann.QuantityAvailable,
	)

	writeJSON(w, http.StatusCreated, ann)
}

// ListAnnouncements handles GET /api/v1/announcements
// Returns open announcements, optionally filtered by ?item=<name>.
func (s *Service) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	anns, err := s.store.ListAnnouncements(r.Context(), store.ListAnnouncementsQuery{
		Status:   model.AnnouncementOpen,
		ItemName: r.URL.Query().Get("item"),
	})
	if err != nil {
		writeError(w, "failed to list announcements", http.StatusInternalServerError)
		return
	}
	if anns == nil {
		anns = []model.Announcement{}
	}
	writeJSON(w, http.StatusOK, anns)
}

// GetAnnouncement handles GET /api/v1/announcements/{announcementID}
func (s *Service) GetAnnouncement(w http.ResponseWriter, r *http.Request) {
	ann, err := s.store.GetAnnouncement(r.Context(), chi.URLParam(r, "announcementID"))
	if err != nil {
		writeError(w, "announcement not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ann)
}

// --- Trade execution ---

// AskTrade handles POST /api/v1/trades
// Validates the request, constructs a PENDING transaction, settles it
// against the store's conditional update path, and returns the persisted
// projection. Failed settlements (insufficient funds or quantity) are
// recorded, not discarded: the response carries status FAILED.
func (s *Service) AskTrade(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req AskTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Cheap input checks before any lookup.
	if req.QuantityItemsAsked <= 0 {
		writeError(w, "quantity_items_asked must be greater than 0", http.StatusBadRequest)
		return
	}
	if req.AnnouncementID == "" {
		writeError(w, "announcement_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	buyer, err := s.store.FindUser(ctx, store.FindUserQuery{ID: callerID})
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	ann, err := s.store.GetAnnouncement(ctx, req.AnnouncementID)
	if err != nil {
		writeError(w, "announcement not found: "+req.AnnouncementID, http.StatusNotFound)
		return
	}
	if ann.Status != model.AnnouncementOpen {
		writeError(w, "announcement is not open for trading", http.StatusConflict)
		return
	}

	// Business rule: no self-trade, checked before any pricing.
	if ann.UserID == buyer.ID {
		writeError(w, "cannot trade with yourself", http.StatusConflict)
		return
	}

	if req.QuantityItemsAsked > ann.QuantityAvailable {
		writeError(w, "quantity exceeds announcement availability", http.StatusConflict)
		return
	}

	// Amount is derived, never trusted from the request.
	if _, err := pricing.Amount(ann.ValuePerItem, req.QuantityItemsAsked); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Purchase limits.
	purchases, err := s.store.GetBuyerPurchases(ctx, buyer.ID)
	if err != nil {
		writeError(w, "failed to check purchase limits", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.CheckLimit(ann.ID, ann.ItemName, req.QuantityItemsAsked, purchases); err != nil {
		metrics.PurchaseLimitRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	seller, err := s.store.FindUser(ctx, store.FindUserQuery{ID: ann.UserID})
	if err != nil {
		writeError(w, "announcement owner not found", http.StatusNotFound)
		return
	}

	txn, err := model.NewTransaction(buyer, seller, ann, req.QuantityItemsAsked)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Persist before settling: the audit record exists before money moves.
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		writeError(w, "failed to record transaction", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	err = s.store.SettleTransaction(ctx, txn)
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	metrics.TradesTotal.WithLabelValues(txn.Status).Inc()

	switch {
	case err == nil:
		metrics.TradeVolume.WithLabelValues(txn.ItemName).Add(amountAsFloat(txn.Amount))
		slog.Info("trade settled",
			"transaction_id", txn.ID,
			"from", txn.FromUserID,
			"to", txn.ToUserID,
			"item", txn.ItemName,
			"quantity", txn.QuantityAsked,
			"amount", txn.Amount.String(),
		)
		s.broadcast(txn)
	case errors.Is(err, model.ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientQuantity):
		slog.Info("trade failed",
			"transaction_id", txn.ID,
			"from", txn.FromUserID,
			"reason", err.Error(),
		)
	default:
		writeError(w, "settlement error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// amountAsFloat is for the volume metric only; money stays decimal everywhere
// else.
func amountAsFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func (s *Service) broadcast(t *model.Transaction) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Event{
		Type:           "trade_settled",
		TransactionID:  t.ID,
		AnnouncementID: t.AnnouncementID,
		ItemName:       t.ItemName,
		Quantity:       t.QuantityAsked,
		Amount:         t.Amount.String(),
		Status:         t.Status,
		FromUserID:     t.FromUserID,
		ToUserID:       t.ToUserID,
	})
}

// --- Transaction queries ---

// ListPendingTransactions handles GET /api/v1/transactions/pending
// Returns PENDING transactions where the caller is the receiving party.
func (s *Service) ListPendingTransactions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	txns, err := s.store.ListTransactions(r.Context(), store.ListTransactionsQuery{
		Status:   model.StatusPending,
		ToUserID: callerID,
	})
	if err != nil {
		writeError(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// GetTransaction handles GET /api/v1/transactions/{transactionID}
// Visible only to the two parties of the transaction.
func (s *Service) GetTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	txn, err := s.store.GetTransaction(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}
	if txn.FromUserID != callerID && txn.ToUserID != callerID {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// RejectTransaction handles POST /api/v1/transactions/{transactionID}/reject
// The receiving party rejects a still-PENDING transaction. No funds move;
// the transition is guarded so a concurrent settlement cannot be reverted.
func (s *Service) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "transactionID")

	txn, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}
	if txn.ToUserID != callerID {
		writeError(w, "only the receiving party may reject", http.StatusForbidden)
		return
	}

	rejected, err := s.store.FinalizeTransaction(ctx, id, model.StatusRejected)
	if errors.Is(err, model.ErrNotPending) {
		writeError(w, "transaction already finalized", http.StatusConflict)
		return
	}
	if err != nil {
		writeError(w, "failed to reject transaction", http.StatusInternalServerError)
		return
	}

	slog.Info("transaction rejected", "transaction_id", id, "by", callerID)
	writeJSON(w, http.StatusOK, rejected)
}

// --- User queries ---

// ListOnlineUsers handles GET /api/v1/users/online
// Returns ONLINE users excluding the caller.
func (s *Service) ListOnlineUsers(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	users, err := s.store.ListOnlineUsers(r.Context(), callerID)
	if err != nil {
		writeError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetWallet handles GET /api/v1/wallet
// Returns the caller's wallet projection.
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	user, err := s.store.FindUser(r.Context(), store.FindUserQuery{ID: callerID})
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user.Wallet)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
