// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/yLucasx3/gh-economy/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientQuantity is returned by settlement when the announcement
	// no longer holds the asked quantity.
	ErrInsufficientQuantity = errors.New("store: announcement quantity insufficient")
)

// FindUserQuery selects a user by any combination of fields; empty fields are
// ignored. Explicit and typed — no conditions maps.
type FindUserQuery struct {
	ID       string
	Name     string
	Role     string
	WalletID string
	SocketID string
}

// ListAnnouncementsQuery filters announcement listings.
type ListAnnouncementsQuery struct {
	Status   string
	UserID   string
	ItemName string
}

// ListTransactionsQuery filters transaction listings.
type ListTransactionsQuery struct {
	Status     string
	FromUserID string
	ToUserID   string
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Settlement and status finalization are conditional updates: the sufficiency
// guard and the mutation happen as one operation, so two concurrent
// settlements against the same wallet can never both pass a stale balance
// check.
type Store interface {
	// --- Users ---

	// CreateUser persists a user together with its wallet.
	CreateUser(ctx context.Context, u *model.User) error

	// FindUser retrieves a user (with wallet and item lots) matching the
	// query, or ErrNotFound.
	FindUser(ctx context.Context, q FindUserQuery) (*model.User, error)

	// ListOnlineUsers returns all ONLINE users except excludeUserID.
	ListOnlineUsers(ctx context.Context, excludeUserID string) ([]model.User, error)

	// UpdateUserPresence sets a user's presence status and socket id.
	UpdateUserPresence(ctx context.Context, userID, status, socketID string) error

	// GetWallet retrieves a wallet by id.
	GetWallet(ctx context.Context, id string) (*model.Wallet, error)

	// --- Announcements ---

	// CreateAnnouncement persists a new standing offer.
	CreateAnnouncement(ctx context.Context, a *model.Announcement) error

	// GetAnnouncement retrieves an announcement by id.
	GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error)

	// ListAnnouncements returns announcements matching the query.
	ListAnnouncements(ctx context.Context, q ListAnnouncementsQuery) ([]model.Announcement, error)

	// --- Transactions ---

	// CreateTransaction appends a transaction record in its initial state.
	CreateTransaction(ctx context.Context, t *model.Transaction) error

	// GetTransaction retrieves a transaction by id.
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)

	// ListTransactions returns transactions matching the query.
	ListTransactions(ctx context.Context, q ListTransactionsQuery) ([]model.Transaction, error)

	// SettleTransaction performs the settlement of a persisted PENDING
	// transaction: decrement announcement quantity, move funds between the
	// two wallets, grant the item lot to the buyer, finalize the status —
	// atomically. On model.ErrInsufficientFunds or ErrInsufficientQuantity
	// the transaction is finalized FAILED (and stays persisted); no balance
	// or quantity changes. t is updated in place either way.
	SettleTransaction(ctx context.Context, t *model.Transaction) error

	// FinalizeTransaction moves a PENDING transaction to the given terminal
	// status without touching balances. Returns model.ErrNotPending when the
	// transaction already reached a terminal state, ErrNotFound when absent.
	FinalizeTransaction(ctx context.Context, id, status string) (*model.Transaction, error)

	// GetBuyerPurchases aggregates a buyer's ACCEPTED quantities per
	// announcement, for purchase-limit checks.
	GetBuyerPurchases(ctx context.Context, userID string) ([]model.PurchaseTotal, error)
}
