// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yLucasx3/gh-economy/internal/pricing"
)

// Transaction statuses. PENDING is the sole initial state; the other three
// are terminal and admit no further transitions.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
	StatusFailed   = "FAILED"
)

// User presence statuses.
const (
	PresenceOnline  = "ONLINE"
	PresenceOffline = "OFFLINE"
)

// Announcement statuses.
const (
	AnnouncementOpen   = "open"
	AnnouncementClosed = "closed"
)

var (
	// ErrInvalidQuantity is returned when a trade asks for zero or fewer items.
	ErrInvalidQuantity = errors.New("model: quantity asked must be greater than zero")

	// ErrInvalidUnitPrice is returned when an announcement carries a
	// non-positive unit price.
	ErrInvalidUnitPrice = errors.New("model: unit price must be positive")

	// ErrSelfTrade is returned when the buyer and seller are the same user.
	ErrSelfTrade = errors.New("model: cannot trade with yourself")

	// ErrMissingWallet is returned when a party lacks a fully-formed wallet.
	// Repositories must resolve wallets before the entity layer sees a user.
	ErrMissingWallet = errors.New("model: party has no wallet")

	// ErrNotPending is returned on any transition attempted from a terminal
	// status.
	ErrNotPending = errors.New("model: transaction is not pending")

	// ErrInsufficientFunds is returned when the buyer's balance cannot cover
	// the transaction amount.
	ErrInsufficientFunds = errors.New("model: insufficient funds")
)

// Wallet holds a user's balance. Mutated only by settlement logic; a settled
// transaction never drives Balance negative.
type Wallet struct {
	ID      string          `json:"id" db:"id"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
}

// UserItem is one holding lot of a catalog item: the quantity owned and the
// unit price it was bought at.
type UserItem struct {
	ItemName string          `json:"item_name" db:"item_name"`
	Quantity int64           `json:"quantity" db:"quantity"`
	PaidPer  decimal.Decimal `json:"paid_per" db:"paid_per"`
}

// User owns exactly one Wallet and a list of UserItem lots. SocketID
// correlates the user with a live presence connection.
type User struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Role      string     `json:"role" db:"role"`
	AvatarURL string     `json:"avatar_url,omitempty" db:"avatar_url"`
	Status    string     `json:"status" db:"status"` // "ONLINE" or "OFFLINE"
	SocketID  string     `json:"socket_id,omitempty" db:"socket_id"`
	WalletID  string     `json:"wallet_id" db:"wallet_id"`
	Wallet    *Wallet    `json:"wallet,omitempty"`
	Items     []UserItem `json:"items,omitempty"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Announcement is a standing offer by one user to sell a quantity of an item
// at a unit price. Quantity is reduced only by settled trades.
type Announcement struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"user_id" db:"user_id"`
	ItemName          string          `json:"item_name" db:"item_name"`
	ValuePerItem      decimal.Decimal `json:"value_per_item" db:"value_per_item"`
	QuantityAvailable int64           `json:"quantity_available" db:"quantity_available"`
	Status            string          `json:"status" db:"status"` // "open", "closed"
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// PurchaseTotal aggregates a buyer's settled quantity against one
// announcement. Computed by stores from ACCEPTED transactions.
type PurchaseTotal struct {
	AnnouncementID string `json:"announcement_id"`
	ItemName       string `json:"item_name"`
	Quantity       int64  `json:"quantity"`
}

// Transaction records one trade attempt between a requester and an
// announcement owner. Immutable once created except for Status/SettledAt,
// which move monotonically PENDING → {ACCEPTED, REJECTED, FAILED}.
//
// Amount is always derived from QuantityAsked * UnitPrice at construction
// time, rounded by the pricing package; it is never accepted from a caller.
type Transaction struct {
	ID             string          `json:"id" db:"id"`
	FromUserID     string          `json:"from_user_id" db:"from_user_id"`
	ToUserID       string          `json:"to_user_id" db:"to_user_id"`
	FromWalletID   string          `json:"from_wallet_id" db:"from_wallet_id"`
	ToWalletID     string          `json:"to_wallet_id" db:"to_wallet_id"`
	AnnouncementID string          `json:"announcement_id" db:"announcement_id"`
	ItemName       string          `json:"item_name" db:"item_name"`
	UnitPrice      decimal.Decimal `json:"unit_price" db:"unit_price"` // announcement snapshot
	QuantityAsked  int64           `json:"quantity_items_asked" db:"quantity_asked"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// NewTransaction constructs a PENDING transaction for quantityAsked items
// against the given announcement, on behalf of buyer. The amount is derived
// by the pricing package from the announcement's unit price; the parties must
// be distinct and both must carry wallets.
func NewTransaction(buyer, seller *User, ann *Announcement, quantityAsked int64) (*Transaction, error) {
	if quantityAsked <= 0 {
		return nil, ErrInvalidQuantity
	}
	if ann.ValuePerItem.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidUnitPrice
	}
	if buyer.ID == seller.ID {
		return nil, ErrSelfTrade
	}
	if buyer.Wallet == nil || seller.Wallet == nil {
		return nil, ErrMissingWallet
	}

	amount, err := pricing.Amount(ann.ValuePerItem, quantityAsked)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		ID:             uuid.New().String(),
		FromUserID:     buyer.ID,
		ToUserID:       seller.ID,
		FromWalletID:   buyer.Wallet.ID,
		ToWalletID:     seller.Wallet.ID,
		AnnouncementID: ann.ID,
		ItemName:       ann.ItemName,
		UnitPrice:      ann.ValuePerItem,
		QuantityAsked:  quantityAsked,
		Amount:         amount,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Terminal reports whether status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusAccepted || status == StatusRejected || status == StatusFailed
}

// Settle transfers Amount between the two wallets and finalizes the status.
// On insufficient funds the status becomes FAILED, both balances are left
// untouched and ErrInsufficientFunds is returned — there is no partial
// transfer. Only a PENDING transaction can be settled.
//
// This is the in-process settlement used by the memory store; the Postgres
// store performs the equivalent as a single conditional update so that the
// sufficiency check and the debit cannot be split by a concurrent writer.
func (t *Transaction) Settle(from, to *Wallet) error {
	if t.Status != StatusPending {
		return ErrNotPending
	}
	if from.Balance.LessThan(t.Amount) {
		t.markTerminal(StatusFailed)
		return ErrInsufficientFunds
	}
	from.Balance = from.Balance.Sub(t.Amount)
	to.Balance = to.Balance.Add(t.Amount)
	t.markTerminal(StatusAccepted)
	return nil
}

// MarkAccepted finalizes a pending transaction as settled.
func (t *Transaction) MarkAccepted() error { return t.transition(StatusAccepted) }

// MarkRejected finalizes a pending transaction as rejected by the receiving
// party. No funds move.
func (t *Transaction) MarkRejected() error { return t.transition(StatusRejected) }

// MarkFailed finalizes a pending transaction as failed settlement.
func (t *Transaction) MarkFailed() error { return t.transition(StatusFailed) }

func (t *Transaction) transition(to string) error {
	if t.Status != StatusPending {
		return ErrNotPending
	}
	t.markTerminal(to)
	return nil
}

func (t *Transaction) markTerminal(status string) {
	now := time.Now().UTC()
	t.Status = status
	t.SettledAt = &now
}
