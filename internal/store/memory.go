package store

import (
	"context"
	"sync"

	"github.com/yLucasx3/gh-economy/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// One mutex covers the whole store, so settlement is trivially serialized:
// the balance check and the debit happen under the same critical section.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	wallets       map[string]*model.Wallet
	announcements map[string]*model.Announcement
	transactions  map[string]*model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		wallets:       make(map[string]*model.Wallet),
		announcements: make(map[string]*model.Announcement),
		transactions:  make(map[string]*model.Transaction),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Wallet == nil {
		return model.ErrMissingWallet
	}
	w := *u.Wallet
	s.wallets[w.ID] = &w

	cp := *u
	cp.WalletID = w.ID
	cp.Wallet = &w
	s.users[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) FindUser(_ context.Context, q FindUserQuery) (*model.User, error) {
	// An empty query matches nothing, as in the SQL store.
	if q == (FindUserQuery{}) {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if matchUser(u, q) {
			return s.snapshotUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func matchUser(u *model.User, q FindUserQuery) bool {
	if q.ID != "" && u.ID != q.ID {
		return false
	}
	if q.Name != "" && u.Name != q.Name {
		return false
	}
	if q.Role != "" && u.Role != q.Role {
		return false
	}
	if q.WalletID != "" && u.WalletID != q.WalletID {
		return false
	}
	if q.SocketID != "" && u.SocketID != q.SocketID {
		return false
	}
	return true
}

// snapshotUser copies a user with its live wallet. Callers get detached
// copies so external mutation cannot bypass settlement. Caller holds s.mu.
func (s *MemoryStore) snapshotUser(u *model.User) *model.User {
	cp := *u
	if w, ok := s.wallets[u.WalletID]; ok {
		wc := *w
		cp.Wallet = &wc
	}
	cp.Items = append([]model.UserItem(nil), u.Items...)
	return &cp
}

func (s *MemoryStore) ListOnlineUsers(_ context.Context, excludeUserID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var online []model.User
	for _, u := range s.users {
		if u.Status == model.PresenceOnline && u.ID != excludeUserID {
			online = append(online, *s.snapshotUser(u))
		}
	}
	return online, nil
}

func (s *MemoryStore) UpdateUserPresence(_ context.Context, userID, status, socketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.SocketID = socketID
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, id string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// --- Announcements ---

func (s *MemoryStore) CreateAnnouncement(_ context.Context, a *model.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.announcements[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAnnouncement(_ context.Context, id string) (*model.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.announcements[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAnnouncements(_ context.Context, q ListAnnouncementsQuery) ([]model.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Announcement
	for _, a := range s.announcements {
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if q.UserID != "" && a.UserID != q.UserID {
			continue
		}
		if q.ItemName != "" && a.ItemName != q.ItemName {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// --- Transactions ---

func (s *MemoryStore) CreateTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.transactions[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, q ListTransactionsQuery) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, t := range s.transactions {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.FromUserID != "" && t.FromUserID != q.FromUserID {
			continue
		}
		if q.ToUserID != "" && t.ToUserID != q.ToUserID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

// SettleTransaction settles under the store lock: quantity guard, then funds
// transfer via the entity, then item grant. The stored record and the passed
// pointer are finalized together.
func (s *MemoryStore) SettleTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.transactions[t.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != model.StatusPending {
		return model.ErrNotPending
	}

	ann, ok := s.announcements[t.AnnouncementID]
	if !ok {
		return ErrNotFound
	}
	from, ok := s.wallets[t.FromWalletID]
	if !ok {
		return ErrNotFound
	}
	to, ok := s.wallets[t.ToWalletID]
	if !ok {
		return ErrNotFound
	}

	if ann.Status != model.AnnouncementOpen || ann.QuantityAvailable < t.QuantityAsked {
		_ = t.MarkFailed()
		*stored = *t
		return ErrInsufficientQuantity
	}

	if err := t.Settle(from, to); err != nil {
		// Entity left balances untouched and marked t FAILED.
		*stored = *t
		return err
	}

	ann.QuantityAvailable -= t.QuantityAsked
	if ann.QuantityAvailable == 0 {
		ann.Status = model.AnnouncementClosed
	}

	if buyer, ok := s.users[t.FromUserID]; ok {
		buyer.Items = append(buyer.Items, model.UserItem{
			ItemName: t.ItemName,
			Quantity: t.QuantityAsked,
			PaidPer:  t.UnitPrice,
		})
	}

	*stored = *t
	return nil
}

func (s *MemoryStore) FinalizeTransaction(_ context.Context, id, status string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	var err error
	switch status {
	case model.StatusRejected:
		err = t.MarkRejected()
	case model.StatusFailed:
		err = t.MarkFailed()
	case model.StatusAccepted:
		err = t.MarkAccepted()
	default:
		err = model.ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetBuyerPurchases(_ context.Context, userID string) ([]model.PurchaseTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := make(map[string]*model.PurchaseTotal)
	for _, t := range s.transactions {
		if t.FromUserID != userID || t.Status != model.StatusAccepted {
			continue
		}
		pt, ok := agg[t.AnnouncementID]
		if !ok {
			pt = &model.PurchaseTotal{AnnouncementID: t.AnnouncementID, ItemName: t.ItemName}
			agg[t.AnnouncementID] = pt
		}
		pt.Quantity += t.QuantityAsked
	}

	var out []model.PurchaseTotal
	for _, pt := range agg {
		out = append(out, *pt)
	}
	return out, nil
}
