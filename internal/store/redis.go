package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yLucasx3/gh-economy/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Wallet balances are deliberately only cached as part of a user snapshot,
// and every settlement invalidates both parties — the no-negative-balance
// guard lives in the primary store, never in the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write paths (write to primary, invalidate cache) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.cacheUser(ctx, u)
	return nil
}

func (s *CachedStore) UpdateUserPresence(ctx context.Context, userID, status, socketID string) error {
	if err := s.primary.UpdateUserPresence(ctx, userID, status, socketID); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(userID))
	return nil
}

func (s *CachedStore) CreateAnnouncement(ctx context.Context, a *model.Announcement) error {
	if err := s.primary.CreateAnnouncement(ctx, a); err != nil {
		return err
	}
	s.cacheAnnouncement(ctx, a)
	return nil
}

func (s *CachedStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return s.primary.CreateTransaction(ctx, t)
}

func (s *CachedStore) SettleTransaction(ctx context.Context, t *model.Transaction) error {
	err := s.primary.SettleTransaction(ctx, t)
	// Both parties' balances, the announcement quantity and the buyer's
	// purchase totals may have changed, success or failure.
	s.rdb.Del(ctx,
		userKey(t.FromUserID), userKey(t.ToUserID),
		announcementKey(t.AnnouncementID), purchasesKey(t.FromUserID))
	return err
}

func (s *CachedStore) FinalizeTransaction(ctx context.Context, id, status string) (*model.Transaction, error) {
	return s.primary.FinalizeTransaction(ctx, id, status)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) FindUser(ctx context.Context, q FindUserQuery) (*model.User, error) {
	// Only straight by-id lookups are cacheable; compound queries pass through.
	if q.ID == "" || q.Name != "" || q.Role != "" || q.WalletID != "" || q.SocketID != "" {
		return s.primary.FindUser(ctx, q)
	}

	data, err := s.rdb.Get(ctx, userKey(q.ID)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.FindUser(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cacheUser(ctx, u)
	return u, nil
}

func (s *CachedStore) GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error) {
	data, err := s.rdb.Get(ctx, announcementKey(id)).Bytes()
	if err == nil {
		var a model.Announcement
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAnnouncement(ctx, a)
	return a, nil
}

func (s *CachedStore) GetBuyerPurchases(ctx context.Context, userID string) ([]model.PurchaseTotal, error) {
	data, err := s.rdb.Get(ctx, purchasesKey(userID)).Bytes()
	if err == nil {
		var totals []model.PurchaseTotal
		if json.Unmarshal(data, &totals) == nil {
			return totals, nil
		}
	}

	totals, err := s.primary.GetBuyerPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(totals); err == nil {
		s.rdb.Set(ctx, purchasesKey(userID), data, s.ttl)
	}
	return totals, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOnlineUsers(ctx context.Context, excludeUserID string) ([]model.User, error) {
	return s.primary.ListOnlineUsers(ctx, excludeUserID)
}

func (s *CachedStore) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	return s.primary.GetWallet(ctx, id)
}

func (s *CachedStore) ListAnnouncements(ctx context.Context, q ListAnnouncementsQuery) ([]model.Announcement, error) {
	return s.primary.ListAnnouncements(ctx, q)
}

func (s *CachedStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return s.primary.GetTransaction(ctx, id)
}

func (s *CachedStore) ListTransactions(ctx context.Context, q ListTransactionsQuery) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, q)
}

// --- Cache helpers ---

func (s *CachedStore) cacheUser(ctx context.Context, u *model.User) {
	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(u.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheAnnouncement(ctx context.Context, a *model.Announcement) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, announcementKey(a.ID), data, s.ttl)
	}
}

func userKey(id string) string         { return fmt.Sprintf("user:%s", id) }
func announcementKey(id string) string { return fmt.Sprintf("announcement:%s", id) }
func purchasesKey(uid string) string   { return fmt.Sprintf("purchases:%s", uid) }
