package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yLucasx3/gh-economy/internal/model"
	"github.com/yLucasx3/gh-economy/internal/store"
)

func newUser(t *testing.T, ms *store.MemoryStore, name string, balance int64) *model.User {
	t.Helper()
	u := &model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Role:      "player",
		Status:    model.PresenceOffline,
		Wallet:    &model.Wallet{ID: uuid.New().String(), Balance: decimal.NewFromInt(balance)},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ms.CreateUser(context.Background(), u))
	return u
}

func newAnnouncement(t *testing.T, ms *store.MemoryStore, owner *model.User, item string, price, qty int64) *model.Announcement {
	t.Helper()
	a := &model.Announcement{
		ID:                uuid.New().String(),
		UserID:            owner.ID,
		ItemName:          item,
		ValuePerItem:      decimal.NewFromInt(price),
		QuantityAvailable: qty,
		Status:            model.AnnouncementOpen,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, ms.CreateAnnouncement(context.Background(), a))
	return a
}

func newPending(t *testing.T, ms *store.MemoryStore, buyer, seller *model.User, ann *model.Announcement, qty int64) *model.Transaction {
	t.Helper()
	txn, err := model.NewTransaction(buyer, seller, ann, qty)
	require.NoError(t, err)
	require.NoError(t, ms.CreateTransaction(context.Background(), txn))
	return txn
}

func TestCreateUser_RequiresWallet(t *testing.T) {
	ms := store.NewMemoryStore()
	err := ms.CreateUser(context.Background(), &model.User{ID: "u1", Name: "ana"})
	assert.ErrorIs(t, err, model.ErrMissingWallet)
}

func TestFindUser_Snapshot(t *testing.T) {
	ms := store.NewMemoryStore()
	u := newUser(t, ms, "ana", 100)
	ctx := context.Background()

	got, err := ms.FindUser(ctx, store.FindUserQuery{ID: u.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Wallet)

	// Mutating the snapshot must not leak into the store.
	got.Wallet.Balance = decimal.NewFromInt(999999)
	again, err := ms.FindUser(ctx, store.FindUserQuery{ID: u.ID})
	require.NoError(t, err)
	assert.True(t, again.Wallet.Balance.Equal(decimal.NewFromInt(100)),
		"store balance mutated through snapshot: %s", again.Wallet.Balance)
}

func TestFindUser_EmptyQuery(t *testing.T) {
	ms := store.NewMemoryStore()
	newUser(t, ms, "ana", 100)

	// An empty query must not match an arbitrary user.
	_, err := ms.FindUser(context.Background(), store.FindUserQuery{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindUser_ByName(t *testing.T) {
	ms := store.NewMemoryStore()
	newUser(t, ms, "ana", 100)
	ctx := context.Background()

	got, err := ms.FindUser(ctx, store.FindUserQuery{Name: "ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Name)

	_, err = ms.FindUser(ctx, store.FindUserQuery{Name: "nobody"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateUserPresence(t *testing.T) {
	ms := store.NewMemoryStore()
	u := newUser(t, ms, "ana", 0)
	other := newUser(t, ms, "bruno", 0)
	ctx := context.Background()

	require.NoError(t, ms.UpdateUserPresence(ctx, u.ID, model.PresenceOnline, "sock-1"))
	require.NoError(t, ms.UpdateUserPresence(ctx, other.ID, model.PresenceOnline, "sock-2"))

	online, err := ms.ListOnlineUsers(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, other.ID, online[0].ID)
	assert.Equal(t, "sock-2", online[0].SocketID)

	require.NoError(t, ms.UpdateUserPresence(ctx, other.ID, model.PresenceOffline, ""))
	online, err = ms.ListOnlineUsers(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, online)

	assert.ErrorIs(t, ms.UpdateUserPresence(ctx, "ghost", model.PresenceOnline, "s"), store.ErrNotFound)
}

func TestSettleTransaction(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 100)
	seller := newUser(t, ms, "bruno", 50)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 5)
	txn := newPending(t, ms, buyer, seller, ann, 3)

	require.NoError(t, ms.SettleTransaction(ctx, txn))
	assert.Equal(t, model.StatusAccepted, txn.Status)

	fromW, err := ms.GetWallet(ctx, buyer.Wallet.ID)
	require.NoError(t, err)
	toW, err := ms.GetWallet(ctx, seller.Wallet.ID)
	require.NoError(t, err)
	assert.True(t, fromW.Balance.Equal(decimal.NewFromInt(70)), "got %s", fromW.Balance)
	assert.True(t, toW.Balance.Equal(decimal.NewFromInt(80)), "got %s", toW.Balance)

	// The stored record was finalized as well.
	stored, err := ms.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
	assert.NotNil(t, stored.SettledAt)

	// Quantity decremented, buyer got the lot.
	annAfter, err := ms.GetAnnouncement(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), annAfter.QuantityAvailable)

	buyerAfter, err := ms.FindUser(ctx, store.FindUserQuery{ID: buyer.ID})
	require.NoError(t, err)
	require.Len(t, buyerAfter.Items, 1)
	assert.Equal(t, "iron-sword", buyerAfter.Items[0].ItemName)
	assert.Equal(t, int64(3), buyerAfter.Items[0].Quantity)
}

func TestSettleTransaction_InsufficientFunds(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 10)
	seller := newUser(t, ms, "bruno", 50)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 5)
	txn := newPending(t, ms, buyer, seller, ann, 3)

	err := ms.SettleTransaction(ctx, txn)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	stored, err := ms.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)

	annAfter, _ := ms.GetAnnouncement(ctx, ann.ID)
	assert.Equal(t, int64(5), annAfter.QuantityAvailable, "quantity must be untouched on failure")
}

func TestSettleTransaction_InsufficientQuantity(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 1000)
	seller := newUser(t, ms, "bruno", 0)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 2)
	txn := newPending(t, ms, buyer, seller, ann, 5)

	err := ms.SettleTransaction(ctx, txn)
	assert.ErrorIs(t, err, store.ErrInsufficientQuantity)

	stored, _ := ms.GetTransaction(ctx, txn.ID)
	assert.Equal(t, model.StatusFailed, stored.Status)

	fromW, _ := ms.GetWallet(ctx, buyer.Wallet.ID)
	assert.True(t, fromW.Balance.Equal(decimal.NewFromInt(1000)), "no funds may move")
}

func TestSettleTransaction_ClosesAtZero(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 1000)
	seller := newUser(t, ms, "bruno", 0)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 2)
	txn := newPending(t, ms, buyer, seller, ann, 2)

	require.NoError(t, ms.SettleTransaction(ctx, txn))

	annAfter, err := ms.GetAnnouncement(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), annAfter.QuantityAvailable)
	assert.Equal(t, model.AnnouncementClosed, annAfter.Status)
}

func TestSettleTransaction_Concurrent(t *testing.T) {
	// Many goroutines racing to drain one wallet: exactly as many settle as
	// the balance covers, and conservation holds.
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 100)
	seller := newUser(t, ms, "bruno", 0)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 1000)

	const workers = 20 // each asks 3 items = 30; 100 covers only 3 trades
	txns := make([]*model.Transaction, workers)
	for i := range txns {
		txns[i] = newPending(t, ms, buyer, seller, ann, 3)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ms.SettleTransaction(ctx, txns[i])
		}(i)
	}
	wg.Wait()

	var accepted, failed int
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
			assert.Equal(t, model.StatusAccepted, txns[i].Status)
		case err == model.ErrInsufficientFunds:
			failed++
			assert.Equal(t, model.StatusFailed, txns[i].Status)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, accepted, "100 covers exactly three 30-unit trades")
	assert.Equal(t, workers-3, failed)

	fromW, _ := ms.GetWallet(ctx, buyer.Wallet.ID)
	toW, _ := ms.GetWallet(ctx, seller.Wallet.ID)
	assert.True(t, fromW.Balance.Equal(decimal.NewFromInt(10)), "got %s", fromW.Balance)
	assert.True(t, toW.Balance.Equal(decimal.NewFromInt(90)), "got %s", toW.Balance)
	assert.True(t, fromW.Balance.Add(toW.Balance).Equal(decimal.NewFromInt(100)))

	annAfter, _ := ms.GetAnnouncement(ctx, ann.ID)
	assert.Equal(t, int64(1000-9), annAfter.QuantityAvailable)
}

func TestFinalizeTransaction(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 100)
	seller := newUser(t, ms, "bruno", 0)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 5)
	txn := newPending(t, ms, buyer, seller, ann, 1)

	rejected, err := ms.FinalizeTransaction(ctx, txn.ID, model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	// Terminal: a second finalize fails, in any direction.
	_, err = ms.FinalizeTransaction(ctx, txn.ID, model.StatusAccepted)
	assert.ErrorIs(t, err, model.ErrNotPending)

	// Unknown status is refused.
	other := newPending(t, ms, buyer, seller, ann, 1)
	_, err = ms.FinalizeTransaction(ctx, other.ID, "SHIPPED")
	assert.ErrorIs(t, err, model.ErrNotPending)

	_, err = ms.FinalizeTransaction(ctx, "ghost", model.StatusRejected)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetBuyerPurchases(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 1000)
	seller := newUser(t, ms, "bruno", 0)
	swords := newAnnouncement(t, ms, seller, "iron-sword", 10, 100)
	shields := newAnnouncement(t, ms, seller, "shield", 5, 100)

	// Two settled against swords, one against shields, one left pending.
	for _, qty := range []int64{2, 3} {
		txn := newPending(t, ms, buyer, seller, swords, qty)
		require.NoError(t, ms.SettleTransaction(ctx, txn))
	}
	txn := newPending(t, ms, buyer, seller, shields, 4)
	require.NoError(t, ms.SettleTransaction(ctx, txn))
	newPending(t, ms, buyer, seller, swords, 50) // pending, must not count

	totals, err := ms.GetBuyerPurchases(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	byAnn := make(map[string]model.PurchaseTotal)
	for _, pt := range totals {
		byAnn[pt.AnnouncementID] = pt
	}
	assert.Equal(t, int64(5), byAnn[swords.ID].Quantity)
	assert.Equal(t, "iron-sword", byAnn[swords.ID].ItemName)
	assert.Equal(t, int64(4), byAnn[shields.ID].Quantity)
}

func TestListTransactions_Filters(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	buyer := newUser(t, ms, "ana", 1000)
	seller := newUser(t, ms, "bruno", 0)
	other := newUser(t, ms, "carla", 0)
	ann := newAnnouncement(t, ms, seller, "iron-sword", 10, 100)
	annOther := newAnnouncement(t, ms, other, "shield", 5, 100)

	settled := newPending(t, ms, buyer, seller, ann, 1)
	require.NoError(t, ms.SettleTransaction(ctx, settled))
	newPending(t, ms, buyer, seller, ann, 1)
	newPending(t, ms, buyer, other, annOther, 1)

	pendingToSeller, err := ms.ListTransactions(ctx, store.ListTransactionsQuery{
		Status:   model.StatusPending,
		ToUserID: seller.ID,
	})
	require.NoError(t, err)
	assert.Len(t, pendingToSeller, 1)

	fromBuyer, err := ms.ListTransactions(ctx, store.ListTransactionsQuery{FromUserID: buyer.ID})
	require.NoError(t, err)
	assert.Len(t, fromBuyer, 3)
}
