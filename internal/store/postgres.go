package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/yLucasx3/gh-economy/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Settlement uses guarded updates ("balance = balance - $n WHERE balance >=
// $n") inside one transaction, so a concurrent settlement against the same
// wallet or announcement can never pass a stale check.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.Wallet == nil {
		return model.ErrMissingWallet
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (id, balance) VALUES ($1, $2::NUMERIC)`,
		u.Wallet.ID, u.Wallet.Balance.String(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, name, role, avatar_url, status, socket_id, wallet_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Role, u.AvatarURL, u.Status, u.SocketID, u.Wallet.ID, u.CreatedAt,
	)
	if err != nil {
		return err
	}

	u.WalletID = u.Wallet.ID
	return tx.Commit(ctx)
}

const userColumns = `u.id, u.name, u.role, u.avatar_url, u.status, u.socket_id, u.wallet_id, u.created_at,
	        w.id, w.balance::TEXT`

func (s *PostgresStore) FindUser(ctx context.Context, q FindUserQuery) (*model.User, error) {
	var conds []string
	var args []interface{}

	add := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("u.id", q.ID)
	add("u.name", q.Name)
	add("u.role", q.Role)
	add("u.wallet_id", q.WalletID)
	add("u.socket_id", q.SocketID)

	if len(conds) == 0 {
		return nil, ErrNotFound
	}

	var u model.User
	var w model.Wallet
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u JOIN wallets w ON w.id = u.wallet_id
		 WHERE `+strings.Join(conds, " AND ")+` LIMIT 1`, args...).
		Scan(&u.ID, &u.Name, &u.Role, &u.AvatarURL, &u.Status, &u.SocketID, &u.WalletID, &u.CreatedAt,
			&w.ID, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	w.Balance, _ = decimal.NewFromString(balance)
	u.Wallet = &w

	items, err := s.userItems(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Items = items

	return &u, nil
}

func (s *PostgresStore) userItems(ctx context.Context, userID string) ([]model.UserItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_name, quantity, paid_per::TEXT
		 FROM user_items WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.UserItem
	for rows.Next() {
		var it model.UserItem
		var paid string
		if err := rows.Scan(&it.ItemName, &it.Quantity, &paid); err != nil {
			return nil, err
		}
		it.PaidPer, _ = decimal.NewFromString(paid)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListOnlineUsers(ctx context.Context, excludeUserID string) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users u JOIN wallets w ON w.id = u.wallet_id
		 WHERE u.status = $1 AND u.id <> $2
		 ORDER BY u.name`, model.PresenceOnline, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var w model.Wallet
		var balance string
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.AvatarURL, &u.Status, &u.SocketID,
			&u.WalletID, &u.CreatedAt, &w.ID, &balance); err != nil {
			return nil, err
		}
		w.Balance, _ = decimal.NewFromString(balance)
		u.Wallet = &w
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUserPresence(ctx context.Context, userID, status, socketID string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE users SET status = $2, socket_id = $3 WHERE id = $1`,
		userID, status, socketID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	var w model.Wallet
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, balance::TEXT FROM wallets WHERE id = $1`, id).
		Scan(&w.ID, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", id, err)
	}
	w.Balance, _ = decimal.NewFromString(balance)
	return &w, nil
}

// --- Announcements ---

func (s *PostgresStore) CreateAnnouncement(ctx context.Context, a *model.Announcement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO announcements (id, user_id, item_name, value_per_item, quantity_available, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		a.ID, a.UserID, a.ItemName, a.ValuePerItem.String(), a.QuantityAvailable, a.Status, a.CreatedAt,
	)
	return err
}

const announcementColumns = `id, user_id, item_name, value_per_item::TEXT, quantity_available, status, created_at`

func scanAnnouncement(row pgx.Row) (*model.Announcement, error) {
	var a model.Announcement
	var value string
	err := row.Scan(&a.ID, &a.UserID, &a.ItemName, &value, &a.QuantityAvailable, &a.Status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ValuePerItem, _ = decimal.NewFromString(value)
	return &a, nil
}

func (s *PostgresStore) GetAnnouncement(ctx context.Context, id string) (*model.Announcement, error) {
	return scanAnnouncement(s.pool.QueryRow(ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id))
}

func (s *PostgresStore) ListAnnouncements(ctx context.Context, q ListAnnouncementsQuery) ([]model.Announcement, error) {
	var conds []string
	var args []interface{}

	add := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("status", q.Status)
	add("user_id", q.UserID)
	add("item_name", q.ItemName)

	query := `SELECT ` + announcementColumns + ` FROM announcements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// --- Transactions ---

func (s *PostgresStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions
		 (id, from_user_id, to_user_id, from_wallet_id, to_wallet_id, announcement_id,
		  item_name, unit_price, quantity_asked, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9, $10::NUMERIC, $11, $12)`,
		t.ID, t.FromUserID, t.ToUserID, t.FromWalletID, t.ToWalletID, t.AnnouncementID,
		t.ItemName, t.UnitPrice.String(), t.QuantityAsked, t.Amount.String(), t.Status, t.CreatedAt,
	)
	return err
}

const transactionColumns = `id, from_user_id, to_user_id, from_wallet_id, to_wallet_id, announcement_id,
	        item_name, unit_price::TEXT, quantity_asked, amount::TEXT, status, created_at, settled_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var unitPrice, amount string
	err := row.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.FromWalletID, &t.ToWalletID,
		&t.AnnouncementID, &t.ItemName, &unitPrice, &t.QuantityAsked, &amount,
		&t.Status, &t.CreatedAt, &t.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.UnitPrice, _ = decimal.NewFromString(unitPrice)
	t.Amount, _ = decimal.NewFromString(amount)
	return &t, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *PostgresStore) ListTransactions(ctx context.Context, q ListTransactionsQuery) ([]model.Transaction, error) {
	var conds []string
	var args []interface{}

	add := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("status", q.Status)
	add("from_user_id", q.FromUserID)
	add("to_user_id", q.ToUserID)

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SettleTransaction runs the settlement as one database transaction. Each
// mutation carries its own sufficiency guard; zero rows affected means a
// concurrent writer (or plain insufficiency) got there first, and the
// transaction is finalized FAILED outside the rolled-back tx.
func (s *PostgresStore) SettleTransaction(ctx context.Context, t *model.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Announcement quantity, guarded.
	ct, err := tx.Exec(ctx,
		`UPDATE announcements
		 SET quantity_available = quantity_available - $2
		 WHERE id = $1 AND status = $3 AND quantity_available >= $2`,
		t.AnnouncementID, t.QuantityAsked, model.AnnouncementOpen)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return s.failSettlement(ctx, t, ErrInsufficientQuantity)
	}

	_, err = tx.Exec(ctx,
		`UPDATE announcements SET status = $2 WHERE id = $1 AND quantity_available = 0`,
		t.AnnouncementID, model.AnnouncementClosed)
	if err != nil {
		return err
	}

	// Debit, guarded. This is the no-negative-balance invariant.
	ct, err = tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $2::NUMERIC
		 WHERE id = $1 AND balance >= $2::NUMERIC`,
		t.FromWalletID, t.Amount.String())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return s.failSettlement(ctx, t, model.ErrInsufficientFunds)
	}

	// Credit.
	_, err = tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $2::NUMERIC WHERE id = $1`,
		t.ToWalletID, t.Amount.String())
	if err != nil {
		return err
	}

	// Grant the item lot to the buyer.
	_, err = tx.Exec(ctx,
		`INSERT INTO user_items (user_id, item_name, quantity, paid_per, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, now())`,
		t.FromUserID, t.ItemName, t.QuantityAsked, t.UnitPrice.String())
	if err != nil {
		return err
	}

	// Finalize, guarded against a concurrent reject.
	ct, err = tx.Exec(ctx,
		`UPDATE transactions SET status = $2, settled_at = now()
		 WHERE id = $1 AND status = $3`,
		t.ID, model.StatusAccepted, model.StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrNotPending
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return t.MarkAccepted()
}

// failSettlement records the FAILED outcome after the settlement tx rolled
// back. Failed trades are auditable records, not discarded requests.
func (s *PostgresStore) failSettlement(ctx context.Context, t *model.Transaction, cause error) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, settled_at = now()
		 WHERE id = $1 AND status = $3`,
		t.ID, model.StatusFailed, model.StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrNotPending
	}
	_ = t.MarkFailed()
	return cause
}

func (s *PostgresStore) FinalizeTransaction(ctx context.Context, id, status string) (*model.Transaction, error) {
	if !model.Terminal(status) {
		return nil, model.ErrNotPending
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, settled_at = now()
		 WHERE id = $1 AND status = $3`,
		id, status, model.StatusPending)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		// Distinguish "missing" from "already terminal".
		if _, getErr := s.GetTransaction(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, model.ErrNotPending
	}
	return s.GetTransaction(ctx, id)
}

func (s *PostgresStore) GetBuyerPurchases(ctx context.Context, userID string) ([]model.PurchaseTotal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT announcement_id, item_name, COALESCE(SUM(quantity_asked), 0)
		 FROM transactions
		 WHERE from_user_id = $1 AND status = $2
		 GROUP BY announcement_id, item_name`, userID, model.StatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PurchaseTotal
	for rows.Next() {
		var pt model.PurchaseTotal
		if err := rows.Scan(&pt.AnnouncementID, &pt.ItemName, &pt.Quantity); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}
