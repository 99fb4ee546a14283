package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ynaut/reward-ledger/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `user_id, balance, is_premium, is_verified, verification_color,
	custom_theme, premium_emoji_enabled, super_likes_count, boost_active_until, updated_at`

func (q *queries) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, accountArgs(a)...)
	if isUniqueConstraintError(err) {
		return ledger.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, id ledger.UserID) (ledger.Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, string(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return a, nil
}

func (q *queries) SaveAccount(ctx context.Context, a ledger.Account) error {
	args := accountArgs(a)
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET
			balance = ?, is_premium = ?, is_verified = ?, verification_color = ?,
			custom_theme = ?, premium_emoji_enabled = ?, super_likes_count = ?,
			boost_active_until = ?, updated_at = ?
		WHERE user_id = ?
	`, append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func accountArgs(a ledger.Account) []any {
	var boost sql.NullString
	if a.BoostActiveUntil != nil {
		boost = sql.NullString{String: formatTime(*a.BoostActiveUntil), Valid: true}
	}
	return []any{
		string(a.UserID),
		a.Balance.Int64(),
		boolInt(a.IsPremium),
		boolInt(a.IsVerified),
		string(a.VerificationColor),
		string(a.CustomTheme),
		boolInt(a.PremiumEmojiEnabled),
		a.SuperLikesCount,
		boost,
		formatTime(a.UpdatedAt),
	}
}

func scanAccount(row *sql.Row) (ledger.Account, error) {
	var (
		a                         ledger.Account
		id, color, theme, updated string
		balance                   int64
		premium, verified, emoji  int
		boost                     sql.NullString
	)
	err := row.Scan(&id, &balance, &premium, &verified, &color, &theme, &emoji,
		&a.SuperLikesCount, &boost, &updated)
	if err != nil {
		return ledger.Account{}, err
	}

	a.UserID = ledger.UserID(id)
	a.Balance = ledger.YN(balance)
	a.IsPremium = premium == 1
	a.IsVerified = verified == 1
	a.VerificationColor = ledger.VerificationColor(color)
	a.CustomTheme = ledger.Theme(theme)
	a.PremiumEmojiEnabled = emoji == 1
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return ledger.Account{}, err
	}
	if boost.Valid {
		t, err := parseTime(boost.String)
		if err != nil {
			return ledger.Account{}, err
		}
		a.BoostActiveUntil = &t
	}
	return a, nil
}

// =============================================================================
// LIKES
// =============================================================================

func (q *queries) HasLike(ctx context.Context, user ledger.UserID, target ledger.TargetID) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM likes WHERE user_id = ? AND target_id = ?`,
		string(user), string(target),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return n > 0, nil
}

func (q *queries) AddLike(ctx context.Context, like ledger.Like) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO likes (user_id, target_id, super, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, target_id) DO UPDATE SET super = excluded.super
	`, string(like.UserID), string(like.TargetID), boolInt(like.Super), formatTime(like.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add like: %w", err)
	}
	return nil
}

func (q *queries) RemoveLike(ctx context.Context, user ledger.UserID, target ledger.TargetID) error {
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND target_id = ?`,
		string(user), string(target))
	if err != nil {
		return fmt.Errorf("failed to remove like: %w", err)
	}
	return nil
}

func (q *queries) CountLikes(ctx context.Context, target ledger.TargetID) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM likes WHERE target_id = ?`, string(target)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// =============================================================================
// JOURNAL
// =============================================================================

// Append persists a journal entry.
func (q *queries) Append(ctx context.Context, tx ledger.Transaction) error {
	var effectJSON sql.NullString
	if tx.Effect != nil {
		data, err := json.Marshal(tx.Effect)
		if err != nil {
			return fmt.Errorf("failed to encode effect: %w", err)
		}
		effectJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, user_id, tx_type, delta, balance_after, reason,
			reference_id, effect_json, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(tx.ID),
		string(tx.UserID),
		string(tx.Type),
		tx.Delta.String(),
		tx.BalanceAfter.String(),
		string(tx.Reason),
		nullString(tx.ReferenceID),
		effectJSON,
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Transactions returns a user's journal, oldest first.
func (q *queries) Transactions(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, user_id, tx_type, delta, balance_after, reason,
		       reference_id, effect_json, idempotency_key, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at, rowid
	`, string(user))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Exists checks if idempotency key already exists.
func (q *queries) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                                  ledger.Transaction
		id, user, typ, delta, after, reason string
		ref, effectJSON, key                sql.NullString
		created                             string
	)
	if err := rows.Scan(&id, &user, &typ, &delta, &after, &reason, &ref, &effectJSON, &key, &created); err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	d, err := ledger.ParseAmount(delta)
	if err != nil {
		return tx, err
	}
	b, err := ledger.ParseAmount(after)
	if err != nil {
		return tx, err
	}
	at, err := parseTime(created)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx = ledger.Transaction{
		ID:             ledger.TransactionID(id),
		UserID:         ledger.UserID(user),
		Type:           ledger.TxType(typ),
		Delta:          d,
		BalanceAfter:   b,
		Reason:         ledger.Reason(reason),
		ReferenceID:    ref.String,
		IdempotencyKey: key.String,
		CreatedAt:      at,
	}
	if effectJSON.Valid {
		var e ledger.Effect
		if err := json.Unmarshal([]byte(effectJSON.String), &e); err != nil {
			return tx, fmt.Errorf("failed to decode effect: %w", err)
		}
		tx.Effect = &e
	}
	return tx, nil
}
