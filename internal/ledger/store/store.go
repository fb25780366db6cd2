package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectChargeColumns = `
	c.id, c.org_id, c.key_id, c.charge_id,
	c.amount_cents, c.currency, c.amount_refunded_cents,
	c.created_epoch, c.created_at, c.refund_created_epoch, c.refund_created_at,
	c.status, c.paid, c.captured, c.refunded, c.failure_code, c.dispute_id,
	c.payment_intent_id, c.customer_id, c.customer_email,
	c.payment_method_type, c.payment_method_brand, c.payment_method_last4,
	c.description, c.reference, c.order_id, c.cart_id, c.livemode,
	c.raw, c.updated_at
`

func scanCharge(s scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction

	if err := s.Scan(
		&tx.ID, &tx.OrgID, &tx.KeyID, &tx.ChargeID,
		&tx.AmountCents, &tx.Currency, &tx.AmountRefundedCents,
		&tx.CreatedEpoch, &tx.CreatedAt, &tx.RefundCreatedEpoch, &tx.RefundCreatedAt,
		&tx.Status, &tx.Paid, &tx.Captured, &tx.Refunded, &tx.FailureCode, &tx.DisputeID,
		&tx.PaymentIntentID, &tx.CustomerID, &tx.CustomerEmail,
		&tx.PaymentMethodType, &tx.PaymentMethodBrand, &tx.PaymentMethodLast4,
		&tx.Description, &tx.Reference, &tx.OrderID, &tx.CartID, &tx.Livemode,
		&tx.Raw, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &tx, nil
}

// insertColumns are the columns written on upsert, in placeholder order.
var insertColumns = []string{
	"org_id", "key_id", "charge_id",
	"amount_cents", "currency", "amount_refunded_cents",
	"created_epoch", "created_at", "refund_created_epoch", "refund_created_at",
	"status", "paid", "captured", "refunded", "failure_code", "dispute_id",
	"payment_intent_id", "customer_id", "customer_email",
	"payment_method_type", "payment_method_brand", "payment_method_last4",
	"description", "reference", "order_id", "cart_id", "livemode",
	"raw",
}

// UpsertTransactions writes the batch in one statement. The uniqueness
// constraint on (org_id, key_id, charge_id) resolves collisions: every
// non-identity column is overwritten and updated_at is refreshed. This is the
// single source of idempotence for the sync engine.
func (s *Store) UpsertTransactions(ctx context.Context, rows []*ledger.Transaction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(insertColumns))

	for i, tx := range rows {
		marks := make([]string, len(insertColumns))
		for j := range insertColumns {
			marks[j] = fmt.Sprintf("$%d", i*len(insertColumns)+j+1)
		}

		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")

		args = append(args,
			tx.OrgID, tx.KeyID, tx.ChargeID,
			tx.AmountCents, tx.Currency, tx.AmountRefundedCents,
			tx.CreatedEpoch, tx.CreatedAt, tx.RefundCreatedEpoch, tx.RefundCreatedAt,
			tx.Status, tx.Paid, tx.Captured, tx.Refunded, tx.FailureCode, tx.DisputeID,
			tx.PaymentIntentID, tx.CustomerID, tx.CustomerEmail,
			tx.PaymentMethodType, tx.PaymentMethodBrand, tx.PaymentMethodLast4,
			tx.Description, tx.Reference, tx.OrderID, tx.CartID, tx.Livemode,
			[]byte(tx.Raw),
		)
	}

	var updates []string

	// Identity columns are never rewritten.
	for _, col := range insertColumns[3:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		INSERT INTO charges (%s)
		VALUES %s
		ON CONFLICT (org_id, key_id, charge_id) DO UPDATE SET %s
	`, strings.Join(insertColumns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upserting charges: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting upserted charges: %w", err)
	}

	return int(affected), nil
}

// MaxCreatedEpoch returns the newest stored charge creation time for one
// (org, key); ok is false when no rows exist.
func (s *Store) MaxCreatedEpoch(ctx context.Context, orgID, keyID string) (int64, bool, error) {
	query := `SELECT MAX(created_epoch) FROM charges WHERE org_id = $1 AND key_id = $2`

	var maxEpoch sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, orgID, keyID).Scan(&maxEpoch); err != nil {
		return 0, false, fmt.Errorf("querying max created epoch: %w", err)
	}

	return maxEpoch.Int64, maxEpoch.Valid, nil
}

// statusPredicate maps a semantic status category to SQL. Categories are
// predicates over multiple columns, not equality on the raw status string.
func statusPredicate(status ledger.StatusCategory) string {
	switch status {
	case ledger.StatusSucceeded:
		return "c.status = 'succeeded'"
	case ledger.StatusRefunded:
		return "c.refunded = TRUE"
	case ledger.StatusDisputed:
		return "c.dispute_id IS NOT NULL AND c.dispute_id <> ''"
	case ledger.StatusFailed:
		return "(c.status = 'failed' OR c.failure_code IS NOT NULL)"
	case ledger.StatusUncaptured:
		return "c.captured = FALSE"
	}

	return "TRUE"
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectChargeColumns + ` FROM charges c WHERE c.org_id = $1`
	args := []any{filter.OrgID}
	argIdx := 2

	if filter.KeyID != nil {
		query += fmt.Sprintf(" AND c.key_id = $%d", argIdx)

		args = append(args, *filter.KeyID)
		argIdx++
	}

	if filter.Status != nil {
		query += " AND " + statusPredicate(*filter.Status)
	}

	if filter.CreatedGte != nil {
		query += fmt.Sprintf(" AND c.created_epoch >= $%d", argIdx)

		args = append(args, *filter.CreatedGte)
		argIdx++
	}

	if filter.CreatedLte != nil {
		query += fmt.Sprintf(" AND c.created_epoch <= $%d", argIdx)

		args = append(args, *filter.CreatedLte)
		argIdx++
	}

	// id breaks ties among same-timestamp events.
	query += fmt.Sprintf(" ORDER BY c.created_epoch DESC, c.id DESC LIMIT $%d", argIdx)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction

	for rows.Next() {
		tx, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning charge: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating charge rows: %w", err)
	}

	return txs, nil
}

// Stats computes all category counts in a single aggregate query. The status
// category itself is not applied here: each count already is a category.
func (s *Store) Stats(ctx context.Context, filter ledger.ListFilter) (*ledger.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE ` + statusPredicate(ledger.StatusSucceeded) + `),
			COUNT(*) FILTER (WHERE ` + statusPredicate(ledger.StatusRefunded) + `),
			COUNT(*) FILTER (WHERE ` + statusPredicate(ledger.StatusDisputed) + `),
			COUNT(*) FILTER (WHERE ` + statusPredicate(ledger.StatusFailed) + `),
			COUNT(*) FILTER (WHERE ` + statusPredicate(ledger.StatusUncaptured) + `)
		FROM charges c
		WHERE c.org_id = $1`

	args := []any{filter.OrgID}
	argIdx := 2

	if filter.KeyID != nil {
		query += fmt.Sprintf(" AND c.key_id = $%d", argIdx)

		args = append(args, *filter.KeyID)
		argIdx++
	}

	if filter.CreatedGte != nil {
		query += fmt.Sprintf(" AND c.created_epoch >= $%d", argIdx)

		args = append(args, *filter.CreatedGte)
		argIdx++
	}

	if filter.CreatedLte != nil {
		query += fmt.Sprintf(" AND c.created_epoch <= $%d", argIdx)

		args = append(args, *filter.CreatedLte)
	}

	var stats ledger.Stats

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Succeeded, &stats.Refunded,
		&stats.Disputed, &stats.Failed, &stats.Uncaptured,
	)
	if err != nil {
		return nil, fmt.Errorf("querying charge stats: %w", err)
	}

	return &stats, nil
}
