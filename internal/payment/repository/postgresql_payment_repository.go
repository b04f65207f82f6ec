// Package repository implements payment persistence for PostgreSQL and MySQL
// with transaction support via database.GetTx().
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

const paymentColumns = `id, tx_signature, reference_key, amount_lamports, status,
	finalized_at, created_at, updated_at`

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// pqPaymentForeignKeyViolation is the PostgreSQL error code for foreign key violations.
const pqPaymentForeignKeyViolation = "23503"

// PostgreSQLPaymentRepository implements Payment persistence for PostgreSQL.
type PostgreSQLPaymentRepository struct {
	db *sql.DB
}

// NewPostgreSQLPaymentRepository creates a new PostgreSQL Payment repository.
func NewPostgreSQLPaymentRepository(db *sql.DB) *PostgreSQLPaymentRepository {
	return &PostgreSQLPaymentRepository{db: db}
}

// Create inserts a new payment. A duplicate tx_signature or reference_key
// returns ErrConflict.
func (p *PostgreSQLPaymentRepository) Create(
	ctx context.Context,
	payment *paymentDomain.Payment,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO payments (` + paymentColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		payment.ID,
		nullIfEmpty(payment.TxSignature),
		payment.ReferenceKey,
		payment.AmountLamports,
		string(payment.Status),
		payment.FinalizedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
			return apperrors.Wrap(apperrors.ErrConflict, "payment already exists")
		}
		return apperrors.Wrap(err, "failed to create payment")
	}

	return nil
}

// GetByReferenceKey retrieves a payment by its reference key.
func (p *PostgreSQLPaymentRepository) GetByReferenceKey(
	ctx context.Context,
	referenceKey string,
) (*paymentDomain.Payment, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference_key = $1`

	return p.scanPayment(querier.QueryRowContext(ctx, query, referenceKey))
}

// GetByTxSignature retrieves a payment by its ledger transaction signature.
func (p *PostgreSQLPaymentRepository) GetByTxSignature(
	ctx context.Context,
	txSignature string,
) (*paymentDomain.Payment, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_signature = $1`

	return p.scanPayment(querier.QueryRowContext(ctx, query, txSignature))
}

// UpdateStatus transitions a payment and records the transition time. The tx
// signature is written alongside so a payment created before its webhook
// arrived picks up the on-ledger identity.
func (p *PostgreSQLPaymentRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status paymentDomain.PaymentStatus,
	txSignature string,
	finalizedAt *time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE payments
			  SET status = $1, tx_signature = $2, finalized_at = $3, updated_at = $4
			  WHERE id = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(status),
		nullIfEmpty(txSignature),
		finalizedAt,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update payment status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update payment status")
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// CreateMetadata inserts key/value rows attached to a payment.
func (p *PostgreSQLPaymentRepository) CreateMetadata(
	ctx context.Context,
	entries []*paymentDomain.Metadata,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO payment_metadata (id, payment_id, key, value, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	for _, entry := range entries {
		_, err := querier.ExecContext(
			ctx,
			query,
			entry.ID,
			entry.PaymentID,
			entry.Key,
			entry.Value,
			entry.CreatedAt,
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqPaymentForeignKeyViolation {
				return apperrors.Wrap(apperrors.ErrIntegrityViolation, "payment metadata references missing payment")
			}
			return apperrors.Wrap(err, "failed to create payment metadata")
		}
	}

	return nil
}

// ListMetadata retrieves all metadata rows for a payment.
func (p *PostgreSQLPaymentRepository) ListMetadata(
	ctx context.Context,
	paymentID uuid.UUID,
) ([]*paymentDomain.Metadata, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, payment_id, key, value, created_at
			  FROM payment_metadata WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list payment metadata")
	}
	defer rows.Close() //nolint:errcheck

	entries := []*paymentDomain.Metadata{}
	for rows.Next() {
		entry := &paymentDomain.Metadata{}
		err := rows.Scan(&entry.ID, &entry.PaymentID, &entry.Key, &entry.Value, &entry.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan payment metadata")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list payment metadata")
	}

	return entries, nil
}

func (p *PostgreSQLPaymentRepository) scanPayment(row *sql.Row) (*paymentDomain.Payment, error) {
	payment := &paymentDomain.Payment{}
	var txSignature sql.NullString
	var status string
	var finalizedAt *time.Time

	err := row.Scan(
		&payment.ID,
		&txSignature,
		&payment.ReferenceKey,
		&payment.AmountLamports,
		&status,
		&finalizedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get payment")
	}

	payment.TxSignature = txSignature.String
	payment.Status = paymentDomain.PaymentStatus(status)
	payment.FinalizedAt = finalizedAt
	return payment, nil
}

// nullIfEmpty maps an absent tx signature to NULL so the unique index never
// collides on payments created before their webhook arrived.
func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
