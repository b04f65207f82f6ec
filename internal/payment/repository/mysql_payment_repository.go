package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/allisson/ledgerhook/internal/database"
	apperrors "github.com/allisson/ledgerhook/internal/errors"
	paymentDomain "github.com/allisson/ledgerhook/internal/payment/domain"
)

// mysqlUniqueViolation is the MySQL error number for duplicate keys (ER_DUP_ENTRY).
const mysqlUniqueViolation = 1062

// mysqlPaymentForeignKeyViolation is the MySQL error number for inserts
// referencing a missing parent row (ER_NO_REFERENCED_ROW_2).
const mysqlPaymentForeignKeyViolation = 1452

// MySQLPaymentRepository implements Payment persistence for MySQL.
// Uses BINARY(16) for UUID storage.
type MySQLPaymentRepository struct {
	db *sql.DB
}

// NewMySQLPaymentRepository creates a new MySQL Payment repository.
func NewMySQLPaymentRepository(db *sql.DB) *MySQLPaymentRepository {
	return &MySQLPaymentRepository{db: db}
}

// Create inserts a new payment. A duplicate tx_signature or reference_key
// returns ErrConflict.
func (m *MySQLPaymentRepository) Create(
	ctx context.Context,
	payment *paymentDomain.Payment,
) error {
	querier := database.GetTx(ctx, m.db)

	id, err := payment.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal payment id")
	}

	query := `INSERT INTO payments (` + paymentColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		nullIfEmpty(payment.TxSignature),
		payment.ReferenceKey,
		payment.AmountLamports,
		string(payment.Status),
		payment.FinalizedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if mysqlErr, ok := err.(*mysql.MySQLError); ok && mysqlErr.Number == mysqlUniqueViolation {
			return apperrors.Wrap(apperrors.ErrConflict, "payment already exists")
		}
		return apperrors.Wrap(err, "failed to create payment")
	}

	return nil
}

// GetByReferenceKey retrieves a payment by its reference key.
func (m *MySQLPaymentRepository) GetByReferenceKey(
	ctx context.Context,
	referenceKey string,
) (*paymentDomain.Payment, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference_key = ?`

	return m.scanPayment(querier.QueryRowContext(ctx, query, referenceKey))
}

// GetByTxSignature retrieves a payment by its ledger transaction signature.
func (m *MySQLPaymentRepository) GetByTxSignature(
	ctx context.Context,
	txSignature string,
) (*paymentDomain.Payment, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_signature = ?`

	return m.scanPayment(querier.QueryRowContext(ctx, query, txSignature))
}

// UpdateStatus transitions a payment and records the transition time.
func (m *MySQLPaymentRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status paymentDomain.PaymentStatus,
	txSignature string,
	finalizedAt *time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal payment id")
	}

	query := `UPDATE payments
			  SET status = ?, tx_signature = ?, finalized_at = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(status),
		nullIfEmpty(txSignature),
		finalizedAt,
		time.Now().UTC(),
		idBytes,
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
func (m *MySQLPaymentRepository) CreateMetadata(
	ctx context.Context,
	entries []*paymentDomain.Metadata,
) error {
	querier := database.GetTx(ctx, m.db)

	query := "INSERT INTO payment_metadata (id, payment_id, `key`, `value`, created_at) VALUES (?, ?, ?, ?, ?)"

	for _, entry := range entries {
		id, err := entry.ID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal metadata id")
		}
		paymentID, err := entry.PaymentID.MarshalBinary()
		if err != nil {
			return apperrors.Wrap(err, "failed to marshal payment id")
		}

		_, err = querier.ExecContext(ctx, query, id, paymentID, entry.Key, entry.Value, entry.CreatedAt)
		if err != nil {
			if mysqlErr, ok := err.(*mysql.MySQLError); ok && mysqlErr.Number == mysqlPaymentForeignKeyViolation {
				return apperrors.Wrap(apperrors.ErrIntegrityViolation, "payment metadata references missing payment")
			}
			return apperrors.Wrap(err, "failed to create payment metadata")
		}
	}

	return nil
}

// ListMetadata retrieves all metadata rows for a payment.
func (m *MySQLPaymentRepository) ListMetadata(
	ctx context.Context,
	paymentID uuid.UUID,
) ([]*paymentDomain.Metadata, error) {
	querier := database.GetTx(ctx, m.db)

	paymentIDBytes, err := paymentID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal payment id")
	}

	query := "SELECT id, payment_id, `key`, `value`, created_at FROM payment_metadata WHERE payment_id = ? ORDER BY created_at ASC"

	rows, err := querier.QueryContext(ctx, query, paymentIDBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list payment metadata")
	}
	defer rows.Close() //nolint:errcheck

	entries := []*paymentDomain.Metadata{}
	for rows.Next() {
		entry := &paymentDomain.Metadata{}
		var id, parentID []byte
		err := rows.Scan(&id, &parentID, &entry.Key, &entry.Value, &entry.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan payment metadata")
		}
		entry.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse metadata id")
		}
		entry.PaymentID, err = uuid.FromBytes(parentID)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to parse payment id")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list payment metadata")
	}

	return entries, nil
}

func (m *MySQLPaymentRepository) scanPayment(row *sql.Row) (*paymentDomain.Payment, error) {
	payment := &paymentDomain.Payment{}
	var id []byte
	var txSignature sql.NullString
	var status string
	var finalizedAt *time.Time

	err := row.Scan(
		&id,
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

	payment.ID, err = uuid.FromBytes(id)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse payment id")
	}
	payment.TxSignature = txSignature.String
	payment.Status = paymentDomain.PaymentStatus(status)
	payment.FinalizedAt = finalizedAt

	return payment, nil
}
