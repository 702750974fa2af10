package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
)

// PaymentRepository persists payment attempts keyed by gateway references.
type PaymentRepository struct {
	db *sql.DB
}

const paymentColumns = `id, order_id, provider, provider_ref, status, amount, currency,
	handoff_url, failure_code, gateway_response, created_at, updated_at, settled_at`

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	const op = "payments.Insert"

	_, err := runner(ctx, r.db).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		payment.ID, payment.OrderID, payment.Provider, payment.ProviderRef,
		string(payment.Status), int64(payment.Amount), payment.Currency,
		payment.HandoffURL, payment.FailureCode, payment.GatewayResponse,
		payment.CreatedAt, payment.UpdatedAt, payment.SettledAt,
	)
	if err != nil {
		return wrapError(op, err)
	}
	return nil
}

func (r *PaymentRepository) FindByProviderRefForUpdate(ctx context.Context, provider, reference string) (domain.Payment, error) {
	const op = "payments.FindByProviderRefForUpdate"

	row := runner(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_ref = $2 FOR UPDATE`,
		provider, reference)
	payment, err := scanPayment(row.Scan)
	if err != nil {
		return domain.Payment{}, wrapError(op, err)
	}
	return payment, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID string, status domain.PaymentStatus, failureCode *string, gatewayResponse []byte, settledAt *time.Time, updatedAt time.Time) error {
	const op = "payments.UpdateStatus"

	res, err := runner(ctx, r.db).ExecContext(ctx, `
		UPDATE payments
		SET status = $2, failure_code = $3, gateway_response = $4, settled_at = $5, updated_at = $6
		WHERE id = $1`,
		paymentID, string(status), failureCode, gatewayResponse, settledAt, updatedAt,
	)
	if err != nil {
		return wrapError(op, err)
	}
	return requireRowAffected(op, res)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	const op = "payments.ListByOrder"

	rows, err := runner(ctx, r.db).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, wrapError(op, err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(op, err)
	}
	return payments, nil
}

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var (
		payment     domain.Payment
		status      string
		amount      int64
		failureCode sql.NullString
		settledAt   sql.NullTime
	)

	err := scan(
		&payment.ID, &payment.OrderID, &payment.Provider, &payment.ProviderRef,
		&status, &amount, &payment.Currency,
		&payment.HandoffURL, &failureCode, &payment.GatewayResponse,
		&payment.CreatedAt, &payment.UpdatedAt, &settledAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}

	payment.Status = domain.PaymentStatus(status)
	payment.Amount = money.Amount(amount)
	if failureCode.Valid {
		payment.FailureCode = &failureCode.String
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		payment.SettledAt = &t
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()
	return payment, nil
}
