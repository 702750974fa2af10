package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
)

// PricingConfigRepository stores the operator-editable pricing knobs as
// key/value rows.
type PricingConfigRepository struct {
	db *sql.DB
}

const (
	pricingKeyVATEnabled       = "vat_enabled"
	pricingKeyVATRateBps       = "vat_rate_bps"
	pricingKeyDeliveryStandard = "delivery_fee_standard"
	pricingKeyDeliveryExpress  = "delivery_fee_express"
)

func (r *PricingConfigRepository) Get(ctx context.Context) (domain.PricingConfig, error) {
	const op = "pricingConfig.Get"

	rows, err := runner(ctx, r.db).QueryContext(ctx,
		`SELECT key, value FROM pricing_config`)
	if err != nil {
		return domain.PricingConfig{}, wrapError(op, err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.PricingConfig{}, wrapError(op, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return domain.PricingConfig{}, wrapError(op, err)
	}
	if len(values) == 0 {
		return domain.PricingConfig{}, wrapError(op, sql.ErrNoRows)
	}

	cfg := domain.PricingConfig{
		DeliveryFees: map[domain.DeliveryMethod]money.Amount{},
	}
	cfg.VATEnabled = values[pricingKeyVATEnabled] == "true"
	if cfg.VATRateBps, err = parsePricingInt(op, values, pricingKeyVATRateBps); err != nil {
		return domain.PricingConfig{}, err
	}
	standard, err := parsePricingInt(op, values, pricingKeyDeliveryStandard)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	express, err := parsePricingInt(op, values, pricingKeyDeliveryExpress)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	cfg.DeliveryFees[domain.DeliveryStandard] = money.Amount(standard)
	cfg.DeliveryFees[domain.DeliveryExpress] = money.Amount(express)

	return cfg, nil
}

func parsePricingInt(op string, values map[string]string, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, wrapError(op, fmt.Errorf("invalid %s value %q: %w", key, raw, err))
	}
	return v, nil
}

func (r *PricingConfigRepository) Save(ctx context.Context, cfg domain.PricingConfig, updatedAt time.Time) error {
	const op = "pricingConfig.Save"

	values := map[string]string{
		pricingKeyVATEnabled:       strconv.FormatBool(cfg.VATEnabled),
		pricingKeyVATRateBps:       strconv.FormatInt(cfg.VATRateBps, 10),
		pricingKeyDeliveryStandard: strconv.FormatInt(int64(cfg.DeliveryFee(domain.DeliveryStandard)), 10),
		pricingKeyDeliveryExpress:  strconv.FormatInt(int64(cfg.DeliveryFee(domain.DeliveryExpress)), 10),
	}

	q := runner(ctx, r.db)
	for key, value := range values {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO pricing_config (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at`,
			key, value, updatedAt,
		); err != nil {
			return wrapError(op, err)
		}
	}
	return nil
}
