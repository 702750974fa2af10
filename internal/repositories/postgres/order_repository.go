package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/money"
)

// OrderRepository persists orders with their line and pricing snapshots.
type OrderRepository struct {
	db *sql.DB
}

// Line snapshots are stored as JSON documents next to the header columns so
// the order reflects the catalog exactly as it was priced at checkout.

type orderLineDoc struct {
	CatalogItemID string         `json:"catalog_item_id"`
	Name          string         `json:"name"`
	UnitPrice     int64          `json:"unit_price"`
	VariantPrice  *int64         `json:"variant_price,omitempty"`
	Quantity      int            `json:"quantity"`
	Extras        []selectionDoc `json:"extras,omitempty"`
	Pricing       linePricingDoc `json:"pricing"`
}

type selectionDoc struct {
	GroupID string `json:"group_id"`
	ItemID  string `json:"item_id"`
}

type linePricingDoc struct {
	UnitPrice   int64             `json:"unit_price"`
	ExtrasPrice int64             `json:"extras_price"`
	LineTotal   int64             `json:"line_total"`
	Extras      []extraPricingDoc `json:"extras,omitempty"`
}

type extraPricingDoc struct {
	GroupID string `json:"group_id"`
	ItemID  string `json:"item_id"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
}

func encodeOrderLines(order domain.Order) ([]byte, error) {
	pricingByItem := make(map[string]domain.LinePricing, len(order.Breakdown.Lines))
	for _, lp := range order.Breakdown.Lines {
		pricingByItem[lp.CatalogItemID] = lp
	}

	docs := make([]orderLineDoc, 0, len(order.Lines))
	for _, line := range order.Lines {
		doc := orderLineDoc{
			CatalogItemID: line.CatalogItemID,
			Name:          line.Name,
			UnitPrice:     int64(line.UnitPrice),
			Quantity:      line.Quantity,
		}
		if line.VariantPrice != nil {
			variant := int64(*line.VariantPrice)
			doc.VariantPrice = &variant
		}
		for _, sel := range line.Extras {
			doc.Extras = append(doc.Extras, selectionDoc{GroupID: sel.GroupID, ItemID: sel.ItemID})
		}
		if lp, ok := pricingByItem[line.CatalogItemID]; ok {
			doc.Pricing = linePricingDoc{
				UnitPrice:   int64(lp.UnitPrice),
				ExtrasPrice: int64(lp.ExtrasPrice),
				LineTotal:   int64(lp.LineTotal),
			}
			for _, ep := range lp.Extras {
				doc.Pricing.Extras = append(doc.Pricing.Extras, extraPricingDoc{
					GroupID: ep.GroupID,
					ItemID:  ep.ItemID,
					Name:    ep.Name,
					Price:   int64(ep.Price),
				})
			}
		}
		docs = append(docs, doc)
	}

	return json.Marshal(docs)
}

func decodeOrderLines(raw []byte, order *domain.Order) error {
	var docs []orderLineDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("decode order lines: %w", err)
	}

	order.Lines = make([]domain.CartLine, 0, len(docs))
	order.Breakdown.Lines = make([]domain.LinePricing, 0, len(docs))
	for _, doc := range docs {
		line := domain.CartLine{
			CatalogItemID: doc.CatalogItemID,
			Name:          doc.Name,
			UnitPrice:     money.Amount(doc.UnitPrice),
			Quantity:      doc.Quantity,
		}
		if doc.VariantPrice != nil {
			variant := money.Amount(*doc.VariantPrice)
			line.VariantPrice = &variant
		}
		for _, sel := range doc.Extras {
			line.Extras = append(line.Extras, domain.SelectedExtra{GroupID: sel.GroupID, ItemID: sel.ItemID})
		}
		order.Lines = append(order.Lines, line)

		lp := domain.LinePricing{
			CatalogItemID: doc.CatalogItemID,
			UnitPrice:     money.Amount(doc.Pricing.UnitPrice),
			ExtrasPrice:   money.Amount(doc.Pricing.ExtrasPrice),
			Quantity:      doc.Quantity,
			LineTotal:     money.Amount(doc.Pricing.LineTotal),
		}
		for _, ep := range doc.Pricing.Extras {
			lp.Extras = append(lp.Extras, domain.ExtraPricing{
				GroupID: ep.GroupID,
				ItemID:  ep.ItemID,
				Name:    ep.Name,
				Price:   money.Amount(ep.Price),
			})
		}
		order.Breakdown.Lines = append(order.Breakdown.Lines, lp)
	}

	return nil
}

const orderColumns = `id, order_number, user_id, status, payment_status, currency, delivery_method,
	lines, subtotal, vat_rate_bps, vat, delivery_fee, total, contact_email, contact_phone, cancel_reason,
	created_at, updated_at, paid_at, delivered_at, cancelled_at`

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	const op = "orders.Insert"

	lines, err := encodeOrderLines(order)
	if err != nil {
		return wrapError(op, err)
	}

	_, err = runner(ctx, r.db).ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		order.ID, order.OrderNumber, order.UserID, string(order.Status), string(order.PaymentStatus),
		order.Currency, string(order.DeliveryMethod), lines,
		int64(order.Breakdown.Subtotal), order.Breakdown.VATRateBps, int64(order.Breakdown.VAT),
		int64(order.Breakdown.DeliveryFee), int64(order.Breakdown.Total),
		order.Contact.Email, order.Contact.Phone, order.CancelReason,
		order.CreatedAt, order.UpdatedAt, order.PaidAt, order.DeliveredAt, order.CancelledAt,
	)
	if err != nil {
		return wrapError(op, err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.findByID(ctx, "orders.FindByID", orderID, "")
}

func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	return r.findByID(ctx, "orders.FindByIDForUpdate", orderID, " FOR UPDATE")
}

func (r *OrderRepository) findByID(ctx context.Context, op, orderID, suffix string) (domain.Order, error) {
	row := runner(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+suffix, orderID)

	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	return order, nil
}

func scanOrder(row *sql.Row) (domain.Order, error) {
	var (
		order        domain.Order
		status       string
		payStatus    string
		delivery     string
		lines        []byte
		subtotal     int64
		vatRateBps   int64
		vat          int64
		deliveryFee  int64
		total        int64
		cancelReason sql.NullString
		paidAt       sql.NullTime
		deliveredAt  sql.NullTime
		cancelledAt  sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &status, &payStatus,
		&order.Currency, &delivery, &lines,
		&subtotal, &vatRateBps, &vat, &deliveryFee, &total,
		&order.Contact.Email, &order.Contact.Phone, &cancelReason,
		&order.CreatedAt, &order.UpdatedAt, &paidAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(payStatus)
	order.DeliveryMethod = domain.DeliveryMethod(delivery)
	order.Breakdown.Currency = order.Currency
	order.Breakdown.Subtotal = money.Amount(subtotal)
	order.Breakdown.VATRateBps = vatRateBps
	order.Breakdown.VAT = money.Amount(vat)
	order.Breakdown.DeliveryFee = money.Amount(deliveryFee)
	order.Breakdown.Total = money.Amount(total)
	if cancelReason.Valid {
		order.CancelReason = &cancelReason.String
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		order.PaidAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		order.DeliveredAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		order.CancelledAt = &t
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if err := decodeOrderLines(lines, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// UpdateFulfillment writes the mutable fulfillment fields of the order header.
func (r *OrderRepository) UpdateFulfillment(ctx context.Context, order domain.Order) error {
	const op = "orders.UpdateFulfillment"

	res, err := runner(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancel_reason = $3, updated_at = $4, delivered_at = $5, cancelled_at = $6
		WHERE id = $1`,
		order.ID, string(order.Status), order.CancelReason,
		order.UpdatedAt, order.DeliveredAt, order.CancelledAt,
	)
	if err != nil {
		return wrapError(op, err)
	}
	return requireRowAffected(op, res)
}

func (r *OrderRepository) UpdatePaymentState(ctx context.Context, orderID string, status domain.PaymentStatus, paidAt *time.Time, updatedAt time.Time) error {
	const op = "orders.UpdatePaymentState"

	res, err := runner(ctx, r.db).ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, paid_at = $3, updated_at = $4
		WHERE id = $1`,
		orderID, string(status), paidAt, updatedAt,
	)
	if err != nil {
		return wrapError(op, err)
	}
	return requireRowAffected(op, res)
}

func requireRowAffected(op string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapError(op, err)
	}
	if affected == 0 {
		return wrapError(op, sql.ErrNoRows)
	}
	return nil
}
