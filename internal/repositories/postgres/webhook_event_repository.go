package postgres

import (
	"context"
	"database/sql"

	domain "github.com/feastline/api/internal/domain"
)

// WebhookEventRepository records processed gateway events so replayed
// deliveries can be detected inside the settlement transaction.
type WebhookEventRepository struct {
	db *sql.DB
}

func (r *WebhookEventRepository) InsertIfAbsent(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	const op = "webhookEvents.InsertIfAbsent"

	var payload any
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	res, err := runner(ctx, r.db).ExecContext(ctx, `
		INSERT INTO webhook_events (provider, event_id, provider_ref, outcome, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		event.Provider, event.EventID, event.ProviderRef, event.Outcome, payload, event.ReceivedAt,
	)
	if err != nil {
		return false, wrapError(op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrapError(op, err)
	}
	return affected > 0, nil
}
