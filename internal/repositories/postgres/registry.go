package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feastline/api/internal/repositories"
)

type txContextKey struct{}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Registry wires the Postgres-backed repository implementations together.
type Registry struct {
	db *sql.DB

	orders        *OrderRepository
	payments      *PaymentRepository
	extras        *ExtrasRepository
	pricingConfig *PricingConfigRepository
	webhookEvents *WebhookEventRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

// NewRegistry builds a Registry over an open connection pool. Extra dependency
// checks (message broker, payment providers) are appended to the database probe.
func NewRegistry(db *sql.DB, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres: registry requires a database handle")
	}

	checks := append([]repositories.DependencyCheck{{
		Name:  "postgres",
		Check: db.PingContext,
	}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("postgres: health repository: %w", err)
	}

	return &Registry{
		db:            db,
		orders:        &OrderRepository{db: db},
		payments:      &PaymentRepository{db: db},
		extras:        &ExtrasRepository{db: db},
		pricingConfig: &PricingConfigRepository{db: db},
		webhookEvents: &WebhookEventRepository{db: db},
		counters:      &CounterRepository{db: db},
		health:        health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.db.Close() }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }

func (r *Registry) Extras() repositories.ExtrasRepository { return r.extras }

func (r *Registry) PricingConfig() repositories.PricingConfigRepository { return r.pricingConfig }

func (r *Registry) WebhookEvents() repositories.WebhookEventRepository { return r.webhookEvents }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a transaction. Repository calls made with the
// supplied context share the transaction. Nested calls reuse the outer one.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("registry.RunInTx", err)
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapError("registry.RunInTx", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx
}

// runner resolves the active transaction for ctx, falling back to the pool.
func runner(ctx context.Context, db *sql.DB) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
