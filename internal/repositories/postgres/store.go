// Package postgres implements the repository registry on PostgreSQL using pgx.
// Stock rows are locked with SELECT ... FOR UPDATE in ascending id order.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

//go:embed schema.sql
var schemaSQL string

const defaultTxAttempts = 3

// Config controls the connection pool and transaction retry policy.
type Config struct {
	URL        string
	MaxConns   int32
	MinConns   int32
	TxAttempts int
}

// Store owns the pgx pool and hands out repositories bound to it.
type Store struct {
	pool       *pgxpool.Pool
	txAttempts int
}

var (
	_ repositories.Registry = (*Store)(nil)
	_ repositories.Seeder   = (*Store)(nil)
)

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("postgres: url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapError("ping", err)
	}
	return NewWithPool(pool, cfg.TxAttempts), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool, txAttempts int) *Store {
	if txAttempts <= 0 {
		txAttempts = defaultTxAttempts
	}
	return &Store{pool: pool, txAttempts: txAttempts}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return wrapError("migrate", err)
	}
	return nil
}

// Pool exposes the underlying pool for collaborators sharing the database.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Products() repositories.ProductRepository     { return &productRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return &orderRepository{s} }
func (s *Store) Promotions() repositories.PromotionRepository { return &promotionRepository{s} }

// Health pings the pool.
func (s *Store) Health() repositories.HealthRepository {
	repo, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "postgres", Timeout: 2 * time.Second, Check: s.pool.Ping},
	})
	return repo
}

// Close releases every pooled connection.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

type txKey struct{}

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// RunInTx runs fn in a READ COMMITTED transaction. Serialization failures and
// deadlocks restart fn in a new transaction up to the configured attempts.
// Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		lastErr = s.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return lastErr
}

// shouldRetry looks through the whole chain, including errors joined by the
// service layer, for a serialization failure or deadlock.
func shouldRetry(err error) bool {
	var pgErr *Error
	return errors.As(err, &pgErr) && pgErr.retryable()
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return wrapError("commit", err)
	}
	return nil
}
