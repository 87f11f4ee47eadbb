package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc runs inside a transaction. Its ctx carries tx, see TxFromContext.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes RunTransaction.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	budget   time.Duration
}

// WithTxAttempts caps how often Firestore retries on contention.
func WithTxAttempts(n int) TxOption {
	return func(s *txSettings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTxTimeout bounds the transaction including retries.
func WithTxTimeout(d time.Duration) TxOption {
	return func(s *txSettings) {
		if d > 0 {
			s.budget = d
		}
	}
}

var errNilClient = errors.New("firestore: client is nil")

// RunTransaction runs fn with retries. An error returned by fn itself is
// handed back unwrapped so callers can match domain errors.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	switch {
	case client == nil:
		return WrapError("transaction", errNilClient)
	case fn == nil:
		return WrapError("transaction", errors.New("firestore: nil transaction func"))
	}

	s := txSettings{attempts: 5, budget: 15 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > s.budget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	var last error
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		last = fn(context.WithValue(ctx, txKey{}, tx), tx)
		return last
	}, firestore.MaxAttempts(s.attempts))
	if err != nil && last != nil && errors.Is(err, last) {
		return err
	}
	return WrapError("transaction", err)
}

type txKey struct{}

// TxFromContext returns the transaction RunTransaction attached to ctx.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}
