// Package firestore holds the shared Firestore client and the small helpers
// the order store and idempotency store build on.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
)

const (
	connectTimeout  = 10 * time.Second
	emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"
	projectEnv      = "GOOGLE_CLOUD_PROJECT"
)

var (
	ErrProviderClosed = errors.New("firestore: provider is closed")
	errNoProject      = errors.New("firestore: project id is required")
)

// target is where the client connects, resolved once from config and env.
type target struct {
	project  string
	database string
	emulator string
}

func resolveTarget(cfg config.FirestoreConfig) target {
	t := target{
		project:  firstNonEmpty(cfg.ProjectID, os.Getenv(projectEnv)),
		database: firstNonEmpty(cfg.DatabaseID, firestore.DefaultDatabaseID),
		emulator: firstNonEmpty(cfg.EmulatorHost, os.Getenv(emulatorHostEnv)),
	}
	return t
}

func (t target) clientOptions() []option.ClientOption {
	if t.emulator == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithoutAuthentication(),
		option.WithEndpoint(t.emulator),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

// Provider hands out one lazily created client. A failed connect is retried
// on the next call.
type Provider struct {
	target target
	extra  []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithClientOptions passes extra options to the Firestore client.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) { p.extra = append(p.extra, opts...) }
}

func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{target: resolveTarget(cfg)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client returns the shared client.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return nil, ErrProviderClosed
	case p.client != nil:
		return p.client, nil
	}

	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) connect(ctx context.Context) (*firestore.Client, error) {
	if p.target.project == "" {
		return nil, errNoProject
	}
	if p.target.emulator != "" && os.Getenv(emulatorHostEnv) == "" {
		// The client library only switches to emulator credentials via the env var.
		_ = os.Setenv(emulatorHostEnv, p.target.emulator)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	opts := append(p.target.clientOptions(), p.extra...)
	client, err := firestore.NewClientWithDatabase(ctx, p.target.project, p.target.database, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %s/%s: %w", p.target.project, p.target.database, err)
	}
	return client, nil
}

// Close releases the client. Client fails with ErrProviderClosed afterwards.
func (p *Provider) Close(context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	client := p.client
	p.client, p.closed = nil, true
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// RunTransaction runs fn in a transaction on the shared client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, opts...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
