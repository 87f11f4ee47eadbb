package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/events"
	pfirestore "github.com/hoangphuc3604/my-shop-backend/internal/platform/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/idempotency"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/secrets"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/storage"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
	firestoreRepo "github.com/hoangphuc3604/my-shop-backend/internal/repositories/firestore"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories/memory"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories/postgres"
	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

// backend pairs the repository registry with the idempotency store living in
// the same database.
type backend struct {
	registry    repositories.Registry
	idempotency idempotency.Store
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	var b backend
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		b = backend{registry: memory.NewStore(), idempotency: idempotency.NewMemoryStore()}
	case config.StoreDriverPostgres:
		store, err := postgres.Open(ctx, postgres.Config{
			URL:        cfg.Postgres.URL,
			MaxConns:   int32(cfg.Postgres.MaxConns),
			MinConns:   int32(cfg.Postgres.MinConns),
			TxAttempts: cfg.Postgres.TxAttempts,
		})
		if err != nil {
			return backend{}, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close(ctx)
				return backend{}, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("postgres schema applied")
		}
		b = backend{registry: store, idempotency: idempotency.NewPostgresStore(store.Pool())}
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return backend{}, err
		}
		registry, err := firestoreRepo.NewRegistry(provider, cfg.Firestore.TxAttempts)
		if err != nil {
			return backend{}, err
		}
		b = backend{registry: registry, idempotency: idempotency.NewFirestoreStore(provider)}
	default:
		return backend{}, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if path := strings.TrimSpace(cfg.Store.SeedFile); path != "" {
		if err := seedRegistry(ctx, b.registry, path); err != nil {
			b.registry.Close(ctx)
			return backend{}, err
		}
		logger.Info("seed fixture loaded", zap.String("path", path))
	}
	return b, nil
}

func seedRegistry(ctx context.Context, registry repositories.Registry, path string) error {
	seeder, ok := registry.(repositories.Seeder)
	if !ok {
		return errors.New("store does not support seeding")
	}
	data, err := loadSeed(ctx, path)
	if err != nil {
		return err
	}
	return seeder.Seed(ctx, data)
}

// loadSeed opens a Cloud Storage reader only when the fixture lives in a bucket.
func loadSeed(ctx context.Context, path string) (repositories.SeedData, error) {
	if !storage.IsObjectURI(path) {
		return repositories.LoadSeed(ctx, path, nil)
	}
	reader, err := storage.NewReader(ctx, nil)
	if err != nil {
		return repositories.SeedData{}, err
	}
	defer reader.Close()
	return repositories.LoadSeed(ctx, path, reader)
}

// eventPublisher carries the publisher together with whatever releases it.
// A nil OrderEventPublisher disables publishing; a nil ping means the sink
// has nothing to check.
type eventPublisher struct {
	services.OrderEventPublisher
	close func() error
	ping  func(context.Context) error
}

// healthChecks reports the sink as an optional readiness dependency.
func (p eventPublisher) healthChecks() []repositories.DependencyCheck {
	if p.ping == nil {
		return nil
	}
	return []repositories.DependencyCheck{{Name: "events", Timeout: 3 * time.Second, Optional: true, Check: p.ping}}
}

func (p eventPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

func newEventPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (eventPublisher, error) {
	switch cfg.Driver {
	case config.EventsDriverNone:
		return eventPublisher{}, nil
	case config.EventsDriverLog:
		pub := events.NewLogPublisher(logger)
		return eventPublisher{OrderEventPublisher: pub, close: pub.Close}, nil
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return eventPublisher{}, fmt.Errorf("pubsub client: %w", err)
		}
		pub, err := events.NewPubSubPublisher(client.Topic(cfg.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return eventPublisher{}, err
		}
		return eventPublisher{
			OrderEventPublisher: pub,
			close: func() error {
				_ = pub.Close()
				return client.Close()
			},
			ping: pub.Ping,
		}, nil
	case config.EventsDriverKafka:
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return eventPublisher{}, err
		}
		return eventPublisher{OrderEventPublisher: pub, close: pub.Close, ping: pub.Ping}, nil
	default:
		return eventPublisher{}, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

func newTokenVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	switch cfg.Provider {
	case config.AuthProviderJWT:
		var opts []auth.JWTOption
		if cfg.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
		}
		if cfg.JWTAudience != "" {
			opts = append(opts, auth.WithAudience(cfg.JWTAudience))
		}
		return auth.NewJWTVerifier(cfg.JWTSecret, opts...)
	case config.AuthProviderFirebase:
		return auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	default:
		return nil, fmt.Errorf("unsupported auth provider %q", cfg.Provider)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	project := lookupEnv(env, "API_SECRET_PROJECT_ID", "")
	if project == "" {
		project = lookupEnv(env, "API_FIRESTORE_PROJECT_ID", "")
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(lookupEnv(env, "API_SECRET_FALLBACK_FILE", ".secrets.local")),
	}
	if raw := lookupEnv(env, "API_SECRET_CACHE_TTL", ""); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("API_SECRET_CACHE_TTL: %w", err)
		}
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if credentials := lookupEnv(env, "API_SECRET_CREDENTIALS_FILE", ""); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve to a value
// for the selected drivers.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.EqualFold(lookupEnv(env, "API_AUTH_PROVIDER", config.AuthProviderJWT), config.AuthProviderJWT) {
		required = append(required, "Auth.JWTSecret")
	}
	if strings.EqualFold(lookupEnv(env, "API_STORE_DRIVER", ""), config.StoreDriverPostgres) {
		required = append(required, "Postgres.URL")
	}
	return required
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     lookupEnv(env, "API_BUILD_VERSION", "dev"),
		CommitSHA:   lookupEnv(env, "API_BUILD_COMMIT_SHA", "unknown"),
		Environment: environment,
		StartedAt:   started,
	}
}

func lookupEnv(env map[string]string, key, fallback string) string {
	if value := strings.TrimSpace(env[key]); value != "" {
		return value
	}
	return fallback
}
