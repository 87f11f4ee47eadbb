package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultEnvironment          = "local"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 30 * time.Second
	defaultShutdownTimeout      = 20 * time.Second
	defaultMutationRateLimit    = 120
	defaultReadinessCacheTTL    = 2 * time.Second
	defaultStoreDriver          = StoreDriverMemory
	defaultPostgresMaxConns     = 10
	defaultPostgresTxAttempts   = 3
	defaultFirestoreTxAttempts  = 5
	defaultEventsDriver         = EventsDriverLog
	defaultEventsTopic          = "order-events"
	defaultAuthProvider         = AuthProviderJWT
	defaultRoleClaim            = "role"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultServiceName          = "my-shop-api"
)

const (
	StoreDriverMemory    = "memory"
	StoreDriverPostgres  = "postgres"
	StoreDriverFirestore = "firestore"

	EventsDriverNone   = "none"
	EventsDriverLog    = "log"
	EventsDriverPubSub = "pubsub"
	EventsDriverKafka  = "kafka"

	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Postgres    PostgresConfig
	Firestore   FirestoreConfig
	Events      EventsConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// MutationRateLimit caps order writes per user per minute. Zero disables it.
	MutationRateLimit int
	// ReadinessCacheTTL lets /readyz reuse a recent dependency sweep. Zero disables it.
	ReadinessCacheTTL time.Duration
}

// StoreConfig selects the persistence backend. SeedFile, when set, is loaded at startup.
type StoreConfig struct {
	Driver   string
	SeedFile string
}

// PostgresConfig configures the pgx pool.
type PostgresConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	TxAttempts  int
	AutoMigrate bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
	TxAttempts   int
}

// EventsConfig selects where order lifecycle events are published.
type EventsConfig struct {
	Driver          string
	PubSubProjectID string
	PubSubTopic     string
	KafkaBrokers    []string
	KafkaTopic      string
}

// AuthConfig selects the bearer token verifier.
type AuthConfig struct {
	Provider                string
	JWTSecret               string
	JWTIssuer               string
	JWTAudience             string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	RoleClaim               string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// TelemetryConfig controls tracing export and the Prometheus endpoint.
type TelemetryConfig struct {
	ServiceName    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	MetricsEnabled bool
}

// ValidationError lists config fields and env keys whose values are missing
// or unusable.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid or missing [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending names in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load reads the configuration. Explicit values win over the process
// environment, which wins over the dotenv file. Secret references are
// resolved before validation.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: src.lower("API_ENVIRONMENT", defaultEnvironment),
		Server: ServerConfig{
			Port:              src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:       src.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:      src.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:       src.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:    src.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout:   src.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			MutationRateLimit: src.integer("API_SERVER_MUTATION_RATE_LIMIT", defaultMutationRateLimit),
			ReadinessCacheTTL: src.duration("API_SERVER_READINESS_CACHE_TTL", defaultReadinessCacheTTL),
		},
		Store: StoreConfig{
			Driver:   src.lower("API_STORE_DRIVER", defaultStoreDriver),
			SeedFile: src.str("API_STORE_SEED_FILE", ""),
		},
		Postgres: PostgresConfig{
			URL:         src.str("API_POSTGRES_URL", ""),
			MaxConns:    src.integer("API_POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
			MinConns:    src.integer("API_POSTGRES_MIN_CONNS", 0),
			TxAttempts:  src.integer("API_POSTGRES_TX_ATTEMPTS", defaultPostgresTxAttempts),
			AutoMigrate: src.flag("API_POSTGRES_AUTO_MIGRATE", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   src.str("API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   src.integer("API_FIRESTORE_TX_ATTEMPTS", defaultFirestoreTxAttempts),
		},
		Events: EventsConfig{
			Driver:          src.lower("API_EVENTS_DRIVER", defaultEventsDriver),
			PubSubProjectID: src.str("API_EVENTS_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     src.str("API_EVENTS_PUBSUB_TOPIC", defaultEventsTopic),
			KafkaBrokers:    src.list("API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:      src.str("API_EVENTS_KAFKA_TOPIC", defaultEventsTopic),
		},
		Auth: AuthConfig{
			Provider:                src.lower("API_AUTH_PROVIDER", defaultAuthProvider),
			JWTSecret:               src.str("API_AUTH_JWT_SECRET", ""),
			JWTIssuer:               src.str("API_AUTH_JWT_ISSUER", ""),
			JWTAudience:             src.str("API_AUTH_JWT_AUDIENCE", ""),
			FirebaseProjectID:       src.str("API_AUTH_FIREBASE_PROJECT_ID", ""),
			FirebaseCredentialsFile: src.str("API_AUTH_FIREBASE_CREDENTIALS_FILE", ""),
			RoleClaim:               src.str("API_AUTH_ROLE_CLAIM", defaultRoleClaim),
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    src.str("API_TELEMETRY_SERVICE_NAME", defaultServiceName),
			OTLPEndpoint:   src.str("API_TELEMETRY_OTLP_ENDPOINT", ""),
			OTLPInsecure:   src.flag("API_TELEMETRY_OTLP_INSECURE", false),
			MetricsEnabled: src.flag("API_TELEMETRY_METRICS_ENABLED", true),
		},
	}
	if len(src.invalid) > 0 {
		return Config{}, &ValidationError{fields: src.invalid}
	}

	// Pub/Sub and Firebase default to the Firestore project.
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Auth.FirebaseProjectID == "" {
		cfg.Auth.FirebaseProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecrets(ctx, &cfg, options.secret)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintln(os.Stderr, missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.RequestTimeout > 0, "Server.RequestTimeout")
	check(cfg.Server.MutationRateLimit >= 0, "Server.MutationRateLimit")
	check(cfg.Server.ReadinessCacheTTL >= 0, "Server.ReadinessCacheTTL")

	switch cfg.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		check(cfg.Postgres.URL != "", "Postgres.URL")
		check(cfg.Postgres.MaxConns > 0, "Postgres.MaxConns")
		check(cfg.Postgres.MinConns >= 0 && cfg.Postgres.MinConns <= cfg.Postgres.MaxConns, "Postgres.MinConns")
	case StoreDriverFirestore:
		check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	default:
		invalid = append(invalid, "Store.Driver")
	}

	switch cfg.Events.Driver {
	case EventsDriverNone, EventsDriverLog:
	case EventsDriverPubSub:
		check(cfg.Events.PubSubProjectID != "", "Events.PubSubProjectID")
		check(cfg.Events.PubSubTopic != "", "Events.PubSubTopic")
	case EventsDriverKafka:
		check(len(cfg.Events.KafkaBrokers) > 0, "Events.KafkaBrokers")
		check(cfg.Events.KafkaTopic != "", "Events.KafkaTopic")
	default:
		invalid = append(invalid, "Events.Driver")
	}

	switch cfg.Auth.Provider {
	case AuthProviderJWT:
		check(strings.TrimSpace(cfg.Auth.JWTSecret) != "", "Auth.JWTSecret")
	case AuthProviderFirebase:
		check(cfg.Auth.FirebaseProjectID != "", "Auth.FirebaseProjectID")
	default:
		invalid = append(invalid, "Auth.Provider")
	}
	check(cfg.Auth.RoleClaim != "", "Auth.RoleClaim")

	check(cfg.Idempotency.Header != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
