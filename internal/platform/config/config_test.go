package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func loadMap(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{"API_AUTH_JWT_SECRET": "dev-secret"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "8080" || cfg.Server.ReadTimeout != 15*time.Second || cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Errorf("expected memory store, got %s", cfg.Store.Driver)
	}
	if cfg.Postgres.MaxConns != 10 || cfg.Postgres.TxAttempts != 3 || cfg.Postgres.AutoMigrate {
		t.Errorf("unexpected postgres defaults: %+v", cfg.Postgres)
	}
	if cfg.Events.Driver != EventsDriverLog || cfg.Events.PubSubTopic != "order-events" || len(cfg.Events.KafkaBrokers) != 0 {
		t.Errorf("unexpected events defaults: %+v", cfg.Events)
	}
	if cfg.Auth.Provider != AuthProviderJWT || cfg.Auth.RoleClaim != "role" {
		t.Errorf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval || cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected cleanup defaults: %+v", cfg.Idempotency)
	}
	if cfg.Telemetry.ServiceName != "my-shop-api" || !cfg.Telemetry.MetricsEnabled {
		t.Errorf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                  "PROD",
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_REQUEST_TIMEOUT":       "5s",
		"API_STORE_DRIVER":                 "Postgres",
		"API_STORE_SEED_FILE":              "seed.json",
		"API_POSTGRES_URL":                 "sm://db/url",
		"API_POSTGRES_MAX_CONNS":           "32",
		"API_POSTGRES_MIN_CONNS":           "4",
		"API_POSTGRES_AUTO_MIGRATE":        "yes",
		"API_FIRESTORE_PROJECT_ID":         "shop-prod",
		"API_EVENTS_DRIVER":                "kafka",
		"API_EVENTS_KAFKA_BROKERS":         "kafka-1:9092, kafka-2:9092",
		"API_EVENTS_KAFKA_TOPIC":           "orders",
		"API_AUTH_PROVIDER":                "firebase",
		"API_AUTH_ROLE_CLAIM":              "shop_role",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
		"API_TELEMETRY_OTLP_ENDPOINT":      "otel:4318",
		"API_TELEMETRY_METRICS_ENABLED":    "off",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://db/url" {
			return "postgres://shop:pw@db/shop", nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := loadMap(t, env, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" || cfg.Server.Port != "9090" || cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("unexpected overrides: env=%s server=%+v", cfg.Environment, cfg.Server)
	}
	if cfg.Store.Driver != StoreDriverPostgres || cfg.Store.SeedFile != "seed.json" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Postgres.URL != "postgres://shop:pw@db/shop" {
		t.Errorf("expected resolved postgres url, got %s", cfg.Postgres.URL)
	}
	if cfg.Postgres.MaxConns != 32 || cfg.Postgres.MinConns != 4 || !cfg.Postgres.AutoMigrate {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if !slices.Equal(cfg.Events.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) || cfg.Events.KafkaTopic != "orders" {
		t.Errorf("unexpected kafka config: %+v", cfg.Events)
	}
	if cfg.Events.PubSubProjectID != "shop-prod" || cfg.Auth.FirebaseProjectID != "shop-prod" {
		t.Errorf("expected project ids to default to firestore project: %+v %+v", cfg.Events, cfg.Auth)
	}
	if cfg.Auth.RoleClaim != "shop_role" {
		t.Errorf("unexpected role claim %s", cfg.Auth.RoleClaim)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour || cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
	if cfg.Telemetry.OTLPEndpoint != "otel:4318" || cfg.Telemetry.MetricsEnabled {
		t.Errorf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "export API_AUTH_JWT_SECRET='from-dotenv'\nAPI_SERVER_PORT=7070\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("expected secret from dotenv, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("explicit map must win over dotenv, got %s", cfg.Server.Port)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{
			name: "jwt secret",
			env:  map[string]string{},
			want: []string{"Auth.JWTSecret"},
		},
		{
			name: "postgres url",
			env:  map[string]string{"API_AUTH_JWT_SECRET": "s", "API_STORE_DRIVER": "postgres"},
			want: []string{"Postgres.URL"},
		},
		{
			name: "unknown drivers",
			env:  map[string]string{"API_AUTH_JWT_SECRET": "s", "API_STORE_DRIVER": "mysql", "API_EVENTS_DRIVER": "sqs"},
			want: []string{"Store.Driver", "Events.Driver"},
		},
		{
			name: "kafka without brokers",
			env:  map[string]string{"API_AUTH_JWT_SECRET": "s", "API_EVENTS_DRIVER": "kafka"},
			want: []string{"Events.KafkaBrokers"},
		},
		{
			name: "pubsub without project",
			env:  map[string]string{"API_AUTH_JWT_SECRET": "s", "API_EVENTS_DRIVER": "pubsub"},
			want: []string{"Events.PubSubProjectID"},
		},
		{
			name: "firestore without project",
			env:  map[string]string{"API_AUTH_JWT_SECRET": "s", "API_STORE_DRIVER": "firestore"},
			want: []string{"Firestore.ProjectID"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadMap(t, tc.env)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !slices.Equal(verr.Fields(), tc.want) {
				t.Fatalf("expected fields %v, got %v", tc.want, verr.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{"API_AUTH_JWT_SECRET": "secret://auth/jwt"}

	_, err := loadMap(t, env)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError without resolver, got %v", err)
	}
	if secretErr.Ref != "secret://auth/jwt" || !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("unexpected secret error %+v", secretErr)
	}

	boom := errors.New("boom")
	_, err = loadMap(t, env, WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", boom
	})))
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("A=dotenv\nB=dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"B": "map"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["A"] != "dotenv" || values["B"] != "map" {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_AUTH_JWT_SECRET": "s"}

	_, err := loadMap(t, env, WithRequiredSecrets("Postgres.URL", "Auth.JWTSecret"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Postgres.URL" {
		t.Fatalf("unexpected missing names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Postgres.URL" {
		t.Fatalf("expected redacted name, got %v", redacted)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_, _ = loadMap(t, map[string]string{"API_AUTH_JWT_SECRET": "s"}, WithRequiredSecrets("Postgres.URL"), WithPanicOnMissingSecrets())
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	var seen string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = ref
		return "resolved", nil
	})
	cfg, err := loadMap(t, map[string]string{"API_AUTH_JWT_SECRET": "sm://auth/jwt"}, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if seen != "secret://auth/jwt" || cfg.Auth.JWTSecret != "resolved" {
		t.Fatalf("expected normalized ref, got %q and %q", seen, cfg.Auth.JWTSecret)
	}
}

func TestLoadRejectsUnparseableValues(t *testing.T) {
	env := map[string]string{
		"API_AUTH_JWT_SECRET":           "s",
		"API_SERVER_READ_TIMEOUT":       "fifteen",
		"API_POSTGRES_MAX_CONNS":        "ten",
		"API_TELEMETRY_METRICS_ENABLED": "maybe",
	}
	_, err := loadMap(t, env)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"API_SERVER_READ_TIMEOUT", "API_POSTGRES_MAX_CONNS", "API_TELEMETRY_METRICS_ENABLED"}
	if !slices.Equal(verr.Fields(), want) {
		t.Fatalf("expected %v, got %v", want, verr.Fields())
	}
}

func TestLoadIgnoresBlankValues(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{"API_AUTH_JWT_SECRET": "s", "API_SERVER_READ_TIMEOUT": "  ", "API_SERVER_PORT": ""})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout || cfg.Server.Port != defaultPort {
		t.Fatalf("blank values should fall back to defaults: %+v", cfg.Server)
	}
}

func TestMissingSecretsErrorRedactsNames(t *testing.T) {
	err := missingSecrets([]string{"Auth.JWTSecret", " Auth.JWTSecret ", ""}, map[string]string{})
	if err == nil || len(err.Names()) != 1 {
		t.Fatalf("expected one deduplicated name, got %v", err)
	}
	if strings.Contains(err.Error(), "Auth.JWTSecret") {
		t.Fatalf("error message leaks the field name: %s", err.Error())
	}
}
