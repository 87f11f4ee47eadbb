// Command migrate applies the embedded PostgreSQL schema and optionally loads
// a seed fixture.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/config"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/observability"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/secrets"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/storage"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
	"github.com/hoangphuc3604/my-shop-backend/internal/repositories/postgres"
)

func main() {
	seedPath := flag.String("seed", "", "JSON fixture path or gs:// URI to load after migrating (defaults to API_STORE_SEED_FILE)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	logger, err := observability.NewLogger("my-shop-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, *seedPath); err != nil {
		logger.Error("migration failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, seedPath string) error {
	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	url, err := resolveDatabaseURL(ctx, logger, env)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, postgres.Config{URL: url, MaxConns: 2})
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied")

	if seedPath == "" {
		seedPath = strings.TrimSpace(env["API_STORE_SEED_FILE"])
	}
	if seedPath == "" {
		return nil
	}
	var remote repositories.ObjectReader
	if storage.IsObjectURI(seedPath) {
		reader, err := storage.NewReader(ctx, nil)
		if err != nil {
			return err
		}
		defer reader.Close()
		remote = reader
	}
	data, err := repositories.LoadSeed(ctx, seedPath, remote)
	if err != nil {
		return err
	}
	if err := store.Seed(ctx, data); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seed fixture loaded",
		zap.String("path", seedPath),
		zap.Int("products", len(data.Products)),
		zap.Int("promotions", len(data.Promotions)),
	)
	return nil
}

// resolveDatabaseURL reads API_POSTGRES_URL, following secret:// references.
func resolveDatabaseURL(ctx context.Context, logger *zap.Logger, env map[string]string) (string, error) {
	raw := strings.TrimSpace(env["API_POSTGRES_URL"])
	if raw == "" {
		return "", errors.New("API_POSTGRES_URL is required")
	}
	if !strings.HasPrefix(raw, "secret://") && !strings.HasPrefix(raw, "sm://") {
		return raw, nil
	}

	project := strings.TrimSpace(env["API_SECRET_PROJECT_ID"])
	fallback := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"])
	if fallback == "" {
		fallback = ".secrets.local"
	}
	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallback),
	)
	if err != nil {
		return "", err
	}
	defer fetcher.Close()
	return fetcher.Resolve(ctx, raw)
}
