// Package secrets resolves secret:// references against Google Secret Manager,
// falling back to a local dotenv-style file for development.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "github.com/hoangphuc3604/my-shop-backend/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references. Values are cached per name and version
// for the configured TTL.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	logger     *zap.Logger
	project    string
	ttl        time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cached

	latency metric.Float64Histogram
	hits    metric.Int64Counter
}

type cached struct {
	value     string
	expiresAt time.Time
}

type settings struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises a Fetcher.
type Option func(*settings)

func WithLogger(logger *zap.Logger) Option { return func(s *settings) { s.logger = logger } }

// WithProject sets the Secret Manager project. Without one only the fallback file is consulted.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero disables expiry.
func WithCacheTTL(ttl time.Duration) Option { return func(s *settings) { s.ttl = ttl } }

func WithMeter(m metric.Meter) Option { return func(s *settings) { s.meter = m } }

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func withClient(client accessClient) Option { return func(s *settings) { s.client = client } }

func withClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created
// (no credentials, say) leaves the fetcher in fallback-only mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter(meterName)
	}

	latency, err := s.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register latency histogram: %w", err)
	}
	hits, err := s.meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register cache counter: %w", err)
	}

	f := &Fetcher{
		client:       s.client,
		logger:       s.logger,
		project:      s.project,
		ttl:          s.ttl,
		now:          s.now,
		fallbackPath: s.fallbackPath,
		cache:        make(map[string]cached),
		latency:      latency,
		hits:         hits,
	}
	if f.client == nil && f.project != "" {
		client, err := newSecretManagerClient(ctx, s.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref, e.g. secret://auth-jwt?version=3.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	r, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(r.key()); ok {
		f.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", digest(r.name))))
		f.observe(ctx, start, "cache")
		return value, nil
	}

	project := r.project
	if project == "" {
		project = f.project
	}
	if project != "" && f.client != nil {
		value, err := f.access(ctx, project, r)
		switch {
		case err == nil:
			f.store(r.key(), value)
			f.observe(ctx, start, "remote")
			return value, nil
		case !canFallBack(err):
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", r.name, err)
		}
		f.logger.Debug("secrets: remote lookup failed, trying fallback", zap.String("secret", r.name), zap.Error(err))
	}

	value, ok := f.lookupFallback(r)
	if !ok {
		f.observe(ctx, start, "error")
		return "", fmt.Errorf("secrets: %s not found in %s", r.name, f.fallbackPath)
	}
	f.store(r.key(), value)
	f.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	r, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, r.name+"#") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) access(ctx context.Context, project string, r reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.name, r.version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if !entry.expiresAt.IsZero() && !f.now().Before(entry.expiresAt) {
		delete(f.cache, key)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	var expires time.Time
	if f.ttl > 0 {
		expires = f.now().Add(f.ttl)
	}
	f.mu.Lock()
	f.cache[key] = cached{value: value, expiresAt: expires}
	f.mu.Unlock()
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) lookupFallback(r reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if value, ok := f.fallback[r.key()]; ok {
		return value, true
	}
	value, ok := f.fallback[r.name]
	return value, ok
}

// loadFallback reads NAME=value lines. Names may be bare or secret:// references.
func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("secrets: open fallback file", zap.String("path", f.fallbackPath), zap.Error(err))
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if r, err := parseReference(name); err == nil {
			f.fallback[r.key()] = value
			if r.version == "latest" {
				f.fallback[r.name] = value
			}
			continue
		}
		f.fallback[name] = value
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("secrets: read fallback file", zap.String("path", f.fallbackPath), zap.Error(err))
	}
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) key() string { return r.name + "#" + r.version }

// parseReference accepts secret://name and the legacy sm://name form, with
// optional version and project query parameters.
func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported reference %q", raw)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{name: name, version: version, project: strings.TrimSpace(query.Get("project"))}, nil
}

func digest(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// canFallBack reports whether a Secret Manager error means "unreachable"
// rather than "does not exist".
func canFallBack(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
