package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const jwtResource = "projects/test/secrets/auth-jwt/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[jwtResource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://auth-jwt")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %q", got)
		}
	}
	if calls := client.callCount(jwtResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[jwtResource] = "v1"

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"),
		WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://auth-jwt"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	client.set(jwtResource, "v2")
	now = now.Add(2 * time.Minute)

	got, err := fetcher.Resolve(ctx, "secret://auth-jwt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected refreshed value v2, got %q", got)
	}
}

func TestInvalidateDropsCachedValue(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[jwtResource] = "v1"

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"), WithCacheTTL(0))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://auth-jwt"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	client.set(jwtResource, "v2")
	fetcher.Invalidate("sm://auth-jwt")

	got, _ := fetcher.Resolve(ctx, "secret://auth-jwt")
	if got != "v2" {
		t.Fatalf("expected v2 after invalidate, got %q", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[jwtResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"),
		WithFallbackFile(writeFallback(t, "# local\nsecret://auth-jwt=local-secret\n")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://auth-jwt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected local-secret, got %q", got)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[jwtResource] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"),
		WithFallbackFile(writeFallback(t, "secret://auth-jwt=local-secret\n")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://auth-jwt"); err == nil {
		t.Fatal("expected error for missing remote secret")
	}
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	pinned := "projects/other/secrets/auth-jwt/versions/5"
	client.values[pinned] = "version-5"

	fetcher, err := NewFetcher(ctx, withClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://auth-jwt?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "version-5" || client.callCount(pinned) != 1 {
		t.Fatalf("expected pinned fetch, got %q (%d calls)", got, client.callCount(pinned))
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fetcher, err := NewFetcher(ctx, WithProject("test"),
		WithFallbackFile(writeFallback(t, "auth-jwt = local-secret\n")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.ResolveSecret(ctx, "sm://auth-jwt")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected local-secret, got %q", got)
	}
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	for _, ref := range []string{"", "https://x", "secret://", "secret:///"} {
		if _, err := parseReference(ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
