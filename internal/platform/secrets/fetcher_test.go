package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const dsnResource = "projects/test/secrets/orders-db-dsn/versions/latest"

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}
	return path
}

func newTestFetcher(t *testing.T, client *fakeSecretClient, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithSecretManagerClient(client), WithDefaultProject("test"), WithLogger(zap.NewNop()), WithMeter(noop.NewMeterProvider().Meter("test"))}, opts...)
	fetcher, err := NewFetcher(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	client := newFakeSecretClient()
	client.values[dsnResource] = "postgres://orders"
	fetcher := newTestFetcher(t, client)

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(context.Background(), "secret://orders-db-dsn")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "postgres://orders" {
			t.Fatalf("expected remote value, got %s", got)
		}
	}
	if calls := client.callCount(dsnResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/prod-secrets/secrets/orders-db-dsn/versions/7"
	client.values[resource] = "v7"
	fetcher := newTestFetcher(t, client)

	got, err := fetcher.Resolve(context.Background(), "sm://orders-db-dsn?version=7&project=prod-secrets")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "v7" {
		t.Fatalf("expected v7, got %s", got)
	}
}

func TestResolveUsesEnvironmentProjectMap(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/stg-project/secrets/orders-db-dsn/versions/latest"
	client.values[resource] = "staging"
	fetcher := newTestFetcher(t, client,
		WithEnvironment("STG"),
		WithProjectMap(map[string]string{"stg": "stg-project"}),
	)

	got, err := fetcher.Resolve(context.Background(), "secret://orders-db-dsn")
	if err != nil || got != "staging" {
		t.Fatalf("expected staging value, got %q %v", got, err)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	client := newFakeSecretClient()
	client.errors[dsnResource] = status.Error(codes.PermissionDenied, "denied")
	fetcher := newTestFetcher(t, client, WithFallbackFile(writeFallback(t, "# local\nsecret://orders-db-dsn=postgres://local\n")))

	got, err := fetcher.Resolve(context.Background(), "secret://orders-db-dsn")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://local" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	client := newFakeSecretClient()
	client.errors[dsnResource] = status.Error(codes.NotFound, "missing")
	fetcher := newTestFetcher(t, client, WithFallbackFile(writeFallback(t, "secret://orders-db-dsn=postgres://local\n")))

	if _, err := fetcher.Resolve(context.Background(), "secret://orders-db-dsn"); err == nil {
		t.Fatal("expected error when secret is missing remotely")
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	client := newFakeSecretClient()
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithFallbackFile(writeFallback(t, "sm://orders-db-dsn=postgres://fallback\n")),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := fetcher.Resolve(context.Background(), "secret://orders-db-dsn")
	if err != nil || got != "postgres://fallback" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
	if calls := client.callCount(dsnResource); calls != 0 {
		t.Fatalf("expected no remote calls without a project, got %d", calls)
	}
}

func TestParseReferenceRejectsGarbage(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
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

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
