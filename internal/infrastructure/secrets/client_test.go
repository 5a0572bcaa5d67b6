package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/shared"
	domainsync "github.com/smarteros/backend/internal/domain/sync"
)

func TestClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secrets/76543210-9/webhook", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"credentials":{"signing_secret":"shhh"},"ttl_seconds":300}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "tok"}, zap.NewNop())
	lease, err := client.Resolve(context.Background(), "76543210-9", "webhook")
	require.NoError(t, err)

	assert.Equal(t, "shhh", lease.Get("signing_secret"))
	assert.Equal(t, 5*time.Minute, lease.TTL)
	assert.False(t, lease.Expired())
}

func TestClient_Resolve_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "tok"}, zap.NewNop())
	_, err := client.Resolve(context.Background(), "t1", "webhook")
	assert.ErrorIs(t, err, shared.ErrSecretUnavailable)
}

type countingStore struct {
	calls atomic.Int64
	ttl   time.Duration
}

func (s *countingStore) Resolve(ctx context.Context, tenantCode, service string) (*domainsync.CredentialLease, error) {
	s.calls.Add(1)
	return &domainsync.CredentialLease{
		Credentials: map[string]string{"signing_secret": "shhh"},
		TTL:         s.ttl,
		IssuedAt:    time.Now(),
	}, nil
}

func TestLeaseCache_ReusesUnexpiredLease(t *testing.T) {
	store := &countingStore{ttl: time.Minute}
	cache := NewLeaseCache(store)

	for i := 0; i < 3; i++ {
		lease, err := cache.Resolve(context.Background(), "t1", "webhook")
		require.NoError(t, err)
		assert.Equal(t, "shhh", lease.Get("signing_secret"))
	}
	assert.Equal(t, int64(1), store.calls.Load())

	// a different service is a different lease
	_, err := cache.Resolve(context.Background(), "t1", "erp")
	require.NoError(t, err)
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestLeaseCache_RefetchesExpiredLease(t *testing.T) {
	store := &countingStore{ttl: time.Nanosecond}
	cache := NewLeaseCache(store)

	_, err := cache.Resolve(context.Background(), "t1", "webhook")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = cache.Resolve(context.Background(), "t1", "webhook")
	require.NoError(t, err)

	assert.Equal(t, int64(2), store.calls.Load())
}
