package secrets

import (
	"context"
	gosync "sync"

	"github.com/smarteros/backend/internal/domain/sync"
)

// LeaseCache memoizes credential leases in process memory for as long as
// their TTL allows. Leases never leave the process and expired entries
// are re-resolved, so rotation in the secret store takes effect within
// one TTL.
type LeaseCache struct {
	inner sync.SecretStore

	mu     gosync.RWMutex
	leases map[string]*sync.CredentialLease
}

// NewLeaseCache wraps a secret store with lease memoization
func NewLeaseCache(inner sync.SecretStore) *LeaseCache {
	return &LeaseCache{
		inner:  inner,
		leases: make(map[string]*sync.CredentialLease),
	}
}

// Resolve returns a cached unexpired lease or fetches a fresh one
func (c *LeaseCache) Resolve(ctx context.Context, tenantCode, service string) (*sync.CredentialLease, error) {
	key := tenantCode + "/" + service

	c.mu.RLock()
	lease, ok := c.leases[key]
	c.mu.RUnlock()
	if ok && !lease.Expired() {
		return lease, nil
	}

	fresh, err := c.inner.Resolve(ctx, tenantCode, service)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.leases[key] = fresh
	c.mu.Unlock()
	return fresh, nil
}

// Invalidate drops the cached lease for (tenant, service)
func (c *LeaseCache) Invalidate(tenantCode, service string) {
	c.mu.Lock()
	delete(c.leases, tenantCode+"/"+service)
	c.mu.Unlock()
}
