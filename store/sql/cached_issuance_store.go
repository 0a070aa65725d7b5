package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/tavenor/credstate/core"
)

const issuanceProcessCacheKeyPrefix = "credstate::issuance_process::v1"

// CachedIssuanceProcessStore adds a read-through cache to FindByID. Save and
// the lease-taking operations pass straight through; Save also invalidates
// the cached entry so watchers never observe a stale state after a
// transition. FindByIDAndLease is deliberately uncached because its result
// must reflect the row the lease was taken on.
type CachedIssuanceProcessStore struct {
	base  core.IssuanceProcessStore
	cache repositorycache.CacheService
}

func NewCachedIssuanceProcessStore(
	base core.IssuanceProcessStore,
	cacheService repositorycache.CacheService,
) (*CachedIssuanceProcessStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base issuance process store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: issuance process cache service is required")
	}
	return &CachedIssuanceProcessStore{base: base, cache: cacheService}, nil
}

// IssuanceProcessCacheKey returns the deterministic cache key for point
// lookups: credstate::issuance_process::v1::<id> with the id URL-path
// escaped.
func IssuanceProcessCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: issuance process id is required")
	}
	return issuanceProcessCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedIssuanceProcessStore) Save(ctx context.Context, process *core.IssuanceProcess) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached issuance process store is not configured")
	}
	if process == nil {
		return fmt.Errorf("sqlstore: issuance process is required")
	}
	if err := s.base.Save(ctx, process); err != nil {
		return err
	}
	cacheKey, err := IssuanceProcessCacheKey(process.ID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedIssuanceProcessStore) FindByID(ctx context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached issuance process store is not configured")
	}
	cacheKey, err := IssuanceProcessCacheKey(id)
	if err != nil {
		return nil, err
	}
	process, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (*core.IssuanceProcess, error) {
		return s.base.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return process.Copy(), nil
}

func (s *CachedIssuanceProcessStore) FindByIDAndLease(ctx context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached issuance process store is not configured")
	}
	return s.base.FindByIDAndLease(ctx, id)
}

func (s *CachedIssuanceProcessStore) NextNotLeased(ctx context.Context, max int, criteria ...core.Criterion) ([]*core.IssuanceProcess, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached issuance process store is not configured")
	}
	return s.base.NextNotLeased(ctx, max, criteria...)
}

func (s *CachedIssuanceProcessStore) Query(ctx context.Context, spec core.QuerySpec) ([]*core.IssuanceProcess, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached issuance process store is not configured")
	}
	return s.base.Query(ctx, spec)
}
