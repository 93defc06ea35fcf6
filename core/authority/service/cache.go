package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/data/cache"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved authority sets. Entries are dropped explicitly on
// every role or membership write; the TTL only bounds memory.
type Cache interface {
	Get(ctx context.Context, userID string, scope structs.Scope) (structs.Set, bool, error)
	Set(ctx context.Context, userID string, scope structs.Scope, set structs.Set) error
	GetAdminRole(ctx context.Context, workspaceID string) (string, bool, error)
	SetAdminRole(ctx context.Context, workspaceID, roleID string) error
	InvalidateUser(ctx context.Context, workspaceID, userID string) error
	InvalidateWorkspace(ctx context.Context, workspaceID string) error
}

const (
	authorityCacheKey = "authority"
	adminRoleCacheKey = "authority-admin"
	indexCacheKey     = "authority-index"
)

// RedisCache keeps one hash per (workspace, user) with a field per scope,
// and a set per workspace indexing the cached users.
type RedisCache struct {
	sets   *cache.Cache[structs.Set]
	admins *cache.Cache[string]
	rc     *redis.Client
	ttl    time.Duration
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		sets:   cache.NewCache[structs.Set](rc, authorityCacheKey),
		admins: cache.NewCache[string](rc, adminRoleCacheKey),
		rc:     rc,
		ttl:    ttl,
	}
}

func userKey(workspaceID, userID string) string {
	return workspaceID + ":" + userID
}

func indexKey(workspaceID string) string {
	return indexCacheKey + ":" + workspaceID
}

func (c *RedisCache) Get(ctx context.Context, userID string, scope structs.Scope) (structs.Set, bool, error) {
	set, err := c.sets.GetField(ctx, userKey(scope.WorkspaceID, userID), scope.CacheField())
	if err != nil || set == nil {
		return nil, false, err
	}
	return *set, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, scope structs.Scope, set structs.Set) error {
	if err := c.sets.SetField(ctx, userKey(scope.WorkspaceID, userID), scope.CacheField(), &set, c.ttl); err != nil {
		return err
	}
	pipe := c.rc.TxPipeline()
	pipe.SAdd(ctx, indexKey(scope.WorkspaceID), userID)
	if c.ttl > 0 {
		pipe.Expire(ctx, indexKey(scope.WorkspaceID), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) GetAdminRole(ctx context.Context, workspaceID string) (string, bool, error) {
	id, err := c.admins.Get(ctx, workspaceID)
	if err != nil || id == nil {
		return "", false, err
	}
	return *id, true, nil
}

func (c *RedisCache) SetAdminRole(ctx context.Context, workspaceID, roleID string) error {
	return c.admins.Set(ctx, workspaceID, &roleID)
}

func (c *RedisCache) InvalidateUser(ctx context.Context, workspaceID, userID string) error {
	if err := c.sets.Delete(ctx, userKey(workspaceID, userID)); err != nil {
		return err
	}
	return c.rc.SRem(ctx, indexKey(workspaceID), userID).Err()
}

func (c *RedisCache) InvalidateWorkspace(ctx context.Context, workspaceID string) error {
	users, err := c.rc.SMembers(ctx, indexKey(workspaceID)).Result()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, userKey(workspaceID, u))
	}
	if err := c.sets.Delete(ctx, names...); err != nil {
		return err
	}
	if err := c.admins.Delete(ctx, workspaceID); err != nil {
		return err
	}
	return c.rc.Del(ctx, indexKey(workspaceID)).Err()
}

type memoryEntry struct {
	set     structs.Set
	expires time.Time
}

// MemoryCache is an in-process Cache for single-node deployments and tests.
type MemoryCache struct {
	mu     sync.RWMutex
	ttl    time.Duration
	sets   map[string]map[string]memoryEntry
	admins map[string]string
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:    ttl,
		sets:   make(map[string]map[string]memoryEntry),
		admins: make(map[string]string),
	}
}

func (c *MemoryCache) Get(_ context.Context, userID string, scope structs.Scope) (structs.Set, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.sets[userKey(scope.WorkspaceID, userID)][scope.CacheField()]
	if !ok || (c.ttl > 0 && time.Now().After(entry.expires)) {
		return nil, false, nil
	}
	return entry.set, true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID string, scope structs.Scope, set structs.Set) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := userKey(scope.WorkspaceID, userID)
	if c.sets[key] == nil {
		c.sets[key] = make(map[string]memoryEntry)
	}
	c.sets[key][scope.CacheField()] = memoryEntry{set: set, expires: time.Now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) GetAdminRole(_ context.Context, workspaceID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.admins[workspaceID]
	return id, ok, nil
}

func (c *MemoryCache) SetAdminRole(_ context.Context, workspaceID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admins[workspaceID] = roleID
	return nil
}

func (c *MemoryCache) InvalidateUser(_ context.Context, workspaceID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, userKey(workspaceID, userID))
	return nil
}

func (c *MemoryCache) InvalidateWorkspace(_ context.Context, workspaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := workspaceID + ":"
	for key := range c.sets {
		if strings.HasPrefix(key, prefix) {
			delete(c.sets, key)
		}
	}
	delete(c.admins, workspaceID)
	return nil
}
