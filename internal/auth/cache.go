package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache кеш результатов проверки токенов
type TokenCache interface {
	GetUser(ctx context.Context, token string) (*User, error)
	SetUser(ctx context.Context, token string, user *User) error
	DeleteUser(ctx context.Context, token string) error
}

// RedisClient подмножество команд Redis, нужное кешу
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache кеш токенов в Redis
type Cache struct {
	client RedisClient
	ttl    time.Duration
}

// NewCache создает кеш токенов поверх Redis
func NewCache(client RedisClient, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// GetUser возвращает пользователя по токену; nil без ошибки, если записи нет
func (c *Cache) GetUser(ctx context.Context, token string) (*User, error) {
	data, err := c.client.Get(ctx, tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from cache: %w", err)
	}

	user, err := UserFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize user: %w", err)
	}
	return user, nil
}

// SetUser сохраняет пользователя в кеш
func (c *Cache) SetUser(ctx context.Context, token string, user *User) error {
	data, err := user.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize user: %w", err)
	}
	if err := c.client.Set(ctx, tokenKey(token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user in cache: %w", err)
	}
	return nil
}

// DeleteUser удаляет токен из кеша
func (c *Cache) DeleteUser(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete user from cache: %w", err)
	}
	return nil
}

type memoryEntry struct {
	user    *User
	expires time.Time
}

// MemoryCache кеш токенов в памяти процесса, когда Redis не настроен
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache создает кеш токенов в памяти
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:   ttl,
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// GetUser возвращает пользователя, если запись не истекла
func (c *MemoryCache) GetUser(_ context.Context, token string) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := tokenKey(token)
	e, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expires) {
		delete(c.items, key)
		return nil, nil
	}
	return e.user, nil
}

// SetUser сохраняет пользователя
func (c *MemoryCache) SetUser(_ context.Context, token string, user *User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[tokenKey(token)] = memoryEntry{user: user, expires: c.now().Add(c.ttl)}
	return nil
}

// DeleteUser удаляет токен
func (c *MemoryCache) DeleteUser(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, tokenKey(token))
	return nil
}

// tokenKey ключ кеша по хешу токена
func tokenKey(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("auth:token:%x", hash[:16])
}
