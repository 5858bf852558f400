package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-shop-auth/internal/models"
)

// IdentityCache — минимальный контракт кэша санитизированных пользователей.
// Снимает нагрузку с хранилища на каждом запросе через AuthGate.
type IdentityCache interface {
	// Get возвращает пользователя и признак его наличия в кэше.
	Get(ctx context.Context, id uuid.UUID) (*models.PublicUser, bool, error)
	// Set сохраняет пользователя с TTL.
	Set(ctx context.Context, u models.PublicUser, ttl time.Duration) error
	// Delete удаляет запись (например, при удалении пользователя).
	Delete(ctx context.Context, id uuid.UUID) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:id:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (IdentityCache, error) {
	const op = "cache.NewRedisCache"

	if prefix == "" {
		prefix = "auth:id:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(id uuid.UUID) string { return c.prefix + id.String() }

// Храним как Redis Hash с полями: name, email, role, av_url, av_id, created (unix nano).
func (c *redisCache) Get(ctx context.Context, id uuid.UUID) (*models.PublicUser, bool, error) {
	m, err := c.rdb.HGetAll(ctx, c.key(id)).Result()
	if err != nil {
		return nil, false, err
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	created, err := strconv.ParseInt(m["created"], 10, 64)
	if err != nil {
		return nil, false, err
	}

	u := &models.PublicUser{
		ID:        id,
		Name:      m["name"],
		Email:     m["email"],
		Role:      models.Role(m["role"]),
		CreatedAt: time.Unix(0, created).UTC(),
	}

	// Запись с неизвестной ролью считаем промахом.
	if !u.Role.Valid() {
		return nil, false, nil
	}

	if url := m["av_url"]; url != "" {
		u.Avatar = &models.Avatar{URL: url, PublicID: m["av_id"]}
	}

	return u, true, nil
}

func (c *redisCache) Set(ctx context.Context, u models.PublicUser, ttl time.Duration) error {
	kv := map[string]string{
		"name":    u.Name,
		"email":   u.Email,
		"role":    string(u.Role),
		"created": strconv.FormatInt(u.CreatedAt.UnixNano(), 10),
		"av_url":  "",
		"av_id":   "",
	}

	if u.Avatar != nil {
		kv["av_url"] = u.Avatar.URL
		kv["av_id"] = u.Avatar.PublicID
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(u.ID), kv)
	pipe.Expire(ctx, c.key(u.ID), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) Delete(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, c.key(id)).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }
