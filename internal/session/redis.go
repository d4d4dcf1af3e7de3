package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:"

func sessionKey(id string) string { return keyPrefix + "session:" + id }
func cartKey(id string) string    { return keyPrefix + "cart:" + id }

// RedisStore keeps session state and carts as JSON documents that expire
// after ttl of inactivity.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, id string) (State, error) {
	var st State
	if err := s.getJSON(ctx, sessionKey(id), &st); err != nil {
		return State{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st State) error {
	if err := s.setJSON(ctx, sessionKey(id), st); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Cart(id string) Cart {
	return &redisCart{store: s, id: id}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// getJSON leaves v untouched when key does not exist.
func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, data, s.ttl).Err()
}

type redisCart struct {
	store *RedisStore
	id    string
}

func (c *redisCart) Items(ctx context.Context) ([]models.CartLineItem, error) {
	items := []models.CartLineItem{}
	if err := c.store.getJSON(ctx, cartKey(c.id), &items); err != nil {
		return nil, fmt.Errorf("load cart %s: %w", c.id, err)
	}
	return items, nil
}

func (c *redisCart) AddItem(ctx context.Context, item models.CartLineItem) error {
	items, err := c.Items(ctx)
	if err != nil {
		return err
	}
	if err := c.store.setJSON(ctx, cartKey(c.id), mergeItem(items, item)); err != nil {
		return fmt.Errorf("save cart %s: %w", c.id, err)
	}
	return nil
}

func (c *redisCart) RemoveAllItems(ctx context.Context) error {
	if err := c.store.rdb.Del(ctx, cartKey(c.id)).Err(); err != nil {
		return fmt.Errorf("empty cart %s: %w", c.id, err)
	}
	return nil
}
