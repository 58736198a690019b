package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ErrKeyNotFound возвращается Get, если ключа нет
var ErrKeyNotFound = errors.New("key not found")

// Lua скрипт снимает блокировку, только если ее держит тот же владелец
const releaseLockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Client представляет клиент Redis
type Client struct {
	client *redis.Client
	log    *logger.Logger
}

// Connect создает подключение к Redis
func Connect(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Successfully connected to Redis")

	return New(rdb, log), nil
}

// New оборачивает готовый клиент go-redis
func New(rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{
		client: rdb,
		log:    log,
	}
}

// GetClient возвращает низкоуровневый клиент go-redis
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// Close закрывает подключение к Redis
func (c *Client) Close() error {
	return c.client.Close()
}

// Set сохраняет значение в JSON с TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	c.log.WithField("key", key).Debug("Value set in Redis")
	return nil
}

// Get читает значение по ключу в dest
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}

	c.log.WithField("key", key).Debug("Value retrieved from Redis")
	return nil
}

// Delete удаляет ключи
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys %v: %w", keys, err)
	}

	c.log.WithField("keys", keys).Debug("Keys deleted from Redis")
	return nil
}

// Size возвращает количество ключей в базе
func (c *Client) Size(ctx context.Context) (int64, error) {
	return c.client.DBSize(ctx).Result()
}

// AcquireLock пытается занять блокировку key на ttl. Возвращает false, если она уже занята.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if ok {
		c.log.WithFields(map[string]interface{}{"key": key, "owner": owner}).Debug("Lock acquired")
	}
	return ok, nil
}

// ReleaseLock снимает блокировку, если ее держит owner
func (c *Client) ReleaseLock(ctx context.Context, key, owner string) error {
	if err := c.client.Eval(ctx, releaseLockScript, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// Health проверяет состояние Redis
func (c *Client) Health(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// Константы для префиксов ключей
const (
	KeyPrefixVansByDate    = "vans:date"
	KeyPrefixAssignments   = "assignments:schedule"
	KeyRouteGenerationLock = "lock:route-generation"
	KeyPrefixRateLimitIP   = "rate_limit:ip"
	KeyPrefixRateLimitBan  = "rate_limit:ban"
)
