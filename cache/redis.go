package cache

import (
	"buddiepay/config"
	"buddiepay/utils"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если он все еще принадлежит владельцу
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis оборачивает клиент go-redis
type Redis struct {
	client *redis.Client
}

// New создает клиент Redis. Возвращает nil, если адрес не задан.
func New(cfg config.RedisConfig) *Redis {
	if cfg.Addr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return NewWithClient(redis.NewClient(opts))
}

// NewWithClient оборачивает готовый клиент
func NewWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Ping проверяет доступность Redis
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// AcquireLock пытается занять ключ на ttl через SET NX.
// release освобождает блокировку, только если она не перехвачена после истечения ttl.
func (r *Redis) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{"lock:" + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			// ключ истечет сам по ttl
			utils.LogError("Ошибка освобождения блокировки %s: %v", key, err)
		}
	}
	return release, true, nil
}

// Close освобождает ресурсы клиента
func (r *Redis) Close() error {
	return r.client.Close()
}
