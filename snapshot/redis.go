package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis deployment. Mode is single, cluster or
// sentinel; the universal client picks cluster mode from multiple addresses.
type RedisConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Mode           string   `yaml:"mode"`
	Addresses      []string `yaml:"addresses"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DB             int      `yaml:"db"`
	SentinelMaster string   `yaml:"sentinel_master"`

	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NewRedisClient builds a universal client for cfg and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("snapshot: redis addresses empty")
	}

	mode := strings.ToLower(cfg.Mode)
	switch mode {
	case "", "single", "cluster":
	case "sentinel":
		if cfg.SentinelMaster == "" {
			return nil, errors.New("snapshot: sentinel mode requires sentinel_master")
		}
	default:
		return nil, fmt.Errorf("snapshot: unknown redis mode %q", cfg.Mode)
	}

	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MasterName:   cfg.SentinelMaster,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("snapshot: redis ping: %w", err)
	}
	return client, nil
}

// RedisStore is a Store on a Redis client.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get reads key; a missing key is found=false.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes key with a single SET.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("snapshot: redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
