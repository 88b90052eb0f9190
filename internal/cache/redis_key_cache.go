package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisKeyCache shares cached keys between the instances of one BTM.
// Redis failures degrade to cache misses.
type RedisKeyCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    logrus.FieldLogger
}

func NewRedisKeyCache(cfg RedisConfig, ttl time.Duration, log logrus.FieldLogger) (*RedisKeyCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisKeyCache{client: rdb, ttl: ttl, prefix: "btm:pubkey:", log: log}, nil
}

func (c *RedisKeyCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("redis key cache read failed")
		}
		return nil, false
	}
	return data, true
}

func (c *RedisKeyCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("redis key cache write failed")
	}
}

func (c *RedisKeyCache) Close() error {
	return c.client.Close()
}
