// Package kv is a Redis client whose commands run on the background pool.
package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/blocking"
	"github.com/vnykmshr/fibercore/pkg/common/validation"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Config configures a Client.
type Config struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string        // prepended to every key
	DialTimeout time.Duration // default 5s
	MaxRetries  int           // -1 disables retries
	Caller      blocking.Caller
	Logger      logrus.FieldLogger
}

// Client issues Redis commands through a Caller.
type Client struct {
	rdb    *redis.Client
	call   blocking.Caller
	prefix string
	log    logrus.FieldLogger
}

// Dial builds a Client for cfg.Addr. It does not contact the server.
func Dial(cfg Config) (*Client, error) {
	if err := validation.ValidateNotEmpty("kv", "addr", cfg.Addr); err != nil {
		return nil, err
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  cfg.MaxRetries,
	})
	return New(rdb, cfg.Caller, cfg.Prefix, cfg.Logger), nil
}

// New wraps an existing go-redis client. A nil caller runs commands inline.
func New(rdb *redis.Client, caller blocking.Caller, prefix string, log logrus.FieldLogger) *Client {
	if caller == nil {
		caller = blocking.Direct{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		rdb:    rdb,
		call:   caller,
		prefix: prefix,
		log:    log.WithField("component", "kv"),
	}
}

func (c *Client) key(k string) string { return c.prefix + k }

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	_, err := blocking.Run(ctx, c.call, "kv:ping", func(ctx context.Context) (string, error) {
		return c.rdb.Ping(ctx).Result()
	})
	return err
}

// Get returns the value stored at key or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return blocking.Run(ctx, c.call, "kv:get", func(ctx context.Context) (string, error) {
		v, err := c.rdb.Get(ctx, c.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return v, err
	})
}

// Set stores value at key. A zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := blocking.Run(ctx, c.call, "kv:set", func(ctx context.Context) (string, error) {
		return c.rdb.Set(ctx, c.key(key), value, ttl).Result()
	})
	return err
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return blocking.Run(ctx, c.call, "kv:del", func(ctx context.Context) (int64, error) {
		return c.rdb.Del(ctx, full...).Result()
	})
}

// Incr increments the integer at key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return blocking.Run(ctx, c.call, "kv:incr", func(ctx context.Context) (int64, error) {
		return c.rdb.Incr(ctx, c.key(key)).Result()
	})
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.log.WithError(err).Warn("closing redis client")
		return err
	}
	return nil
}
