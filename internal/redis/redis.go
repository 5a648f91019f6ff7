package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"layover-match/internal/apperr"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const sessionPrefix = "session:"

type Client struct {
	rdb *redis.Client
}

func Initialize(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithField("component", "redis").Info("Redis connected successfully")
	return &Client{rdb: rdb}, nil
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Transient("redis ping", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Save records a signed-in session under its token id until ttl elapses.
func (c *Client) Save(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, sessionPrefix+jti, userID, ttl).Err(); err != nil {
		return apperr.Transient("save session", err)
	}
	return nil
}

// Lookup returns the user a live session belongs to. A revoked or expired
// session is an auth error.
func (c *Client) Lookup(ctx context.Context, jti string) (string, error) {
	userID, err := c.rdb.Get(ctx, sessionPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("session %s: %w", jti, apperr.ErrAuth)
	}
	if err != nil {
		return "", apperr.Transient("lookup session", err)
	}
	return userID, nil
}

func (c *Client) Revoke(ctx context.Context, jti string) error {
	if err := c.rdb.Del(ctx, sessionPrefix+jti).Err(); err != nil {
		return apperr.Transient("revoke session", err)
	}
	return nil
}
