package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"starshop/internal/models"
)

// Client wraps Redis for the conversational session store.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// PutSession stores a user's conversational session with a TTL. The TTL is
// the session expiry: an abandoned flow simply evaporates.
func (c *Client) PutSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, sessionKey(session.UserID), payload, ttl).Err()
}

// GetSession returns the user's session, or nil when none exists.
func (c *Client) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	payload, err := c.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession drops the user's session.
func (c *Client) DeleteSession(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, sessionKey(userID)).Err()
}
