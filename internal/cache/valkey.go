package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds connection settings for ValkeyCache.
type ValkeyConfig struct {
	Address   string
	DB        int
	KeyPrefix string
}

// ValkeyCache is a TokenCache backed by Valkey/Redis, shared between
// processes (scheduler and API) so they reuse one token.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache connects to Valkey.
func NewValkeyCache(cfg *ValkeyConfig) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return &ValkeyCache{client: client, prefix: cfg.KeyPrefix}, nil
}

// Close releases the underlying connections.
func (c *ValkeyCache) Close() {
	c.client.Close()
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s from valkey: %w", key, err)
	}
	return value, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := c.client.Do(ctx, c.client.B().Set().Key(c.prefix+key).Value(value).Ex(ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to write %s to valkey: %w", key, err)
	}
	return nil
}

func (c *ValkeyCache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(c.prefix+key).Build()).Error()
}
