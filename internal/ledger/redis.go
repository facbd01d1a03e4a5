package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// decrScript takes one unit only while stock is still positive. Running it
// server-side makes the read-check-decrement atomic across all clients.
var decrScript = redis.NewScript(`local stock = redis.call('get', KEYS[1])
if stock and tonumber(stock) > 0 then
    redis.call('decr', KEYS[1])
    return 1
else
    return 0
end`)

// Redis is a Ledger backed by a shared redis instance. The exhaustion filter
// stays process-local: it is approximate by contract and a per-process copy
// only costs one authoritative decrement per process before it sticks.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	filter    *exhaustionFilter
}

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr, password string, db int, keyPrefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		client:    client,
		keyPrefix: keyPrefix,
		filter:    newExhaustionFilter(),
	}, nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) key(productID string) string { return r.keyPrefix + productID }

// SetStock writes the counter for a product.
func (r *Redis) SetStock(ctx context.Context, productID string, stock int64) error {
	if err := r.client.Set(ctx, r.key(productID), stock, 0).Err(); err != nil {
		return fmt.Errorf("set stock for %s: %w", productID, err)
	}
	return nil
}

// Stock reads the current counter value; a missing key reads as zero.
func (r *Redis) Stock(ctx context.Context, productID string) (int64, error) {
	n, err := r.client.Get(ctx, r.key(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stock for %s: %w", productID, err)
	}
	return n, nil
}

// TryDecrement evaluates the conditional-decrement script.
func (r *Redis) TryDecrement(ctx context.Context, productID string) (bool, error) {
	res, err := decrScript.Run(ctx, r.client, []string{r.key(productID)}).Int64()
	if err != nil {
		return false, fmt.Errorf("conditional decrement for %s: %w", productID, err)
	}
	return res == 1, nil
}

// Increment restores one unit via a plain INCR.
func (r *Redis) Increment(ctx context.Context, productID string) error {
	if err := r.client.Incr(ctx, r.key(productID)).Err(); err != nil {
		return fmt.Errorf("restore stock for %s: %w", productID, err)
	}
	return nil
}

// MarkExhausted adds the product to the process-local exhaustion filter.
func (r *Redis) MarkExhausted(productID string) { r.filter.add(productID) }

// IsLikelyExhausted tests the process-local exhaustion filter.
func (r *Redis) IsLikelyExhausted(productID string) bool {
	return r.filter.mightContain(productID)
}
