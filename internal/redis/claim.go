package redisclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrClaimHeld means another request already claimed the same booking.
	ErrClaimHeld = errors.New("booking claim already held")
)

const donePrefix = "done:"

// Claimer guards a booking against duplicate commits from retried requests.
// A claim is first held with a random token and, once the calendar write
// succeeded, completed with the id of the created event.
type Claimer interface {
	// Acquire takes the claim for key. When it is already held Acquire returns
	// ErrClaimHeld, together with the event id if the earlier booking finished.
	Acquire(ctx context.Context, key string) (token, eventID string, err error)
	Complete(ctx context.Context, key, token, eventID string) error
	// Release drops a claim that is still held with token.
	Release(ctx context.Context, key, token string) error
	// Forget drops a completed claim that points at eventID.
	Forget(ctx context.Context, key, eventID string) error
}

type redisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) Claimer {
	return &redisClaimer{
		client: client,
		ttl:    ttl,
	}
}

// BookingKey identifies one patient asking for one doctor at one instant.
func BookingKey(doctorID string, start time.Time, email string) string {
	sum := sha256.Sum256([]byte(doctorID + "|" + start.UTC().Format(time.RFC3339) + "|" + strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func claimKey(key string) string {
	return fmt.Sprintf("claim:booking:%s", key)
}

func (c *redisClaimer) Acquire(ctx context.Context, key string) (string, string, error) {
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, claimKey(key), token, c.ttl).Result()
	if err != nil {
		return "", "", fmt.Errorf("acquire booking claim: %w", err)
	}
	if ok {
		return token, "", nil
	}

	val, err := c.client.Get(ctx, claimKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			return c.Acquire(ctx, key)
		}
		return "", "", fmt.Errorf("read booking claim: %w", err)
	}
	if eventID, done := strings.CutPrefix(val, donePrefix); done {
		return "", eventID, fmt.Errorf("%w: completed", ErrClaimHeld)
	}
	return "", "", fmt.Errorf("%w: in progress", ErrClaimHeld)
}

var completeScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
else
  return 0
end
`)

func (c *redisClaimer) Complete(ctx context.Context, key, token, eventID string) error {
	_, err := completeScript.Run(ctx, c.client, []string{claimKey(key)}, token, donePrefix+eventID, c.ttl.Milliseconds()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("complete booking claim: %w", err)
	}
	return nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (c *redisClaimer) Release(ctx context.Context, key, token string) error {
	return c.compareAndDelete(ctx, key, token)
}

func (c *redisClaimer) Forget(ctx context.Context, key, eventID string) error {
	return c.compareAndDelete(ctx, key, donePrefix+eventID)
}

func (c *redisClaimer) compareAndDelete(ctx context.Context, key, want string) error {
	_, err := unlockScript.Run(ctx, c.client, []string{claimKey(key)}, want).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking claim: %w", err)
	}
	return nil
}
