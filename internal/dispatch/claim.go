package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/redis"
)

var (
	ErrAlreadyDelivered = errors.New("slot already delivered")
	ErrClaimHeld        = errors.New("slot claimed by another dispatcher")
)

type ClaimConfig struct {
	// LockTTL bounds how long a crashed dispatcher can hold a slot.
	LockTTL time.Duration

	DeliveredTTL time.Duration

	LockKeyPrefix string

	DeliveredKeyPrefix string
}

func DefaultClaimConfig() ClaimConfig {
	return ClaimConfig{
		LockTTL:            2 * time.Minute,
		DeliveredTTL:       48 * time.Hour,
		LockKeyPrefix:      "lock:",
		DeliveredKeyPrefix: "delivered:",
	}
}

// Claimer is the claim-or-skip lease shared by every dispatcher process.
// The store-side guards remain authoritative; the lease only keeps two
// processes from sending the same slot inside one cycle.
type Claimer struct {
	redis  redis.RedisAdapter
	config ClaimConfig
}

// NewClaimer returns a claimer backed by redisAdapter. With a nil adapter
// every Acquire succeeds and the other calls do nothing.
func NewClaimer(redisAdapter redis.RedisAdapter, config ClaimConfig) *Claimer {
	return &Claimer{
		redis:  redisAdapter,
		config: config,
	}
}

type Claim struct {
	Key  string
	held bool
}

func (c *Claimer) enabled() bool {
	return c != nil && c.redis != nil
}

func (c *Claimer) Acquire(ctx context.Context, key string) (*Claim, error) {
	if !c.enabled() {
		return &Claim{Key: key}, nil
	}

	exists, err := c.redis.Exist(c.config.DeliveredKeyPrefix + key)
	if err != nil {
		// the store guards still hold, so a redis outage must not stop delivery
		logger.Warn("failed to check delivered marker", "key", key, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyDelivered
	}

	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	acquired, err := c.redis.SetNX(c.config.LockKeyPrefix+key, lockValue, c.config.LockTTL)
	if err != nil {
		logger.Warn("failed to acquire claim lock", "key", key, "error", err)
		return &Claim{Key: key}, nil
	}
	if !acquired {
		return nil, ErrClaimHeld
	}

	logger.Debug("claim acquired", "key", key, "lock_ttl", c.config.LockTTL)
	return &Claim{Key: key, held: true}, nil
}

// MarkDelivered sets the long-lived marker and drops the lock.
func (c *Claimer) MarkDelivered(ctx context.Context, claim *Claim) error {
	if !c.enabled() || claim == nil {
		return nil
	}
	if err := c.redis.Set(c.config.DeliveredKeyPrefix+claim.Key, []byte("1"), c.config.DeliveredTTL); err != nil {
		logger.Error("failed to set delivered marker", "key", claim.Key, "error", err)
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return c.Release(ctx, claim)
}

// Release drops the lock so the next cycle can retry the slot.
func (c *Claimer) Release(ctx context.Context, claim *Claim) error {
	if !c.enabled() || claim == nil || !claim.held {
		return nil
	}
	if err := c.redis.Del(c.config.LockKeyPrefix + claim.Key); err != nil {
		logger.Warn("failed to release claim lock", "key", claim.Key, "error", err)
		return err
	}
	claim.held = false
	return nil
}

func (c *Claimer) IsDelivered(ctx context.Context, key string) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	exists, err := c.redis.Exist(c.config.DeliveredKeyPrefix + key)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func scheduledClaimKey(reportID, date string) string {
	return fmt.Sprintf("scheduled:%s:%s", reportID, date)
}

func automaticClaimKey(date, dedupKey string) string {
	return fmt.Sprintf("automatic:%s:%s", date, dedupKey)
}
