package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meinhoongagan/availability-engine/models"
)

const profileKeyPrefix = "availability:profile:"

// ProfileCache keeps JSON copies of availability profiles with a TTL.
type ProfileCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewProfileCache(client redis.Cmdable, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}

// Get reports a miss with ok=false and a nil error.
func (c *ProfileCache) Get(ctx context.Context, userID string) (models.AvailabilityProfile, bool, error) {
	raw, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AvailabilityProfile{}, false, nil
	}
	if err != nil {
		return models.AvailabilityProfile{}, false, err
	}

	var p models.AvailabilityProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.AvailabilityProfile{}, false, err
	}
	return p, true, nil
}

func (c *ProfileCache) Set(ctx context.Context, p models.AvailabilityProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, profileKey(p.UserID), raw, c.ttl).Err()
}

// Invalidate drops a cached profile.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, profileKey(userID)).Err()
}
