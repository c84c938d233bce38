package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// OrganizerKeyPrefix namespaces the cached organizer sets of teams.
const OrganizerKeyPrefix = "organizer_addresses:"

// RedisAddressCache caches the normalized wallet and member addresses of
// teams. A team update invalidates its entry; the TTL bounds staleness when
// an invalidation is missed.
type RedisAddressCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisAddressCache(client *redis.Client, ttl time.Duration) *RedisAddressCache {
	return &RedisAddressCache{Client: client, TTL: ttl}
}

func teamKey(teamID string) string {
	return OrganizerKeyPrefix + teamID
}

// GetTeamAddresses returns the cached set and whether it was present.
func (c *RedisAddressCache) GetTeamAddresses(ctx context.Context, teamID string) ([]string, bool, error) {
	if c.Client == nil {
		return nil, false, fmt.Errorf("redis client not initialized")
	}

	raw, err := c.Client.Get(ctx, teamKey(teamID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to get organizer set from Redis: %w", err)
	}

	var addresses []string
	if err := json.Unmarshal([]byte(raw), &addresses); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal organizer set: %w", err)
	}
	return addresses, true, nil
}

func (c *RedisAddressCache) SetTeamAddresses(ctx context.Context, teamID string, addresses []string) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if addresses == nil {
		addresses = []string{}
	}

	payload, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("failed to marshal organizer set: %w", err)
	}
	if err := c.Client.Set(ctx, teamKey(teamID), payload, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store organizer set in Redis: %w", err)
	}
	return nil
}

func (c *RedisAddressCache) InvalidateTeam(ctx context.Context, teamID string) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := c.Client.Del(ctx, teamKey(teamID)).Err(); err != nil {
		return fmt.Errorf("failed to delete organizer set from Redis: %w", err)
	}
	return nil
}
