package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
)

// InitializeRedis connects to Redis and verifies the connection with a ping
// and a short-lived health-check write.
func InitializeRedis(redisAddr string, customLogger *logger.Logger) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password
		DB:       0,  // use default DB
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		if customLogger != nil {
			customLogger.Error("CACHE", fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		}
		_ = redisClient.Close()
		return nil, err
	}

	if err := redisClient.Set(ctx, OrganizerKeyPrefix+"healthcheck", "ok", 5*time.Second).Err(); err != nil {
		if customLogger != nil {
			customLogger.Error("CACHE", fmt.Sprintf("Failed to write health-check value to Redis: %v", err))
		}
		_ = redisClient.Close()
		return nil, err
	}

	if customLogger != nil {
		customLogger.Info("CACHE", fmt.Sprintf("Connected to Redis at %s for organizer caching", redisAddr))
	}
	return redisClient, nil
}
