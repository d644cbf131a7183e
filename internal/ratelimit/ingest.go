package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/tidewatch/aquameter/internal/config"
	"go.uber.org/fx"
)

const keyIngestDevice = "ingest:device:%s"

// IngestLimiter throttles reading submissions per device. Disabled
// unless redis is configured; a nil limiter always allows.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket

	deviceRate  float64
	deviceBurst int
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.DeviceRate <= 0 || limitCfg.DeviceBurst <= 0 {
		return nil, errors.New("device rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		deviceRate:  limitCfg.DeviceRate,
		deviceBurst: limitCfg.DeviceBurst,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) AllowDevice(ctx context.Context, deviceID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestDevice, strings.TrimSpace(deviceID)), l.deviceRate, l.deviceBurst)
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewIngestLimiter),
)
