package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// SettingsProvider resolves the effective settings for a clinic.
type SettingsProvider interface {
	Settings(ctx context.Context, clinicID uuid.UUID) (Settings, error)
}

type settingsSource interface {
	Settings(ctx context.Context, clinicID uuid.UUID) (Settings, error)
	UpdateSettings(ctx context.Context, clinicID uuid.UUID, s Settings) (Settings, error)
}

// SettingsCache is a read-through Redis cache in front of the clinics table.
// A nil redis client disables caching.
type SettingsCache struct {
	source settingsSource
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewSettingsCache creates a settings cache.
func NewSettingsCache(source settingsSource, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *SettingsCache {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SettingsCache{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

func (c *SettingsCache) key(clinicID uuid.UUID) string {
	return fmt.Sprintf("clinic:settings:%s", clinicID)
}

// Settings returns cached settings, falling back to the source on a miss.
// Redis failures are logged and bypassed.
func (c *SettingsCache) Settings(ctx context.Context, clinicID uuid.UUID) (Settings, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.key(clinicID)).Bytes()
		switch {
		case err == nil:
			s, derr := DecodeSettings(data)
			if derr == nil {
				return s, nil
			}
			c.logger.Warn("discarding undecodable cached settings", "clinic_id", clinicID, "error", derr)
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("settings cache read failed", "clinic_id", clinicID, "error", err)
		}
	}

	s, err := c.source.Settings(ctx, clinicID)
	if err != nil {
		return Settings{}, err
	}
	c.store(ctx, clinicID, s)
	return s, nil
}

// Update writes through to the source and refreshes the cache entry.
func (c *SettingsCache) Update(ctx context.Context, clinicID uuid.UUID, s Settings) (Settings, error) {
	updated, err := c.source.UpdateSettings(ctx, clinicID, s)
	if err != nil {
		return Settings{}, err
	}
	c.store(ctx, clinicID, updated)
	return updated, nil
}

// Invalidate drops the cached entry for a clinic.
func (c *SettingsCache) Invalidate(ctx context.Context, clinicID uuid.UUID) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(clinicID)).Err(); err != nil {
		c.logger.Warn("settings cache invalidate failed", "clinic_id", clinicID, "error", err)
	}
}

func (c *SettingsCache) store(ctx context.Context, clinicID uuid.UUID, s Settings) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(clinicID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", "clinic_id", clinicID, "error", err)
	}
}

// StaticSettings always returns the same settings. Used when no clinics table
// is reachable and in tests.
type StaticSettings Settings

func (s StaticSettings) Settings(context.Context, uuid.UUID) (Settings, error) {
	return Settings(s).Normalize(), nil
}
