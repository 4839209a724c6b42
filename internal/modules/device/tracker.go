package device

import (
	"context"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"go.uber.org/zap"
)

const (
	statusCacheKeyPrefix = "scale:device:status:"
	statusCacheTTL       = 5 * time.Minute
)

// statusCache is the shared last-status cache read by the session
// resolver. Satisfied by the redis client wrapper; nil disables caching.
type statusCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Tracker records last-seen/online state per device. It is the only
// shared mutable state outside the document store, and it is advisory:
// losing the cache only costs a database read.
type Tracker struct {
	store Store
	cache statusCache
	log   *zap.Logger
	now   func() time.Time
}

func NewTracker(store Store, cache statusCache, log *zap.Logger) *Tracker {
	return &Tracker{store: store, cache: cache, log: log, now: time.Now}
}

// RecordStatus upserts the device row from an explicit status message.
// Only the last status survives; history is someone else's concern.
func (t *Tracker) RecordStatus(ctx context.Context, deviceID string, status models.DeviceStatus, meta StatusMeta) error {
	if deviceID == "" {
		return apperrors.New(apperrors.KindValidation, "device id is required")
	}
	if !models.ValidDeviceStatus(status) {
		return apperrors.Newf(apperrors.KindValidation, "unknown device status %q", status)
	}
	if meta.BatteryLevel != nil && (*meta.BatteryLevel < 0 || *meta.BatteryLevel > 100) {
		return apperrors.New(apperrors.KindValidation, "battery level must be within 0..100")
	}

	if err := t.store.UpsertStatus(ctx, deviceID, status, t.now().UTC(), meta); err != nil {
		return err
	}
	t.cacheStatus(ctx, deviceID, status)
	return nil
}

// Heartbeat stamps last-seen, called on every ingested weight. The store
// decides whether the status flips to online; a device that reported an
// error stays errored until it sends an explicit status. The cache is
// left alone so resolver reads never see a heartbeat-masked error.
func (t *Tracker) Heartbeat(ctx context.Context, deviceID string) error {
	return t.store.Touch(ctx, deviceID, t.now().UTC())
}

// LastStatus returns the device's last reported status, cache first.
func (t *Tracker) LastStatus(ctx context.Context, deviceID string) (models.DeviceStatus, bool) {
	if t.cache != nil {
		if v, err := t.cache.Get(ctx, statusCacheKeyPrefix+deviceID); err == nil && v != "" {
			return models.DeviceStatus(v), true
		}
	}
	dev, err := t.store.Find(ctx, deviceID)
	if err != nil {
		return "", false
	}
	t.cacheStatus(ctx, deviceID, dev.LastStatus)
	return dev.LastStatus, true
}

func (t *Tracker) cacheStatus(ctx context.Context, deviceID string, status models.DeviceStatus) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Set(ctx, statusCacheKeyPrefix+deviceID, string(status), statusCacheTTL); err != nil {
		t.log.Warn("device status cache write failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
}
