package device

import (
	"context"
	"errors"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists last-known device state. Devices are upserted on every
// message; there is no explicit provisioning step here.
type Store interface {
	UpsertStatus(ctx context.Context, deviceID string, status models.DeviceStatus, seenAt time.Time, meta StatusMeta) error
	Touch(ctx context.Context, deviceID string, seenAt time.Time) error
	Find(ctx context.Context, deviceID string) (*models.DeviceModel, error)
}

// StatusMeta carries optional fields a device may report alongside its
// status.
type StatusMeta struct {
	FirmwareVersion string
	BatteryLevel    *int
}

// GormStore is the MySQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) UpsertStatus(ctx context.Context, deviceID string, status models.DeviceStatus, seenAt time.Time, meta StatusMeta) error {
	dev := models.DeviceModel{
		DeviceID:        deviceID,
		LastStatus:      status,
		LastSeenAt:      seenAt,
		FirmwareVersion: meta.FirmwareVersion,
		BatteryLevel:    meta.BatteryLevel,
	}
	assign := []string{"last_status", "last_seen_at"}
	if meta.FirmwareVersion != "" {
		assign = append(assign, "firmware_version")
	}
	if meta.BatteryLevel != nil {
		assign = append(assign, "battery_level")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&dev).Error
}

// Touch stamps last_seen_at and marks the device online, except that a
// self-reported error status survives: only an explicit status report
// clears it.
func (s *GormStore) Touch(ctx context.Context, deviceID string, seenAt time.Time) error {
	dev := models.DeviceModel{
		DeviceID:   deviceID,
		LastStatus: models.DeviceOnline,
		LastSeenAt: seenAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen_at": seenAt,
			"last_status":  gorm.Expr("IF(last_status = ?, last_status, ?)", models.DeviceError, models.DeviceOnline),
		}),
	}).Create(&dev).Error
}

func (s *GormStore) Find(ctx context.Context, deviceID string) (*models.DeviceModel, error) {
	var dev models.DeviceModel
	err := s.db.WithContext(ctx).First(&dev, "device_id = ?", deviceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "device %s not found", deviceID)
		}
		return nil, err
	}
	return &dev, nil
}
