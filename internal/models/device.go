package models

import "time"

// DeviceStatus is the last status a scale reported about itself.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceError   DeviceStatus = "error"
)

// ValidDeviceStatus reports whether s is a status a device may report.
func ValidDeviceStatus(s DeviceStatus) bool {
	switch s {
	case DeviceOnline, DeviceOffline, DeviceError:
		return true
	}
	return false
}

// DeviceModel tracks the last known state of a scale. Rows are upserted
// on every status or weight message; there is no explicit creation step
// and no status history beyond the last value.
type DeviceModel struct {
	Base
	DeviceID        string       `json:"device_id"    gorm:"uniqueIndex;not null"`
	LastStatus      DeviceStatus `json:"last_status"  gorm:"type:varchar(16);default:online"`
	LastSeenAt      time.Time    `json:"last_seen_at"`
	FirmwareVersion string       `json:"firmware_version,omitempty"`
	BatteryLevel    *int         `json:"battery_level,omitempty"`
}

func (DeviceModel) TableName() string { return "iot_devices" }
