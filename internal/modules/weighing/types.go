package weighing

import "time"

// WeightDTO is the payload a scale posts for each sample.
type WeightDTO struct {
	DeviceID   string     `json:"device_id" binding:"required"`
	Weight     float64    `json:"weight"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// StatusDTO is the payload for device status reports.
type StatusDTO struct {
	DeviceID        string `json:"device_id" binding:"required"`
	Status          string `json:"status" binding:"required"`
	FirmwareVersion string `json:"firmware_version"`
	BatteryLevel    *int   `json:"battery_level"`
}
