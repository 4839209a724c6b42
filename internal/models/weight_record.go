package models

import "time"

// WeightRecordModel is one raw sample reported by a scale, owned
// exclusively by its session. Records are append-only and never mutated
// after creation.
type WeightRecordModel struct {
	Base
	SessionID  string    `json:"session_id"  gorm:"index;not null"`
	DeviceID   string    `json:"device_id"   gorm:"index"`
	Value      float64   `json:"value"       gorm:"not null"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (WeightRecordModel) TableName() string { return "weight_records" }
