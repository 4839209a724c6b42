package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionVariant distinguishes the two kinds of weighing episodes.
type SessionVariant string

const (
	VariantProduct SessionVariant = "product"
	VariantRompes  SessionVariant = "rompes"
)

// ValidSessionVariant reports whether v names a known variant.
func ValidSessionVariant(v SessionVariant) bool {
	return v == VariantProduct || v == VariantRompes
}

// IDPrefix is prepended to generated session IDs so devices and
// dashboards can tell the variant from the identifier alone.
func (v SessionVariant) IDPrefix() string {
	if v == VariantRompes {
		return "rompes_"
	}
	return "prod_"
}

// SessionStatus is the lifecycle state of a weighing session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAborted    SessionStatus = "aborted"
)

// Terminal reports whether no further transition is valid out of s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// SessionModel is one weighing episode from initiation to completion or
// abort. The device binding is nullable: a session starts unbound and is
// bound by the first weight sample attributed to it. Aggregate fields are
// only ever mutated through single conditional UPDATE statements.
type SessionModel struct {
	Base
	OwnerUserID string              `json:"owner_user_id" gorm:"index;not null"`
	DeviceID    *string             `json:"device_id"     gorm:"index"`
	Variant     SessionVariant      `json:"variant"       gorm:"type:varchar(16);not null"`
	Status      SessionStatus       `json:"status"        gorm:"type:varchar(16);index;not null"`
	CompletedAt *time.Time          `json:"completed_at"`
	TotalWeight float64             `json:"total_weight"`
	SampleCount int64               `json:"sample_count"`
	ImageURL    *string             `json:"image_url"`
	MLResult    []Prediction        `json:"ml_result,omitempty" gorm:"type:longtext;serializer:json"`
	Records     []WeightRecordModel `json:"records,omitempty"   gorm:"foreignKey:SessionID;references:ID"`
}

func (SessionModel) TableName() string { return "weighing_sessions" }

func (s *SessionModel) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = s.Variant.IDPrefix() + uuid.New().String()
	}
	return nil
}
