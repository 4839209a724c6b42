package session

import "github.com/lokatani/scale-core/internal/models"

// InitiateDTO is the body of POST /sessions.
type InitiateDTO struct {
	Variant models.SessionVariant `json:"variant" binding:"required"`
}
