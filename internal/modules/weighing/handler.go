package weighing

import (
	"github.com/gin-gonic/gin"
	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/modules/device"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

// Handler exposes the device-facing ingestion endpoints. These sit
// behind the shared device key, not user tokens.
type Handler struct {
	proc    *Processor
	tracker *device.Tracker
}

func NewHandler(proc *Processor, tracker *device.Tracker) *Handler {
	return &Handler{proc: proc, tracker: tracker}
}

// RegisterRoutes mounts the IoT routes. idempotenceMW guards the weight
// route against ambiguous-timeout replays; pass nil to skip it.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, deviceKeyMW, idempotenceMW gin.HandlerFunc) {
	g := rg.Group("/iot", deviceKeyMW)

	weight := []gin.HandlerFunc{}
	if idempotenceMW != nil {
		weight = append(weight, idempotenceMW)
	}
	weight = append(weight, h.ingestWeight)

	g.POST("/weight", weight...)
	g.GET("/active-session", h.activeSession)
	g.POST("/status", h.recordStatus)
}

// POST /iot/weight
func (h *Handler) ingestWeight(c *gin.Context) {
	var dto WeightDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "device_id and weight are required")
		return
	}
	rec, sess, err := h.proc.Ingest(c.Request.Context(), dto.DeviceID, dto.Weight, dto.RecordedAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"record_id":    rec.ID,
		"session_id":   sess.ID,
		"total_weight": sess.TotalWeight,
		"sample_count": sess.SampleCount,
	})
}

// GET /iot/active-session?device_id=
func (h *Handler) activeSession(c *gin.Context) {
	deviceID := c.Query("device_id")
	sess, err := h.proc.resolver.Resolve(c.Request.Context(), deviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"session_id":   sess.ID,
		"variant":      sess.Variant,
		"status":       sess.Status,
		"total_weight": sess.TotalWeight,
		"sample_count": sess.SampleCount,
		"bound":        sess.DeviceID != nil,
	})
}

// POST /iot/status
func (h *Handler) recordStatus(c *gin.Context) {
	var dto StatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "device_id and status are required")
		return
	}
	err := h.tracker.RecordStatus(
		c.Request.Context(), dto.DeviceID, models.DeviceStatus(dto.Status),
		device.StatusMeta{FirmwareVersion: dto.FirmwareVersion, BatteryLevel: dto.BatteryLevel},
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"device_id": dto.DeviceID, "status": dto.Status})
}
