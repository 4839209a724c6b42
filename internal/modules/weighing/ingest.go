package weighing

import (
	"context"
	"math"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"go.uber.org/zap"
)

// maxResolveAttempts bounds re-resolution after a lost bind race before
// surfacing NoActiveSession.
const maxResolveAttempts = 3

// resolver yields the session a device's next sample belongs to.
type resolver interface {
	Resolve(ctx context.Context, deviceID string) (*models.SessionModel, error)
}

// sessionWriter is the subset of the session store the processor writes
// through.
type sessionWriter interface {
	BindDevice(ctx context.Context, id, deviceID string) (bool, error)
	AppendWeight(ctx context.Context, sessionID, deviceID string, value float64, recordedAt time.Time) (*models.WeightRecordModel, error)
}

// presence is the device tracker surface the processor touches.
type presence interface {
	Heartbeat(ctx context.Context, deviceID string) error
}

// Processor ingests raw weight samples from scales. Devices have no
// session awareness: the processor infers the target session, binds
// unbound sessions first-writer-wins, and keeps the aggregates
// consistent through single conditional updates.
type Processor struct {
	resolver resolver
	store    sessionWriter
	tracker  presence
	log      *zap.Logger
	now      func() time.Time
}

func NewProcessor(r resolver, store sessionWriter, tracker presence, log *zap.Logger) *Processor {
	return &Processor{resolver: r, store: store, tracker: tracker, log: log, now: time.Now}
}

// Ingest validates and appends one weight sample, returning the created
// record and the session it was attributed to.
//
// Weight from a device with no eligible session fails with
// NoActiveSession: samples are rejected, never dropped into a default
// bucket, and ingestion never creates a session. A session finalized
// between resolution and append fails with SessionClosedDuringIngestion
// and the device is expected to retry against fresh state.
func (p *Processor) Ingest(ctx context.Context, deviceID string, value float64, recordedAt *time.Time) (*models.WeightRecordModel, *models.SessionModel, error) {
	if deviceID == "" {
		return nil, nil, apperrors.New(apperrors.KindValidation, "device id is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, nil, apperrors.New(apperrors.KindValidation, "weight must be a finite number")
	}
	if value < 0 {
		return nil, nil, apperrors.New(apperrors.KindValidation, "weight must not be negative")
	}

	if err := p.tracker.Heartbeat(ctx, deviceID); err != nil {
		// Advisory state only; the sample still counts.
		p.log.Warn("device heartbeat failed", zap.String("device_id", deviceID), zap.Error(err))
	}

	at := p.now().UTC()
	if recordedAt != nil {
		at = recordedAt.UTC()
	}

	var lastErr error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		sess, err := p.resolver.Resolve(ctx, deviceID)
		if err != nil {
			return nil, nil, err
		}

		if sess.DeviceID == nil {
			ok, err := p.store.BindDevice(ctx, sess.ID, deviceID)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				// Lost the first-writer-binds race; re-resolve.
				lastErr = apperrors.Newf(apperrors.KindNoActiveSession,
					"session %s was bound by another writer", sess.ID)
				continue
			}
			p.log.Info("device bound to session",
				zap.String("device_id", deviceID), zap.String("session_id", sess.ID))
		}

		rec, err := p.store.AppendWeight(ctx, sess.ID, deviceID, value, at)
		if err != nil {
			return nil, nil, err
		}
		sess.TotalWeight += value
		sess.SampleCount++
		dev := deviceID
		sess.DeviceID = &dev

		p.log.Info("weight ingested",
			zap.String("device_id", deviceID),
			zap.String("session_id", sess.ID),
			zap.Float64("value", value))
		return rec, sess, nil
	}

	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, apperrors.Newf(apperrors.KindNoActiveSession, "no active weighing session for device %s", deviceID)
}
