package session

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/pagination"
	"github.com/lokatani/scale-core/internal/pkg/response"
	"gorm.io/gorm"
)

// Storage is the session store consumed by the lifecycle manager, the
// resolver and the ingestion processor. Every mutation that depends on
// current state is a single conditional update; a failed precondition is
// always distinguishable from a missing row.
type Storage interface {
	Create(ctx context.Context, s *models.SessionModel) error
	GetByID(ctx context.Context, id string) (*models.SessionModel, error)
	GetWithRecords(ctx context.Context, id string) (*models.SessionModel, error)
	ListByOwner(ctx context.Context, ownerID string, q pagination.Query) ([]models.SessionModel, response.Pagination, error)

	// ActiveCandidates returns every in_progress session eligible for
	// the device: bound to it or unbound. Selection among candidates is
	// the resolver's job.
	ActiveCandidates(ctx context.Context, deviceID string) ([]models.SessionModel, error)

	// TransitionStatus applies from→to guarded by the expected prior
	// status, stamping completedAt when provided. Exactly one of two
	// concurrent callers succeeds.
	TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, completedAt *time.Time) (*models.SessionModel, error)

	// BindDevice assigns the device to an unbound in_progress session.
	// ok=false reports a lost first-writer-binds race or a session that
	// left in_progress, with no other error.
	BindDevice(ctx context.Context, id, deviceID string) (ok bool, err error)

	// AppendWeight atomically increments the session aggregates and
	// inserts the record, re-checking in_progress and the device
	// binding inside the same transaction.
	AppendWeight(ctx context.Context, sessionID, deviceID string, value float64, recordedAt time.Time) (*models.WeightRecordModel, error)

	SetImageURL(ctx context.Context, id, url string) error
	SetMLResult(ctx context.Context, id string, results []models.Prediction) error
}

// Store is the GORM implementation of Storage against MySQL.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Create(ctx context.Context, sess *models.SessionModel) error {
	return s.withRetry(ctx, "create session", func() error {
		return s.db.WithContext(ctx).Create(sess).Error
	})
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.SessionModel, error) {
	var sess models.SessionModel
	err := s.withRetry(ctx, "get session", func() error {
		return s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "session %s not found", id)
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Store) GetWithRecords(ctx context.Context, id string) (*models.SessionModel, error) {
	var sess models.SessionModel
	err := s.withRetry(ctx, "get session with records", func() error {
		return s.db.WithContext(ctx).
			Preload("Records", func(db *gorm.DB) *gorm.DB {
				return db.Order("recorded_at ASC, id ASC")
			}).
			First(&sess, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "session %s not found", id)
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string, q pagination.Query) ([]models.SessionModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.SessionModel{}).Order("created_at DESC")
	if ownerID != "" {
		tx = tx.Where("owner_user_id = ?", ownerID)
	}
	var items []models.SessionModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Store) ActiveCandidates(ctx context.Context, deviceID string) ([]models.SessionModel, error) {
	var items []models.SessionModel
	err := s.withRetry(ctx, "resolve active session", func() error {
		return s.db.WithContext(ctx).
			Where("status = ? AND (device_id = ? OR device_id IS NULL)", models.StatusInProgress, deviceID).
			Order("created_at DESC, id ASC").
			Find(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.SessionStatus, completedAt *time.Time) (*models.SessionModel, error) {
	updates := map[string]interface{}{"status": to}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}

	var rows int64
	err := s.withRetry(ctx, "transition session", func() error {
		res := s.db.WithContext(ctx).Model(&models.SessionModel{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		rows = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		cur, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.Newf(apperrors.KindInvalidStateTransition,
			"session %s is %s, cannot transition to %s", id, cur.Status, to)
	}
	return s.GetByID(ctx, id)
}

func (s *Store) BindDevice(ctx context.Context, id, deviceID string) (bool, error) {
	var rows int64
	err := s.withRetry(ctx, "bind device", func() error {
		res := s.db.WithContext(ctx).Model(&models.SessionModel{}).
			Where("id = ? AND status = ? AND device_id IS NULL", id, models.StatusInProgress).
			Update("device_id", deviceID)
		rows = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) AppendWeight(ctx context.Context, sessionID, deviceID string, value float64, recordedAt time.Time) (*models.WeightRecordModel, error) {
	var rec *models.WeightRecordModel
	err := s.withRetry(ctx, "append weight", func() error {
		rec = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.SessionModel{}).
				Where("id = ? AND status = ? AND device_id = ?", sessionID, models.StatusInProgress, deviceID).
				Updates(map[string]interface{}{
					"total_weight": gorm.Expr("total_weight + ?", value),
					"sample_count": gorm.Expr("sample_count + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperrors.Newf(apperrors.KindSessionClosed,
					"session %s was finalized or rebound during ingestion", sessionID)
			}
			rec = &models.WeightRecordModel{
				SessionID:  sessionID,
				DeviceID:   deviceID,
				Value:      value,
				RecordedAt: recordedAt,
			}
			return tx.Create(rec).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) SetImageURL(ctx context.Context, id, url string) error {
	return s.setIfInProgress(ctx, id, map[string]interface{}{"image_url": url})
}

func (s *Store) SetMLResult(ctx context.Context, id string, results []models.Prediction) error {
	return s.setIfInProgress(ctx, id, map[string]interface{}{"ml_result": results})
}

// setIfInProgress applies field updates only while the session is open.
func (s *Store) setIfInProgress(ctx context.Context, id string, updates map[string]interface{}) error {
	var rows int64
	err := s.withRetry(ctx, "attach to session", func() error {
		res := s.db.WithContext(ctx).Model(&models.SessionModel{}).
			Where("id = ? AND status = ?", id, models.StatusInProgress).
			Updates(updates)
		rows = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return apperrors.Newf(apperrors.KindSessionFinalized, "session %s is already finalized", id)
	}
	return nil
}

const (
	maxStoreAttempts = 3
	retryBaseDelay   = 50 * time.Millisecond
)

// withRetry retries transient connection failures a small fixed number
// of times before surfacing Unavailable. Precondition failures and all
// other errors pass through untouched.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxStoreAttempts; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return apperrors.Wrap(apperrors.KindUnavailable, op+" cancelled", ctx.Err())
		case <-time.After(time.Duration(attempt+1) * retryBaseDelay):
		}
	}
	return apperrors.Wrap(apperrors.KindUnavailable, op+" failed after retries", err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
