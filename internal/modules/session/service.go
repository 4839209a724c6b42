package session

import (
	"context"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/pagination"
	"github.com/lokatani/scale-core/internal/pkg/response"
	"go.uber.org/zap"
)

// Caller identifies who is acting on a session.
type Caller struct {
	UserID string
	Role   models.Role
}

func (c Caller) isAdmin() bool { return c.Role == models.RoleAdmin }

// Service owns the session lifecycle state machine. All transitions go
// through conditional updates in the store, so two concurrent callers
// racing the same transition produce exactly one winner.
type Service struct {
	store Storage
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Storage, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Initiate creates an in_progress session with zero aggregates and no
// device bound. The scale is bound later, by its first weight sample.
func (s *Service) Initiate(ctx context.Context, ownerID string, variant models.SessionVariant) (*models.SessionModel, error) {
	if ownerID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "owner user id is required")
	}
	if !models.ValidSessionVariant(variant) {
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown session variant %q", variant)
	}

	sess := &models.SessionModel{
		OwnerUserID: ownerID,
		Variant:     variant,
		Status:      models.StatusInProgress,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info("session initiated",
		zap.String("session_id", sess.ID),
		zap.String("variant", string(variant)),
		zap.String("owner", ownerID))
	return sess, nil
}

// Complete finalizes a session. Subsequent weight messages for the bound
// device must resolve to a different or new session; this one is never
// reopened.
func (s *Service) Complete(ctx context.Context, id string, caller Caller) (*models.SessionModel, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, caller, models.StatusCompleted, &now)
}

// Abort terminates a session without completing it.
func (s *Service) Abort(ctx context.Context, id string, caller Caller) (*models.SessionModel, error) {
	return s.transition(ctx, id, caller, models.StatusAborted, nil)
}

func (s *Service) transition(ctx context.Context, id string, caller Caller, to models.SessionStatus, completedAt *time.Time) (*models.SessionModel, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OwnerUserID != caller.UserID && !caller.isAdmin() {
		return nil, apperrors.Newf(apperrors.KindForbidden, "session %s belongs to another user", id)
	}
	if sess.Status.Terminal() {
		return nil, apperrors.Newf(apperrors.KindInvalidStateTransition,
			"session %s is %s, cannot transition to %s", id, sess.Status, to)
	}

	updated, err := s.store.TransitionStatus(ctx, id, models.StatusInProgress, to, completedAt)
	if err != nil {
		return nil, err
	}
	s.log.Info("session transitioned",
		zap.String("session_id", id),
		zap.String("status", string(to)),
		zap.String("caller", caller.UserID))
	return updated, nil
}

// Get returns a session with its weight records. Ownership is validated
// at read time; admins may read any session.
func (s *Service) Get(ctx context.Context, id string, caller Caller) (*models.SessionModel, error) {
	sess, err := s.store.GetWithRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OwnerUserID != caller.UserID && !caller.isAdmin() {
		return nil, apperrors.Newf(apperrors.KindForbidden, "session %s belongs to another user", id)
	}
	return sess, nil
}

// List returns the caller's sessions, newest first. Admins see every
// owner's sessions.
func (s *Service) List(ctx context.Context, caller Caller, q pagination.Query) ([]models.SessionModel, response.Pagination, error) {
	owner := caller.UserID
	if caller.isAdmin() {
		owner = ""
	}
	return s.store.ListByOwner(ctx, owner, q)
}
