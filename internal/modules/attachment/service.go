package attachment

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/modules/ml"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/blob"
	"go.uber.org/zap"
)

// sessionStore is the slice of the session store attachments go through.
type sessionStore interface {
	GetByID(ctx context.Context, id string) (*models.SessionModel, error)
	SetImageURL(ctx context.Context, id, url string) error
	SetMLResult(ctx context.Context, id string, results []models.Prediction) error
}

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// Caller identifies who is attaching to a session. Attachments follow
// the same ownership rule as lifecycle transitions: the owner or an
// admin, nobody else.
type Caller struct {
	UserID string
	Role   models.Role
}

func (c Caller) isAdmin() bool { return c.Role == models.RoleAdmin }

// Service attaches captured images and classifier results to
// in-progress sessions. Later writes replace earlier ones. The blob is
// never deleted on a failed metadata update so the attach can be
// retried while the session stays open.
type Service struct {
	store      sessionStore
	blobs      blob.Store
	identifier ml.Identifier
	log        *zap.Logger
}

func NewService(store sessionStore, blobs blob.Store, identifier ml.Identifier, log *zap.Logger) *Service {
	return &Service{store: store, blobs: blobs, identifier: identifier, log: log}
}

// AttachImage uploads the image and records its URL on the session.
// The blob is written before the conditional metadata update: if the
// session was finalized in between, the orphaned blob stays put and the
// caller gets SessionFinalized.
func (s *Service) AttachImage(ctx context.Context, sessionID string, caller Caller, image []byte, contentType string) (*models.SessionModel, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "session id is required")
	}
	if len(image) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "image payload is empty")
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindValidation, "unsupported image type %s", contentType)
	}

	// Fail fast before paying for the upload. The conditional update
	// below is the authoritative guard.
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerUserID != caller.UserID && !caller.isAdmin() {
		return nil, apperrors.Newf(apperrors.KindForbidden, "session %s belongs to another user", sessionID)
	}
	if sess.Status.Terminal() {
		return nil, apperrors.Newf(apperrors.KindSessionFinalized, "session is %s", sess.Status)
	}

	key := fmt.Sprintf("sessions/%s/image.%s", sessionID, ext)
	url, err := s.blobs.Put(ctx, key, image, contentType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "image upload failed", err)
	}

	if err := s.store.SetImageURL(ctx, sessionID, url); err != nil {
		return nil, err
	}
	sess.ImageURL = &url
	s.log.Info("image attached", zap.String("session_id", sessionID), zap.String("url", url))
	return sess, nil
}

// AttachResult records classifier predictions on the session,
// replacing any previous result.
func (s *Service) AttachResult(ctx context.Context, sessionID string, caller Caller, preds []models.Prediction) (*models.SessionModel, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "session id is required")
	}
	if len(preds) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "at least one prediction is required")
	}
	for _, p := range preds {
		if p.Label == "" {
			return nil, apperrors.New(apperrors.KindValidation, "prediction label must not be empty")
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, apperrors.Newf(apperrors.KindValidation, "confidence %v out of range [0,1]", p.Confidence)
		}
	}

	sorted := make([]models.Prediction, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	preds = sorted

	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerUserID != caller.UserID && !caller.isAdmin() {
		return nil, apperrors.Newf(apperrors.KindForbidden, "session %s belongs to another user", sessionID)
	}
	if sess.Status.Terminal() {
		return nil, apperrors.Newf(apperrors.KindSessionFinalized, "session is %s", sess.Status)
	}

	if err := s.store.SetMLResult(ctx, sessionID, preds); err != nil {
		return nil, err
	}
	sess.MLResult = preds
	s.log.Info("classifier result attached",
		zap.String("session_id", sessionID), zap.Int("predictions", len(preds)))
	return sess, nil
}

// Identify runs the classifier over an image and attaches both the
// image and the ranked result to the session.
func (s *Service) Identify(ctx context.Context, sessionID string, caller Caller, image []byte, contentType string) (*models.SessionModel, error) {
	if _, err := s.AttachImage(ctx, sessionID, caller, image, contentType); err != nil {
		return nil, err
	}
	preds, err := s.identifier.Identify(ctx, image)
	if err != nil {
		return nil, err
	}
	return s.AttachResult(ctx, sessionID, caller, preds)
}
