package session

import (
	"context"
	"sort"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
)

// Presence exposes the device status tracker's last known state. A
// device that reported an error is not served an active session until it
// reports healthy again.
type Presence interface {
	LastStatus(ctx context.Context, deviceID string) (models.DeviceStatus, bool)
}

// Resolver answers which session a device's next weight sample should be
// attributed to. It never returns a session that is not in_progress; the
// query filters on status and the eventual bind/append re-check it.
type Resolver struct {
	store    Storage
	presence Presence
}

func NewResolver(store Storage, presence Presence) *Resolver {
	return &Resolver{store: store, presence: presence}
}

// Resolve picks the most recently created in_progress session that is
// bound to the device or unbound, ties broken by the lexicographically
// smaller session ID. Resolution does not bind: binding is the writer's
// job, conditional on the session still being unbound.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (*models.SessionModel, error) {
	if deviceID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "device id is required")
	}
	if r.presence != nil {
		if status, ok := r.presence.LastStatus(ctx, deviceID); ok && status == models.DeviceError {
			return nil, apperrors.Newf(apperrors.KindNoActiveSession,
				"device %s reported an error state; not assigning a session", deviceID)
		}
	}

	candidates, err := r.store.ActiveCandidates(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperrors.Newf(apperrors.KindNoActiveSession,
			"no active weighing session for device %s", deviceID)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	sess := candidates[0]
	return &sess, nil
}
