package session

import (
	"context"
	"testing"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/modules/device"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"go.uber.org/zap"
)

type fakePresence struct {
	status map[string]models.DeviceStatus
}

func (f *fakePresence) LastStatus(_ context.Context, deviceID string) (models.DeviceStatus, bool) {
	s, ok := f.status[deviceID]
	return s, ok
}

func at(sec int) time.Time {
	return time.Date(2026, 8, 1, 10, 0, sec, 0, time.UTC)
}

func seedSession(store *fakeStore, id string, createdAt time.Time, status models.SessionStatus, deviceID *string) {
	store.mustSeed(models.SessionModel{
		Base:        models.Base{ID: id, CreatedAt: createdAt},
		OwnerUserID: "u1",
		Variant:     models.VariantProduct,
		Status:      status,
		DeviceID:    deviceID,
	})
}

func TestResolve(t *testing.T) {
	dev := "scale-01"
	other := "scale-02"

	tests := []struct {
		name     string
		seed     func(*fakeStore)
		deviceID string
		wantID   string
		wantKind apperrors.Kind
	}{
		{
			name:     "empty device id",
			seed:     func(*fakeStore) {},
			deviceID: "",
			wantKind: apperrors.KindValidation,
		},
		{
			name:     "no sessions at all",
			seed:     func(*fakeStore) {},
			deviceID: dev,
			wantKind: apperrors.KindNoActiveSession,
		},
		{
			name: "only terminal sessions",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_1", at(1), models.StatusCompleted, &dev)
				seedSession(s, "prod_2", at(2), models.StatusAborted, nil)
			},
			deviceID: dev,
			wantKind: apperrors.KindNoActiveSession,
		},
		{
			name: "single unbound session",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_1", at(1), models.StatusInProgress, nil)
			},
			deviceID: dev,
			wantID:   "prod_1",
		},
		{
			name: "most recent of two unbound wins",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_s2", at(10), models.StatusInProgress, nil)
				seedSession(s, "prod_s3", at(20), models.StatusInProgress, nil)
			},
			deviceID: dev,
			wantID:   "prod_s3",
		},
		{
			name: "equal timestamps break on smaller id",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_bbb", at(10), models.StatusInProgress, nil)
				seedSession(s, "prod_aaa", at(10), models.StatusInProgress, nil)
			},
			deviceID: dev,
			wantID:   "prod_aaa",
		},
		{
			name: "sessions bound to another device are ignored",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_theirs", at(20), models.StatusInProgress, &other)
				seedSession(s, "prod_open", at(10), models.StatusInProgress, nil)
			},
			deviceID: dev,
			wantID:   "prod_open",
		},
		{
			name: "own bound session beats older unbound",
			seed: func(s *fakeStore) {
				seedSession(s, "prod_old", at(10), models.StatusInProgress, nil)
				seedSession(s, "prod_mine", at(20), models.StatusInProgress, &dev)
			},
			deviceID: dev,
			wantID:   "prod_mine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			tt.seed(store)
			r := NewResolver(store, nil)

			sess, err := r.Resolve(context.Background(), tt.deviceID)
			if tt.wantKind != 0 {
				if apperrors.KindOf(err) != tt.wantKind {
					t.Fatalf("kind = %v, want %v (err=%v)", apperrors.KindOf(err), tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if sess.ID != tt.wantID {
				t.Errorf("resolved %s, want %s", sess.ID, tt.wantID)
			}
		})
	}
}

func TestResolveRefusesErroredDevice(t *testing.T) {
	store := newFakeStore()
	seedSession(store, "prod_1", at(1), models.StatusInProgress, nil)

	presence := &fakePresence{status: map[string]models.DeviceStatus{
		"scale-bad": models.DeviceError,
		"scale-ok":  models.DeviceOnline,
	}}
	r := NewResolver(store, presence)

	if _, err := r.Resolve(context.Background(), "scale-bad"); !apperrors.Is(err, apperrors.KindNoActiveSession) {
		t.Errorf("errored device: got %v, want NoActiveSession", err)
	}
	if _, err := r.Resolve(context.Background(), "scale-ok"); err != nil {
		t.Errorf("healthy device: %v", err)
	}
	// Unknown devices are served; absence of status is not an error state.
	if _, err := r.Resolve(context.Background(), "scale-new"); err != nil {
		t.Errorf("unknown device: %v", err)
	}
}

type memDeviceStore struct {
	devices map[string]*models.DeviceModel
}

func (m *memDeviceStore) UpsertStatus(_ context.Context, deviceID string, status models.DeviceStatus, seenAt time.Time, _ device.StatusMeta) error {
	m.devices[deviceID] = &models.DeviceModel{DeviceID: deviceID, LastStatus: status, LastSeenAt: seenAt}
	return nil
}

func (m *memDeviceStore) Touch(_ context.Context, deviceID string, seenAt time.Time) error {
	dev, ok := m.devices[deviceID]
	if !ok {
		dev = &models.DeviceModel{DeviceID: deviceID, LastStatus: models.DeviceOnline}
		m.devices[deviceID] = dev
	}
	if dev.LastStatus != models.DeviceError {
		dev.LastStatus = models.DeviceOnline
	}
	dev.LastSeenAt = seenAt
	return nil
}

func (m *memDeviceStore) Find(_ context.Context, deviceID string) (*models.DeviceModel, error) {
	if d, ok := m.devices[deviceID]; ok {
		return d, nil
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "device %s not found", deviceID)
}

// A heartbeat between an error report and resolution must not unmask the
// error: only an explicit healthy status puts the device back in rotation.
func TestResolveRefusalSurvivesHeartbeat(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedSession(store, "prod_1", at(1), models.StatusInProgress, nil)

	tracker := device.NewTracker(&memDeviceStore{devices: make(map[string]*models.DeviceModel)}, nil, zap.NewNop())
	r := NewResolver(store, tracker)

	if err := tracker.RecordStatus(ctx, "scale-01", models.DeviceError, device.StatusMeta{}); err != nil {
		t.Fatalf("RecordStatus: %v", err)
	}
	if err := tracker.Heartbeat(ctx, "scale-01"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	if _, err := r.Resolve(ctx, "scale-01"); !apperrors.Is(err, apperrors.KindNoActiveSession) {
		t.Errorf("after heartbeat: got %v, want NoActiveSession", err)
	}

	if err := tracker.RecordStatus(ctx, "scale-01", models.DeviceOnline, device.StatusMeta{}); err != nil {
		t.Fatalf("RecordStatus: %v", err)
	}
	sess, err := r.Resolve(ctx, "scale-01")
	if err != nil {
		t.Fatalf("after recovery: %v", err)
	}
	if sess.ID != "prod_1" {
		t.Errorf("resolved %s, want prod_1", sess.ID)
	}
}

func TestResolveNeverBinds(t *testing.T) {
	store := newFakeStore()
	seedSession(store, "prod_1", at(1), models.StatusInProgress, nil)
	r := NewResolver(store, nil)

	if _, err := r.Resolve(context.Background(), "scale-01"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	stored, _ := store.GetByID(context.Background(), "prod_1")
	if stored.DeviceID != nil {
		t.Errorf("resolution bound the session to %s", *stored.DeviceID)
	}
}
