package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/pagination"
	"github.com/lokatani/scale-core/internal/pkg/response"
)

// fakeStore implements Storage in memory with the same conditional
// update semantics as the MySQL store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.SessionModel
	records  []models.WeightRecordModel
	seq      int
	clock    time.Time

	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*models.SessionModel),
		clock:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeStore) Create(_ context.Context, s *models.SessionModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.seq++
	if s.ID == "" {
		s.ID = fmt.Sprintf("%s%04d", s.Variant.IDPrefix(), f.seq)
	}
	s.CreatedAt = f.tick()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeStore) get(id string) (*models.SessionModel, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*models.SessionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	return f.get(id)
}

func (f *fakeStore) GetWithRecords(_ context.Context, id string) (*models.SessionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return nil, err
	}
	for _, r := range f.records {
		if r.SessionID == id {
			s.Records = append(s.Records, r)
		}
	}
	return s, nil
}

func (f *fakeStore) ListByOwner(_ context.Context, ownerID string, q pagination.Query) ([]models.SessionModel, response.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.SessionModel
	for _, s := range f.sessions {
		if ownerID == "" || s.OwnerUserID == ownerID {
			items = append(items, *s)
		}
	}
	return items, response.Pagination{Total: int64(len(items)), CurrentPage: 1, TotalPage: 1, Size: len(items)}, nil
}

func (f *fakeStore) ActiveCandidates(_ context.Context, deviceID string) ([]models.SessionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	var items []models.SessionModel
	for _, s := range f.sessions {
		if s.Status != models.StatusInProgress {
			continue
		}
		if s.DeviceID == nil || *s.DeviceID == deviceID {
			items = append(items, *s)
		}
	}
	return items, nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, id string, from, to models.SessionStatus, completedAt *time.Time) (*models.SessionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "session %s not found", id)
	}
	if s.Status != from {
		return nil, apperrors.Newf(apperrors.KindInvalidStateTransition,
			"session %s is %s, cannot transition to %s", id, s.Status, to)
	}
	s.Status = to
	if completedAt != nil {
		t := *completedAt
		s.CompletedAt = &t
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) BindDevice(_ context.Context, id, deviceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return false, err
	}
	s, ok := f.sessions[id]
	if !ok || s.Status != models.StatusInProgress || s.DeviceID != nil {
		return false, nil
	}
	d := deviceID
	s.DeviceID = &d
	return true, nil
}

func (f *fakeStore) AppendWeight(_ context.Context, sessionID, deviceID string, value float64, recordedAt time.Time) (*models.WeightRecordModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := f.sessions[sessionID]
	if !ok || s.Status != models.StatusInProgress || s.DeviceID == nil || *s.DeviceID != deviceID {
		return nil, apperrors.Newf(apperrors.KindSessionClosed,
			"session %s was finalized or rebound during ingestion", sessionID)
	}
	s.TotalWeight += value
	s.SampleCount++
	rec := models.WeightRecordModel{
		SessionID:  sessionID,
		DeviceID:   deviceID,
		Value:      value,
		RecordedAt: recordedAt,
	}
	rec.ID = fmt.Sprintf("rec-%04d", len(f.records)+1)
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeStore) SetImageURL(_ context.Context, id, url string) error {
	return f.setIfOpen(id, func(s *models.SessionModel) { s.ImageURL = &url })
}

func (f *fakeStore) SetMLResult(_ context.Context, id string, results []models.Prediction) error {
	return f.setIfOpen(id, func(s *models.SessionModel) { s.MLResult = results })
}

func (f *fakeStore) setIfOpen(id string, apply func(*models.SessionModel)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	s, ok := f.sessions[id]
	if !ok {
		return apperrors.Newf(apperrors.KindNotFound, "session %s not found", id)
	}
	if s.Status != models.StatusInProgress {
		return apperrors.Newf(apperrors.KindSessionFinalized, "session %s is already finalized", id)
	}
	apply(s)
	return nil
}

// mustSeed inserts a session directly, bypassing Create.
func (f *fakeStore) mustSeed(s models.SessionModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := s
	f.sessions[s.ID] = &cp
}

var _ Storage = (*fakeStore)(nil)
