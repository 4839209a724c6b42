package ml

import (
	"context"
	"sort"
	"sync"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/blob"
	"go.uber.org/zap"
)

// Identifier classifies a vegetable image into ranked predictions.
type Identifier interface {
	Identify(ctx context.Context, image []byte) ([]models.Prediction, error)
}

// Loader fetches the raw model artifact.
type Loader func(ctx context.Context) ([]byte, error)

// InferenceFunc runs the loaded model handle over an image.
type InferenceFunc func(handle, image []byte) ([]models.Prediction, error)

// Model is a lazily loaded classifier. The artifact is fetched on the
// first Identify call; the mutex makes concurrent first callers wait
// for the single load instead of racing it, and a failed load is
// retried by the next caller.
type Model struct {
	mu     sync.Mutex
	loaded bool
	handle []byte

	load  Loader
	infer InferenceFunc
	log   *zap.Logger
}

func NewModel(load Loader, infer InferenceFunc, log *zap.Logger) *Model {
	if infer == nil {
		infer = staticInference
	}
	return &Model{load: load, infer: infer, log: log}
}

// FromBlob loads the model artifact from object storage under key.
func FromBlob(store blob.Store, key string) Loader {
	return func(ctx context.Context) ([]byte, error) {
		return store.Get(ctx, key)
	}
}

func (m *Model) Identify(ctx context.Context, image []byte) ([]models.Prediction, error) {
	if len(image) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "image payload is empty")
	}

	handle, err := m.ensureLoaded(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "classifier model unavailable", err)
	}

	preds, err := m.infer(handle, image)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "inference failed", err)
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Confidence > preds[j].Confidence })
	return preds, nil
}

func (m *Model) ensureLoaded(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.handle, nil
	}
	handle, err := m.load(ctx)
	if err != nil {
		m.log.Error("model load failed", zap.Error(err))
		return nil, err
	}
	m.handle = handle
	m.loaded = true
	m.log.Info("classifier model loaded", zap.Int("bytes", len(handle)))
	return m.handle, nil
}

// staticInference stands in for the real classifier while the trained
// artifact only carries labels. It returns a fixed ranking.
func staticInference(_, _ []byte) ([]models.Prediction, error) {
	return []models.Prediction{
		{Label: "bayam merah", Confidence: 0.90},
		{Label: "kangkung", Confidence: 0.06},
		{Label: "pakcoy", Confidence: 0.04},
	}, nil
}
