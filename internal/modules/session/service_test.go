package session

import (
	"context"
	"testing"
	"time"

	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"go.uber.org/zap"
)

func newTestService(store Storage) *Service {
	svc := NewService(store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestInitiate(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		variant  models.SessionVariant
		wantKind apperrors.Kind
		wantPfx  string
	}{
		{name: "product", owner: "u1", variant: models.VariantProduct, wantPfx: "prod_"},
		{name: "rompes", owner: "u1", variant: models.VariantRompes, wantPfx: "rompes_"},
		{name: "missing owner", owner: "", variant: models.VariantProduct, wantKind: apperrors.KindValidation},
		{name: "unknown variant", owner: "u1", variant: "bundles", wantKind: apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeStore())
			sess, err := svc.Initiate(context.Background(), tt.owner, tt.variant)
			if tt.wantKind != 0 {
				if apperrors.KindOf(err) != tt.wantKind {
					t.Fatalf("kind = %v, want %v (err=%v)", apperrors.KindOf(err), tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initiate: %v", err)
			}
			if sess.Status != models.StatusInProgress {
				t.Errorf("status = %s, want in_progress", sess.Status)
			}
			if sess.TotalWeight != 0 || sess.SampleCount != 0 {
				t.Errorf("aggregates not zero: %v / %v", sess.TotalWeight, sess.SampleCount)
			}
			if sess.DeviceID != nil {
				t.Errorf("new session must be unbound, got %v", *sess.DeviceID)
			}
			if got := sess.ID[:len(tt.wantPfx)]; got != tt.wantPfx {
				t.Errorf("id prefix = %q, want %q", got, tt.wantPfx)
			}
		})
	}
}

func TestCompleteStampsCompletedAt(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sess, err := svc.Initiate(context.Background(), "u1", models.VariantProduct)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	done, err := svc.Complete(context.Background(), sess.ID, Caller{UserID: "u1"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("completedAt not stamped")
	}
}

func TestAbortLeavesCompletedAtEmpty(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sess, _ := svc.Initiate(context.Background(), "u1", models.VariantRompes)
	done, err := svc.Abort(context.Background(), sess.ID, Caller{UserID: "u1"})
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if done.Status != models.StatusAborted {
		t.Errorf("status = %s, want aborted", done.Status)
	}
	if done.CompletedAt != nil {
		t.Errorf("completedAt = %v, want nil", done.CompletedAt)
	}
}

func TestTransitionGuards(t *testing.T) {
	tests := []struct {
		name     string
		seed     models.SessionModel
		id       string
		caller   Caller
		wantKind apperrors.Kind
	}{
		{
			name:     "not found",
			id:       "prod_missing",
			caller:   Caller{UserID: "u1"},
			wantKind: apperrors.KindNotFound,
		},
		{
			name: "foreign owner",
			seed: models.SessionModel{
				Base: models.Base{ID: "prod_a"}, OwnerUserID: "u2",
				Status: models.StatusInProgress, Variant: models.VariantProduct,
			},
			id:       "prod_a",
			caller:   Caller{UserID: "u1"},
			wantKind: apperrors.KindForbidden,
		},
		{
			name: "already completed",
			seed: models.SessionModel{
				Base: models.Base{ID: "prod_b"}, OwnerUserID: "u1",
				Status: models.StatusCompleted, Variant: models.VariantProduct,
			},
			id:       "prod_b",
			caller:   Caller{UserID: "u1"},
			wantKind: apperrors.KindInvalidStateTransition,
		},
		{
			name: "already aborted",
			seed: models.SessionModel{
				Base: models.Base{ID: "prod_c"}, OwnerUserID: "u1",
				Status: models.StatusAborted, Variant: models.VariantProduct,
			},
			id:       "prod_c",
			caller:   Caller{UserID: "u1"},
			wantKind: apperrors.KindInvalidStateTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.seed.ID != "" {
				store.mustSeed(tt.seed)
			}
			svc := newTestService(store)
			_, err := svc.Complete(context.Background(), tt.id, tt.caller)
			if apperrors.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v (err=%v)", apperrors.KindOf(err), tt.wantKind, err)
			}
		})
	}
}

func TestAdminMayCompleteForeignSession(t *testing.T) {
	store := newFakeStore()
	store.mustSeed(models.SessionModel{
		Base: models.Base{ID: "prod_x"}, OwnerUserID: "u2",
		Status: models.StatusInProgress, Variant: models.VariantProduct,
	})
	svc := newTestService(store)

	done, err := svc.Complete(context.Background(), "prod_x", Caller{UserID: "admin1", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Complete as admin: %v", err)
	}
	if done.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
}

func TestConcurrentCompleteHasOneWinner(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	sess, _ := svc.Initiate(context.Background(), "u1", models.VariantProduct)

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := svc.Complete(context.Background(), sess.ID, Caller{UserID: "u1"})
			errs <- err
		}()
	}

	var wins, conflicts int
	for i := 0; i < callers; i++ {
		err := <-errs
		switch {
		case err == nil:
			wins++
		case apperrors.Is(err, apperrors.KindInvalidStateTransition):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if conflicts != callers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, callers-1)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	store := newFakeStore()
	store.mustSeed(models.SessionModel{
		Base: models.Base{ID: "prod_y"}, OwnerUserID: "u2",
		Status: models.StatusInProgress, Variant: models.VariantProduct,
	})
	svc := newTestService(store)

	if _, err := svc.Get(context.Background(), "prod_y", Caller{UserID: "u1"}); apperrors.KindOf(err) != apperrors.KindForbidden {
		t.Errorf("kind = %v, want Forbidden", apperrors.KindOf(err))
	}
	if _, err := svc.Get(context.Background(), "prod_y", Caller{UserID: "u3", Role: models.RoleAdmin}); err != nil {
		t.Errorf("admin get: %v", err)
	}
}
