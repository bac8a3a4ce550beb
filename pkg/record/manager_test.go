package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

var (
	responder = auth.User{ID: "u1", TenantID: "t1"}
	admin     = auth.User{ID: "a1", TenantID: "t1", IsAdmin: true}
)

func f64(v float64) *float64 { return &v }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	conn, err := db.NewConnection(&db.Config{Driver: db.DriverSQLite, Path: ":memory:", LogLevel: "silent"}, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	policy, err := auth.NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	m := NewManager(conn.DB(), policy, nil)
	m.now = func() time.Time { return time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC) }
	return m
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Get(ctx, "t1", "inc-1"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	first, err := m.Init(ctx, "t1", &InitRequest{IncendioUUID: "inc-1"}, responder)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{Causa: &closure.Referencia{ID: "c1"}}, responder); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	second, err := m.Init(ctx, "t1", &InitRequest{IncendioUUID: "inc-1"}, responder)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if first.IncendioUUID != "inc-1" || second.Causa == nil || second.Causa.ID != "c1" {
		t.Fatalf("second Init() = %+v, want existing record", second)
	}
}

func TestPatchIsSparse(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	if _, err := m.Init(ctx, "t1", &InitRequest{IncendioUUID: "inc-1"}, responder); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{
		Superficie: &closure.Superficie{DentroAPHa: f64(1.5), FueraAPHa: f64(2)},
		Tecnicas:   []closure.Tecnica{{Tecnica: closure.SlugDirecto, Pct: 60}},
	}, responder)
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	rec, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{
		Tecnicas: []closure.Tecnica{{Tecnica: closure.SlugIndirecto, Pct: 20}},
	}, responder)
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	if rec.Superficie == nil || rec.Superficie.AreaTotalHa == nil || *rec.Superficie.AreaTotalHa != 3.5 {
		t.Fatalf("superficie = %+v, want total 3.5 kept", rec.Superficie)
	}
	if len(rec.Tecnicas) != 1 || rec.Tecnicas[0].Tecnica != closure.SlugIndirecto {
		t.Fatalf("tecnicas = %+v, want replaced group", rec.Tecnicas)
	}

	stored, err := m.Get(ctx, "t1", "inc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Superficie == nil || len(stored.Tecnicas) != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestFinalizeAndReopen(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	controlado := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	if _, err := m.Init(ctx, "t1", &InitRequest{IncendioUUID: "inc-1"}, responder); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{
		SecuenciaControl: &closure.SecuenciaControl{ControladoAt: &controlado},
	}, responder); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	rec, err := m.Finalizar(ctx, "t1", "inc-1", responder)
	if err != nil {
		t.Fatalf("Finalizar() error = %v", err)
	}
	if rec.EstadoCierre != string(lifecycle.Extinguido) || rec.SecuenciaControl.ExtinguidoAt == nil {
		t.Fatalf("Finalizar() = %+v", rec)
	}

	if _, err := m.Finalizar(ctx, "t1", "inc-1", responder); !errors.Is(err, lifecycle.ErrAlreadyExtinguished) {
		t.Fatalf("second Finalizar() error = %v, want ErrAlreadyExtinguished", err)
	}
	if _, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{Nota: new(string)}, responder); !errors.Is(err, lifecycle.ErrLocked) {
		t.Fatalf("Patch(extinguished) error = %v, want ErrLocked", err)
	}
	nota := "revisado"
	patched, err := m.Patch(ctx, "t1", "inc-1", &closure.Payload{Nota: &nota}, admin)
	if err != nil {
		t.Fatalf("Patch(extinguished, admin) error = %v", err)
	}
	if patched.Nota == nil || *patched.Nota != nota || patched.EstadoCierre != string(lifecycle.Extinguido) {
		t.Fatalf("Patch(extinguished, admin) = %+v", patched)
	}
	if _, err := m.Reabrir(ctx, "t1", "inc-1", responder); !errors.Is(err, lifecycle.ErrAdminRequired) {
		t.Fatalf("Reabrir(responder) error = %v, want ErrAdminRequired", err)
	}

	rec, err = m.Reabrir(ctx, "t1", "inc-1", admin)
	if err != nil {
		t.Fatalf("Reabrir() error = %v", err)
	}
	if rec.EstadoCierre != "" || rec.SecuenciaControl.ExtinguidoAt != nil {
		t.Fatalf("Reabrir() = %+v", rec)
	}
	if st := lifecycle.Resolve(rec.EstadoCierre, rec.SecuenciaControl); st != lifecycle.Controlado {
		t.Fatalf("state after reopen = %s, want Controlado", st)
	}

	again, err := m.Reabrir(ctx, "t1", "inc-1", admin)
	if err != nil {
		t.Fatalf("Reabrir(not extinguished) error = %v", err)
	}
	if again.SecuenciaControl.ControladoAt == nil {
		t.Fatalf("Reabrir(not extinguished) changed the record: %+v", again)
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	if _, err := m.Init(ctx, "t1", &InitRequest{IncendioUUID: "inc-1"}, responder); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := m.Finalizar(ctx, "t2", "inc-1", admin); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("Finalizar(other tenant) error = %v, want ErrNotFound", err)
	}
}
