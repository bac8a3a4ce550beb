package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/yourorg/fire-closure/pkg/closure"
)

func TestInfer(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		seq  *closure.SecuenciaControl
		want State
	}{
		{"nil", nil, Pendiente},
		{"empty", &closure.SecuenciaControl{}, Pendiente},
		{"ground arrival", &closure.SecuenciaControl{LlegadaMediosTerrestresAt: &now}, EnAtencion},
		{"air arrival", &closure.SecuenciaControl{LlegadaMediosAereosAt: &now}, EnAtencion},
		{"controlled", &closure.SecuenciaControl{LlegadaMediosAereosAt: &now, ControladoAt: &now}, Controlado},
		{"extinguished only", &closure.SecuenciaControl{ExtinguidoAt: &now}, Extinguido},
		{"extinguished wins", &closure.SecuenciaControl{
			LlegadaMediosTerrestresAt: &now, ControladoAt: &now, ExtinguidoAt: &now,
		}, Extinguido},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Infer(tt.seq); got != tt.want {
				t.Fatalf("Infer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	now := time.Now()
	seq := &closure.SecuenciaControl{ControladoAt: &now}

	if got := Resolve("EN ATENCION", seq); got != EnAtencion {
		t.Fatalf("Resolve() = %q, want authoritative %q", got, EnAtencion)
	}
	if got := Resolve("", seq); got != Controlado {
		t.Fatalf("Resolve() = %q, want inferred %q", got, Controlado)
	}
	if got := Resolve("bogus", seq); got != Controlado {
		t.Fatalf("Resolve() = %q, want inferred %q", got, Controlado)
	}
}

func TestGuards(t *testing.T) {
	if err := CanFinalize(Extinguido, false); !errors.Is(err, ErrAlreadyExtinguished) {
		t.Fatalf("CanFinalize(Extinguido) = %v", err)
	}
	if err := CanFinalize(Extinguido, true); err != nil {
		t.Fatalf("CanFinalize admin = %v", err)
	}
	if err := CanFinalize(Controlado, false); err != nil {
		t.Fatalf("CanFinalize(Controlado) = %v", err)
	}
	if err := CanReopen(Extinguido, false); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("CanReopen non-admin = %v", err)
	}
	if err := CanReopen(Controlado, true); !errors.Is(err, ErrNotExtinguished) {
		t.Fatalf("CanReopen not extinguished = %v", err)
	}
	if err := CanReopen(Extinguido, true); err != nil {
		t.Fatalf("CanReopen admin = %v", err)
	}
	if err := CanEdit(Extinguido, false); !errors.Is(err, ErrLocked) {
		t.Fatalf("CanEdit locked = %v", err)
	}
	if err := CanEdit(Extinguido, true); err != nil {
		t.Fatalf("CanEdit admin = %v", err)
	}
}
