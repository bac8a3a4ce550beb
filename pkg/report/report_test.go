package report

import (
	"strings"
	"testing"
	"time"

	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/form"
)

func f64(v float64) *float64 { return &v }

func TestRecordSummary(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	controlado := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	rec := &closure.Record{
		IncendioUUID: "inc-1",
		Payload: closure.Payload{
			Superficie:       &closure.Superficie{DentroAPHa: f64(1.5), FueraAPHa: f64(2)},
			Causa:            &closure.Referencia{ID: "c1", OtroTexto: "quema agrícola"},
			SecuenciaControl: &closure.SecuenciaControl{ControladoAt: &controlado},
			Tecnicas:         []closure.Tecnica{{Tecnica: closure.SlugDirecto, Pct: 50}},
		},
	}
	rec.Normalize()
	cats := &closure.Catalogs{Causas: []closure.CatalogItem{{ID: "c1", Nombre: "Otra"}}}

	out, err := r.Record(rec, cats)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	for _, want := range []string{
		"Incendio inc-1",
		"Estado: Controlado",
		"total: 3.5 ha",
		"Otra (quema agrícola)",
		"controlado: 2024-03-05 12:30",
		"directo: 50%",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestEmptyRecordSummary(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	out, err := r.Record(&closure.Record{IncendioUUID: "inc-2"}, nil)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.Contains(out, "Estado: Pendiente") || !strings.Contains(out, "(sin datos de cierre)") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestFormSummary(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	apoyo := form.Field{ID: "f1", Name: "Tipo de apoyo", Type: form.FieldTypeSelect, Options: []form.Option{
		{Value: "terrestre", Label: "Terrestre"},
		{Value: "aereo", Label: "Aéreo", RequiresPercentage: true},
	}}
	resumen := form.Field{ID: "f2", Name: "Resumen", Type: form.FieldTypeTextarea, Required: true}
	mapa := form.Field{ID: "f3", Name: "Mapa", Type: "map"}
	tpl := form.Template{Name: "Cierre v2", Version: 3, Sections: []form.Section{
		{Name: "Recursos", Fields: []form.Field{apoyo, resumen, mapa}},
	}}

	values := form.NewValues()
	values.Set("f1", form.SetPercentage(apoyo, form.Select(apoyo, nil, "aereo"), "aereo", "75"))

	out, err := r.Form(tpl, values, map[string]string{"f2": form.MsgRequired}, false)
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}
	for _, want := range []string{
		"Cierre v2 (v3)",
		"== Recursos ==",
		"Tipo de apoyo: Aéreo 75%",
		"Resumen *: -  <required field>",
		"Campos no soportados: Mapa",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
