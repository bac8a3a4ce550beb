package closure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestSuperficieTotal(t *testing.T) {
	tests := []struct {
		name          string
		dentro, fuera *float64
		want          *float64
	}{
		{"both nil", nil, nil, nil},
		{"only dentro", f64(2.5), nil, f64(2.5)},
		{"only fuera", nil, f64(4), f64(4)},
		{"both", f64(1.25), f64(3.75), f64(5)},
		{"zero", f64(0), nil, f64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuperficieTotal(tt.dentro, tt.fuera)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SuperficieTotal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInferSlug(t *testing.T) {
	tests := []struct {
		name string
		want Slug
		ok   bool
	}{
		{"Ataque Directo", SlugDirecto, true},
		{"Control Directo", SlugDirecto, true},
		{"Ataque indirecto", SlugIndirecto, true},
		{"INDIRECTO", SlugIndirecto, true},
		{"Control natural", SlugControlNatural, true},
		{"Contról Natúral del fuego", SlugControlNatural, true},
		{"Línea de defensa", "", false},
	}
	for _, tt := range tests {
		got, ok := InferSlug(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("InferSlug(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTechniqueMapperExplicitWins(t *testing.T) {
	m, err := NewTechniqueMapper(map[string]string{"t1": "indirecto"}, nil)
	if err != nil {
		t.Fatalf("NewTechniqueMapper() error = %v", err)
	}
	slug, ok := m.SlugFor(CatalogItem{ID: "t1", Nombre: "Ataque directo"})
	if !ok || slug != SlugIndirecto {
		t.Fatalf("SlugFor() = %q, %v; want indirecto", slug, ok)
	}
	if slug, _ := m.SlugFor(CatalogItem{ID: "T1", Nombre: "Ataque directo"}); slug != SlugIndirecto {
		t.Fatalf("SlugFor(T1) = %q, want indirecto", slug)
	}

	if _, err := NewTechniqueMapper(map[string]string{"t1": "aereo"}, nil); err == nil {
		t.Fatal("expected error for invalid slug")
	}
}

func TestTechniqueMapperSnapshot(t *testing.T) {
	m, err := NewTechniqueMapper(map[string]string{"c": "indirecto"}, nil)
	if err != nil {
		t.Fatalf("NewTechniqueMapper() error = %v", err)
	}
	catalog := []CatalogItem{
		{ID: "a", Nombre: "Ataque directo"},
		{ID: "c", Nombre: "Cortafuego"},
		{ID: "z", Nombre: "Otro"},
	}
	got := m.Snapshot(catalog)
	want := map[string]string{"a": "directo", "c": "indirecto"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}

	// feeding the snapshot back pins every resolved item
	pinned, err := NewTechniqueMapper(got, nil)
	if err != nil {
		t.Fatalf("NewTechniqueMapper(snapshot) error = %v", err)
	}
	if unmapped := pinned.Unmapped(catalog); len(unmapped) != 1 || unmapped[0].ID != "z" {
		t.Fatalf("Unmapped() = %v, want only z", unmapped)
	}
}

func TestAggregateSumsAndDrops(t *testing.T) {
	catalog := []CatalogItem{
		{ID: "a", Nombre: "Ataque directo"},
		{ID: "b", Nombre: "Control directo"},
		{ID: "c", Nombre: "Cortafuego"},
		{ID: "d", Nombre: "Control natural"},
	}
	var m *TechniqueMapper
	sums, dropped := m.Aggregate(map[string]float64{"a": 20, "b": 30, "c": 10, "d": 5}, catalog)
	if sums[SlugDirecto] != 50 || sums[SlugControlNatural] != 5 {
		t.Fatalf("unexpected sums %v", sums)
	}
	if !reflect.DeepEqual(dropped, []string{"c"}) {
		t.Fatalf("dropped = %v, want [c]", dropped)
	}
	if un := m.Unmapped(catalog); len(un) != 1 || un[0].ID != "c" {
		t.Fatalf("Unmapped() = %v", un)
	}
}

func TestValidateBeforeSave(t *testing.T) {
	catalog := []CatalogItem{{ID: "a", Nombre: "Directo"}, {ID: "b", Nombre: "Indirecto"}}

	t.Run("within epsilon", func(t *testing.T) {
		s := NewFormState()
		s.Composicion["x"] = 60
		s.Composicion["y"] = 40.00005
		s.Topografia = Topografia{PlanoPct: f64(100)}
		if err := ValidateBeforeSave(s, catalog, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	boundaries := []struct {
		name     string
		tecnicas map[string]float64
		aereos   map[string]float64
		fields   []string
	}{
		{"tecnicas exactly 100", map[string]float64{"a": 60, "b": 40}, nil, nil},
		{"tecnicas all zero", map[string]float64{"a": 0, "b": 0}, nil, nil},
		{"tecnicas just over", map[string]float64{"a": 60, "b": 40.001}, nil, []string{FieldTecnicas}},
		{"aereos exactly 100", nil, map[string]float64{"h1": 100}, nil},
		{"aereos all zero", nil, map[string]float64{"h1": 0, "h2": 0}, nil},
		{"aereos just over", nil, map[string]float64{"h1": 50, "h2": 50.001}, []string{FieldMediosAereos}},
	}
	for _, tt := range boundaries {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFormState()
			for id, pct := range tt.tecnicas {
				s.Tecnicas[id] = pct
			}
			for id, pct := range tt.aereos {
				s.MediosAereos[id] = pct
			}
			err := ValidateBeforeSave(s, catalog, nil)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("ValidateBeforeSave() error = %v", err)
				}
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateBeforeSave() error = %v, want ValidationErrors", err)
			}
			byField := verrs.ByField()
			if len(byField) != len(tt.fields) {
				t.Fatalf("errors = %v, want only %v", byField, tt.fields)
			}
			for _, f := range tt.fields {
				if _, ok := byField[f]; !ok {
					t.Fatalf("missing error for %s: %v", f, byField)
				}
			}
		})
	}

	t.Run("every offending group reported", func(t *testing.T) {
		s := NewFormState()
		s.Tecnicas["a"] = 70
		s.Tecnicas["b"] = 40
		s.MediosAereos["h1"] = 101
		s.Composicion["x"] = 50
		s.Topografia = Topografia{PlanoPct: f64(50), OnduladoPct: f64(30), QuebradoPct: f64(30)}
		err := ValidateBeforeSave(s, catalog, nil)
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			t.Fatalf("expected ValidationErrors, got %v", err)
		}
		got := verrs.ByField()
		for _, f := range []string{FieldTecnicas, FieldMediosAereos, FieldTopografia} {
			if _, ok := got[f]; !ok {
				t.Fatalf("missing error for %s in %v", f, got)
			}
		}
		if _, ok := got[FieldComposicion]; ok {
			t.Fatalf("composicion should be valid: %v", got)
		}
	})
}

func TestBuildPayloadSparse(t *testing.T) {
	s := NewFormState()
	s.Composicion["forestal"] = 0
	s.MediosTerrestres["camion"] = 0
	s.Nota = "   "

	raw, err := json.Marshal(BuildPayload(s, nil, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("empty state payload = %s, want {}", raw)
	}

	s.DentroAPHa = f64(1.5)
	s.Causa = Referencia{ID: "rayo"}
	p := BuildPayload(s, nil, nil)
	if got := p.Groups(); !reflect.DeepEqual(got, []string{"superficie", "causa"}) {
		t.Fatalf("Groups() = %v", got)
	}
	if p.Superficie.AreaTotalHa == nil || *p.Superficie.AreaTotalHa != 1.5 {
		t.Fatalf("area_total_ha = %v, want 1.5", p.Superficie.AreaTotalHa)
	}
}

func TestBuildPayloadTopografiaZeroOmitted(t *testing.T) {
	s := NewFormState()
	s.Topografia = Topografia{PlanoPct: f64(0)}
	if p := BuildPayload(s, nil, nil); p.Topografia != nil {
		t.Fatalf("expected topografia omitted, got %+v", p.Topografia)
	}
	s.Topografia.OnduladoPct = f64(20)
	if p := BuildPayload(s, nil, nil); p.Topografia == nil || *p.Topografia.OnduladoPct != 20 {
		t.Fatalf("expected topografia with ondulado 20, got %+v", p.Topografia)
	}
}

func TestBuildPayloadTechniquesBySlug(t *testing.T) {
	catalog := []CatalogItem{
		{ID: "a", Nombre: "Ataque directo"},
		{ID: "b", Nombre: "Control directo"},
		{ID: "c", Nombre: "Quema de ensanche indirecta"},
	}
	s := NewFormState()
	s.Tecnicas["a"] = 20
	s.Tecnicas["b"] = 30
	s.Tecnicas["c"] = 10
	p := BuildPayload(s, catalog, nil)
	want := []Tecnica{{Tecnica: SlugDirecto, Pct: 50}, {Tecnica: SlugIndirecto, Pct: 10}}
	if !reflect.DeepEqual(p.Tecnicas, want) {
		t.Fatalf("Tecnicas = %+v, want %+v", p.Tecnicas, want)
	}
}

func TestFromRecordRoundTrip(t *testing.T) {
	catalog := []CatalogItem{{ID: "a", Nombre: "Directo"}, {ID: "n", Nombre: "Control natural"}}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	nota := "sin novedad"
	r := &Record{
		IncendioUUID: "inc-1",
		Payload: Payload{
			ComposicionTipo:  []ComposicionTipo{{TipoIncendioID: "forestal", Pct: 80}},
			SecuenciaControl: &SecuenciaControl{ControladoAt: &at},
			Superficie:       &Superficie{DentroAPHa: f64(2), FueraAPHa: f64(3)},
			Tecnicas:         []Tecnica{{Tecnica: SlugControlNatural, Pct: 40}},
			Medios:           &Medios{Aereos: []MedioAereo{{MedioAereoID: "heli", Pct: 30}}},
			Nota:             &nota,
		},
	}
	s := FromRecord(r, catalog, nil)
	if s.Tecnicas["n"] != 40 || s.MediosAereos["heli"] != 30 || s.Nota != nota {
		t.Fatalf("unexpected hydrated state %+v", s)
	}
	p := BuildPayload(s, catalog, nil)
	if *p.Superficie.AreaTotalHa != 5 {
		t.Fatalf("area_total_ha = %v, want 5", *p.Superficie.AreaTotalHa)
	}
	if !reflect.DeepEqual(p.Tecnicas, r.Tecnicas) {
		t.Fatalf("Tecnicas = %+v, want %+v", p.Tecnicas, r.Tecnicas)
	}
}

func TestApplyReplacesGroups(t *testing.T) {
	r := &Record{Payload: Payload{
		ComposicionTipo: []ComposicionTipo{{TipoIncendioID: "a", Pct: 10}},
		Causa:           &Referencia{ID: "rayo"},
	}}
	r.Apply(&Payload{ComposicionTipo: []ComposicionTipo{{TipoIncendioID: "b", Pct: 20}}})
	if len(r.ComposicionTipo) != 1 || r.ComposicionTipo[0].TipoIncendioID != "b" {
		t.Fatalf("composicion not replaced: %+v", r.ComposicionTipo)
	}
	if r.Causa == nil || r.Causa.ID != "rayo" {
		t.Fatalf("causa should be untouched: %+v", r.Causa)
	}
}

type fakeSource struct {
	mu    sync.Mutex
	items map[string][]CatalogItem
	fail  string
	calls map[string]int
}

func (f *fakeSource) ListCatalogoItems(ctx context.Context, catalog string, page, pageSize int) (*CatalogPage, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[catalog]++
	f.mu.Unlock()

	if catalog == f.fail {
		return nil, fmt.Errorf("boom")
	}
	all := f.items[catalog]
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return &CatalogPage{Items: all[start:end], Total: len(all), Page: page, PageSize: pageSize}, nil
}

func TestLoadCatalogsPaging(t *testing.T) {
	src := &fakeSource{items: map[string][]CatalogItem{
		CatalogCausas: {{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}},
		CatalogTecnicas: {{ID: "t", Nombre: "Directo"}},
	}}
	cats, err := LoadCatalogs(context.Background(), src, 2)
	if err != nil {
		t.Fatalf("LoadCatalogs() error = %v", err)
	}
	if len(cats.Causas) != 5 {
		t.Fatalf("len(Causas) = %d, want 5", len(cats.Causas))
	}
	if src.calls[CatalogCausas] != 3 {
		t.Fatalf("causas fetched %d pages, want 3", src.calls[CatalogCausas])
	}
	if item, ok := cats.Lookup(CatalogTecnicas, "t"); !ok || item.Nombre != "Directo" {
		t.Fatalf("Lookup() = %+v, %v", item, ok)
	}
	if cats.Abastos == nil {
		t.Fatal("empty catalogs should be non-nil")
	}
	if len(src.calls) != len(CatalogNames) {
		t.Fatalf("fetched %d catalogs, want %d", len(src.calls), len(CatalogNames))
	}
}

func TestLoadCatalogsFailure(t *testing.T) {
	src := &fakeSource{fail: CatalogAbastos}
	if _, err := LoadCatalogs(context.Background(), src, 10); err == nil {
		t.Fatal("expected aggregate failure")
	}
}

func TestDecodeRecordNormalizes(t *testing.T) {
	data := []byte(`{"incendio_uuid":"x","superficie":{"dentro_ap_ha":1,"fuera_ap_ha":2,"area_total_ha":99},"secuencia_control":{}}`)
	r, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if *r.Superficie.AreaTotalHa != 3 {
		t.Fatalf("area_total_ha = %v, want 3", *r.Superficie.AreaTotalHa)
	}
	if r.SecuenciaControl != nil {
		t.Fatal("empty secuencia_control should be dropped")
	}
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name   string
		p      Payload
		fields []string
	}{
		{"empty", Payload{}, nil},
		{"exactly 100", Payload{Tecnicas: []Tecnica{{SlugDirecto, 60}, {SlugIndirecto, 40}}}, nil},
		{"tecnicas zero", Payload{Tecnicas: []Tecnica{{SlugDirecto, 0}, {SlugControlNatural, 0}}}, nil},
		{"aereos exactly 100", Payload{Medios: &Medios{Aereos: []MedioAereo{{"a", 70}, {"b", 30}}}}, nil},
		{"aereos zero", Payload{Medios: &Medios{Aereos: []MedioAereo{{"a", 0}}}}, nil},
		{"tecnicas over", Payload{Tecnicas: []Tecnica{{SlugDirecto, 60}, {SlugIndirecto, 40.01}}}, []string{FieldTecnicas}},
		{"unknown slug", Payload{Tecnicas: []Tecnica{{"aereo", 10}}}, []string{FieldTecnicas}},
		{"aereos over", Payload{Medios: &Medios{Aereos: []MedioAereo{{"a", 70}, {"b", 31}}}}, []string{FieldMediosAereos}},
		{"topografia over", Payload{Topografia: &Topografia{PlanoPct: f64(50), QuebradoPct: f64(51)}}, []string{FieldTopografia}},
		{"composicion over", Payload{ComposicionTipo: []ComposicionTipo{{"x", 101}}}, []string{FieldComposicion}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(&tt.p)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("ValidatePayload() error = %v", err)
				}
				return
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidatePayload() error = %v, want ValidationErrors", err)
			}
			byField := verrs.ByField()
			for _, f := range tt.fields {
				if _, ok := byField[f]; !ok {
					t.Fatalf("missing error for %s: %v", f, byField)
				}
			}
		})
	}
}
