// Package closure implements the catalog-backed closure record: the
// structured payload built from admin catalogs, its percentage invariants and
// the sparse PATCH semantics of the backend.
package closure

import (
	"encoding/json"
	"fmt"
	"time"
)

// ComposicionTipo is the share of the burned area per fire type
type ComposicionTipo struct {
	TipoIncendioID string  `json:"tipo_incendio_id" yaml:"tipo_incendio_id"`
	Pct            float64 `json:"pct" yaml:"pct"`
}

// Topografia splits the terrain into flat, rolling and broken percentages
type Topografia struct {
	PlanoPct    *float64 `json:"plano_pct,omitempty" yaml:"plano_pct,omitempty"`
	OnduladoPct *float64 `json:"ondulado_pct,omitempty" yaml:"ondulado_pct,omitempty"`
	QuebradoPct *float64 `json:"quebrado_pct,omitempty" yaml:"quebrado_pct,omitempty"`
}

// Sum adds the three shares, treating missing ones as zero
func (t *Topografia) Sum() float64 {
	if t == nil {
		return 0
	}
	return deref(t.PlanoPct) + deref(t.OnduladoPct) + deref(t.QuebradoPct)
}

// Propiedad marks a property type as affected
type Propiedad struct {
	TipoPropiedadID string `json:"tipo_propiedad_id" yaml:"tipo_propiedad_id"`
	Usado           bool   `json:"usado" yaml:"usado"`
}

// Referencia points at a catalog item, with free text for "other" items
type Referencia struct {
	ID        string `json:"id" yaml:"id"`
	OtroTexto string `json:"otro_texto,omitempty" yaml:"otro_texto,omitempty"`
}

// SecuenciaControl holds the four lifecycle timestamps of an incident
type SecuenciaControl struct {
	LlegadaMediosTerrestresAt *time.Time `json:"llegada_medios_terrestres_at,omitempty" yaml:"llegada_medios_terrestres_at,omitempty"`
	LlegadaMediosAereosAt     *time.Time `json:"llegada_medios_aereos_at,omitempty" yaml:"llegada_medios_aereos_at,omitempty"`
	ControladoAt              *time.Time `json:"controlado_at,omitempty" yaml:"controlado_at,omitempty"`
	ExtinguidoAt              *time.Time `json:"extinguido_at,omitempty" yaml:"extinguido_at,omitempty"`
}

// IsZero reports whether no timestamp is set
func (s *SecuenciaControl) IsZero() bool {
	return s == nil || (s.LlegadaMediosTerrestresAt == nil && s.LlegadaMediosAereosAt == nil &&
		s.ControladoAt == nil && s.ExtinguidoAt == nil)
}

// Superficie is the burned area. AreaTotalHa is always DentroAPHa + FueraAPHa.
type Superficie struct {
	AreaTotalHa *float64 `json:"area_total_ha,omitempty" yaml:"area_total_ha,omitempty"`
	DentroAPHa  *float64 `json:"dentro_ap_ha,omitempty" yaml:"dentro_ap_ha,omitempty"`
	FueraAPHa   *float64 `json:"fuera_ap_ha,omitempty" yaml:"fuera_ap_ha,omitempty"`
	NombreAP    string   `json:"nombre_ap,omitempty" yaml:"nombre_ap,omitempty"`
}

// SuperficieVegetacion is the burned area per vegetation type
type SuperficieVegetacion struct {
	Vegetacion string  `json:"vegetacion" yaml:"vegetacion"`
	Ha         float64 `json:"ha" yaml:"ha"`
}

// Tecnica is the share of one of the three fixed firefighting techniques
type Tecnica struct {
	Tecnica Slug    `json:"tecnica" yaml:"tecnica"`
	Pct     float64 `json:"pct" yaml:"pct"`
}

// MedioTerrestre is a ground resource count
type MedioTerrestre struct {
	MedioTerrestreID string `json:"medio_terrestre_id" yaml:"medio_terrestre_id"`
	Cantidad         int    `json:"cantidad" yaml:"cantidad"`
}

// MedioAereo is the share of aerial work done by a resource
type MedioAereo struct {
	MedioAereoID string  `json:"medio_aereo_id" yaml:"medio_aereo_id"`
	Pct          float64 `json:"pct" yaml:"pct"`
}

// MedioAcuatico is a water-borne resource count
type MedioAcuatico struct {
	MedioAcuaticoID string `json:"medio_acuatico_id" yaml:"medio_acuatico_id"`
	Cantidad        int    `json:"cantidad" yaml:"cantidad"`
}

// InstitucionRef is an institution that took part
type InstitucionRef struct {
	InstitucionID string `json:"institucion_id" yaml:"institucion_id"`
}

// Medios groups the resources used on the incident
type Medios struct {
	Terrestres    []MedioTerrestre `json:"terrestres,omitempty" yaml:"terrestres,omitempty"`
	Aereos        []MedioAereo     `json:"aereos,omitempty" yaml:"aereos,omitempty"`
	Acuaticos     []MedioAcuatico  `json:"acuaticos,omitempty" yaml:"acuaticos,omitempty"`
	Instituciones []InstitucionRef `json:"instituciones,omitempty" yaml:"instituciones,omitempty"`
}

func (m *Medios) isEmpty() bool {
	return m == nil || (len(m.Terrestres) == 0 && len(m.Aereos) == 0 &&
		len(m.Acuaticos) == 0 && len(m.Instituciones) == 0)
}

// Abasto is a water supply point count
type Abasto struct {
	AbastoID string `json:"abasto_id" yaml:"abasto_id"`
	Cantidad int    `json:"cantidad" yaml:"cantidad"`
}

// Meteo is the weather at closure time
type Meteo struct {
	TempC     *float64 `json:"temp_c,omitempty" yaml:"temp_c,omitempty"`
	HrPct     *float64 `json:"hr_pct,omitempty" yaml:"hr_pct,omitempty"`
	VientoVel *float64 `json:"viento_vel,omitempty" yaml:"viento_vel,omitempty"`
	VientoDir string   `json:"viento_dir,omitempty" yaml:"viento_dir,omitempty"`
}

func (m *Meteo) isEmpty() bool {
	return m == nil || (m.TempC == nil && m.HrPct == nil && m.VientoVel == nil && m.VientoDir == "")
}

// Payload is the sparse closure patch. Every group is optional and omitted
// when empty so a PATCH only touches the groups it carries.
type Payload struct {
	ComposicionTipo      []ComposicionTipo      `json:"composicion_tipo,omitempty" yaml:"composicion_tipo,omitempty"`
	Topografia           *Topografia            `json:"topografia,omitempty" yaml:"topografia,omitempty"`
	Propiedad            []Propiedad            `json:"propiedad,omitempty" yaml:"propiedad,omitempty"`
	IniciadoJuntoA       *Referencia            `json:"iniciado_junto_a,omitempty" yaml:"iniciado_junto_a,omitempty"`
	SecuenciaControl     *SecuenciaControl      `json:"secuencia_control,omitempty" yaml:"secuencia_control,omitempty"`
	Superficie           *Superficie            `json:"superficie,omitempty" yaml:"superficie,omitempty"`
	SuperficieVegetacion []SuperficieVegetacion `json:"superficie_vegetacion,omitempty" yaml:"superficie_vegetacion,omitempty"`
	Tecnicas             []Tecnica              `json:"tecnicas,omitempty" yaml:"tecnicas,omitempty"`
	Medios               *Medios                `json:"medios,omitempty" yaml:"medios,omitempty"`
	Abastos              []Abasto               `json:"abastos,omitempty" yaml:"abastos,omitempty"`
	Causa                *Referencia            `json:"causa,omitempty" yaml:"causa,omitempty"`
	Meteo                *Meteo                 `json:"meteo,omitempty" yaml:"meteo,omitempty"`
	Nota                 *string                `json:"nota,omitempty" yaml:"nota,omitempty"`
}

// Groups returns the JSON keys of the groups present in the payload
func (p *Payload) Groups() []string {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for _, k := range GroupKeys {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// GroupKeys lists the payload groups in wire order
var GroupKeys = []string{
	"composicion_tipo", "topografia", "propiedad", "iniciado_junto_a", "secuencia_control",
	"superficie", "superficie_vegetacion", "tecnicas", "medios", "abastos", "causa", "meteo", "nota",
}

// Record is a stored closure record as returned by the backend
type Record struct {
	IncendioUUID string     `json:"incendio_uuid"`
	EstadoCierre string     `json:"estado_cierre,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Payload
}

// DecodeRecord parses and normalizes a raw closure record
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode closure record: %w", err)
	}
	r.Normalize()
	return &r, nil
}

// Normalize recomputes derived values and drops empty groups
func (r *Record) Normalize() {
	if r.Superficie != nil {
		r.Superficie.AreaTotalHa = SuperficieTotal(r.Superficie.DentroAPHa, r.Superficie.FueraAPHa)
	}
	if r.SecuenciaControl.IsZero() {
		r.SecuenciaControl = nil
	}
	if r.Medios.isEmpty() {
		r.Medios = nil
	}
	if r.Meteo.isEmpty() {
		r.Meteo = nil
	}
}

// SuperficieTotal derives the total area. It is nil when both operands are
// unset, otherwise their sum with a missing operand counted as zero.
func SuperficieTotal(dentro, fuera *float64) *float64 {
	if dentro == nil && fuera == nil {
		return nil
	}
	total := deref(dentro) + deref(fuera)
	return &total
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
