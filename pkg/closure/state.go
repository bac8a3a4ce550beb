package closure

import (
	"strings"
	"time"
)

// FormState is the working state of the closure editor. Maps are keyed by
// catalog item ID.
type FormState struct {
	Composicion    map[string]float64 `json:"composicion,omitempty" yaml:"composicion,omitempty"`
	Topografia     Topografia         `json:"topografia" yaml:"topografia"`
	Propiedad      map[string]bool    `json:"propiedad,omitempty" yaml:"propiedad,omitempty"`
	IniciadoJuntoA Referencia         `json:"iniciado_junto_a" yaml:"iniciado_junto_a"`
	Secuencia      SecuenciaControl   `json:"secuencia" yaml:"secuencia"`
	DentroAPHa     *float64           `json:"dentro_ap_ha,omitempty" yaml:"dentro_ap_ha,omitempty"`
	FueraAPHa      *float64           `json:"fuera_ap_ha,omitempty" yaml:"fuera_ap_ha,omitempty"`
	NombreAP       string             `json:"nombre_ap,omitempty" yaml:"nombre_ap,omitempty"`
	Vegetacion     map[string]float64 `json:"vegetacion,omitempty" yaml:"vegetacion,omitempty"`
	Tecnicas       map[string]float64 `json:"tecnicas,omitempty" yaml:"tecnicas,omitempty"`

	MediosTerrestres map[string]int     `json:"medios_terrestres,omitempty" yaml:"medios_terrestres,omitempty"`
	MediosAereos     map[string]float64 `json:"medios_aereos,omitempty" yaml:"medios_aereos,omitempty"`
	MediosAcuaticos  map[string]int     `json:"medios_acuaticos,omitempty" yaml:"medios_acuaticos,omitempty"`
	Instituciones    map[string]bool    `json:"instituciones,omitempty" yaml:"instituciones,omitempty"`
	Abastos          map[string]int     `json:"abastos,omitempty" yaml:"abastos,omitempty"`

	Causa Referencia `json:"causa" yaml:"causa"`
	Meteo Meteo      `json:"meteo" yaml:"meteo"`
	Nota  string     `json:"nota,omitempty" yaml:"nota,omitempty"`
}

// NewFormState returns an empty state with all maps allocated
func NewFormState() *FormState {
	return &FormState{
		Composicion:      map[string]float64{},
		Propiedad:        map[string]bool{},
		Vegetacion:       map[string]float64{},
		Tecnicas:         map[string]float64{},
		MediosTerrestres: map[string]int{},
		MediosAereos:     map[string]float64{},
		MediosAcuaticos:  map[string]int{},
		Instituciones:    map[string]bool{},
		Abastos:          map[string]int{},
	}
}

// SuperficieTotal is the derived total area of the state
func (s *FormState) SuperficieTotal() *float64 {
	return SuperficieTotal(s.DentroAPHa, s.FueraAPHa)
}

// Clone returns a deep copy of the state
func (s *FormState) Clone() *FormState {
	c := *s
	c.Composicion = cloneMap(s.Composicion)
	c.Propiedad = cloneMap(s.Propiedad)
	c.Vegetacion = cloneMap(s.Vegetacion)
	c.Tecnicas = cloneMap(s.Tecnicas)
	c.MediosTerrestres = cloneMap(s.MediosTerrestres)
	c.MediosAereos = cloneMap(s.MediosAereos)
	c.MediosAcuaticos = cloneMap(s.MediosAcuaticos)
	c.Instituciones = cloneMap(s.Instituciones)
	c.Abastos = cloneMap(s.Abastos)
	c.Topografia = Topografia{
		PlanoPct:    clonePtr(s.Topografia.PlanoPct),
		OnduladoPct: clonePtr(s.Topografia.OnduladoPct),
		QuebradoPct: clonePtr(s.Topografia.QuebradoPct),
	}
	c.DentroAPHa = clonePtr(s.DentroAPHa)
	c.FueraAPHa = clonePtr(s.FueraAPHa)
	c.Meteo.TempC = clonePtr(s.Meteo.TempC)
	c.Meteo.HrPct = clonePtr(s.Meteo.HrPct)
	c.Meteo.VientoVel = clonePtr(s.Meteo.VientoVel)
	c.Secuencia = SecuenciaControl{
		LlegadaMediosTerrestresAt: clonePtr(s.Secuencia.LlegadaMediosTerrestresAt),
		LlegadaMediosAereosAt:     clonePtr(s.Secuencia.LlegadaMediosAereosAt),
		ControladoAt:              clonePtr(s.Secuencia.ControladoAt),
		ExtinguidoAt:              clonePtr(s.Secuencia.ExtinguidoAt),
	}
	return &c
}

// BuildPayload turns the working state into a sparse patch. Groups with no
// meaningful content are left out entirely.
func BuildPayload(s *FormState, tecnicas []CatalogItem, mapper *TechniqueMapper) *Payload {
	p := &Payload{}

	for _, id := range sortedKeys(s.Composicion) {
		if pct := s.Composicion[id]; pct > 0 {
			p.ComposicionTipo = append(p.ComposicionTipo, ComposicionTipo{TipoIncendioID: id, Pct: pct})
		}
	}

	if t := s.Topografia; nonZero(t.PlanoPct) || nonZero(t.OnduladoPct) || nonZero(t.QuebradoPct) {
		p.Topografia = &Topografia{
			PlanoPct:    clonePtr(t.PlanoPct),
			OnduladoPct: clonePtr(t.OnduladoPct),
			QuebradoPct: clonePtr(t.QuebradoPct),
		}
	}

	for _, id := range sortedKeys(s.Propiedad) {
		if s.Propiedad[id] {
			p.Propiedad = append(p.Propiedad, Propiedad{TipoPropiedadID: id, Usado: true})
		}
	}

	if ref := trimRef(s.IniciadoJuntoA); ref.ID != "" {
		p.IniciadoJuntoA = &ref
	}

	if !s.Secuencia.IsZero() {
		seq := s.Secuencia
		p.SecuenciaControl = &seq
	}

	if s.DentroAPHa != nil || s.FueraAPHa != nil || strings.TrimSpace(s.NombreAP) != "" {
		p.Superficie = &Superficie{
			AreaTotalHa: s.SuperficieTotal(),
			DentroAPHa:  clonePtr(s.DentroAPHa),
			FueraAPHa:   clonePtr(s.FueraAPHa),
			NombreAP:    strings.TrimSpace(s.NombreAP),
		}
	}

	for _, id := range sortedKeys(s.Vegetacion) {
		if ha := s.Vegetacion[id]; ha > 0 {
			p.SuperficieVegetacion = append(p.SuperficieVegetacion, SuperficieVegetacion{Vegetacion: id, Ha: ha})
		}
	}

	sums, _ := mapper.Aggregate(s.Tecnicas, tecnicas)
	for _, slug := range Slugs {
		if pct := sums[slug]; pct > 0 {
			p.Tecnicas = append(p.Tecnicas, Tecnica{Tecnica: slug, Pct: pct})
		}
	}

	medios := &Medios{}
	for _, id := range sortedKeys(s.MediosTerrestres) {
		if n := s.MediosTerrestres[id]; n > 0 {
			medios.Terrestres = append(medios.Terrestres, MedioTerrestre{MedioTerrestreID: id, Cantidad: n})
		}
	}
	for _, id := range sortedKeys(s.MediosAereos) {
		if pct := s.MediosAereos[id]; pct > 0 {
			medios.Aereos = append(medios.Aereos, MedioAereo{MedioAereoID: id, Pct: pct})
		}
	}
	for _, id := range sortedKeys(s.MediosAcuaticos) {
		if n := s.MediosAcuaticos[id]; n > 0 {
			medios.Acuaticos = append(medios.Acuaticos, MedioAcuatico{MedioAcuaticoID: id, Cantidad: n})
		}
	}
	for _, id := range sortedKeys(s.Instituciones) {
		if s.Instituciones[id] {
			medios.Instituciones = append(medios.Instituciones, InstitucionRef{InstitucionID: id})
		}
	}
	if !medios.isEmpty() {
		p.Medios = medios
	}

	for _, id := range sortedKeys(s.Abastos) {
		if n := s.Abastos[id]; n > 0 {
			p.Abastos = append(p.Abastos, Abasto{AbastoID: id, Cantidad: n})
		}
	}

	if ref := trimRef(s.Causa); ref.ID != "" {
		p.Causa = &ref
	}

	meteo := s.Meteo
	meteo.VientoDir = strings.TrimSpace(meteo.VientoDir)
	if !meteo.isEmpty() {
		p.Meteo = &meteo
	}

	if nota := strings.TrimSpace(s.Nota); nota != "" {
		p.Nota = &nota
	}

	return p
}

// FromRecord hydrates a working state from a stored record. Technique slugs
// are spread back onto the first catalog item that maps to each slug.
func FromRecord(r *Record, tecnicas []CatalogItem, mapper *TechniqueMapper) *FormState {
	s := NewFormState()
	if r == nil {
		return s
	}

	for _, c := range r.ComposicionTipo {
		s.Composicion[c.TipoIncendioID] = c.Pct
	}
	if r.Topografia != nil {
		s.Topografia = Topografia{
			PlanoPct:    clonePtr(r.Topografia.PlanoPct),
			OnduladoPct: clonePtr(r.Topografia.OnduladoPct),
			QuebradoPct: clonePtr(r.Topografia.QuebradoPct),
		}
	}
	for _, pr := range r.Propiedad {
		if pr.Usado {
			s.Propiedad[pr.TipoPropiedadID] = true
		}
	}
	if r.IniciadoJuntoA != nil {
		s.IniciadoJuntoA = *r.IniciadoJuntoA
	}
	if r.SecuenciaControl != nil {
		s.Secuencia = *r.SecuenciaControl
	}
	if r.Superficie != nil {
		s.DentroAPHa = clonePtr(r.Superficie.DentroAPHa)
		s.FueraAPHa = clonePtr(r.Superficie.FueraAPHa)
		s.NombreAP = r.Superficie.NombreAP
	}
	for _, v := range r.SuperficieVegetacion {
		s.Vegetacion[v.Vegetacion] = v.Ha
	}
	for _, t := range r.Tecnicas {
		if item, ok := mapper.ItemFor(t.Tecnica, tecnicas); ok {
			s.Tecnicas[item.ID] += t.Pct
		}
	}
	if r.Medios != nil {
		for _, m := range r.Medios.Terrestres {
			s.MediosTerrestres[m.MedioTerrestreID] = m.Cantidad
		}
		for _, m := range r.Medios.Aereos {
			s.MediosAereos[m.MedioAereoID] = m.Pct
		}
		for _, m := range r.Medios.Acuaticos {
			s.MediosAcuaticos[m.MedioAcuaticoID] = m.Cantidad
		}
		for _, m := range r.Medios.Instituciones {
			s.Instituciones[m.InstitucionID] = true
		}
	}
	for _, a := range r.Abastos {
		s.Abastos[a.AbastoID] = a.Cantidad
	}
	if r.Causa != nil {
		s.Causa = *r.Causa
	}
	if r.Meteo != nil {
		s.Meteo = *r.Meteo
	}
	if r.Nota != nil {
		s.Nota = *r.Nota
	}
	return s
}

// Apply merges a sparse patch onto a record. Each group present in the patch
// replaces the stored group wholesale.
func (r *Record) Apply(p *Payload) {
	if p.ComposicionTipo != nil {
		r.ComposicionTipo = p.ComposicionTipo
	}
	if p.Topografia != nil {
		r.Topografia = p.Topografia
	}
	if p.Propiedad != nil {
		r.Propiedad = p.Propiedad
	}
	if p.IniciadoJuntoA != nil {
		r.IniciadoJuntoA = p.IniciadoJuntoA
	}
	if p.SecuenciaControl != nil {
		r.SecuenciaControl = p.SecuenciaControl
	}
	if p.Superficie != nil {
		r.Superficie = p.Superficie
	}
	if p.SuperficieVegetacion != nil {
		r.SuperficieVegetacion = p.SuperficieVegetacion
	}
	if p.Tecnicas != nil {
		r.Tecnicas = p.Tecnicas
	}
	if p.Medios != nil {
		r.Medios = p.Medios
	}
	if p.Abastos != nil {
		r.Abastos = p.Abastos
	}
	if p.Causa != nil {
		r.Causa = p.Causa
	}
	if p.Meteo != nil {
		r.Meteo = p.Meteo
	}
	if p.Nota != nil {
		r.Nota = p.Nota
	}
	r.Normalize()
}

// MarkExtinguished sets the extinguished timestamp if it is not set yet
func (r *Record) MarkExtinguished(at time.Time) {
	if r.SecuenciaControl == nil {
		r.SecuenciaControl = &SecuenciaControl{}
	}
	if r.SecuenciaControl.ExtinguidoAt == nil {
		t := at
		r.SecuenciaControl.ExtinguidoAt = &t
	}
}

// ClearExtinguished removes the extinguished timestamp
func (r *Record) ClearExtinguished() {
	if r.SecuenciaControl != nil {
		r.SecuenciaControl.ExtinguidoAt = nil
		if r.SecuenciaControl.IsZero() {
			r.SecuenciaControl = nil
		}
	}
}

func trimRef(r Referencia) Referencia {
	return Referencia{ID: strings.TrimSpace(r.ID), OtroTexto: strings.TrimSpace(r.OtroTexto)}
}

func nonZero(f *float64) bool {
	return f != nil && *f != 0
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
