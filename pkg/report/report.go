// Package report renders plain-text summaries of closure records and
// closure forms with pongo2 templates.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/form"
	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

const recordTemplate = `{% autoescape off %}Incendio {{ incident }}
Estado: {{ estado }}
{% for g in groups %}
{{ g.title }}
{% for l in g.lines %}  - {{ l }}
{% endfor %}{% empty %}
(sin datos de cierre)
{% endfor %}{% endautoescape %}`

const formTemplate = `{% autoescape off %}{{ name }} (v{{ version }}){% if extinguished %} [extinguido]{% endif %}
{% for s in sections %}
== {{ s.name }} ==
{% for f in s.fields %}{{ f.label }}{% if f.required %} *{% endif %}: {{ f.answer|blank:"-" }}{% if f.unit %} {{ f.unit }}{% endif %}{% if f.error %}  <{{ f.error }}>{% endif %}
{% endfor %}{% endfor %}{% if unsupported %}
Campos no soportados: {{ unsupported|join:", " }}
{% endif %}{% endautoescape %}`

var registerFilters sync.Once

// Renderer renders closure summaries
type Renderer struct {
	record *pongo2.Template
	form   *pongo2.Template
}

// NewRenderer compiles the summary templates
func NewRenderer() (*Renderer, error) {
	registerFilters.Do(func() {
		if !pongo2.FilterExists("blank") {
			pongo2.RegisterFilter("blank", func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				if in.IsNil() || strings.TrimSpace(in.String()) == "" {
					return param, nil
				}
				return in, nil
			})
		}
	})

	record, err := pongo2.FromString(recordTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record template: %w", err)
	}
	formTpl, err := pongo2.FromString(formTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form template: %w", err)
	}
	return &Renderer{record: record, form: formTpl}, nil
}

// Record renders a closure record. Catalog ids are shown by name when the
// catalogs are given.
func (r *Renderer) Record(rec *closure.Record, cats *closure.Catalogs) (string, error) {
	if cats == nil {
		cats = &closure.Catalogs{}
	}
	out, err := r.record.Execute(pongo2.Context{
		"incident": rec.IncendioUUID,
		"estado":   string(lifecycle.Resolve(rec.EstadoCierre, rec.SecuenciaControl)),
		"groups":   recordGroups(rec, cats),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render closure record: %w", err)
	}
	return out, nil
}

// Form renders a closure form with its current answers and errors
func (r *Renderer) Form(tpl form.Template, values *form.Values, errs map[string]string, extinguished bool) (string, error) {
	if values == nil {
		values = form.NewValues()
	}

	var unsupported []string
	sections := make([]map[string]any, 0, len(tpl.Sections))
	for _, s := range tpl.Sections {
		fields := make([]map[string]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			v, _ := values.Get(f.ID)
			view := form.Render(f, v)
			if view == nil {
				unsupported = append(unsupported, f.Name)
				continue
			}
			fields = append(fields, map[string]any{
				"label":    view.Label,
				"required": view.Required,
				"unit":     view.Unit,
				"answer":   answer(view),
				"error":    errs[f.ID],
			})
		}
		sections = append(sections, map[string]any{"name": s.Name, "fields": fields})
	}

	out, err := r.form.Execute(pongo2.Context{
		"name":         tpl.Name,
		"version":      tpl.Version,
		"extinguished": extinguished,
		"sections":     sections,
		"unsupported":  unsupported,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render closure form: %w", err)
	}
	return out, nil
}

func answer(view *form.FieldView) string {
	switch {
	case view.Options != nil:
		var parts []string
		for _, o := range view.Options {
			if !o.Selected {
				continue
			}
			part := o.Label
			if o.ShowQuantity {
				part += " x" + num(o.Quantity)
			}
			if o.ShowPercentage {
				part += " " + num(o.Percentage) + "%"
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, ", ")
	case view.Type.IsBoolean():
		if view.Checked {
			return "sí"
		}
		return "no"
	default:
		return view.Text
	}
}

func recordGroups(rec *closure.Record, cats *closure.Catalogs) []map[string]any {
	var groups []map[string]any
	add := func(title string, lines []string) {
		if len(lines) > 0 {
			groups = append(groups, map[string]any{"title": title, "lines": lines})
		}
	}
	name := func(catalog, id string) string {
		if item, ok := cats.Lookup(catalog, id); ok {
			return item.Nombre
		}
		return id
	}

	if s := rec.Superficie; s != nil {
		lines := []string{"total: " + num(s.AreaTotalHa) + " ha"}
		if s.DentroAPHa != nil {
			lines = append(lines, "dentro AP: "+num(s.DentroAPHa)+" ha")
		}
		if s.FueraAPHa != nil {
			lines = append(lines, "fuera AP: "+num(s.FueraAPHa)+" ha")
		}
		if s.NombreAP != "" {
			lines = append(lines, "área protegida: "+s.NombreAP)
		}
		add("Superficie", lines)
	}

	var lines []string
	for _, c := range rec.ComposicionTipo {
		lines = append(lines, fmt.Sprintf("%s: %s%%", name(closure.CatalogTiposIncendio, c.TipoIncendioID), fnum(c.Pct)))
	}
	add("Composición por tipo", lines)

	if t := rec.Topografia; t != nil {
		add("Topografía", []string{
			"plano: " + num(t.PlanoPct) + "%",
			"ondulado: " + num(t.OnduladoPct) + "%",
			"quebrado: " + num(t.QuebradoPct) + "%",
		})
	}

	lines = nil
	for _, p := range rec.Propiedad {
		if p.Usado {
			lines = append(lines, name(closure.CatalogTiposPropiedad, p.TipoPropiedadID))
		}
	}
	add("Propiedad", lines)

	if ref := rec.IniciadoJuntoA; ref != nil {
		add("Iniciado junto a", []string{reference(name(closure.CatalogIniciadoJuntoA, ref.ID), ref.OtroTexto)})
	}

	if seq := rec.SecuenciaControl; seq != nil {
		lines = nil
		for _, e := range []struct {
			label string
			at    *time.Time
		}{
			{"llegada medios terrestres", seq.LlegadaMediosTerrestresAt},
			{"llegada medios aéreos", seq.LlegadaMediosAereosAt},
			{"controlado", seq.ControladoAt},
			{"extinguido", seq.ExtinguidoAt},
		} {
			if e.at != nil {
				lines = append(lines, e.label+": "+e.at.Format("2006-01-02 15:04"))
			}
		}
		add("Secuencia de control", lines)
	}

	lines = nil
	for _, v := range rec.SuperficieVegetacion {
		lines = append(lines, fmt.Sprintf("%s: %s ha", v.Vegetacion, fnum(v.Ha)))
	}
	add("Superficie por vegetación", lines)

	lines = nil
	for _, t := range rec.Tecnicas {
		lines = append(lines, fmt.Sprintf("%s: %s%%", t.Tecnica, fnum(t.Pct)))
	}
	add("Técnicas", lines)

	if m := rec.Medios; m != nil {
		lines = nil
		for _, t := range m.Terrestres {
			lines = append(lines, fmt.Sprintf("%s x%d", name(closure.CatalogMediosTerrestres, t.MedioTerrestreID), t.Cantidad))
		}
		for _, a := range m.Aereos {
			lines = append(lines, fmt.Sprintf("%s %s%%", name(closure.CatalogMediosAereos, a.MedioAereoID), fnum(a.Pct)))
		}
		for _, a := range m.Acuaticos {
			lines = append(lines, fmt.Sprintf("%s x%d", name(closure.CatalogMediosAcuaticos, a.MedioAcuaticoID), a.Cantidad))
		}
		for _, i := range m.Instituciones {
			lines = append(lines, name(closure.CatalogInstituciones, i.InstitucionID))
		}
		add("Medios", lines)
	}

	lines = nil
	for _, a := range rec.Abastos {
		lines = append(lines, fmt.Sprintf("%s x%d", name(closure.CatalogAbastos, a.AbastoID), a.Cantidad))
	}
	add("Abastos", lines)

	if ref := rec.Causa; ref != nil {
		add("Causa", []string{reference(name(closure.CatalogCausas, ref.ID), ref.OtroTexto)})
	}

	if m := rec.Meteo; m != nil {
		lines = nil
		if m.TempC != nil {
			lines = append(lines, "temperatura: "+num(m.TempC)+" °C")
		}
		if m.HrPct != nil {
			lines = append(lines, "humedad relativa: "+num(m.HrPct)+"%")
		}
		if m.VientoVel != nil {
			lines = append(lines, "viento: "+num(m.VientoVel)+" km/h "+m.VientoDir)
		}
		add("Meteorología", lines)
	}

	if rec.Nota != nil && strings.TrimSpace(*rec.Nota) != "" {
		add("Nota", []string{*rec.Nota})
	}

	return groups
}

func reference(nombre, otro string) string {
	if otro != "" {
		return nombre + " (" + otro + ")"
	}
	return nombre
}

func num(f *float64) string {
	if f == nil {
		return "-"
	}
	return fnum(*f)
}

func fnum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
