package closure

import (
	"fmt"
	"strings"
)

// Epsilon is the tolerance applied to every percentage sum
const Epsilon = 0.0001

// Groups checked by ValidateBeforeSave
const (
	FieldTecnicas     = "tecnicas"
	FieldMediosAereos = "medios.aereos"
	FieldComposicion  = "composicion_tipo"
	FieldTopografia   = "topografia"
)

// ValidationError represents a closure invariant violation
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple invariant violations
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ByField indexes the violations by group
func (e ValidationErrors) ByField() map[string]string {
	out := make(map[string]string, len(e))
	for _, err := range e {
		out[err.Field] = err.Message
	}
	return out
}

// ValidateBeforeSave checks that no percentage group sums above 100. It
// returns nil or a ValidationErrors listing every offending group.
func ValidateBeforeSave(s *FormState, tecnicas []CatalogItem, mapper *TechniqueMapper) error {
	var errs ValidationErrors

	sums, _ := mapper.Aggregate(s.Tecnicas, tecnicas)
	var tecnicasTotal float64
	for _, slug := range Slugs {
		tecnicasTotal += sums[slug]
	}
	check := func(field string, total float64) {
		if err := checkSum(field, total); err != nil {
			errs = append(errs, *err)
		}
	}

	check(FieldTecnicas, tecnicasTotal)
	check(FieldMediosAereos, sumValues(s.MediosAereos))
	check(FieldComposicion, sumValues(s.Composicion))
	check(FieldTopografia, s.Topografia.Sum())

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidatePayload applies the same percentage limits to a patch as it is
// received, and rejects techniques outside the three known slugs.
func ValidatePayload(p *Payload) error {
	var errs ValidationErrors
	check := func(field string, total float64) {
		if err := checkSum(field, total); err != nil {
			errs = append(errs, *err)
		}
	}

	var tecnicas float64
	for _, t := range p.Tecnicas {
		if !t.Tecnica.Valid() {
			errs = append(errs, ValidationError{Field: FieldTecnicas, Message: fmt.Sprintf("unknown technique: %s", t.Tecnica)})
		}
		tecnicas += t.Pct
	}
	check(FieldTecnicas, tecnicas)

	if p.Medios != nil {
		var aereos float64
		for _, m := range p.Medios.Aereos {
			aereos += m.Pct
		}
		check(FieldMediosAereos, aereos)
	}

	var composicion float64
	for _, c := range p.ComposicionTipo {
		composicion += c.Pct
	}
	check(FieldComposicion, composicion)
	check(FieldTopografia, p.Topografia.Sum())

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkSum(field string, total float64) *ValidationError {
	if total > 100+Epsilon {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("percentages sum to %s, must not exceed 100", formatPct(total)),
		}
	}
	return nil
}

func sumValues(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func formatPct(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}
