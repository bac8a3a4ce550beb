package closure

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug identifies one of the three fixed techniques the backend stores
type Slug string

const (
	SlugDirecto        Slug = "directo"
	SlugIndirecto      Slug = "indirecto"
	SlugControlNatural Slug = "control_natural"
)

// Slugs lists the technique slugs in wire order
var Slugs = []Slug{SlugDirecto, SlugIndirecto, SlugControlNatural}

// Valid reports whether s is one of the fixed slugs
func (s Slug) Valid() bool {
	switch s {
	case SlugDirecto, SlugIndirecto, SlugControlNatural:
		return true
	}
	return false
}

// Fold lower-cases s and strips diacritics
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// InferSlug guesses the slug from a technique display name. "control" with
// "natural" wins, then "indirect", then "direct".
func InferSlug(name string) (Slug, bool) {
	n := Fold(name)
	switch {
	case strings.Contains(n, "control") && strings.Contains(n, "natural"):
		return SlugControlNatural, true
	case strings.Contains(n, "indirect"):
		return SlugIndirecto, true
	case strings.Contains(n, "direct"):
		return SlugDirecto, true
	}
	return "", false
}

// TechniqueMapper maps technique catalog items to slugs. Explicit mappings
// by item ID take precedence; the name heuristic is a fallback. IDs are
// compared case-insensitively since config keys arrive lowercased.
type TechniqueMapper struct {
	explicit map[string]Slug
	logger   *zap.Logger
}

// NewTechniqueMapper creates a mapper from an item ID to slug table
func NewTechniqueMapper(explicit map[string]string, logger *zap.Logger) (*TechniqueMapper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &TechniqueMapper{explicit: make(map[string]Slug, len(explicit)), logger: logger}
	for id, raw := range explicit {
		slug := Slug(raw)
		if !slug.Valid() {
			return nil, fmt.Errorf("invalid technique slug %q for item %s", raw, id)
		}
		m.explicit[strings.ToLower(id)] = slug
	}
	return m, nil
}

// SlugFor resolves the slug of a catalog item
func (m *TechniqueMapper) SlugFor(item CatalogItem) (Slug, bool) {
	if m != nil {
		if slug, ok := m.explicit[strings.ToLower(item.ID)]; ok {
			return slug, true
		}
	}
	return InferSlug(item.Nombre)
}

// Aggregate sums per-item percentages by slug. Items that map to no slug are
// dropped and their IDs returned.
func (m *TechniqueMapper) Aggregate(pcts map[string]float64, catalog []CatalogItem) (map[Slug]float64, []string) {
	byID := make(map[string]CatalogItem, len(catalog))
	for _, item := range catalog {
		byID[item.ID] = item
	}

	sums := make(map[Slug]float64)
	var dropped []string
	for _, id := range sortedKeys(pcts) {
		pct := pcts[id]
		if pct == 0 {
			continue
		}
		item, ok := byID[id]
		if !ok {
			item = CatalogItem{ID: id}
		}
		slug, ok := m.SlugFor(item)
		if !ok {
			m.log().Warn("technique has no slug mapping, dropping",
				zap.String("item_id", id),
				zap.String("nombre", item.Nombre),
				zap.Float64("pct", pct))
			dropped = append(dropped, id)
			continue
		}
		sums[slug] += pct
	}
	return sums, dropped
}

// Unmapped lists the catalog items that no explicit mapping or heuristic covers
func (m *TechniqueMapper) Unmapped(catalog []CatalogItem) []CatalogItem {
	var out []CatalogItem
	for _, item := range catalog {
		if _, ok := m.SlugFor(item); !ok {
			out = append(out, item)
		}
	}
	return out
}

// Snapshot resolves every catalog item to a slug so the result can be stored
// as an explicit mapping.
func (m *TechniqueMapper) Snapshot(catalog []CatalogItem) map[string]string {
	out := make(map[string]string, len(catalog))
	for _, item := range catalog {
		if slug, ok := m.SlugFor(item); ok {
			out[item.ID] = string(slug)
		}
	}
	return out
}

// ItemFor returns the first catalog item mapping to slug
func (m *TechniqueMapper) ItemFor(slug Slug, catalog []CatalogItem) (CatalogItem, bool) {
	for _, item := range catalog {
		if s, ok := m.SlugFor(item); ok && s == slug {
			return item, true
		}
	}
	return CatalogItem{}, false
}

func (m *TechniqueMapper) log() *zap.Logger {
	if m == nil || m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
