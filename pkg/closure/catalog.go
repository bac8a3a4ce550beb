package closure

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Catalog names as exposed under /catalogos/{catalog}
const (
	CatalogTiposIncendio    = "tipos_incendio"
	CatalogTiposPropiedad   = "tipos_propiedad"
	CatalogCausas           = "causas"
	CatalogIniciadoJuntoA   = "iniciado_junto_a"
	CatalogMediosTerrestres = "medios_terrestres"
	CatalogMediosAereos     = "medios_aereos"
	CatalogMediosAcuaticos  = "medios_acuaticos"
	CatalogAbastos          = "abastos"
	CatalogInstituciones    = "instituciones"
	CatalogTecnicas         = "tecnicas"
)

// CatalogNames lists every catalog the closure editor needs
var CatalogNames = []string{
	CatalogTiposIncendio, CatalogTiposPropiedad, CatalogCausas, CatalogIniciadoJuntoA,
	CatalogMediosTerrestres, CatalogMediosAereos, CatalogMediosAcuaticos,
	CatalogAbastos, CatalogInstituciones, CatalogTecnicas,
}

// IsCatalog reports whether name is a known catalog
func IsCatalog(name string) bool {
	for _, n := range CatalogNames {
		if n == name {
			return true
		}
	}
	return false
}

// CatalogItem is one admin-maintained catalog entry
type CatalogItem struct {
	ID     string `json:"id" yaml:"id"`
	Nombre string `json:"nombre" yaml:"nombre"`
}

// CatalogPage is one page of a catalog listing
type CatalogPage struct {
	Items    []CatalogItem `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// CatalogSource lists catalog items page by page
type CatalogSource interface {
	ListCatalogoItems(ctx context.Context, catalog string, page, pageSize int) (*CatalogPage, error)
}

// Catalogs holds every catalog loaded for an editing session
type Catalogs struct {
	TiposIncendio    []CatalogItem `json:"tipos_incendio" yaml:"tipos_incendio"`
	TiposPropiedad   []CatalogItem `json:"tipos_propiedad" yaml:"tipos_propiedad"`
	Causas           []CatalogItem `json:"causas" yaml:"causas"`
	IniciadoJuntoA   []CatalogItem `json:"iniciado_junto_a" yaml:"iniciado_junto_a"`
	MediosTerrestres []CatalogItem `json:"medios_terrestres" yaml:"medios_terrestres"`
	MediosAereos     []CatalogItem `json:"medios_aereos" yaml:"medios_aereos"`
	MediosAcuaticos  []CatalogItem `json:"medios_acuaticos" yaml:"medios_acuaticos"`
	Abastos          []CatalogItem `json:"abastos" yaml:"abastos"`
	Instituciones    []CatalogItem `json:"instituciones" yaml:"instituciones"`
	Tecnicas         []CatalogItem `json:"tecnicas" yaml:"tecnicas"`
}

func (c *Catalogs) slot(name string) *[]CatalogItem {
	switch name {
	case CatalogTiposIncendio:
		return &c.TiposIncendio
	case CatalogTiposPropiedad:
		return &c.TiposPropiedad
	case CatalogCausas:
		return &c.Causas
	case CatalogIniciadoJuntoA:
		return &c.IniciadoJuntoA
	case CatalogMediosTerrestres:
		return &c.MediosTerrestres
	case CatalogMediosAereos:
		return &c.MediosAereos
	case CatalogMediosAcuaticos:
		return &c.MediosAcuaticos
	case CatalogAbastos:
		return &c.Abastos
	case CatalogInstituciones:
		return &c.Instituciones
	case CatalogTecnicas:
		return &c.Tecnicas
	}
	return nil
}

// Get returns the items of the named catalog
func (c *Catalogs) Get(name string) []CatalogItem {
	if s := c.slot(name); s != nil {
		return *s
	}
	return nil
}

// Lookup finds an item by ID in the named catalog
func (c *Catalogs) Lookup(name, id string) (CatalogItem, bool) {
	for _, item := range c.Get(name) {
		if item.ID == id {
			return item, true
		}
	}
	return CatalogItem{}, false
}

// DefaultPageSize is used when LoadCatalogs is given a non-positive size
const DefaultPageSize = 100

const maxCatalogPages = 1000

// LoadCatalogs fetches all catalogs concurrently. A failure on any catalog
// cancels the rest and is reported as a single error.
func LoadCatalogs(ctx context.Context, src CatalogSource, pageSize int) (*Catalogs, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		mu  sync.Mutex
		out = &Catalogs{}
	)

	p := pool.New().WithContext(ctx).WithFirstError().WithCancelOnError()
	for _, name := range CatalogNames {
		name := name
		p.Go(func(ctx context.Context) error {
			items, err := fetchCatalog(ctx, src, name, pageSize)
			if err != nil {
				return fmt.Errorf("failed to load catalog %s: %w", name, err)
			}
			mu.Lock()
			*out.slot(name) = items
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchCatalog(ctx context.Context, src CatalogSource, name string, pageSize int) ([]CatalogItem, error) {
	items := make([]CatalogItem, 0)
	for page := 1; page <= maxCatalogPages; page++ {
		res, err := src.ListCatalogoItems(ctx, name, page, pageSize)
		if err != nil {
			return nil, err
		}
		items = append(items, res.Items...)
		if len(res.Items) < pageSize || (res.Total > 0 && len(items) >= res.Total) {
			break
		}
	}
	return items, nil
}
