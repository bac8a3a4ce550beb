package catalog

import "github.com/yourorg/fire-closure/pkg/closure"

// Defaults holds the items Seed creates for each empty catalog
var Defaults = map[string][]string{
	closure.CatalogTiposIncendio: {
		"Superficial", "Copa", "Subterráneo", "Mixto",
	},
	closure.CatalogTiposPropiedad: {
		"Ejidal", "Comunal", "Privada", "Federal", "Estatal",
	},
	closure.CatalogCausas: {
		"Actividades agropecuarias", "Fogata", "Fumador", "Intencional",
		"Quema de basura", "Rayo", "Otra",
	},
	closure.CatalogIniciadoJuntoA: {
		"Camino", "Carretera", "Terreno agrícola", "Zona urbana", "Otro",
	},
	closure.CatalogMediosTerrestres: {
		"Brigada", "Camioneta", "Motobomba", "Tractor",
	},
	closure.CatalogMediosAereos: {
		"Helicóptero", "Avión", "Dron",
	},
	closure.CatalogMediosAcuaticos: {
		"Lancha", "Embarcación",
	},
	closure.CatalogAbastos: {
		"Agua", "Víveres", "Combustible",
	},
	closure.CatalogInstituciones: {
		"CONAFOR", "Protección Civil", "SEDENA", "Municipio", "Voluntarios",
	},
	closure.CatalogTecnicas: {
		"Ataque directo", "Ataque indirecto", "Control natural",
	},
}
