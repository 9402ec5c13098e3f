// Package entity implements one generic pipeline job for every entity family
// of the open-data API, driven by a per-family Descriptor.
package entity

import (
	"sort"
	"strconv"
	"strings"
)

// Field maps a destination key to one or more dotted source paths. The first
// source present in the record wins.
type Field struct {
	Target  string
	Sources []string
}

// Descriptor is everything that differs between entity families.
type Descriptor struct {
	Family     string
	ListPath   string
	DetailPath string // may contain {id}
	IDField    string
	Fields     []Field
	Required   []string // destination keys that must be present

	// RelatedPath is a sub-resource list fetched together with the detail
	// and stored under RelatedField.
	RelatedPath  string
	RelatedField string

	MetadataPath string
	CurrentPath  string
	HistoryPath  string // empty disables history documents
	IndexPath    string

	PageSize      int
	UsesPeriod    bool // list endpoint is filtered by legislative period
	PeriodParam   string
	UsesDateRange bool
	FetchDetail   bool
}

// Render fills {family}, {id} and {period} in a path template. A zero period
// renders as "current".
func (d Descriptor) Render(template, id string, period int) string {
	p := "current"
	if period > 0 {
		p = strconv.Itoa(period)
	}
	return strings.NewReplacer("{family}", d.Family, "{id}", id, "{period}", p).Replace(template)
}

func withDefaults(d Descriptor) Descriptor {
	if d.IDField == "" {
		d.IDField = "id"
	}
	if d.MetadataPath == "" {
		d.MetadataPath = "metadata/{family}"
	}
	if d.CurrentPath == "" {
		d.CurrentPath = "{family}/current/{id}"
	}
	if d.IndexPath == "" {
		d.IndexPath = "indices/{family}/{period}"
	}
	if d.PageSize <= 0 {
		d.PageSize = 100
	}
	if d.PeriodParam == "" {
		d.PeriodParam = "idLegislatura"
	}
	return d
}

func field(target string, sources ...string) Field {
	if len(sources) == 0 {
		sources = []string{target}
	}
	return Field{Target: target, Sources: sources}
}

var catalog = map[string]Descriptor{
	"deputados": withDefaults(Descriptor{
		Family:      "deputados",
		ListPath:    "/deputados",
		DetailPath:  "/deputados/{id}",
		HistoryPath: "{family}/history/{period}/{id}",
		UsesPeriod:  true,
		FetchDetail: true,
		Fields: []Field{
			field("id"),
			field("nome", "ultimoStatus.nome", "nome"),
			field("nomeCivil"),
			field("siglaPartido", "ultimoStatus.siglaPartido", "siglaPartido"),
			field("siglaUf", "ultimoStatus.siglaUf", "siglaUf"),
			field("idLegislatura", "ultimoStatus.idLegislatura", "idLegislatura"),
			field("email", "ultimoStatus.gabinete.email", "email"),
			field("situacao", "ultimoStatus.situacao"),
			field("urlFoto", "ultimoStatus.urlFoto", "urlFoto"),
			field("uri"),
		},
		Required: []string{"id", "nome"},
	}),
	"partidos": withDefaults(Descriptor{
		Family:      "partidos",
		ListPath:    "/partidos",
		DetailPath:  "/partidos/{id}",
		FetchDetail: true,
		Fields: []Field{
			field("id"),
			field("sigla"),
			field("nome"),
			field("situacao", "status.situacao"),
			field("totalMembros", "status.totalMembros"),
			field("lider", "status.lider.nome"),
			field("urlLogo"),
			field("uri"),
		},
		Required: []string{"id", "sigla"},
	}),
	"orgaos": withDefaults(Descriptor{
		Family:        "orgaos",
		ListPath:      "/orgaos",
		DetailPath:    "/orgaos/{id}",
		UsesDateRange: true,
		Fields: []Field{
			field("id"),
			field("sigla"),
			field("nome"),
			field("apelido"),
			field("codTipoOrgao"),
			field("tipoOrgao"),
			field("uri"),
		},
		Required: []string{"id", "sigla"},
	}),
	"frentes": withDefaults(Descriptor{
		Family:       "frentes",
		ListPath:     "/frentes",
		DetailPath:   "/frentes/{id}",
		RelatedPath:  "/frentes/{id}/membros",
		RelatedField: "membros",
		HistoryPath:  "{family}/history/{period}/{id}",
		UsesPeriod:   true,
		FetchDetail:  true,
		Fields: []Field{
			field("id"),
			field("titulo"),
			field("idLegislatura"),
			field("coordenador", "coordenador.nome"),
			field("email"),
			field("telefone"),
			field("situacao"),
			field("membros"),
			field("uri"),
		},
		Required: []string{"id", "titulo"},
	}),
}

// Lookup returns the descriptor for family.
func Lookup(family string) (Descriptor, bool) {
	d, ok := catalog[family]
	return d, ok
}

// Families lists the known families in alphabetical order.
func Families() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Catalog returns every known descriptor, ordered by family.
func Catalog() []Descriptor {
	names := Families()
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, catalog[n])
	}
	return out
}
