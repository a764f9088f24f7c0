package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/query"
)

// CatalogPage is the plain document shape shared by the JSON and CBOR formats.
type CatalogPage struct {
	Datasets   []query.Record   `json:"datasets" cbor:"datasets"`
	Pagination *pagination.Info `json:"pagination,omitempty" cbor:"pagination,omitempty"`
}

func newCatalogPage(records []query.Record, info *pagination.Info) CatalogPage {
	if records == nil {
		records = []query.Record{}
	}
	return CatalogPage{Datasets: records, Pagination: info}
}

// JSON renders records in their native field names.
type JSON struct{}

// NewJSON creates a JSON serializer.
func NewJSON() *JSON { return &JSON{} }

func (JSON) ContentType() string { return "application/json" }

func (JSON) SerializeCatalog(records []query.Record, info *pagination.Info) ([]byte, error) {
	return marshalJSON(newCatalogPage(records, info))
}

func (JSON) SerializeDataset(record query.Record) ([]byte, error) {
	return marshalJSON(record)
}

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// JSONLD renders DCAT as JSON-LD with a hydra:view for paging.
type JSONLD struct {
	uris URIBuilder
}

// NewJSONLD creates a JSON-LD serializer.
func NewJSONLD(uris URIBuilder) *JSONLD {
	return &JSONLD{uris: uris}
}

var jsonLDContext = map[string]string{
	"dcat":  nsDCAT,
	"dct":   nsDCT,
	"hydra": nsHydra,
	"owl":   nsOWL,
	"xsd":   nsXSD,
}

type ldCatalog struct {
	Context  map[string]string `json:"@context"`
	ID       string            `json:"@id"`
	Type     string            `json:"@type"`
	Datasets []ldDataset       `json:"dcat:dataset"`
	View     *ldView           `json:"hydra:view,omitempty"`
}

type ldDataset struct {
	Context     map[string]string `json:"@context,omitempty"`
	ID          string            `json:"@id"`
	Type        string            `json:"@type"`
	Identifier  string            `json:"dct:identifier"`
	Title       string            `json:"dct:title,omitempty"`
	Description string            `json:"dct:description,omitempty"`
	Keywords    []string          `json:"dcat:keyword,omitempty"`
	Issued      *ldTyped          `json:"dct:issued,omitempty"`
	Modified    *ldTyped          `json:"dct:modified,omitempty"`
	Version     string            `json:"owl:versionInfo,omitempty"`
	License     string            `json:"dct:license,omitempty"`
	LandingPage *ldRef            `json:"dcat:landingPage,omitempty"`
}

type ldTyped struct {
	Type  string `json:"@type"`
	Value string `json:"@value"`
}

type ldRef struct {
	ID string `json:"@id"`
}

type ldView struct {
	ID           string `json:"@id"`
	Type         string `json:"@type"`
	TotalItems   int64  `json:"hydra:totalItems"`
	ItemsPerPage int    `json:"hydra:itemsPerPage"`
	FirstPage    string `json:"hydra:firstPage"`
	LastPage     string `json:"hydra:lastPage"`
	PreviousPage string `json:"hydra:previousPage,omitempty"`
	NextPage     string `json:"hydra:nextPage,omitempty"`
}

func (s *JSONLD) ContentType() string { return "application/ld+json" }

func (s *JSONLD) SerializeCatalog(records []query.Record, info *pagination.Info) ([]byte, error) {
	doc := ldCatalog{
		Context:  jsonLDContext,
		ID:       s.uris.Catalog(),
		Type:     "dcat:Catalog",
		Datasets: make([]ldDataset, 0, len(records)),
	}
	for _, r := range records {
		doc.Datasets = append(doc.Datasets, s.dataset(r))
	}
	if info != nil {
		doc.View = &ldView{
			ID:           info.Current,
			Type:         "hydra:PagedCollection",
			TotalItems:   info.Count,
			ItemsPerPage: info.ItemsPerPage,
			FirstPage:    info.First,
			LastPage:     info.Last,
			PreviousPage: info.Previous,
			NextPage:     info.Next,
		}
	}
	return marshalJSON(doc)
}

func (s *JSONLD) SerializeDataset(record query.Record) ([]byte, error) {
	ds := s.dataset(record)
	ds.Context = jsonLDContext
	return marshalJSON(ds)
}

func (s *JSONLD) dataset(r query.Record) ldDataset {
	ds := ldDataset{
		ID:          s.uris.Dataset(r),
		Type:        "dcat:Dataset",
		Identifier:  r.ID,
		Title:       r.Title,
		Description: r.Notes,
		Keywords:    r.Tags,
		Version:     r.Version,
		License:     r.LicenseID,
	}
	if !r.MetadataCreated.IsZero() {
		ds.Issued = &ldTyped{Type: "xsd:dateTime", Value: query.FormatTime(r.MetadataCreated)}
	}
	if !r.MetadataModified.IsZero() {
		ds.Modified = &ldTyped{Type: "xsd:dateTime", Value: query.FormatTime(r.MetadataModified)}
	}
	if r.URL != "" {
		ds.LandingPage = &ldRef{ID: r.URL}
	}
	return ds
}
