package serializer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/query"
)

const (
	nsRDF   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDCAT  = "http://www.w3.org/ns/dcat#"
	nsDCT   = "http://purl.org/dc/terms/"
	nsHydra = "http://www.w3.org/ns/hydra/core#"
	nsOWL   = "http://www.w3.org/2002/07/owl#"
	nsXSD   = "http://www.w3.org/2001/XMLSchema#"
)

type rdfDocument struct {
	XMLName    xml.Name        `xml:"rdf:RDF"`
	NSRDF      string          `xml:"xmlns:rdf,attr"`
	NSDCAT     string          `xml:"xmlns:dcat,attr"`
	NSDCT      string          `xml:"xmlns:dct,attr"`
	NSHydra    string          `xml:"xmlns:hydra,attr"`
	NSOWL      string          `xml:"xmlns:owl,attr"`
	Catalog    *rdfCatalog     `xml:"dcat:Catalog,omitempty"`
	Dataset    *rdfDataset     `xml:"dcat:Dataset,omitempty"`
	Collection *rdfPagedResult `xml:"hydra:PagedCollection,omitempty"`
}

type rdfCatalog struct {
	About    string          `xml:"rdf:about,attr"`
	Datasets []rdfDatasetRef `xml:"dcat:dataset"`
}

type rdfDatasetRef struct {
	Dataset rdfDataset `xml:"dcat:Dataset"`
}

type rdfResource struct {
	Resource string `xml:"rdf:resource,attr"`
}

type rdfTyped struct {
	Datatype string `xml:"rdf:datatype,attr"`
	Value    string `xml:",chardata"`
}

type rdfDataset struct {
	About       string       `xml:"rdf:about,attr"`
	Identifier  string       `xml:"dct:identifier"`
	Title       string       `xml:"dct:title,omitempty"`
	Description string       `xml:"dct:description,omitempty"`
	Keywords    []string     `xml:"dcat:keyword"`
	Issued      *rdfTyped    `xml:"dct:issued,omitempty"`
	Modified    *rdfTyped    `xml:"dct:modified,omitempty"`
	Version     string       `xml:"owl:versionInfo,omitempty"`
	License     string       `xml:"dct:license,omitempty"`
	LandingPage *rdfResource `xml:"dcat:landingPage,omitempty"`
}

type rdfPagedResult struct {
	About        string   `xml:"rdf:about,attr"`
	TotalItems   rdfTyped `xml:"hydra:totalItems"`
	ItemsPerPage rdfTyped `xml:"hydra:itemsPerPage"`
	FirstPage    string   `xml:"hydra:firstPage"`
	LastPage     string   `xml:"hydra:lastPage"`
	PreviousPage string   `xml:"hydra:previousPage,omitempty"`
	NextPage     string   `xml:"hydra:nextPage,omitempty"`
}

// XML renders DCAT as RDF/XML with hydra paging.
type XML struct {
	uris URIBuilder
}

// NewXML creates an RDF/XML serializer.
func NewXML(uris URIBuilder) *XML {
	return &XML{uris: uris}
}

func (s *XML) ContentType() string { return "application/rdf+xml" }

func (s *XML) SerializeCatalog(records []query.Record, info *pagination.Info) ([]byte, error) {
	doc := s.document()
	doc.Catalog = &rdfCatalog{About: s.uris.Catalog()}
	for _, r := range records {
		doc.Catalog.Datasets = append(doc.Catalog.Datasets, rdfDatasetRef{Dataset: s.dataset(r)})
	}
	if info != nil {
		doc.Collection = &rdfPagedResult{
			About:        info.Current,
			TotalItems:   rdfTyped{Datatype: nsXSD + "integer", Value: strconv.FormatInt(info.Count, 10)},
			ItemsPerPage: rdfTyped{Datatype: nsXSD + "integer", Value: strconv.Itoa(info.ItemsPerPage)},
			FirstPage:    info.First,
			LastPage:     info.Last,
			PreviousPage: info.Previous,
			NextPage:     info.Next,
		}
	}
	return s.encode(doc)
}

func (s *XML) SerializeDataset(record query.Record) ([]byte, error) {
	doc := s.document()
	ds := s.dataset(record)
	doc.Dataset = &ds
	return s.encode(doc)
}

func (s *XML) document() *rdfDocument {
	return &rdfDocument{NSRDF: nsRDF, NSDCAT: nsDCAT, NSDCT: nsDCT, NSHydra: nsHydra, NSOWL: nsOWL}
}

func (s *XML) dataset(r query.Record) rdfDataset {
	ds := rdfDataset{
		About:       s.uris.Dataset(r),
		Identifier:  r.ID,
		Title:       r.Title,
		Description: r.Notes,
		Keywords:    r.Tags,
		Issued:      dateTime(r.MetadataCreated),
		Modified:    dateTime(r.MetadataModified),
		Version:     r.Version,
		License:     r.LicenseID,
	}
	if r.URL != "" {
		ds.LandingPage = &rdfResource{Resource: r.URL}
	}
	return ds
}

func (s *XML) encode(doc *rdfDocument) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode rdf/xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func dateTime(t time.Time) *rdfTyped {
	if t.IsZero() {
		return nil
	}
	return &rdfTyped{Datatype: nsXSD + "dateTime", Value: query.FormatTime(t)}
}
