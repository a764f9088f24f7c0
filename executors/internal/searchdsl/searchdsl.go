// Package searchdsl builds the request bodies and decodes the documents shared
// by the Elasticsearch and OpenSearch executors.
package searchdsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hadi77ir/go-catalog/query"
)

// Mapping is the index definition for dataset documents. Extras are stored as
// flat extras_<key> keyword fields so that filter expressions address them directly.
const Mapping = `{
  "mappings": {
    "dynamic_templates": [
      {"extras": {"match": "extras_*", "mapping": {"type": "keyword"}}}
    ],
    "properties": {
      "id": {"type": "keyword"},
      "name": {"type": "keyword"},
      "title": {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "notes": {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 256}}},
      "dataset_type": {"type": "keyword"},
      "url": {"type": "keyword"},
      "version": {"type": "keyword"},
      "license_id": {"type": "keyword"},
      "tags": {"type": "keyword"},
      "metadata_created": {"type": "date"},
      "metadata_modified": {"type": "date"}
    }
  }
}`

// Response is the part of a _search response the executors read.
type Response struct {
	Hits struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Document flattens a record into its indexed form.
func Document(r query.Record) (map[string]interface{}, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "extras")
	for k, v := range r.Extras {
		doc[query.ExtrasPrefix+k] = v
	}
	return doc, nil
}

// DecodeSource turns a stored _source back into a record.
func DecodeSource(source json.RawMessage) (query.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(source, &fields); err != nil {
		return query.Record{}, err
	}
	extras := map[string]string{}
	for name, value := range fields {
		key, ok := query.ExtraKey(name)
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return query.Record{}, fmt.Errorf("extra %s: %w", key, err)
		}
		extras[key] = s
		delete(fields, name)
	}

	rest, err := json.Marshal(fields)
	if err != nil {
		return query.Record{}, err
	}
	var r query.Record
	if err := json.Unmarshal(rest, &r); err != nil {
		return query.Record{}, err
	}
	if len(extras) > 0 {
		r.Extras = extras
	}
	r.MetadataCreated = r.MetadataCreated.UTC()
	r.MetadataModified = r.MetadataModified.UTC()
	return r, nil
}

// BulkBody writes newline-delimited index actions for records.
func BulkBody(records []query.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		action := map[string]interface{}{"index": map[string]string{"_id": r.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		doc, err := Document(r)
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SortField returns the sortable form of a field: analysed text sorts on its keyword subfield.
func SortField(field string) string {
	switch field {
	case query.FieldTitle, query.FieldNotes:
		return field + ".raw"
	}
	return field
}

// Body builds a _search request. The filter and text become query_string
// clauses; bare terms search opts.DefaultSearchFields.
func Body(q *query.Query, opts *query.ExecutorOptions) ([]byte, error) {
	for _, node := range []query.Node{q.Filter, q.Text} {
		if err := CheckFields(node, opts); err != nil {
			return nil, err
		}
	}

	sortField, sortOrder := opts.SortFields(q)
	if !query.IsSortable(sortField) {
		return nil, query.InvalidFieldNameError(sortField)
	}
	idField := opts.IDFieldName
	if idField == "" {
		idField = query.FieldID
	}
	sort := []interface{}{
		map[string]interface{}{SortField(sortField): map[string]string{"order": sortOrder.String()}},
	}
	if idField != sortField {
		sort = append(sort, map[string]interface{}{idField: map[string]string{"order": "asc"}})
	}

	boolQuery := map[string]interface{}{}
	if q.Text != nil {
		boolQuery["must"] = []interface{}{queryString(q.Text, opts)}
	}
	if q.Filter != nil {
		boolQuery["filter"] = []interface{}{queryString(q.Filter, opts)}
	}
	var root interface{} = map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(boolQuery) > 0 {
		root = map[string]interface{}{"bool": boolQuery}
	}

	return json.Marshal(map[string]interface{}{
		"query":            root,
		"from":             q.Offset,
		"size":             q.RowCount,
		"track_total_hits": true,
		"sort":             sort,
	})
}

func queryString(node query.Node, opts *query.ExecutorOptions) map[string]interface{} {
	qs := map[string]interface{}{
		"query":            query.Render(node, query.DialectElastic),
		"default_operator": "AND",
	}
	if len(opts.DefaultSearchFields) > 0 {
		qs["fields"] = opts.DefaultSearchFields
	}
	return map[string]interface{}{"query_string": qs}
}

// CheckFields applies the field whitelist to every field node references.
func CheckFields(node query.Node, opts *query.ExecutorOptions) error {
	var err error
	check := func(field string) {
		if err == nil && !opts.IsFieldAllowed(field) {
			err = query.FieldNotAllowedError(field)
		}
	}
	query.Walk(node, func(n query.Node) bool {
		switch c := n.(type) {
		case *query.ComparisonNode:
			if c.Field != query.DefaultSearchField {
				check(c.Field)
				break
			}
			if len(opts.DefaultSearchFields) == 0 {
				err = fmt.Errorf("%w: no default search fields", query.ErrInvalidQuery)
			}
			for _, f := range opts.DefaultSearchFields {
				check(f)
			}
		case *query.RangeNode:
			check(c.Field)
		}
		return err == nil
	})
	return err
}

// ErrorReason extracts error.type and error.reason from an error response body.
func ErrorReason(body []byte) string {
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error.Type == "" {
		return strings.TrimSpace(string(body))
	}
	return e.Error.Type + ": " + e.Error.Reason
}
