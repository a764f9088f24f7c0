package query

import (
	"strings"
	"time"
)

// Record field names, as used in filter expressions.
const (
	FieldID               = "id"
	FieldName             = "name"
	FieldTitle            = "title"
	FieldNotes            = "notes"
	FieldDatasetType      = "dataset_type"
	FieldURL              = "url"
	FieldVersion          = "version"
	FieldLicenseID        = "license_id"
	FieldTags             = "tags"
	FieldMetadataCreated  = "metadata_created"
	FieldMetadataModified = "metadata_modified"

	// ExtrasPrefix addresses Extras entries, e.g. extras_publisher.
	ExtrasPrefix = "extras_"
)

// DatasetType is the dataset_type of records exposed by the catalog.
const DatasetType = "dataset"

// Record is one dataset in the catalog.
type Record struct {
	ID               string            `json:"id" cbor:"id"`
	Name             string            `json:"name" cbor:"name"`
	Title            string            `json:"title" cbor:"title"`
	Notes            string            `json:"notes,omitempty" cbor:"notes,omitempty"`
	DatasetType      string            `json:"dataset_type" cbor:"dataset_type"`
	URL              string            `json:"url,omitempty" cbor:"url,omitempty"`
	Version          string            `json:"version,omitempty" cbor:"version,omitempty"`
	LicenseID        string            `json:"license_id,omitempty" cbor:"license_id,omitempty"`
	Tags             []string          `json:"tags,omitempty" cbor:"tags,omitempty"`
	MetadataCreated  time.Time         `json:"metadata_created" cbor:"metadata_created"`
	MetadataModified time.Time         `json:"metadata_modified" cbor:"metadata_modified"`
	Extras           map[string]string `json:"extras,omitempty" cbor:"extras,omitempty"`
}

// Field returns the value of a named field: a string, a []string for tags
// or a time.Time. The second result is false for unknown fields and missing extras.
func (r *Record) Field(name string) (interface{}, bool) {
	switch name {
	case FieldID:
		return r.ID, true
	case FieldName:
		return r.Name, true
	case FieldTitle:
		return r.Title, true
	case FieldNotes:
		return r.Notes, true
	case FieldDatasetType:
		return r.DatasetType, true
	case FieldURL:
		return r.URL, true
	case FieldVersion:
		return r.Version, true
	case FieldLicenseID:
		return r.LicenseID, true
	case FieldTags:
		return r.Tags, true
	case FieldMetadataCreated:
		return r.MetadataCreated, true
	case FieldMetadataModified:
		return r.MetadataModified, true
	}
	if key, ok := ExtraKey(name); ok {
		v, found := r.Extras[key]
		return v, found
	}
	return nil, false
}

var knownFields = map[string]bool{
	FieldID: true, FieldName: true, FieldTitle: true, FieldNotes: true,
	FieldDatasetType: true, FieldURL: true, FieldVersion: true, FieldLicenseID: true,
	FieldTags: true, FieldMetadataCreated: true, FieldMetadataModified: true,
}

// IsKnownField reports whether name addresses a record field or an extra.
func IsKnownField(name string) bool {
	if knownFields[name] {
		return true
	}
	_, ok := ExtraKey(name)
	return ok
}

// IsTimeField reports whether the field holds an instant.
func IsTimeField(name string) bool {
	return name == FieldMetadataCreated || name == FieldMetadataModified
}

// IsSortable reports whether records can be ordered by the field.
func IsSortable(name string) bool {
	return IsKnownField(name) && name != FieldTags
}

// ExtraKey returns the extras key addressed by an extras_<key> field name.
func ExtraKey(name string) (string, bool) {
	if !strings.HasPrefix(name, ExtrasPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(name, ExtrasPrefix)
	if key == "" {
		return "", false
	}
	for _, ch := range key {
		if !(ch == '_' || ch == '-' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')) {
			return "", false
		}
	}
	return key, true
}
