package gorm

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hadi77ir/go-catalog/query"
)

// tagSeparator delimits tags in the stored column so that a single tag can be
// matched with LIKE '%|tag|%'.
const tagSeparator = "|"

// TagList is a list of tags stored as "|a|b|".
type TagList []string

// Value implements driver.Valuer
func (t TagList) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "", nil
	}
	for _, tag := range t {
		if strings.Contains(tag, tagSeparator) {
			return nil, fmt.Errorf("tag %q contains %q", tag, tagSeparator)
		}
	}
	return tagSeparator + strings.Join(t, tagSeparator) + tagSeparator, nil
}

// Scan implements sql.Scanner
func (t *TagList) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("scan tags: unexpected %T", src)
	}
	s = strings.Trim(s, tagSeparator)
	if s == "" {
		*t = nil
		return nil
	}
	*t = strings.Split(s, tagSeparator)
	return nil
}

// Dataset is the table row behind a catalog record.
type Dataset struct {
	ID               string `gorm:"primaryKey;size:100"`
	Name             string `gorm:"uniqueIndex;size:200"`
	Title            string
	Notes            string
	DatasetType      string `gorm:"index;size:100"`
	URL              string
	Version          string
	LicenseID        string
	Tags             TagList `gorm:"type:text"`
	MetadataCreated  time.Time
	MetadataModified time.Time         `gorm:"index"`
	Extras           map[string]string `gorm:"serializer:json;type:text"`
}

// TableName pins the table name
func (Dataset) TableName() string { return "datasets" }

// FromRecord converts a record into a row. Times are stored in UTC.
func FromRecord(r query.Record) Dataset {
	return Dataset{
		ID:               r.ID,
		Name:             r.Name,
		Title:            r.Title,
		Notes:            r.Notes,
		DatasetType:      r.DatasetType,
		URL:              r.URL,
		Version:          r.Version,
		LicenseID:        r.LicenseID,
		Tags:             TagList(r.Tags),
		MetadataCreated:  r.MetadataCreated.UTC(),
		MetadataModified: r.MetadataModified.UTC(),
		Extras:           r.Extras,
	}
}

// Record converts the row back into a catalog record
func (d Dataset) Record() query.Record {
	return query.Record{
		ID:               d.ID,
		Name:             d.Name,
		Title:            d.Title,
		Notes:            d.Notes,
		DatasetType:      d.DatasetType,
		URL:              d.URL,
		Version:          d.Version,
		LicenseID:        d.LicenseID,
		Tags:             []string(d.Tags),
		MetadataCreated:  d.MetadataCreated.UTC(),
		MetadataModified: d.MetadataModified.UTC(),
		Extras:           d.Extras,
	}
}

// Migrate creates or updates the datasets table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Dataset{})
}

// Insert upserts records into the datasets table
func Insert(ctx context.Context, db *gorm.DB, records ...query.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]Dataset, 0, len(records))
	for _, r := range records {
		rows = append(rows, FromRecord(r))
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, 500).Error
	return query.NewExecutionError("insert datasets", err)
}
