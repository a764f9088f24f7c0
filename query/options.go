package query

import "time"

// ExecutorOptions contains configuration options for query executors
type ExecutorOptions struct {
	// MaxPageSize is the maximum allowed row count. Zero means no limit.
	MaxPageSize int

	// DefaultSortField is used when the query carries no sort
	DefaultSortField string

	// DefaultSortOrder is the default sort order
	DefaultSortOrder SortOrder

	// IDFieldName breaks ties between equal sort keys so that pages are stable.
	// Defaults to "_id" for MongoDB and "id" elsewhere.
	IDFieldName string

	// DefaultSearchFields are searched case-insensitively for bare terms
	DefaultSearchFields []string

	// AllowedFields is a whitelist of fields that can be queried
	// Empty list means all fields are allowed (no restriction)
	AllowedFields []string

	// Clock returns the instant used for NOW. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultExecutorOptions returns default executor options
func DefaultExecutorOptions() *ExecutorOptions {
	return &ExecutorOptions{
		MaxPageSize:         1000,
		DefaultSortField:    FieldMetadataModified,
		DefaultSortOrder:    SortOrderDesc,
		IDFieldName:         FieldID,
		DefaultSearchFields: []string{FieldName, FieldTitle, FieldNotes, FieldTags},
	}
}

// CheckPageSize rejects row counts the executor cannot serve.
// Sizes are never silently capped: the caller's page size drives the pagination links.
func (o *ExecutorOptions) CheckPageSize(size int) error {
	if size <= 0 {
		return NewFieldError("rows", ErrInvalidQuery)
	}
	if o.MaxPageSize > 0 && size > o.MaxPageSize {
		return NewFieldError("rows", ErrPageSizeExceeded)
	}
	return nil
}

// IsFieldAllowed checks if a field is in the allowed fields list
// Returns true if AllowedFields is empty (no restriction) or field is in the list
func (o *ExecutorOptions) IsFieldAllowed(field string) bool {
	if len(o.AllowedFields) == 0 {
		return true
	}
	for _, allowed := range o.AllowedFields {
		if allowed == field {
			return true
		}
	}
	return false
}

// Now returns the current instant in UTC.
func (o *ExecutorOptions) Now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}

// SortFields returns the effective sort for q, falling back to the defaults.
func (o *ExecutorOptions) SortFields(q *Query) (string, SortOrder) {
	if q.SortBy != "" {
		return q.SortBy, q.SortOrder
	}
	return o.DefaultSortField, o.DefaultSortOrder
}
