package query

// Result is one page of records plus the total match count, both taken
// from the same backend response.
type Result struct {
	// TotalItems is the total number of items matching the query
	TotalItems int64 `json:"total_items"`

	// Items holds the records of this page in backend order
	Items []Record `json:"items"`

	// ShowingFrom is the starting index (1-based) of items in current page
	ShowingFrom int `json:"showing_from"`

	// ShowingTo is the ending index (1-based) of items in current page
	ShowingTo int `json:"showing_to"`

	// ItemsReturned is the number of items returned in this page
	ItemsReturned int `json:"items_returned"`
}

// NewResult builds a Result for items found at offset within total matches.
func NewResult(items []Record, total int64, offset int) *Result {
	if items == nil {
		items = []Record{}
	}
	r := &Result{
		TotalItems:    total,
		Items:         items,
		ItemsReturned: len(items),
	}
	if len(items) > 0 {
		r.ShowingFrom = offset + 1
		r.ShowingTo = offset + len(items)
	}
	return r
}

// IsEmpty returns true if the result contains no data
func (r *Result) IsEmpty() bool {
	return r.ItemsReturned == 0
}
