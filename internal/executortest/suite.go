// Package executortest holds fixtures and a behaviour suite shared by the
// executor implementations' tests.
package executortest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadi77ir/go-catalog/executor"
	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
)

// Base is the creation time of every fixture record.
var Base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Now is the instant executors under test should use for NOW.
var Now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// Datasets returns n fixture records. Record i was modified i hours after Base.
func Datasets(n int) []query.Record {
	records := make([]query.Record, 0, n)
	for i := 0; i < n; i++ {
		r := query.Record{
			ID:               fmt.Sprintf("ds-%02d", i),
			Name:             fmt.Sprintf("dataset-%02d", i),
			Title:            fmt.Sprintf("Dataset %02d", i),
			Notes:            "Collected by the city",
			DatasetType:      query.DatasetType,
			URL:              fmt.Sprintf("https://data.example.org/dataset-%02d", i),
			LicenseID:        "cc-by",
			Tags:             []string{"air"},
			MetadataCreated:  Base,
			MetadataModified: Base.Add(time.Duration(i) * time.Hour),
		}
		if i%5 == 0 {
			r.Title = fmt.Sprintf("Air Quality %02d", i)
		}
		if i%2 == 0 {
			r.Tags = []string{"water", "rivers"}
		}
		if i%10 == 9 {
			r.DatasetType = "harvest"
		}
		if i%3 == 0 {
			r.Extras = map[string]string{"publisher": "acme"}
		}
		records = append(records, r)
	}
	return records
}

// Options returns executor options with a fixed clock.
func Options() *query.ExecutorOptions {
	opts := query.DefaultExecutorOptions()
	opts.Clock = func() time.Time { return Now }
	return opts
}

// Features lists optional capabilities of the executor under test.
type Features struct {
	Extras bool
}

// Factory builds an executor over records. It is called once per subtest.
type Factory func(t *testing.T, records []query.Record) executor.Executor

// Run exercises the behaviour every executor must share.
func Run(t *testing.T, newExecutor Factory, features Features) {
	records := Datasets(25)
	ctx := context.Background()

	search := func(t *testing.T, e executor.Executor, q *query.Query) *query.Result {
		t.Helper()
		res, err := e.Search(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, res)
		return res
	}

	filterOf := func(t *testing.T, expr string) query.Node {
		t.Helper()
		node, err := parser.Parse(expr)
		require.NoError(t, err)
		return node
	}

	t.Run("pages cover every record once in default order", func(t *testing.T) {
		e := newExecutor(t, records)
		expected := IDs(Select(records, func(query.Record) bool { return true }))

		var seen []string
		for offset := 0; offset < len(records); offset += 10 {
			res := search(t, e, &query.Query{RowCount: 10, Offset: offset})
			assert.Equal(t, int64(len(records)), res.TotalItems)
			assert.Equal(t, len(res.Items), res.ItemsReturned)
			assert.Equal(t, offset+1, res.ShowingFrom)
			seen = append(seen, IDs(res.Items)...)
		}
		assert.Equal(t, expected, seen)
	})

	t.Run("offset past the end", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{RowCount: 10, Offset: 100})
		assert.Equal(t, int64(len(records)), res.TotalItems)
		assert.Empty(t, res.Items)
		assert.True(t, res.IsEmpty())
	})

	t.Run("dataset type filter", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{Filter: filterOf(t, "dataset_type:dataset"), RowCount: 100})
		expected := Select(records, func(r query.Record) bool { return r.DatasetType == query.DatasetType })
		assert.Equal(t, int64(len(expected)), res.TotalItems)
		assert.Equal(t, IDs(expected), IDs(res.Items))
	})

	t.Run("modified since", func(t *testing.T) {
		e := newExecutor(t, records)
		since := Base.Add(20 * time.Hour)
		q := &query.Query{
			Filter: &query.RangeNode{
				Field:        query.FieldMetadataModified,
				Lower:        query.DateTimeValue(since),
				Upper:        query.NowValue{},
				IncludeLower: true,
			},
			SortBy:    query.FieldMetadataModified,
			SortOrder: query.SortOrderDesc,
			RowCount:  100,
		}
		res := search(t, e, q)
		assert.Equal(t, []string{"ds-24", "ds-23", "ds-22", "ds-21", "ds-20"}, IDs(res.Items))
		assert.Equal(t, int64(5), res.TotalItems)
	})

	t.Run("exclusive bounds", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{
			Filter:    filterOf(t, "metadata_modified:{2024-01-01T01:00:00Z TO 2024-01-01T04:00:00Z}"),
			SortBy:    query.FieldMetadataModified,
			SortOrder: query.SortOrderAsc,
			RowCount:  100,
		})
		assert.Equal(t, []string{"ds-02", "ds-03"}, IDs(res.Items))
	})

	t.Run("free text is case insensitive", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{Text: filterOf(t, "quality"), RowCount: 100})
		expected := Select(records, func(r query.Record) bool { return strings.Contains(r.Title, "Quality") })
		assert.Equal(t, IDs(expected), IDs(res.Items))
	})

	t.Run("tags and negation", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{Filter: filterOf(t, "tags:water -dataset_type:harvest"), RowCount: 100})
		expected := Select(records, func(r query.Record) bool {
			return r.Tags[0] == "water" && r.DatasetType != "harvest"
		})
		assert.Equal(t, IDs(expected), IDs(res.Items))
	})

	t.Run("or and prefix", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{Filter: filterOf(t, "name:dataset-1* OR id:ds-03"), RowCount: 100})
		expected := Select(records, func(r query.Record) bool {
			return strings.HasPrefix(r.Name, "dataset-1") || r.ID == "ds-03"
		})
		assert.Equal(t, IDs(expected), IDs(res.Items))
	})

	t.Run("explicit sort", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{SortBy: query.FieldName, SortOrder: query.SortOrderAsc, RowCount: 3})
		assert.Equal(t, []string{"ds-00", "ds-01", "ds-02"}, IDs(res.Items))
	})

	t.Run("records round trip", func(t *testing.T) {
		e := newExecutor(t, records)
		res := search(t, e, &query.Query{Filter: filterOf(t, "id:ds-06"), RowCount: 1})
		require.Len(t, res.Items, 1)
		got := res.Items[0]
		want := records[6]
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Tags, got.Tags)
		assert.True(t, want.MetadataModified.Equal(got.MetadataModified))
	})

	t.Run("page size limit", func(t *testing.T) {
		e := newExecutor(t, records)
		_, err := e.Search(ctx, &query.Query{RowCount: 0})
		assert.Error(t, err)
	})

	if features.Extras {
		t.Run("extras", func(t *testing.T) {
			e := newExecutor(t, records)
			res := search(t, e, &query.Query{Filter: filterOf(t, "extras_publisher:acme"), RowCount: 100})
			expected := Select(records, func(r query.Record) bool { return r.Extras["publisher"] == "acme" })
			assert.Equal(t, IDs(expected), IDs(res.Items))
		})
	}
}

// Select returns matching records in the default order: most recently modified first.
func Select(records []query.Record, keep func(query.Record) bool) []query.Record {
	var out []query.Record
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].MetadataModified.Compare(out[j].MetadataModified); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs lists record IDs in order.
func IDs(records []query.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
