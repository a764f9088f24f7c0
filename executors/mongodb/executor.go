package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hadi77ir/go-catalog/query"
)

// document is the stored shape of a catalog record
type document struct {
	ID               string            `bson:"_id"`
	Name             string            `bson:"name"`
	Title            string            `bson:"title"`
	Notes            string            `bson:"notes,omitempty"`
	DatasetType      string            `bson:"dataset_type"`
	URL              string            `bson:"url,omitempty"`
	Version          string            `bson:"version,omitempty"`
	LicenseID        string            `bson:"license_id,omitempty"`
	Tags             []string          `bson:"tags"`
	MetadataCreated  time.Time         `bson:"metadata_created"`
	MetadataModified time.Time         `bson:"metadata_modified"`
	Extras           map[string]string `bson:"extras,omitempty"`
}

func fromRecord(r query.Record) document {
	return document{
		ID:               r.ID,
		Name:             r.Name,
		Title:            r.Title,
		Notes:            r.Notes,
		DatasetType:      r.DatasetType,
		URL:              r.URL,
		Version:          r.Version,
		LicenseID:        r.LicenseID,
		Tags:             r.Tags,
		MetadataCreated:  r.MetadataCreated.UTC(),
		MetadataModified: r.MetadataModified.UTC(),
		Extras:           r.Extras,
	}
}

func (d document) record() query.Record {
	return query.Record{
		ID:               d.ID,
		Name:             d.Name,
		Title:            d.Title,
		Notes:            d.Notes,
		DatasetType:      d.DatasetType,
		URL:              d.URL,
		Version:          d.Version,
		LicenseID:        d.LicenseID,
		Tags:             d.Tags,
		MetadataCreated:  d.MetadataCreated.UTC(),
		MetadataModified: d.MetadataModified.UTC(),
		Extras:           d.Extras,
	}
}

// Executor is the MongoDB implementation of the executor interface
type Executor struct {
	collection *mongo.Collection
	options    *query.ExecutorOptions
}

// NewExecutor creates a new MongoDB executor
func NewExecutor(collection *mongo.Collection, opts *query.ExecutorOptions) *Executor {
	if opts == nil {
		opts = query.DefaultExecutorOptions()
	}
	return &Executor{
		collection: collection,
		options:    opts,
	}
}

// Name returns the name of this executor
func (e *Executor) Name() string {
	return "mongodb"
}

// Close disconnects the client that owns the collection
func (e *Executor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.collection.Database().Client().Disconnect(ctx)
}

// Insert upserts records by ID
func Insert(ctx context.Context, collection *mongo.Collection, records ...query.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		doc := fromRecord(r)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return query.NewExecutionError("insert datasets", err)
}

// Search runs a single aggregation whose $facet stage returns both the total
// and the requested page.
func (e *Executor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.options.CheckPageSize(q.RowCount); err != nil {
		return nil, err
	}

	filter, err := e.buildQuery(q, e.options.Now())
	if err != nil {
		return nil, err
	}

	sortField, sortOrder := e.options.SortFields(q)
	if !query.IsSortable(sortField) {
		return nil, query.InvalidFieldNameError(sortField)
	}
	direction := 1
	if sortOrder == query.SortOrderDesc {
		direction = -1
	}
	sort := bson.D{{Key: mongoField(sortField), Value: direction}}
	if id := mongoField(e.idField()); id != mongoField(sortField) {
		sort = append(sort, bson.E{Key: id, Value: 1})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$facet", Value: bson.D{
			{Key: "total", Value: bson.A{bson.D{{Key: "$count", Value: "n"}}}},
			{Key: "items", Value: bson.A{
				bson.D{{Key: "$sort", Value: sort}},
				bson.D{{Key: "$skip", Value: int64(q.Offset)}},
				bson.D{{Key: "$limit", Value: int64(q.RowCount)}},
			}},
		}}},
	}

	cursor, err := e.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, query.NewExecutionError("aggregate datasets", err)
	}
	var out []struct {
		Total []struct {
			N int64 `bson:"n"`
		} `bson:"total"`
		Items []document `bson:"items"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, query.NewExecutionError("decode datasets", err)
	}

	var (
		total int64
		items []query.Record
	)
	if len(out) > 0 {
		if len(out[0].Total) > 0 {
			total = out[0].Total[0].N
		}
		items = make([]query.Record, 0, len(out[0].Items))
		for _, doc := range out[0].Items {
			items = append(items, doc.record())
		}
	}
	return query.NewResult(items, total, q.Offset), nil
}

func (e *Executor) idField() string {
	if e.options.IDFieldName != "" {
		return e.options.IDFieldName
	}
	return query.FieldID
}

// buildQuery joins the filter and text conditions
func (e *Executor) buildQuery(q *query.Query, now time.Time) (bson.M, error) {
	var parts bson.A
	for _, node := range []query.Node{q.Filter, q.Text} {
		if node == nil {
			continue
		}
		part, err := e.buildFilter(node, now)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	switch len(parts) {
	case 0:
		return bson.M{}, nil
	case 1:
		return parts[0].(bson.M), nil
	}
	return bson.M{"$and": parts}, nil
}

func (e *Executor) buildFilter(node query.Node, now time.Time) (bson.M, error) {
	switch n := node.(type) {
	case *query.BinaryOpNode:
		left, err := e.buildFilter(n.Left, now)
		if err != nil {
			return nil, err
		}
		right, err := e.buildFilter(n.Right, now)
		if err != nil {
			return nil, err
		}
		if n.Operator == query.BinaryOpOr {
			return bson.M{"$or": bson.A{left, right}}, nil
		}
		return bson.M{"$and": bson.A{left, right}}, nil

	case *query.NotNode:
		inner, err := e.buildFilter(n.Operand, now)
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{inner}}, nil

	case *query.ComparisonNode:
		if n.Field == query.DefaultSearchField {
			var alternatives bson.A
			for _, field := range e.options.DefaultSearchFields {
				if !e.options.IsFieldAllowed(field) {
					return nil, query.FieldNotAllowedError(field)
				}
				alternatives = append(alternatives, bson.M{mongoField(field): bson.M{"$regex": regexp.QuoteMeta(fmt.Sprint(n.Value)), "$options": "i"}})
			}
			if len(alternatives) == 0 {
				return nil, fmt.Errorf("%w: no default search fields", query.ErrInvalidQuery)
			}
			return bson.M{"$or": alternatives}, nil
		}
		if !e.options.IsFieldAllowed(n.Field) {
			return nil, query.FieldNotAllowedError(n.Field)
		}
		field := mongoField(n.Field)
		if query.IsTimeField(n.Field) {
			return bson.M{field: convertValue(query.ResolveNow(n.Value, now))}, nil
		}
		str := regexp.QuoteMeta(fmt.Sprint(convertValue(n.Value)))
		switch n.Operator {
		case query.OpEqual:
			return bson.M{field: convertValue(n.Value)}, nil
		case query.OpContains:
			return bson.M{field: bson.M{"$regex": str, "$options": ""}}, nil
		case query.OpIContains:
			return bson.M{field: bson.M{"$regex": str, "$options": "i"}}, nil
		case query.OpStartsWith:
			return bson.M{field: bson.M{"$regex": "^" + str, "$options": ""}}, nil
		case query.OpEndsWith:
			return bson.M{field: bson.M{"$regex": str + "$", "$options": ""}}, nil
		}
		return nil, query.ErrInvalidQuery

	case *query.RangeNode:
		if !e.options.IsFieldAllowed(n.Field) {
			return nil, query.FieldNotAllowedError(n.Field)
		}
		cond := bson.M{}
		if n.Lower != nil {
			op := "$gt"
			if n.IncludeLower {
				op = "$gte"
			}
			cond[op] = convertValue(query.ResolveNow(n.Lower, now))
		}
		if n.Upper != nil {
			op := "$lt"
			if n.IncludeUpper {
				op = "$lte"
			}
			cond[op] = convertValue(query.ResolveNow(n.Upper, now))
		}
		if len(cond) == 0 {
			return bson.M{mongoField(n.Field): bson.M{"$exists": true}}, nil
		}
		return bson.M{mongoField(n.Field): cond}, nil

	default:
		return nil, query.ErrInvalidQuery
	}
}

// mongoField maps a record field name to its document path
func mongoField(field string) string {
	if field == query.FieldID {
		return "_id"
	}
	if key, ok := query.ExtraKey(field); ok {
		return "extras." + key
	}
	return field
}

// convertValue converts query values to MongoDB-compatible values
func convertValue(val interface{}) interface{} {
	switch v := val.(type) {
	case query.StringValue:
		return string(v)
	case query.DateTimeValue:
		return time.Time(v).UTC()
	default:
		return val
	}
}
