package catalog

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/executor"
	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/parser"
	"github.com/hadi77ir/go-catalog/query"
	"github.com/hadi77ir/go-catalog/serializer"
)

const tracerName = "github.com/hadi77ir/go-catalog/catalog"

// Page is one assembled catalog page.
type Page struct {
	Request    PageRequest
	Items      []query.Record
	Pagination *pagination.Info
}

// SearchResponse is the JSON shape of a catalog search.
type SearchResponse struct {
	Datasets   []query.Record   `json:"datasets"`
	Pagination *pagination.Info `json:"pagination"`
}

// Assembler serves catalog pages from a search executor.
type Assembler struct {
	source      config.Source
	gateway     executor.Executor
	serializers *serializer.Registry
	endpoint    *Endpoint
	builder     *Builder
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer sets the tracer used for spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Assembler) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithParserCache shares a parse cache for caller filters.
func WithParserCache(cache *parser.ParserCache) Option {
	return func(a *Assembler) {
		a.builder = NewBuilder(cache)
	}
}

// NewAssembler validates the settings that must hold for the lifetime of the
// service: the endpoint template, the page size and the default format.
func NewAssembler(source config.Source, gateway executor.Executor, serializers *serializer.Registry, opts ...Option) (*Assembler, error) {
	cfg := source.Current()
	endpoint, err := NewEndpoint(cfg.Catalog.BaseURL, cfg.Catalog.Endpoint)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.NewCalculator(cfg.Catalog.DatasetsPerPage); err != nil {
		return nil, err
	}
	if _, err := serializers.Get(cfg.Catalog.DefaultFormat); err != nil {
		return nil, query.NewConfigurationError("catalog.default_format", cfg.Catalog.DefaultFormat, "no serializer for format")
	}

	a := &Assembler{
		source:      source,
		gateway:     gateway,
		serializers: serializers,
		endpoint:    endpoint,
		builder:     NewBuilder(nil),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Endpoint returns the catalog endpoint.
func (a *Assembler) Endpoint() *Endpoint { return a.endpoint }

// ListCatalogPage validates raw, runs one search and computes the navigation
// metadata. Invalid input never reaches the executor.
func (a *Assembler) ListCatalogPage(ctx context.Context, raw RawRequest) (*Page, error) {
	ctx, span := a.tracer.Start(ctx, "catalog.ListCatalogPage")
	defer span.End()

	cfg := a.source.Current()
	req, _, err := a.parse(raw, cfg)
	if err != nil {
		return nil, fail(span, err)
	}
	page, err := a.assemble(ctx, cfg, req)
	return page, fail(span, err)
}

// parse validates raw and resolves the serializer of its format. Links are
// only ever built for formats the catalog can render.
func (a *Assembler) parse(raw RawRequest, cfg *config.Config) (PageRequest, serializer.Serializer, error) {
	req, err := ParseRequest(raw, cfg.Catalog)
	if err != nil {
		return PageRequest{}, nil, err
	}
	s, err := a.serializers.Get(req.Format)
	if err != nil {
		return PageRequest{}, nil, err
	}
	return req, s, nil
}

// ShowCatalog renders one catalog page in the requested format and returns it
// with its content type.
func (a *Assembler) ShowCatalog(ctx context.Context, raw RawRequest) ([]byte, string, error) {
	ctx, span := a.tracer.Start(ctx, "catalog.ShowCatalog")
	defer span.End()

	cfg := a.source.Current()
	req, s, err := a.parse(raw, cfg)
	if err != nil {
		return nil, "", fail(span, err)
	}
	page, err := a.assemble(ctx, cfg, req)
	if err != nil {
		return nil, "", fail(span, err)
	}
	body, err := s.SerializeCatalog(page.Items, page.Pagination)
	if err != nil {
		return nil, "", fail(span, err)
	}
	return body, s.ContentType(), nil
}

// SearchCatalog returns a catalog page as plain records plus pagination.
func (a *Assembler) SearchCatalog(ctx context.Context, raw RawRequest) (*SearchResponse, error) {
	page, err := a.ListCatalogPage(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Datasets: page.Items, Pagination: page.Pagination}, nil
}

// ListDatasets returns the records of a catalog page.
func (a *Assembler) ListDatasets(ctx context.Context, raw RawRequest) ([]query.Record, error) {
	page, err := a.ListCatalogPage(ctx, raw)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ShowDataset renders the dataset whose id or name is raw.ID.
func (a *Assembler) ShowDataset(ctx context.Context, raw RawRequest) ([]byte, string, error) {
	ctx, span := a.tracer.Start(ctx, "catalog.ShowDataset")
	defer span.End()

	cfg := a.source.Current()
	ref := strings.TrimSpace(raw.ID)
	if ref == "" {
		return nil, "", fail(span, query.NewValidationError("id", raw.ID, "id is required"))
	}
	format := strings.ToLower(strings.TrimSpace(raw.Format))
	if format == "" {
		format = cfg.Catalog.DefaultFormat
	}
	s, err := a.serializers.Get(format)
	if err != nil {
		return nil, "", fail(span, err)
	}

	q := &query.Query{
		Filter: query.Or(
			&query.ComparisonNode{Field: query.FieldID, Operator: query.OpEqual, Value: query.StringValue(ref)},
			&query.ComparisonNode{Field: query.FieldName, Operator: query.OpEqual, Value: query.StringValue(ref)},
		),
		RowCount: 1,
	}
	res, err := a.search(ctx, cfg, q)
	if err != nil {
		return nil, "", fail(span, err)
	}
	if len(res.Items) == 0 {
		return nil, "", fail(span, query.NotFoundError("id", ref))
	}

	body, err := s.SerializeDataset(res.Items[0])
	if err != nil {
		return nil, "", fail(span, err)
	}
	return body, s.ContentType(), nil
}

// assemble uses one page size for the query, the calculator and the links.
func (a *Assembler) assemble(ctx context.Context, cfg *config.Config, req PageRequest) (*Page, error) {
	calc, err := pagination.NewCalculator(req.PageSize)
	if err != nil {
		return nil, err
	}
	q, err := a.builder.Build(req)
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("catalog.page", req.Page),
		attribute.Int("catalog.page_size", req.PageSize),
		attribute.String("catalog.filter", q.FilterExpression()),
	)

	res, err := a.search(ctx, cfg, q)
	if err != nil {
		return nil, err
	}
	info, err := calc.Compute(res, req.Page, a.endpoint.Links(req))
	if err != nil {
		return nil, err
	}

	a.logger.Debug("catalog page assembled",
		zap.Int("page", req.Page),
		zap.Int("page_size", req.PageSize),
		zap.String("filter", q.FilterExpression()),
		zap.String("sort", q.SortClause()),
		zap.Int64("count", res.TotalItems),
		zap.Int("returned", res.ItemsReturned))

	return &Page{Request: req, Items: res.Items, Pagination: info}, nil
}

// search runs q under the configured timeout. Results that arrive after the
// deadline are discarded.
func (a *Assembler) search(ctx context.Context, cfg *config.Config, q *query.Query) (*query.Result, error) {
	if cfg.Search.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Search.Timeout)
		defer cancel()
	}

	res, err := a.gateway.Search(ctx, q)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, query.ErrValidation) {
			return nil, err
		}
		return nil, query.NewBackendError(a.gateway.Name(), "search", err)
	}
	if res == nil {
		return nil, query.NewBackendError(a.gateway.Name(), "search", errors.New("empty response"))
	}
	return res, nil
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
