package wrapper

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/executor"
	"github.com/hadi77ir/go-catalog/query"
)

// Collector receives one observation per search that reached the inner executor
type Collector interface {
	SearchQuery(backend string, duration time.Duration, err error)
}

// NoOpCollector implementation
type NoOpCollector struct{}

func (NoOpCollector) SearchQuery(string, time.Duration, error) {}

// BreakerSettings configures the circuit breaker around the inner executor
type BreakerSettings struct {
	// MaxRequests is the number of trial requests allowed while half-open
	MaxRequests uint32
	// Interval is the cyclic period after which closed-state counts reset
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open
	Timeout time.Duration
	// FailureRatio trips the breaker once reached over at least MinRequests requests
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerSettings returns the settings used when none are configured
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.8,
		MinRequests:  5,
	}
}

// Option configures a WrapperExecutor
type Option func(*WrapperExecutor)

// WithCollector reports every search to c
func WithCollector(c Collector) Option {
	return func(e *WrapperExecutor) {
		if c != nil {
			e.collector = c
		}
	}
}

// WithLogger sets the logger for failures and breaker state changes
func WithLogger(logger *zap.Logger) Option {
	return func(e *WrapperExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBreaker puts a circuit breaker in front of the inner executor
func WithBreaker(s BreakerSettings) Option {
	return func(e *WrapperExecutor) {
		e.breakerSettings = &s
	}
}

// WrapperExecutor guards another executor. It rejects fields outside its own
// whitelist before the inner executor sees the query, and turns every other
// failure into a *query.BackendError.
type WrapperExecutor struct {
	innerExecutor   executor.Executor
	allowedFields   []string
	collector       Collector
	logger          *zap.Logger
	breakerSettings *BreakerSettings
	breaker         *gobreaker.CircuitBreaker
}

// NewExecutor wraps innerExecutor. Fields must be in BOTH allowedFields and
// the inner executor's own whitelist; an empty allowedFields adds no restriction.
func NewExecutor(innerExecutor executor.Executor, allowedFields []string, opts ...Option) *WrapperExecutor {
	e := &WrapperExecutor{
		innerExecutor: innerExecutor,
		allowedFields: allowedFields,
		collector:     NoOpCollector{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breakerSettings != nil {
		e.breaker = e.newBreaker(*e.breakerSettings)
	}
	return e
}

func (e *WrapperExecutor) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        e.innerExecutor.Name(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// the caller gave up or asked for something invalid; the backend is fine
			return err == nil || errors.Is(err, context.Canceled) || isCallerError(err)
		},
	})
}

// Name returns the name of the inner executor
func (e *WrapperExecutor) Name() string {
	return e.innerExecutor.Name()
}

// Close cleans up resources (also closes inner executor)
func (e *WrapperExecutor) Close() error {
	if e.innerExecutor != nil {
		return e.innerExecutor.Close()
	}
	return nil
}

// Search validates field references, then delegates to the inner executor.
// Whitelist violations become *query.ValidationError and any other failure,
// including cancellation, an open breaker or a deadline, becomes *query.BackendError.
func (e *WrapperExecutor) Search(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := e.validateQueryFields(q); err != nil {
		return nil, toValidationError(err)
	}

	start := time.Now()
	var (
		res *query.Result
		err error
	)
	if e.breaker != nil {
		var out interface{}
		out, err = e.breaker.Execute(func() (interface{}, error) {
			return e.innerExecutor.Search(ctx, q)
		})
		if err == nil {
			res = out.(*query.Result)
		}
	} else {
		res, err = e.innerExecutor.Search(ctx, q)
	}
	e.collector.SearchQuery(e.innerExecutor.Name(), time.Since(start), err)

	if err != nil {
		if isCallerError(err) {
			return nil, toValidationError(err)
		}
		e.logger.Warn("search failed",
			zap.String("backend", e.innerExecutor.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, query.NewBackendError(e.innerExecutor.Name(), "search", err)
	}
	return res, nil
}

// State reports the breaker state, or closed when no breaker is configured
func (e *WrapperExecutor) State() gobreaker.State {
	if e.breaker == nil {
		return gobreaker.StateClosed
	}
	return e.breaker.State()
}

// validateQueryFields walks the query and checks every field it references
func (e *WrapperExecutor) validateQueryFields(q *query.Query) error {
	if q.SortBy != "" && !e.isFieldAllowed(q.SortBy) {
		return query.FieldNotAllowedError(q.SortBy)
	}

	var err error
	visit := func(node query.Node) bool {
		switch n := node.(type) {
		case *query.ComparisonNode:
			// bare terms resolve to the inner executor's default fields, which it checks itself
			if n.Field != query.DefaultSearchField && !e.isFieldAllowed(n.Field) {
				err = query.FieldNotAllowedError(n.Field)
			}
		case *query.RangeNode:
			if !e.isFieldAllowed(n.Field) {
				err = query.FieldNotAllowedError(n.Field)
			}
		}
		return err == nil
	}
	for _, node := range []query.Node{q.Filter, q.Text} {
		query.Walk(node, visit)
		if err != nil {
			return err
		}
	}
	return nil
}

// isFieldAllowed checks if a field is in the wrapper's allowed fields list
// Returns true if allowedFields is empty (no restriction) or field is in the list
func (e *WrapperExecutor) isFieldAllowed(field string) bool {
	if len(e.allowedFields) == 0 {
		return true
	}
	for _, allowed := range e.allowedFields {
		if allowed == field {
			return true
		}
	}
	return false
}

// isCallerError reports failures caused by the query rather than the backend
func isCallerError(err error) bool {
	return errors.Is(err, query.ErrFieldNotAllowed) ||
		errors.Is(err, query.ErrInvalidFieldName) ||
		errors.Is(err, query.ErrUnsupportedQuery) ||
		errors.Is(err, query.ErrPageSizeExceeded)
}

func toValidationError(err error) error {
	field := "query"
	var fe *query.FieldError
	if errors.As(err, &fe) {
		field = fe.Field
	}
	message := "field is not allowed"
	switch {
	case errors.Is(err, query.ErrInvalidFieldName):
		message = "unknown field"
	case errors.Is(err, query.ErrUnsupportedQuery):
		message = "not supported by the search backend"
	case errors.Is(err, query.ErrPageSizeExceeded):
		message = "page size exceeds the backend maximum"
	}
	return &query.ValidationError{Field: field, Message: message, Err: err}
}
