package catalog

import (
	"context"
	"sort"
	"sync"
)

// Action names.
const (
	ActionCatalogShow   = "dcat_catalog_show"
	ActionCatalogSearch = "dcat_catalog_search"
	ActionDatasetsList  = "dcat_datasets_list"
	ActionDatasetShow   = "dcat_dataset_show"
)

// Action runs one named catalog operation.
type Action func(ctx context.Context, raw RawRequest) (interface{}, error)

// Rendered is the result of an action that serializes its output.
type Rendered struct {
	Body        []byte
	ContentType string
}

// Registry maps action names to actions. It is built once at startup.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry returns a registry holding the catalog actions of a.
func NewRegistry(a *Assembler) *Registry {
	r := &Registry{actions: make(map[string]Action)}
	r.Register(ActionCatalogShow, func(ctx context.Context, raw RawRequest) (interface{}, error) {
		body, contentType, err := a.ShowCatalog(ctx, raw)
		if err != nil {
			return nil, err
		}
		return &Rendered{Body: body, ContentType: contentType}, nil
	})
	r.Register(ActionCatalogSearch, func(ctx context.Context, raw RawRequest) (interface{}, error) {
		return a.SearchCatalog(ctx, raw)
	})
	r.Register(ActionDatasetsList, func(ctx context.Context, raw RawRequest) (interface{}, error) {
		return a.ListDatasets(ctx, raw)
	})
	r.Register(ActionDatasetShow, func(ctx context.Context, raw RawRequest) (interface{}, error) {
		body, contentType, err := a.ShowDataset(ctx, raw)
		if err != nil {
			return nil, err
		}
		return &Rendered{Body: body, ContentType: contentType}, nil
	})
	return r
}

// Register adds or replaces an action.
func (r *Registry) Register(name string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}

// Names lists the registered actions in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
