package surrogate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
)

var (
	ErrDuplicateModel = errors.New("surrogate model already registered")
	ErrUnknownModel   = errors.New("unknown surrogate model")
	// ErrModelUnavailable marks a model that could not be reached at all, as
	// opposed to one that answered with an unusable value.
	ErrModelUnavailable = errors.New("surrogate model unavailable")
)

// Estimate is a surrogate prediction with its confidence interval
type Estimate struct {
	Value float64
	Lower float64
	Upper float64
}

// Point returns an estimate with a degenerate interval
func Point(v float64) Estimate {
	return Estimate{Value: v, Lower: v, Upper: v}
}

// Band returns an estimate with a symmetric relative interval of ±frac
func Band(v, frac float64) Estimate {
	d := v * frac
	if d < 0 {
		d = -d
	}
	return Estimate{Value: v, Lower: v - d, Upper: v + d}
}

// Model is a pre-trained, stateless approximator for one physical quantity.
// Implementations must be safe for concurrent use.
type Model interface {
	Name() string
	Evaluate(ctx context.Context, params design.Params) (Estimate, error)
}

// FuncModel adapts a function to the Model interface
type FuncModel struct {
	name string
	fn   func(ctx context.Context, params design.Params) (Estimate, error)
}

// NewFunc creates a named model from fn
func NewFunc(name string, fn func(ctx context.Context, params design.Params) (Estimate, error)) *FuncModel {
	return &FuncModel{name: name, fn: fn}
}

// NewPointFunc creates a named model from a plain scalar function
func NewPointFunc(name string, fn func(params design.Params) float64) *FuncModel {
	return &FuncModel{name: name, fn: func(_ context.Context, p design.Params) (Estimate, error) {
		return Point(fn(p)), nil
	}}
}

func (m *FuncModel) Name() string {
	return m.name
}

func (m *FuncModel) Evaluate(ctx context.Context, params design.Params) (Estimate, error) {
	return m.fn(ctx, params)
}

// Registry is a set of named models resolved by name at evaluation time
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates a registry holding models
func NewRegistry(models ...Model) (*Registry, error) {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a model. Names must be unique and non-empty.
func (r *Registry) Register(m Model) error {
	if m == nil || m.Name() == "" {
		return fmt.Errorf("surrogate model must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name())
	}
	r.models[m.Name()] = m
	return nil
}

// Get resolves a model by name
func (r *Registry) Get(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns registered model names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered models
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Snapshot returns a copy of the registry that later registrations do not affect
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{models: make(map[string]Model, len(r.models))}
	for name, m := range r.models {
		out.models[name] = m
	}
	return out
}

// Require checks that every name is registered
func (r *Registry) Require(names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if _, ok := r.models[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModel, name)
		}
	}
	return nil
}
