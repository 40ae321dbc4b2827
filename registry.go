package unwind

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// StepRegistry is a registry of step definitions shared across sagas.
//
// Steps are identified by name. Saga construction is often dynamic and based
// on user input, so the registry gives callers a place to define each step
// once and assemble sagas from names at runtime. It is safe for concurrent
// use.
type StepRegistry[T any] struct {
	steps *xsync.MapOf[string, Step[T]]
}

// NewStepRegistry creates a new StepRegistry.
func NewStepRegistry[T any]() *StepRegistry[T] {
	return &StepRegistry[T]{
		steps: xsync.NewMapOf[string, Step[T]](),
	}
}

// Register adds a step definition to the registry. Names must be non-empty
// and unique.
func (r *StepRegistry[T]) Register(step Step[T]) error {
	if step.Name == "" {
		return fmt.Errorf("step name must not be empty")
	}
	if _, loaded := r.steps.LoadOrStore(step.Name, step); loaded {
		return fmt.Errorf("step with name %q already registered", step.Name)
	}
	return nil
}

// Get retrieves a step definition by name.
func (r *StepRegistry[T]) Get(name string) (Step[T], error) {
	step, ok := r.steps.Load(name)
	if !ok {
		return Step[T]{}, fmt.Errorf("step %q not registered", name)
	}
	return step, nil
}

// Names returns the registered step names in sorted order.
func (r *StepRegistry[T]) Names() []string {
	names := make([]string, 0)
	r.steps.Range(func(name string, _ Step[T]) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Saga assembles a new saga from registered steps, in the order given.
func (r *StepRegistry[T]) Saga(names ...string) (*Saga[T], error) {
	s := New[T]()
	for _, name := range names {
		step, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		s.AddStep(step)
	}
	return s, nil
}
