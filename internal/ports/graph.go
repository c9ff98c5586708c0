package ports

import (
	"context"

	"github.com/ahrav/go-concord/internal/domain"
)

// MergeStrategy folds the outputs of a parallel layer back into one State.
type MergeStrategy interface {
	// Merge receives the layer's input as base and one output per member,
	// ordered as the members were added. Equal inputs must yield equal
	// outputs.
	Merge(base domain.State, outputs []domain.State) (domain.State, error)
}

// Executable is a node of a reconciliation workflow: a unit, a middleware
// wrapper around one, or a container of other executables.
type Executable interface {
	// Execute derives a new State from state. The input is never mutated,
	// so one Executable may run on many states at once; outputs are built
	// with domain.With or State.WithMultiple.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID names the node inside its graph. It never changes.
	ID() string
}

// Pipeline runs its members one after another, feeding each the
// previous member's output.
type Pipeline interface {
	Executable

	Add(exec Executable) error
	Executables() []Executable
}

// Layer runs its members concurrently on the same input and merges
// their outputs.
type Layer interface {
	Executable

	Add(exec Executable) error
	Executables() []Executable

	// SetMergeStrategy must be called before the first Execute.
	SetMergeStrategy(strategy MergeStrategy)
}

// Graph is a DAG of executables. An edge source -> target means the
// target reads something the source writes.
type Graph interface {
	Executable

	// AddNode fails if a node with the same ID is already present.
	AddNode(exec Executable) error

	// AddEdge fails on unknown IDs, duplicate edges and edges that would
	// close a cycle.
	AddEdge(sourceID, targetID string) error

	// TopologicalSort lists every node after all of its sources, breaking
	// ties by insertion order.
	TopologicalSort() ([]Executable, error)

	HasCycle() bool

	// GetNode returns the stored node; callers must not modify it.
	GetNode(id string) (Executable, bool)
}

// ExecutableMiddleware wraps an executable with extra behaviour such as
// tracing, metrics or a deadline.
type ExecutableMiddleware func(next Executable) Executable
