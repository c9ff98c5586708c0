package application

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.Pipeline = (*Pipeline)(nil)
	_ ports.Layer    = (*Layer)(nil)
	_ ports.Graph    = (*Graph)(nil)
)

// GraphID is the identifier reported by every Graph.
const GraphID = "graph"

// Pipeline is a sequential execution container: each executable receives
// the state produced by the one before it.
type Pipeline struct {
	// id is the unique identifier for this pipeline within the workflow.
	id string
	// executables holds the stages in execution order.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

// NewPipeline creates an empty pipeline with the given identifier.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute runs the pipeline's executables in order, threading the state
// through them. It stops at the first failure or when ctx is cancelled
// between stages, returning the last successfully produced state.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	current := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := exec.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		current = next
	}
	return current, nil
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Add appends exec to the end of the pipeline. It returns an error for a
// nil executable or a duplicate ID.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the pipeline's executables in order.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ports.Executable, len(p.executables))
	copy(out, p.executables)
	return out
}

// Layer runs independent executables concurrently on the same input state
// and merges what they write.
type Layer struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	// mergeStrategy combines branch results. Nil means KeyUnionMerge.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit bounds the number of branches running at once.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates an empty layer with the given identifier.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		executables:      make([]ports.Executable, 0),
		idSet:            make(map[string]struct{}),
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs every executable of the layer with the same input state.
// Branch results are merged in the order the executables were added, so
// the outcome does not depend on scheduling. If any branch fails, all
// failures are joined and the input state is returned.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	if strategy == nil {
		strategy = KeyUnionMerge{}
	}

	states := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range executables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			out, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			states[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, len(failed), errors.Join(failed...))
	}

	merged, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the layer identifier.
func (l *Layer) ID() string { return l.id }

// Add includes exec in the layer. It returns an error for a nil executable
// or a duplicate ID.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the layer's executables in the order they
// were added.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ports.Executable, len(l.executables))
	copy(out, l.executables)
	return out
}

// SetMergeStrategy replaces the strategy used to combine branch results.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit bounds how many branches run at once. Values below
// one restore the default of twice the CPU count.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// Graph is a directed acyclic graph of executables. Executing the graph
// runs its nodes one after another in topological order; parallelism
// lives inside Layer nodes.
type Graph struct {
	nodes map[string]ports.Executable
	// order records node IDs in insertion order. Topological sorting
	// breaks ties with it so that execution order is reproducible.
	order []string
	// edges is the adjacency list: node ID -> target IDs in insertion order.
	edges map[string][]string
	// edgeSet provides O(1) duplicate edge detection, keyed "source->target".
	edgeSet  map[string]struct{}
	inDegree map[string]int
	mu       sync.RWMutex
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]ports.Executable),
		edges:    make(map[string][]string),
		edgeSet:  make(map[string]struct{}),
		inDegree: make(map[string]int),
	}
}

// ID returns GraphID.
func (g *Graph) ID() string { return GraphID }

// Execute runs every node in topological order, passing each node the
// state produced by its predecessor in that order.
func (g *Graph) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	nodes, err := g.TopologicalSort()
	if err != nil {
		return state, err
	}

	current := state
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := node.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("node %s: %w", node.ID(), err)
		}
		current = next
	}
	return current, nil
}

// AddNode registers exec as a node. IDs must be unique within the graph.
func (g *Graph) AddNode(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to graph")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := exec.ID()
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node with ID %s already exists in graph", id)
	}

	g.nodes[id] = exec
	g.order = append(g.order, id)
	g.edges[id] = make([]string, 0)
	g.inDegree[id] = 0
	return nil
}

// AddEdge declares that targetID runs after sourceID. An edge that would
// close a cycle is rolled back and reported as an error.
func (g *Graph) AddEdge(sourceID, targetID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[sourceID]; !exists {
		return fmt.Errorf("source node %s does not exist", sourceID)
	}
	if _, exists := g.nodes[targetID]; !exists {
		return fmt.Errorf("target node %s does not exist", targetID)
	}

	edgeKey := sourceID + "->" + targetID
	if _, exists := g.edgeSet[edgeKey]; exists {
		return fmt.Errorf("edge from %s to %s already exists", sourceID, targetID)
	}

	g.edges[sourceID] = append(g.edges[sourceID], targetID)
	g.edgeSet[edgeKey] = struct{}{}
	g.inDegree[targetID]++

	if g.hasCycleUnsafe() {
		g.edges[sourceID] = g.edges[sourceID][:len(g.edges[sourceID])-1]
		delete(g.edgeSet, edgeKey)
		g.inDegree[targetID]--
		return fmt.Errorf("adding edge from %s to %s would create a cycle", sourceID, targetID)
	}
	return nil
}

// TopologicalSort returns the nodes so that every edge source precedes
// its target. Among nodes that are ready at the same time, the one added
// first comes first.
func (g *Graph) TopologicalSort() ([]ports.Executable, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	position := make(map[string]int, len(g.order))
	inDegree := make(map[string]int, len(g.inDegree))
	for i, id := range g.order {
		position[id] = i
		inDegree[id] = g.inDegree[id]
	}

	// ready is kept sorted by insertion position.
	ready := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]ports.Executable, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		for _, target := range g.edges[id] {
			inDegree[target]--
			if inDegree[target] == 0 {
				ready = insertByPosition(ready, target, position)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains a cycle")
	}
	return result, nil
}

func insertByPosition(ready []string, id string, position map[string]int) []string {
	i := len(ready)
	for i > 0 && position[ready[i-1]] > position[id] {
		i--
	}
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = id
	return ready
}

// HasCycle reports whether the graph contains a cycle.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.hasCycleUnsafe()
}

// hasCycleUnsafe is a three-colour DFS. The caller holds g.mu.
func (g *Graph) hasCycleUnsafe() bool {
	const (
		white = iota
		grey
		black
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = grey
		for _, next := range g.edges[id] {
			switch colors[next] {
			case grey:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// GetNode returns the node with the given ID.
func (g *Graph) GetNode(id string) (ports.Executable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	exec, exists := g.nodes[id]
	return exec, exists
}

// NodeIDs returns the node IDs in insertion order.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
