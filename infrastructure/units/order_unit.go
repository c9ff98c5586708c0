package units

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var (
	_ ports.Unit                 = (*OrderUnit)(nil)
	_ ports.ParameterUnmarshaler = (*OrderUnit)(nil)
)

// DFS colours.
const (
	unvisited uint8 = iota
	onStack
	finished
)

// OrderClusters arranges clusters into the consensus ranking.
//
// Cluster P precedes cluster Q when C relates their representatives, the
// smallest member of each. The order is the reverse depth-first
// post-order of that graph, with roots and out-neighbours tried in the
// order clusters are given. Traversal uses an explicit stack, so deep
// chains cannot exhaust the goroutine stack.
//
// A back edge returns domain.ErrCyclicConsensus; consensus relations
// built by ComposeConsensus and grouped by ExtractClusters never
// produce one.
func OrderClusters(clusters []domain.Cluster, c *domain.Relation, u domain.Universe) (domain.ClusterRanking, error) {
	if err := requireSize(u, c); err != nil {
		return nil, err
	}

	k := len(clusters)
	rep := make([]int, k)
	for p, cl := range clusters {
		if len(cl) == 0 {
			return nil, fmt.Errorf("%w: cluster %d is empty", domain.ErrInvalidState, p)
		}
		idx, ok := u.Index(slices.Min(cl))
		if !ok {
			return nil, fmt.Errorf("%w: cluster %d names object %d outside the universe",
				domain.ErrInvalidState, p, slices.Min(cl))
		}
		rep[p] = idx
	}

	adj := make([][]int, k)
	for p := 0; p < k; p++ {
		for q := 0; q < k; q++ {
			if p != q && c.Get(rep[p], rep[q]) {
				adj[p] = append(adj[p], q)
			}
		}
	}

	type frame struct {
		node int
		next int
	}

	color := make([]uint8, k)
	post := make([]int, 0, k)
	for root := 0; root < k; root++ {
		if color[root] != unvisited {
			continue
		}
		color[root] = onStack
		stack := []frame{{node: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.node]) {
				q := adj[top.node][top.next]
				top.next++
				switch color[q] {
				case onStack:
					return nil, fmt.Errorf("%w: clusters %v and %v",
						domain.ErrCyclicConsensus, clusters[top.node], clusters[q])
				case unvisited:
					color[q] = onStack
					stack = append(stack, frame{node: q})
				}
				continue
			}
			color[top.node] = finished
			post = append(post, top.node)
			stack = stack[:len(stack)-1]
		}
	}

	ranking := make(domain.ClusterRanking, k)
	for i, p := range post {
		ranking[k-1-i] = slices.Clone(clusters[p])
	}
	return ranking, nil
}

// OrderUnit resolves the order of the equivalence classes. It takes no
// parameters.
//
// Concurrency: OrderUnit is stateless and safe for concurrent execution.
type OrderUnit struct {
	name   string
	config OrderConfig
	tracer trace.Tracer
}

// OrderConfig is empty; any parameter is rejected.
type OrderConfig struct{}

// NewOrderUnit creates an OrderUnit.
func NewOrderUnit(name string, config OrderConfig) (*OrderUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &OrderUnit{name: name, config: config, tracer: newTracer()}, nil
}

// Name returns the unique identifier for this unit instance.
func (ou *OrderUnit) Name() string { return ou.name }

// Execute reads domain.KeyClusters and domain.KeyConsensusRelation and
// stores the consensus ranking under domain.KeyConsensus.
func (ou *OrderUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := ou.tracer.Start(ctx, "OrderUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", TypeOrder),
			attribute.String("unit.id", ou.name),
		),
	)
	defer span.End()

	fail := func(err error) (domain.State, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	universe, err := domain.MustGet(state, domain.KeyUniverse)
	if err != nil {
		return fail(err)
	}
	clusters, err := domain.MustGet(state, domain.KeyClusters)
	if err != nil {
		return fail(err)
	}
	c, err := domain.MustGet(state, domain.KeyConsensusRelation)
	if err != nil {
		return fail(err)
	}

	consensus, err := OrderClusters(clusters, c, universe)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("consensus.levels", len(consensus)))

	return domain.With(state, domain.KeyConsensus, consensus), nil
}

// Validate verifies the unit is properly configured and ready for execution.
func (ou *OrderUnit) Validate() error {
	if ou.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters rejects every parameter; ordering has none.
func (ou *OrderUnit) UnmarshalParameters(params yaml.Node) error {
	var config OrderConfig
	if err := decodeNode(params, &config); err != nil {
		return err
	}
	ou.config = config
	return nil
}

// NewOrderFromConfig creates an OrderUnit from a configuration map.
func NewOrderFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg OrderConfig
	if err := decodeParams(config, &cfg); err != nil {
		return nil, fmt.Errorf("order unit %q: %w", id, err)
	}
	unit, err := NewOrderUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
