package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var (
	_ ports.Unit                 = (*ClosureUnit)(nil)
	_ ports.ParameterUnmarshaler = (*ClosureUnit)(nil)
)

// EquivalenceClosure returns the transitive closure of C AND C^T, the
// smallest equivalence containing every mutual pair of c. The input must
// be reflexive, which every consensus relation is.
func EquivalenceClosure(c *domain.Relation) *domain.Relation {
	return c.SymmetricCore().Closure()
}

// ExtractClusters partitions u into the classes of closure.
// Seeds are scanned in ascending index order; each class is emitted the
// first time one of its members is reached, with members ascending.
func ExtractClusters(closure *domain.Relation, u domain.Universe) []domain.Cluster {
	n := u.Size()
	visited := make([]bool, n)
	clusters := make([]domain.Cluster, 0)

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := domain.Cluster{u.ID(i)}
		for j := i + 1; j < n; j++ {
			if !visited[j] && closure.Get(i, j) && closure.Get(j, i) {
				visited[j] = true
				cluster = append(cluster, u.ID(j))
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// ClosureUnit derives the equivalence classes of the consensus relation.
// It takes no parameters.
//
// Concurrency: ClosureUnit is stateless and safe for concurrent execution.
type ClosureUnit struct {
	name   string
	config ClosureConfig
	tracer trace.Tracer
}

// ClosureConfig is empty; any parameter is rejected.
type ClosureConfig struct{}

// NewClosureUnit creates a ClosureUnit.
func NewClosureUnit(name string, config ClosureConfig) (*ClosureUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ClosureUnit{name: name, config: config, tracer: newTracer()}, nil
}

// Name returns the unique identifier for this unit instance.
func (cu *ClosureUnit) Name() string { return cu.name }

// Execute reads domain.KeyConsensusRelation and stores the closed
// equivalence under domain.KeyEquivalence and its classes under
// domain.KeyClusters.
func (cu *ClosureUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := cu.tracer.Start(ctx, "ClosureUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", TypeClosure),
			attribute.String("unit.id", cu.name),
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
	c, err := domain.MustGet(state, domain.KeyConsensusRelation)
	if err != nil {
		return fail(err)
	}
	if err := requireSize(universe, c); err != nil {
		return fail(err)
	}

	closure := EquivalenceClosure(c)
	clusters := ExtractClusters(closure, universe)
	span.SetAttributes(attribute.Int("clusters.count", len(clusters)))

	return state.WithMultiple(map[string]any{
		domain.KeyEquivalence.Name(): closure,
		domain.KeyClusters.Name():    clusters,
	}), nil
}

// Validate verifies the unit is properly configured and ready for execution.
func (cu *ClosureUnit) Validate() error {
	if cu.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters rejects every parameter; the closure has none.
func (cu *ClosureUnit) UnmarshalParameters(params yaml.Node) error {
	var config ClosureConfig
	if err := decodeNode(params, &config); err != nil {
		return err
	}
	cu.config = config
	return nil
}

// NewClosureFromConfig creates a ClosureUnit from a configuration map.
func NewClosureFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg ClosureConfig
	if err := decodeParams(config, &cfg); err != nil {
		return nil, fmt.Errorf("closure unit %q: %w", id, err)
	}
	unit, err := NewClosureUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
