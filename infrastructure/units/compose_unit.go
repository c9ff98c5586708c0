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
	_ ports.Unit                 = (*ComposeUnit)(nil)
	_ ports.ParameterUnmarshaler = (*ComposeUnit)(nil)
)

// ComposeConsensus returns the consensus relation C = A AND B with every
// kernel pair forced to a tie in both directions. Neither input is
// modified.
func ComposeConsensus(a, b *domain.Relation, kernel []domain.Pair, u domain.Universe) (*domain.Relation, error) {
	if err := requireSize(u, a, b); err != nil {
		return nil, err
	}

	agreed, err := a.And(b)
	if err != nil {
		return nil, err
	}

	ties := domain.NewRelation(u.Size())
	for _, p := range kernel {
		i, ok := u.Index(p.Lo)
		if !ok {
			return nil, fmt.Errorf("%w: object %d", ErrKernelOutsideUniverse, p.Lo)
		}
		j, ok := u.Index(p.Hi)
		if !ok {
			return nil, fmt.Errorf("%w: object %d", ErrKernelOutsideUniverse, p.Hi)
		}
		ties.Set(i, j)
		ties.Set(j, i)
	}
	return agreed.Or(ties)
}

// ComposeUnit builds the consensus relation from both precedence matrices
// and the kernel. It takes no parameters.
//
// Concurrency: ComposeUnit is stateless and safe for concurrent execution.
type ComposeUnit struct {
	name   string
	config ComposeConfig
	tracer trace.Tracer
}

// ComposeConfig is empty; any parameter is rejected.
type ComposeConfig struct{}

// NewComposeUnit creates a ComposeUnit.
func NewComposeUnit(name string, config ComposeConfig) (*ComposeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ComposeUnit{name: name, config: config, tracer: newTracer()}, nil
}

// Name returns the unique identifier for this unit instance.
func (cu *ComposeUnit) Name() string { return cu.name }

// Execute stores the consensus relation under domain.KeyConsensusRelation.
//
// State requirements:
//   - domain.KeyUniverse
//   - domain.KeyPrecedenceA, domain.KeyPrecedenceB
//   - domain.KeyKernel
func (cu *ComposeUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := cu.tracer.Start(ctx, "ComposeUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", TypeCompose),
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
	a, err := domain.MustGet(state, domain.KeyPrecedenceA)
	if err != nil {
		return fail(err)
	}
	b, err := domain.MustGet(state, domain.KeyPrecedenceB)
	if err != nil {
		return fail(err)
	}
	kernel, err := domain.MustGet(state, domain.KeyKernel)
	if err != nil {
		return fail(err)
	}

	c, err := ComposeConsensus(a, b, kernel, universe)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("relation.pairs", c.Count()))

	return domain.With(state, domain.KeyConsensusRelation, c), nil
}

// Validate verifies the unit is properly configured and ready for execution.
func (cu *ComposeUnit) Validate() error {
	if cu.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// UnmarshalParameters rejects every parameter; composition has none.
func (cu *ComposeUnit) UnmarshalParameters(params yaml.Node) error {
	var config ComposeConfig
	if err := decodeNode(params, &config); err != nil {
		return err
	}
	cu.config = config
	return nil
}

// NewComposeFromConfig creates a ComposeUnit from a configuration map.
func NewComposeFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg ComposeConfig
	if err := decodeParams(config, &cfg); err != nil {
		return nil, fmt.Errorf("compose unit %q: %w", id, err)
	}
	unit, err := NewComposeUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
