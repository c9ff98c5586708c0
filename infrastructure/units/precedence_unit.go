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
	_ ports.Unit                 = (*PrecedenceUnit)(nil)
	_ ports.ParameterUnmarshaler = (*PrecedenceUnit)(nil)
)

// BuildPrecedence converts a cluster-ranking into its precedence matrix
// over u: M[i][j] holds iff object u.IDs[i] sits at the same level as, or
// a higher level than, object u.IDs[j].
//
// An object of u that r does not mention is placed at level 0, level with
// r's first cluster. The result is reflexive and total.
func BuildPrecedence(r domain.ClusterRanking, u domain.Universe) *domain.Relation {
	n := u.Size()
	levels := r.Levels()

	lv := make([]int, n)
	for i, id := range u.IDs {
		lv[i] = levels[id]
	}

	m := domain.NewRelation(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if lv[i] <= lv[j] {
				m.Set(i, j)
			}
		}
	}
	return m
}

// PrecedenceUnit builds the precedence matrix of one input ranking.
// Two instances, one per side, run side by side in the default workflow.
//
// Concurrency: PrecedenceUnit is stateless and safe for concurrent execution.
type PrecedenceUnit struct {
	name   string
	config PrecedenceConfig
	tracer trace.Tracer
}

// PrecedenceConfig selects which input ranking the unit reads.
type PrecedenceConfig struct {
	// Side is "a" or "b".
	Side domain.Side `yaml:"side" json:"side" validate:"required,oneof=a b"`
}

// NewPrecedenceUnit creates a PrecedenceUnit with validated configuration.
func NewPrecedenceUnit(name string, config PrecedenceConfig) (*PrecedenceUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &PrecedenceUnit{
		name:   name,
		config: config,
		tracer: newTracer(),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (pu *PrecedenceUnit) Name() string { return pu.name }

// Side reports which ranking the unit reads.
func (pu *PrecedenceUnit) Side() domain.Side { return pu.config.Side }

// Execute reads the configured side's ranking and the universe from the
// state and stores the side's precedence matrix.
//
// State requirements:
//   - domain.KeyRankingA or domain.KeyRankingB, per the configured side
//   - domain.KeyUniverse
//
// Returns a new state containing domain.KeyPrecedenceA or
// domain.KeyPrecedenceB.
func (pu *PrecedenceUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := pu.tracer.Start(ctx, "PrecedenceUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", TypePrecedence),
			attribute.String("unit.id", pu.name),
			attribute.String("config.side", string(pu.config.Side)),
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

	rankingKey, err := domain.RankingKey(pu.config.Side)
	if err != nil {
		return fail(err)
	}
	outKey, err := domain.PrecedenceKey(pu.config.Side)
	if err != nil {
		return fail(err)
	}

	ranking, err := domain.MustGet(state, rankingKey)
	if err != nil {
		return fail(err)
	}
	universe, err := domain.MustGet(state, domain.KeyUniverse)
	if err != nil {
		return fail(err)
	}

	m := BuildPrecedence(ranking, universe)
	span.SetAttributes(
		attribute.Int("universe.size", universe.Size()),
		attribute.Int("ranking.levels", len(ranking)),
	)

	return domain.With(state, outKey, m), nil
}

// Validate verifies the unit is properly configured and ready for execution.
func (pu *PrecedenceUnit) Validate() error {
	if err := validate.Struct(pu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters decodes a workflow parameters block into the unit's
// config. Omitted keys take their defaults; the unit's configuration
// remains unchanged on error.
func (pu *PrecedenceUnit) UnmarshalParameters(params yaml.Node) error {
	config := DefaultPrecedenceConfig()
	if err := decodeNode(params, &config); err != nil {
		return err
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	pu.config = config
	return nil
}

// DefaultPrecedenceConfig returns a configuration reading side "a".
func DefaultPrecedenceConfig() PrecedenceConfig {
	return PrecedenceConfig{Side: domain.SideA}
}

// NewPrecedenceFromConfig creates a PrecedenceUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration.
//
// Supported keys:
//   - "side" (string): "a" or "b"; defaults to "a"
func NewPrecedenceFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultPrecedenceConfig()
	if err := decodeParams(config, &cfg); err != nil {
		return nil, err
	}
	unit, err := NewPrecedenceUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
