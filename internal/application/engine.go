package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-concord/infrastructure/codec"
	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Reconciler = (*Engine)(nil)

const engineTracerName = "github.com/ahrav/go-concord/internal/application"

// Engine reconciles pairs of cluster-rankings by running a compiled
// workflow. It is safe for concurrent use: every call works on its own
// State.
type Engine struct {
	logger   *zap.Logger
	metrics  ports.MetricsCollector
	tp       trace.TracerProvider
	tracer   trace.Tracer
	registry ports.UnitRegistry

	maxObjects     int
	timeout        time.Duration
	verifySymmetry bool
	workflowYAML   []byte
	workflowPath   string

	workflow *Workflow
	// root is the workflow graph wrapped in the deadline, the size guard
	// and, when enabled, the side-swap verifier.
	root ports.Executable

	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the collector receiving reconciliation and stage metrics.
func WithMetrics(m ports.MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTracerProvider sets the provider for the engine and stage spans.
// If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tp = tp
		}
	}
}

// WithMaxObjects caps the number of distinct objects per reconciliation.
// Zero disables the cap.
func WithMaxObjects(n int) EngineOption {
	return func(e *Engine) { e.maxObjects = n }
}

// WithTimeout bounds every reconciliation to d. Zero disables the bound.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithSymmetryCheck makes every reconciliation run twice, the second time
// with the inputs swapped, and fail with middleware.ErrAsymmetricResult if
// the kernels or consensus partitions differ.
func WithSymmetryCheck(enabled bool) EngineOption {
	return func(e *Engine) { e.verifySymmetry = enabled }
}

// WithWorkflowYAML replaces the default workflow with the given document.
func WithWorkflowYAML(data []byte) EngineOption {
	return func(e *Engine) { e.workflowYAML = data }
}

// WithWorkflowFile replaces the default workflow with the document at path.
func WithWorkflowFile(path string) EngineOption {
	return func(e *Engine) { e.workflowPath = path }
}

// WithUnitRegistry sets the registry used to instantiate workflow units.
func WithUnitRegistry(r ports.UnitRegistry) EngineOption {
	return func(e *Engine) { e.registry = r }
}

// NewEngine compiles the configured workflow and returns a ready engine.
func NewEngine(ctx context.Context, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		logger: zap.NewNop(),
		tp:     otel.GetTracerProvider(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.maxObjects < 0 {
		return nil, fmt.Errorf("%w: max objects cannot be negative, got %d", domain.ErrInvalidConfiguration, e.maxObjects)
	}
	if e.timeout < 0 {
		return nil, fmt.Errorf("%w: timeout cannot be negative, got %s", domain.ErrInvalidConfiguration, e.timeout)
	}
	if e.workflowPath != "" && e.workflowYAML != nil {
		return nil, fmt.Errorf("%w: workflow file and workflow document are mutually exclusive", domain.ErrInvalidConfiguration)
	}
	if e.registry == nil {
		e.registry = NewDefaultUnitRegistry()
	}
	e.tracer = e.tp.Tracer(engineTracerName)

	loader, err := NewWorkflowLoader(e.registry, WithStageMiddleware(
		middleware.Tracing(e.tp),
		middleware.Metrics(e.metrics),
	))
	if err != nil {
		return nil, err
	}

	switch {
	case e.workflowPath != "":
		e.workflow, err = loader.LoadFromFile(ctx, e.workflowPath)
	case e.workflowYAML != nil:
		e.workflow, err = loader.Load(ctx, e.workflowYAML)
	default:
		e.workflow, err = loader.LoadDefault(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	wrappers := []ports.ExecutableMiddleware{
		middleware.Timeout(e.timeout),
		middleware.SizeLimit(middleware.Limits{MaxObjects: e.maxObjects}, middleware.NewOTelSizeObserver(e.tp, e.metrics)),
	}
	if e.verifySymmetry {
		wrappers = append(wrappers, middleware.SideSwap(e.tp, e.metrics))
	}
	e.root = middleware.Chain(e.workflow.Graph, wrappers...)

	e.logger.Debug("engine ready",
		zap.String("workflow", e.workflow.Name),
		zap.String("workflow_hash", e.workflow.Hash),
		zap.Int("max_objects", e.maxObjects),
		zap.Duration("timeout", e.timeout),
		zap.Bool("verify_symmetry", e.verifySymmetry),
	)
	return e, nil
}

// Workflow returns the compiled workflow the engine runs.
func (e *Engine) Workflow() *Workflow { return e.workflow }

// Reconcile computes the contradiction kernel and the consensus ranking of
// a and b. A nil ranking is treated as empty. Objects mentioned by only
// one ranking are placed at the top level of the other one and reported
// in the result's statistics.
func (e *Engine) Reconcile(ctx context.Context, a, b domain.ClusterRanking) (*domain.Reconciliation, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Reconcile")
	defer span.End()

	start := e.now()
	rec, err := e.reconcile(ctx, a, b)
	elapsed := e.now().Sub(start)

	status := "ok"
	switch {
	case err == nil:
		span.SetAttributes(
			attribute.String("reconciliation.id", rec.ID),
			attribute.Int("universe.size", rec.Stats.UniverseSize),
			attribute.Int("kernel.size", rec.Stats.KernelSize),
			attribute.Int("consensus.clusters", rec.Stats.ClusterCount),
		)
		span.SetStatus(codes.Ok, "")
		e.logger.Debug("reconciliation complete",
			zap.String("id", rec.ID),
			zap.Int("universe_size", rec.Stats.UniverseSize),
			zap.Int("kernel_size", rec.Stats.KernelSize),
			zap.Int("clusters", rec.Stats.ClusterCount),
			zap.Duration("elapsed", elapsed),
		)
	default:
		status = errorStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("reconciliation failed", zap.String("status", status), zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.RecordCounter(middleware.MetricReconciliations, 1, map[string]string{"status": status})
		if err == nil {
			e.metrics.RecordHistogram(middleware.MetricKernelPairs, float64(rec.Stats.KernelSize), nil)
			e.metrics.RecordHistogram(middleware.MetricConsensusClusters, float64(rec.Stats.ClusterCount), nil)
		}
	}
	return rec, err
}

// ReconcileDocuments decodes two JSON ranking documents and reconciles
// them.
func (e *Engine) ReconcileDocuments(ctx context.Context, docA, docB []byte) (*domain.Reconciliation, error) {
	a, err := codec.DecodeRanking(docA)
	if err != nil {
		return nil, domain.AttributeSide(err, domain.SideA)
	}
	b, err := codec.DecodeRanking(docB)
	if err != nil {
		return nil, domain.AttributeSide(err, domain.SideB)
	}
	return e.Reconcile(ctx, a, b)
}

func (e *Engine) reconcile(ctx context.Context, a, b domain.ClusterRanking) (*domain.Reconciliation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, domain.AttributeSide(err, domain.SideA)
	}
	if err := b.Validate(); err != nil {
		return nil, domain.AttributeSide(err, domain.SideB)
	}

	universe := domain.NewUniverse(a, b)
	partial := partialObjects(universe, a, b)
	if len(partial) > 0 {
		e.logger.Warn("objects missing from one ranking default to its top level",
			zap.Int("count", len(partial)),
			zap.Any("objects", partial),
		)
	}

	rec := &domain.Reconciliation{
		ID:        uuid.NewString(),
		Kernel:    []domain.Pair{},
		Consensus: domain.ClusterRanking{},
		Stats: domain.ReconciliationStats{
			UniverseSize:   universe.Size(),
			PartialObjects: partial,
		},
		Timestamp: e.now().UTC(),
	}
	if universe.IsEmpty() {
		return rec, nil
	}

	state := domain.NewState().WithMultiple(map[string]any{
		domain.KeyRankingA.Name(): a,
		domain.KeyRankingB.Name(): b,
		domain.KeyUniverse.Name(): universe,
	}).WithExecutionContext(domain.ExecutionContext{
		WorkflowID:  e.workflow.Name,
		ExecutionID: rec.ID,
	})

	out, err := e.root.Execute(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	kernel, err := domain.MustGet(out, domain.KeyKernel)
	if err != nil {
		return nil, fmt.Errorf("reconcile: workflow %q produced no kernel: %w", e.workflow.Name, err)
	}
	consensus, err := domain.MustGet(out, domain.KeyConsensus)
	if err != nil {
		return nil, fmt.Errorf("reconcile: workflow %q produced no consensus: %w", e.workflow.Name, err)
	}
	if kernel != nil {
		rec.Kernel = kernel
	}
	if consensus != nil {
		rec.Consensus = consensus
	}
	rec.Stats.KernelSize = len(rec.Kernel)
	rec.Stats.ClusterCount = len(rec.Consensus)
	return rec, nil
}

// partialObjects returns, in ascending order, the objects of u that one of
// the rankings does not mention.
func partialObjects(u domain.Universe, a, b domain.ClusterRanking) []domain.ObjectID {
	missing := append(u.Missing(a), u.Missing(b)...)
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return slices.Compact(missing)
}

// errorStatus maps an error to the status label of the reconciliation
// counter.
func errorStatus(err error) string {
	var rankingErr *domain.RankingError
	switch {
	case errors.As(err, &rankingErr):
		return "invalid_input"
	case middleware.IsSizeLimit(err):
		return "too_large"
	case errors.Is(err, middleware.ErrAsymmetricResult):
		return "asymmetric"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
