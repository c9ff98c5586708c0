package application

import (
	"context"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// recordingCollector is a ports.MetricsCollector that keeps every call.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	gauges     map[string]float64
	latencies  map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
		gauges:     make(map[string]float64),
		latencies:  make(map[string]int),
	}
}

func (r *recordingCollector) RecordLatency(_ string, _ time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[labels["stage"]]++
}

func (r *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := metric
	if s := labels["status"]; s != "" {
		key += "/" + s
	}
	r.counters[key] += value
}

func (r *recordingCollector) RecordGauge(metric string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[metric] = value
}

func (r *recordingCollector) RecordHistogram(metric string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric] = append(r.histograms[metric], value)
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_Reconcile(t *testing.T) {
	tests := []struct {
		name       string
		a, b       domain.ClusterRanking
		wantKernel []domain.Pair
		want       domain.ClusterRanking
	}{
		{
			name:       "canonical example",
			a:          domain.ClusterRanking{{1}, {2, 3}, {4}, {5, 6, 7}, {8}, {9}, {10}},
			b:          domain.ClusterRanking{{1, 2}, {3, 4, 5}, {6}, {7}, {9}, {8, 10}},
			wantKernel: []domain.Pair{{Lo: 8, Hi: 9}},
			want:       domain.ClusterRanking{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8, 9}, {10}},
		},
		{
			name:       "identical strict rankings",
			a:          domain.ClusterRanking{{1}, {2}, {3}},
			b:          domain.ClusterRanking{{1}, {2}, {3}},
			wantKernel: []domain.Pair{},
			want:       domain.ClusterRanking{{1}, {2}, {3}},
		},
		{
			name:       "full tie in both",
			a:          domain.ClusterRanking{{1, 2, 3}},
			b:          domain.ClusterRanking{{3, 2, 1}},
			wantKernel: []domain.Pair{},
			want:       domain.ClusterRanking{{1, 2, 3}},
		},
		{
			name:       "total disagreement",
			a:          domain.ClusterRanking{{1}, {2}},
			b:          domain.ClusterRanking{{2}, {1}},
			wantKernel: []domain.Pair{{Lo: 1, Hi: 2}},
			want:       domain.ClusterRanking{{1, 2}},
		},
		{
			name:       "empty",
			a:          domain.ClusterRanking{},
			b:          nil,
			wantKernel: []domain.Pair{},
			want:       domain.ClusterRanking{},
		},
	}

	engine := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := engine.Reconcile(context.Background(), tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKernel, rec.Kernel)
			assert.Equal(t, tt.want, rec.Consensus)

			assert.NotEmpty(t, rec.ID)
			assert.False(t, rec.Timestamp.IsZero())
			assert.Equal(t, len(tt.wantKernel), rec.Stats.KernelSize)
			assert.Equal(t, len(tt.want), rec.Stats.ClusterCount)
			assert.Equal(t, domain.NewUniverse(tt.a, tt.b).Size(), rec.Stats.UniverseSize)
		})
	}
}

func TestEngine_ReconcileIDsAreUnique(t *testing.T) {
	engine := newTestEngine(t)
	r := domain.ClusterRanking{{1}, {2}}
	first, err := engine.Reconcile(context.Background(), r, r)
	require.NoError(t, err)
	second, err := engine.Reconcile(context.Background(), r, r)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngine_PartialObjects(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	engine := newTestEngine(t, WithLogger(zap.New(core)))

	// 4 is only in a, 5 only in b: each defaults to level 0 on the other side.
	a := domain.ClusterRanking{{1}, {2}, {4}}
	b := domain.ClusterRanking{{1}, {2}, {5}}
	rec, err := engine.Reconcile(context.Background(), a, b)
	require.NoError(t, err)

	assert.Equal(t, []domain.ObjectID{4, 5}, rec.Stats.PartialObjects)
	assert.Equal(t, 5, rec.Stats.UniverseSize)
	assert.True(t, domain.ClusterRanking(rec.Consensus).Contains(4))
	assert.True(t, domain.ClusterRanking(rec.Consensus).Contains(5))

	entries := logs.FilterMessageSnippet("missing from one ranking").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])
}

func TestEngine_InvalidInput(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		a, b     domain.ClusterRanking
		wantSide string
		wantErr  error
	}{
		{
			name:     "empty tie group in a",
			a:        domain.ClusterRanking{{1}, {}},
			b:        domain.ClusterRanking{{1}},
			wantSide: "a",
			wantErr:  domain.ErrMalformedRanking,
		},
		{
			name:     "duplicate in b",
			a:        domain.ClusterRanking{{1}, {2}},
			b:        domain.ClusterRanking{{1, 2}, {2}},
			wantSide: "b",
			wantErr:  domain.ErrDuplicateObject,
		},
		{
			name:     "non-positive id in b",
			a:        domain.ClusterRanking{{1}},
			b:        domain.ClusterRanking{{0}},
			wantSide: "b",
			wantErr:  domain.ErrInvalidObjectID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := engine.Reconcile(context.Background(), tt.a, tt.b)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.wantErr)

			var re *domain.RankingError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.wantSide, re.Side)
		})
	}
}

func TestEngine_MaxObjects(t *testing.T) {
	metrics := newRecordingCollector()
	engine := newTestEngine(t, WithMaxObjects(3), WithMetrics(metrics))

	_, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2}}, domain.ClusterRanking{{3}, {4}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUniverseTooLarge)

	var sizeErr *domain.SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 3, sizeErr.Limit)
	assert.Equal(t, 4, sizeErr.Size)

	rec, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2}}, domain.ClusterRanking{{3}})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Stats.UniverseSize)

	assert.Equal(t, 1.0, metrics.counters[middleware.MetricLimitRejections])
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricReconciliations+"/too_large"])
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricReconciliations+"/ok"])
	assert.Equal(t, 3.0, metrics.gauges[middleware.MetricUniverseSize])

	_, err = NewEngine(context.Background(), WithMaxObjects(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEngine_Metrics(t *testing.T) {
	metrics := newRecordingCollector()
	engine := newTestEngine(t, WithMetrics(metrics))

	_, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2}}, domain.ClusterRanking{{2}, {1}})
	require.NoError(t, err)
	_, err = engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {1}}, domain.ClusterRanking{{1}})
	require.Error(t, err)

	assert.Equal(t, 1.0, metrics.counters[middleware.MetricReconciliations+"/ok"])
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricReconciliations+"/invalid_input"])
	assert.Equal(t, []float64{1}, metrics.histograms[middleware.MetricKernelPairs])
	assert.Equal(t, []float64{1}, metrics.histograms[middleware.MetricConsensusClusters])

	for _, stage := range []string{"precedence_a", "precedence_b", "kernel", "compose", "closure", "order"} {
		assert.Equal(t, 1, metrics.latencies[stage], stage)
	}
}

func TestEngine_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	engine := newTestEngine(t, WithTracerProvider(tp))

	_, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2, 3}}, domain.ClusterRanking{{3}, {1, 2}})
	require.NoError(t, err)

	var root sdktrace.ReadOnlySpan
	stages := 0
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "Engine.Reconcile":
			root = s
		case middleware.StageSpanName:
			stages++
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, 6, stages)

	for _, s := range recorder.Ended() {
		if s.Name() == middleware.StageSpanName {
			assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
		}
	}
}

func TestEngine_SymmetryCheck(t *testing.T) {
	metrics := newRecordingCollector()
	engine := newTestEngine(t, WithSymmetryCheck(true), WithMetrics(metrics))

	rec, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2, 3}, {4}, {5, 6, 7}, {8}, {9}, {10}},
		domain.ClusterRanking{{1, 2}, {3, 4, 5}, {6}, {7}, {9}, {8, 10}})
	require.NoError(t, err)
	assert.Equal(t, []domain.Pair{{Lo: 8, Hi: 9}}, rec.Kernel)
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricSymmetryChecks+"/ok"])
}

func TestEngine_ReconcileDocuments(t *testing.T) {
	engine := newTestEngine(t)

	rec, err := engine.ReconcileDocuments(context.Background(),
		[]byte(`[1,[2,3],4,[5,6,7],8,9,10]`),
		[]byte(`[[1,2],[3,4,5],6,7,9,[8,10]]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.Pair{{Lo: 8, Hi: 9}}, rec.Kernel)

	_, err = engine.ReconcileDocuments(context.Background(), []byte(`[1]`), []byte(`[1,"x"]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedRanking)
	var re *domain.RankingError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "b", re.Side)
	assert.Equal(t, 1, re.Position)

	_, err = engine.ReconcileDocuments(context.Background(), nil, []byte(`[1]`))
	assert.ErrorIs(t, err, domain.ErrMissingRanking)
}

func TestEngine_CustomWorkflow(t *testing.T) {
	engine := newTestEngine(t, WithWorkflowYAML([]byte(sequentialWorkflow)))
	assert.Equal(t, "sequential", engine.Workflow().Name)

	rec, err := engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}, {2}}, domain.ClusterRanking{{1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, domain.ClusterRanking{{1}, {2}}, rec.Consensus)

	// Without an order stage there is no consensus to report.
	partial := strings.Replace(sequentialWorkflow, ", order]", "]", 1)
	partial = strings.Replace(partial, "  - id: order\n    type: order\n", "", 1)
	engine = newTestEngine(t, WithWorkflowYAML([]byte(partial)))
	_, err = engine.Reconcile(context.Background(),
		domain.ClusterRanking{{1}}, domain.ClusterRanking{{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	assert.Contains(t, err.Error(), "produced no consensus")

	_, err = NewEngine(context.Background(), WithWorkflowYAML([]byte("version: [")))
	assert.ErrorContains(t, err, "load workflow")

	_, err = NewEngine(context.Background(), WithWorkflowYAML([]byte(sequentialWorkflow)), WithWorkflowFile("x.yaml"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEngine_Cancelled(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Reconcile(ctx, domain.ClusterRanking{{1}}, domain.ClusterRanking{{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

// randomRanking partitions a random subset of 1..n into randomly sized,
// shuffled levels.
func randomRanking(rng *rand.Rand, n int) domain.ClusterRanking {
	var ids []domain.ObjectID
	for i := 1; i <= n; i++ {
		if rng.Intn(5) > 0 {
			ids = append(ids, domain.ObjectID(i))
		}
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	var r domain.ClusterRanking
	for len(ids) > 0 {
		size := 1 + rng.Intn(3)
		if size > len(ids) {
			size = len(ids)
		}
		r = append(r, domain.Cluster(append([]domain.ObjectID(nil), ids[:size]...)))
		ids = ids[size:]
	}
	return r
}

// sortedLevels returns r with the members of every level in ascending order.
func sortedLevels(r domain.ClusterRanking) domain.ClusterRanking {
	out := make(domain.ClusterRanking, len(r))
	for i, c := range r {
		out[i] = slices.Sorted(slices.Values(c))
	}
	return out
}

func TestEngine_Properties(t *testing.T) {
	engine := newTestEngine(t)
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		a := randomRanking(rng, 12)
		b := randomRanking(rng, 12)

		self, err := engine.Reconcile(ctx, a, a)
		require.NoError(t, err)
		assert.Empty(t, self.Kernel, "identity: %v", a)
		assert.Equal(t, sortedLevels(a), self.Consensus, "identity: %v", a)

		ab, err := engine.Reconcile(ctx, a, b)
		require.NoError(t, err)
		ba, err := engine.Reconcile(ctx, b, a)
		require.NoError(t, err)
		assert.Equal(t, ab.Kernel, ba.Kernel, "symmetry: %v / %v", a, b)
		assert.Equal(t, ab.Consensus, ba.Consensus, "symmetry: %v / %v", a, b)

		assert.ElementsMatch(t, domain.NewUniverse(a, b).IDs, ab.Consensus.Objects(), "coverage: %v / %v", a, b)
	}
}

// waitUnit blocks until its context ends.
type waitUnit struct{ name string }

func (w *waitUnit) Name() string   { return w.name }
func (w *waitUnit) Validate() error { return nil }

func (w *waitUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	<-ctx.Done()
	return state, ctx.Err()
}

func TestEngine_Timeout(t *testing.T) {
	registry := NewDefaultUnitRegistry()
	require.NoError(t, registry.RegisterUnitFactory("wait", func(id string, _ map[string]any) (ports.Unit, error) {
		return &waitUnit{name: id}, nil
	}))
	doc := strings.Replace(sequentialWorkflow, "[pa, pb, kernel,", "[pa, pb, stall, kernel,", 1)
	doc = strings.Replace(doc, "  - id: kernel\n", "  - id: stall\n    type: wait\n  - id: kernel\n", 1)

	metrics := newRecordingCollector()
	engine := newTestEngine(t,
		WithUnitRegistry(registry),
		WithWorkflowYAML([]byte(doc)),
		WithTimeout(20*time.Millisecond),
		WithMetrics(metrics),
	)

	start := time.Now()
	_, err := engine.Reconcile(context.Background(), domain.ClusterRanking{{1}}, domain.ClusterRanking{{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1.0, metrics.counters[middleware.MetricReconciliations+"/timeout"])

	_, err = NewEngine(context.Background(), WithTimeout(-time.Second))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
