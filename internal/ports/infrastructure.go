package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
)

// Reconciler is the engine's public call contract: it turns two
// cluster-rankings into a contradiction kernel and a consensus ranking.
// Implementations must be safe for concurrent use; independent calls
// share no state.
type Reconciler interface {
	// Reconcile validates both rankings and reconciles them.
	// A nil ranking is treated as an empty one. Validation failures are
	// reported as *domain.RankingError and no partial result is returned.
	//
	//	a := domain.ClusterRanking{{1}, {2, 3}}
	//	b := domain.ClusterRanking{{2}, {1}, {3}}
	//	rec, err := reconciler.Reconcile(ctx, a, b)
	Reconcile(ctx context.Context, a, b domain.ClusterRanking) (*domain.Reconciliation, error)
}

// MetricsCollector receives the engine's measurements. The Prometheus
// adapter in infrastructure/middleware is the production implementation;
// labels are passed through as metric labels.
type MetricsCollector interface {
	// RecordLatency observes how long operation took.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter adds value to a counter.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge overwrites a gauge.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram observes one sample, such as a kernel size.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
