package middleware

import (
	"context"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.Executable = (*MetricsExecutable)(nil)

// MetricsExecutable records the latency of every execution of the wrapped
// executable under the "stage" label, with "status" set to ok or error.
type MetricsExecutable struct {
	next      ports.Executable
	collector ports.MetricsCollector
}

// Metrics returns a middleware that times executables into collector.
// A nil collector yields a middleware that returns executables unchanged.
func Metrics(collector ports.MetricsCollector) ports.ExecutableMiddleware {
	return func(next ports.Executable) ports.Executable {
		if collector == nil {
			return next
		}
		return &MetricsExecutable{next: next, collector: collector}
	}
}

// ID returns the wrapped executable's ID.
func (me *MetricsExecutable) ID() string { return me.next.ID() }

// Unwrap returns the wrapped executable.
func (me *MetricsExecutable) Unwrap() ports.Executable { return me.next }

// Execute runs the wrapped executable and records its duration.
func (me *MetricsExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	out, err := me.next.Execute(ctx, state)

	status := "ok"
	if err != nil {
		status = "error"
	}
	me.collector.RecordLatency(MetricStageDuration, time.Since(start), map[string]string{
		"stage":  me.next.ID(),
		"status": status,
	})
	return out, err
}

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(exec ports.Executable, mws ...ports.ExecutableMiddleware) ports.Executable {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			exec = mws[i](exec)
		}
	}
	return exec
}
