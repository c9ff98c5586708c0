package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// StageSpanName is the span name given to every traced workflow node.
const StageSpanName = "concord.stage"

const instrumentationName = "github.com/ahrav/go-concord/infrastructure/middleware"

var _ ports.Executable = (*TracingExecutable)(nil)

// TracingExecutable wraps an executable in an OpenTelemetry span named
// StageSpanName. The span carries the node id and, when the state holds
// them, the universe size and the workflow and reconciliation ids.
type TracingExecutable struct {
	next   ports.Executable
	tracer trace.Tracer
}

// Tracing returns a middleware that traces executables with tp. A nil tp
// uses the global provider.
func Tracing(tp trace.TracerProvider) ports.ExecutableMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)
	return func(next ports.Executable) ports.Executable {
		return &TracingExecutable{next: next, tracer: tracer}
	}
}

// ID returns the wrapped executable's ID.
func (te *TracingExecutable) ID() string { return te.next.ID() }

// Unwrap returns the wrapped executable.
func (te *TracingExecutable) Unwrap() ports.Executable { return te.next }

// Execute runs the wrapped executable inside a span. Errors are recorded on
// the span and returned unchanged.
func (te *TracingExecutable) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := te.tracer.Start(ctx, StageSpanName,
		trace.WithAttributes(attribute.String("stage.id", te.next.ID())),
	)
	defer span.End()

	if u, ok := domain.Get(state, domain.KeyUniverse); ok {
		span.SetAttributes(attribute.Int("universe.size", u.Size()))
	}
	if ec, ok := state.GetExecutionContext(); ok {
		span.SetAttributes(
			attribute.String("workflow.id", ec.WorkflowID),
			attribute.String("reconcile.id", ec.ExecutionID),
		)
	}

	out, err := te.next.Execute(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}
