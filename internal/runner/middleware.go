package runner

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/volley/internal/tracing"
)

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(err error)
}

type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log transport failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) (int, error) {
	code, err := l.inner.Do(ctx)
	if err != nil {
		l.logger.LogFailure(err)
	}
	return code, err
}

type tracingRequester struct {
	inner  Requester
	tracer trace.Tracer
	method string
	runID  string
}

// WithTracing wraps a Requester so every attempt runs inside a client span.
// The span context reaches the target through the request context.
func WithTracing(req Requester, tracer trace.Tracer, method, runID string) Requester {
	if tracer == nil {
		return req
	}
	return &tracingRequester{inner: req, tracer: tracer, method: method, runID: runID}
}

func (t *tracingRequester) Do(ctx context.Context) (int, error) {
	ctx, span := tracing.StartRequestSpan(ctx, t.tracer, t.method, t.runID)
	code, err := t.inner.Do(ctx)
	if err != nil {
		tracing.EndSpan(span, err)
	} else {
		tracing.EndSpan(span, nil, tracing.StatusCode(code))
	}
	return code, err
}
