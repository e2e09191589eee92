package pipeline

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexuscore/nexus/reqctx"
)

// TracingConfig configures the OnRequest/OnResponse span hooks installed
// by ComposeTracing, covering validation and the fixed lifecycle stages
// as well as the handler itself.
type TracingConfig struct {
	// Tracer starts spans. If nil, trace.NewNoopTracerProvider()'s tracer
	// is used, so installing tracing without a configured SDK is inert.
	Tracer trace.Tracer

	// Propagator extracts an upstream trace context from inbound request
	// headers. If nil, no extraction is attempted.
	Propagator propagation.TextMapPropagator

	// ServiceName is recorded as a span attribute when non-empty.
	ServiceName string

	// Filter, if it returns false, skips tracing for the request (the
	// request still proceeds through onRequest/onResponse unobserved).
	Filter func(c *reqctx.Context) bool

	// SpanName names the span. Defaults to "METHOD route" (the matched
	// route pattern, not the raw path, to keep span cardinality bounded).
	SpanName func(c *reqctx.Context) string

	// Attributes returns extra span attributes computed per-request.
	Attributes func(c *reqctx.Context) []attribute.KeyValue

	// ExtraAttributes are appended to every span unconditionally.
	ExtraAttributes []attribute.KeyValue

	// Status maps a response status code and handler error to an OTel
	// status code/description. Defaults to Error for 5xx or a non-nil
	// err, Ok otherwise.
	Status func(code int, err error) (codes.Code, string)
}

const traceSpanKey = "__nexus_trace_span"

func defaultTracingStatus(code int, err error) (codes.Code, string) {
	if err != nil || code >= http.StatusInternalServerError {
		return codes.Error, http.StatusText(code)
	}
	return codes.Ok, ""
}

func defaultTracingSpanName(c *reqctx.Context) string {
	route := c.Route()
	if route == "" {
		route = c.Path()
	}
	return c.Method() + " " + route
}

// ComposeTracing returns a new Hooks that starts a span in OnRequest and
// ends it in OnResponse/OnError, chaining through any hooks already set
// on base so tracing can be layered onto an application's own hooks.
// Hooks is a single fixed set of fields, not a list, so composition
// happens here rather than in Pipeline itself.
func ComposeTracing(base Hooks, cfg TracingConfig) Hooks {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("nexus")
	}
	status := cfg.Status
	if status == nil {
		status = defaultTracingStatus
	}
	spanName := cfg.SpanName
	if spanName == nil {
		spanName = defaultTracingSpanName
	}

	composed := base
	composed.OnRequest = func(c *reqctx.Context) (any, error) {
		if cfg.Filter != nil && !cfg.Filter(c) {
			if base.OnRequest != nil {
				return base.OnRequest(c)
			}
			return nil, nil
		}

		ctx := c.StdContext()
		if cfg.Propagator != nil {
			ctx = cfg.Propagator.Extract(ctx, propagation.HeaderCarrier(c.Request().Header))
		}

		name := spanName(c)
		if name == "" {
			name = c.Method() + " " + c.Path()
		}

		attrs := make([]attribute.KeyValue, 0, len(cfg.ExtraAttributes)+3)
		attrs = append(attrs, attribute.String("http.method", c.Method()))
		attrs = append(attrs, attribute.String("http.route", c.Route()))
		if cfg.ServiceName != "" {
			attrs = append(attrs, attribute.String("service.name", cfg.ServiceName))
		}
		attrs = append(attrs, cfg.ExtraAttributes...)
		if cfg.Attributes != nil {
			attrs = append(attrs, cfg.Attributes(c)...)
		}

		ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
		c.SetStdContext(ctx)
		c.Set(traceSpanKey, span)

		if base.OnRequest != nil {
			return base.OnRequest(c)
		}
		return nil, nil
	}

	composed.OnResponse = func(c *reqctx.Context, resp *reqctx.Response) (*reqctx.Response, error) {
		if base.OnResponse != nil {
			var err error
			resp, err = base.OnResponse(c, resp)
			if err != nil {
				code := http.StatusInternalServerError
				if resp != nil {
					code = resp.StatusCode
				}
				endSpan(c, code, err, status)
				return resp, err
			}
		}
		endSpan(c, resp.StatusCode, nil, status)
		return resp, nil
	}

	composed.OnError = func(c *reqctx.Context, err error) (any, error) {
		endSpan(c, http.StatusInternalServerError, err, status)
		if base.OnError != nil {
			return base.OnError(c, err)
		}
		return nil, nil
	}

	return composed
}

func endSpan(c *reqctx.Context, code int, err error, status func(int, error) (codes.Code, string)) {
	v := c.Get(traceSpanKey)
	if v == nil {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	otelCode, desc := status(code, err)
	span.SetStatus(otelCode, desc)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
