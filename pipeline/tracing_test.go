package pipeline

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/reqctx"
)

func TestComposeTracingStartsAndEndsSpanOnSuccess(t *testing.T) {
	p := New(di.New())
	p.Hooks = ComposeTracing(Hooks{}, TracingConfig{ServiceName: "svc"})

	route := Route{Handler: func(c *reqctx.Context, deps *di.Container) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	}}

	c, rec := newCtx(http.MethodGet, "/x")
	p.Compile(route)(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComposeTracingRecordsErrorStatus(t *testing.T) {
	p := New(di.New())
	p.Hooks = ComposeTracing(Hooks{}, TracingConfig{})

	route := Route{Handler: func(c *reqctx.Context, deps *di.Container) (any, error) {
		return nil, errors.New("boom")
	}}

	c, rec := newCtx(http.MethodGet, "/x")
	p.Compile(route)(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestComposeTracingFilterSkipsSpan(t *testing.T) {
	p := New(di.New())
	filtered := false
	p.Hooks = ComposeTracing(Hooks{}, TracingConfig{
		Filter: func(c *reqctx.Context) bool {
			filtered = true
			return false
		},
	})

	route := Route{Handler: func(c *reqctx.Context, deps *di.Container) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	}}

	c, rec := newCtx(http.MethodGet, "/skip")
	p.Compile(route)(c)
	require.True(t, filtered)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, c.Get(traceSpanKey))
}

func TestComposeTracingChainsExistingHooks(t *testing.T) {
	var calledBefore, calledAfter bool
	base := Hooks{
		OnRequest: func(c *reqctx.Context) (any, error) {
			calledBefore = true
			return nil, nil
		},
		OnResponse: func(c *reqctx.Context, r *reqctx.Response) (*reqctx.Response, error) {
			calledAfter = true
			return r, nil
		},
	}
	p := New(di.New())
	p.Hooks = ComposeTracing(base, TracingConfig{})

	route := Route{Handler: func(c *reqctx.Context, deps *di.Container) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	}}

	c, rec := newCtx(http.MethodGet, "/x")
	p.Compile(route)(c)
	assert.True(t, calledBefore)
	assert.True(t, calledAfter)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComposeTracingCustomTracerAndAttributes(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	p := New(di.New())
	p.Hooks = ComposeTracing(Hooks{}, TracingConfig{
		Tracer:     tracer,
		Propagator: propagation.NewCompositeTextMapPropagator(),
		SpanName:   func(c *reqctx.Context) string { return "custom" },
		Attributes: func(c *reqctx.Context) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("custom.attr", "v")}
		},
		ExtraAttributes: []attribute.KeyValue{attribute.String("extra.attr", "x")},
		Status: func(code int, err error) (codes.Code, string) {
			return codes.Ok, ""
		},
	})

	route := Route{Handler: func(c *reqctx.Context, deps *di.Container) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	}}

	c, rec := newCtx(http.MethodGet, "/x")
	p.Compile(route)(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}
