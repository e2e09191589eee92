package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/reqctx"
)

type captureHandler struct{ rec []slog.Record }

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.rec = append(h.rec, r)
	return nil
}
func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(name string) slog.Handler      { return h }

func newLoggedRequest(h slog.Handler) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	return r.WithContext(core.ContextWithLogger(r.Context(), slog.New(h)))
}

func TestLoggerMiddlewareEmitsLog(t *testing.T) {
	h := &captureHandler{}
	mw := Logger()
	r := newLoggedRequest(h)
	_, _, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) {
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	}, r)

	require.NoError(t, err)
	assert.NotEmpty(t, h.rec)
}

func TestLoggerDefaultStatusAndRequestIDAttr(t *testing.T) {
	h := &captureHandler{}
	r := newLoggedRequest(h)
	mw := Logger()
	rid := RequestID()

	_, _, err := runMiddleware(mw, func(c *reqctx.Context) (any, error) {
		return rid(c, func(c *reqctx.Context) (any, error) { return nil, nil }, c.Deps())
	}, r)
	require.NoError(t, err)
	require.NotEmpty(t, h.rec)

	var status int
	var hasRID bool
	h.rec[len(h.rec)-1].Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "status":
			status = int(a.Value.Int64())
		case "request_id":
			hasRID = true
		}
		return true
	})
	assert.Equal(t, 200, status)
	assert.True(t, hasRID)
}

func TestLoggerExcludesConfiguredFields(t *testing.T) {
	h := &captureHandler{}
	mw := Logger(WithExcludeFields("user_agent", "remote"))
	r := newLoggedRequest(h)
	_, _, _ = runMiddleware(mw, func(c *reqctx.Context) (any, error) { return nil, nil }, r)

	require.NotEmpty(t, h.rec)
	h.rec[len(h.rec)-1].Attrs(func(a slog.Attr) bool {
		assert.NotEqual(t, "user_agent", a.Key)
		assert.NotEqual(t, "remote", a.Key)
		return true
	})
}

func TestLoggerCustomAttributesAndMessage(t *testing.T) {
	h := &captureHandler{}
	mw := Logger(
		WithMessage("api_request"),
		WithCustomAttributes(func(c *reqctx.Context) []any { return []any{"tenant", "acme"} }),
	)
	r := newLoggedRequest(h)
	_, _, _ = runMiddleware(mw, func(c *reqctx.Context) (any, error) { return nil, nil }, r)

	require.NotEmpty(t, h.rec)
	last := h.rec[len(h.rec)-1]
	assert.Equal(t, "api_request", last.Message)
	var sawTenant bool
	last.Attrs(func(a slog.Attr) bool {
		if a.Key == "tenant" {
			sawTenant = true
		}
		return true
	})
	assert.True(t, sawTenant)
}
