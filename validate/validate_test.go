package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/reqctx"
	"github.com/nexuscore/nexus/store"
)

type item struct {
	Name string `json:"name" validate:"required"`
}

func newCtx(t *testing.T, contentType, body string) *reqctx.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	c := reqctx.New()
	c.Reinitialize(rec, req, "/items", store.NewRegistry(), di.New())
	return c
}

func TestStructSchemaRejectsEmptyRequired(t *testing.T) {
	c := newCtx(t, "application/json", `{"name":""}`)
	schema := StructSchema{New: func() any { return &item{} }}
	err := schema.Validate(c)
	require.Error(t, err)
}

func TestStructSchemaStashesBoundValue(t *testing.T) {
	c := newCtx(t, "application/json", `{"name":"Ada"}`)
	schema := StructSchema{New: func() any { return &item{} }, ContextKey: "item"}
	require.NoError(t, schema.Validate(c))

	got, ok := c.Get("item").(*item)
	require.True(t, ok)
	assert.Equal(t, "Ada", got.Name)
}

func TestToFieldErrorsMapsFieldNames(t *testing.T) {
	err := Struct(&item{})
	require.Error(t, err)
	fields := ToFieldErrors(err)
	assert.Contains(t, fields, "Name")
}
