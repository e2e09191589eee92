package reqctx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindUser struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestBindJSONStrictRejectsUnknownField(t *testing.T) {
	c := newBodyContext(t, "application/json", `{"id":1,"name":"Ada","extra":true}`)
	var u bindUser
	err := c.BindJSON(&u)
	require.Error(t, err)
	var fe FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(fe, ErrFieldUnexpected))
}

func TestBindJSONWeakCoercesStrings(t *testing.T) {
	c := newBodyContext(t, "application/json", `{"id":"10","name":"Ada"}`)
	var u bindUser
	err := c.BindJSON(&u, BindOptions{WeaklyTypedInput: true})
	require.NoError(t, err)
	assert.Equal(t, 10, u.ID)
	assert.Equal(t, "Ada", u.Name)
}

func TestBindPathBindsRouteParams(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/users/42")
	c.SetParams(map[string]string{"id": "42"})
	type in struct {
		ID int `json:"id"`
	}
	var v in
	require.NoError(t, c.BindPath(&v, BindOptions{WeaklyTypedInput: true}))
	assert.Equal(t, 42, v.ID)
}

func TestBindAnyPrecedencePathOverBodyOverQuery(t *testing.T) {
	c := newBodyContext(t, "application/json", `{"name":"from-body","active":true}`)
	c.raw.URL.RawQuery = "name=from-query&active=false"
	c.SetParams(map[string]string{"name": "from-path"})

	type in struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	var v in
	require.NoError(t, c.BindAny(&v, BindOptions{WeaklyTypedInput: true}))
	assert.Equal(t, "from-path", v.Name)
	assert.Equal(t, true, v.Active)
}
