package binder_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subflow/pkg/binder"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("decodes valid body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"pro","count":3}`))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		require.NoError(t, binder.JSON()(r, &p))
		assert.Equal(t, "pro", p.Name)
		assert.Equal(t, 3, p.Count)
	})

	t.Run("rejects missing content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))

		var p payload
		assert.ErrorIs(t, binder.JSON()(r, &p), binder.ErrMissingContentType)
	})

	t.Run("rejects wrong media type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
		r.Header.Set("Content-Type", "text/plain")

		var p payload
		assert.ErrorIs(t, binder.JSON()(r, &p), binder.ErrUnsupportedMediaType)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x","bogus":true}`))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		assert.ErrorIs(t, binder.JSON()(r, &p), binder.ErrFailedToParseJSON)
	})

	t.Run("rejects empty body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(""))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		assert.ErrorIs(t, binder.JSON()(r, &p), binder.ErrFailedToParseJSON)
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x"}{"name":"y"}`))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		assert.ErrorIs(t, binder.JSON()(r, &p), binder.ErrFailedToParseJSON)
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	type params struct {
		Status string `query:"status"`
		Limit  int    `query:"limit"`
		Active *bool  `query:"active"`
		Skip   string `query:"-"`
	}

	t.Run("binds present parameters", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/?status=active&limit=25&active=true", nil)

		var p params
		require.NoError(t, binder.Query()(r, &p))
		assert.Equal(t, "active", p.Status)
		assert.Equal(t, 25, p.Limit)
		require.NotNil(t, p.Active)
		assert.True(t, *p.Active)
	})

	t.Run("missing parameters keep defaults", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/", nil)

		p := params{Limit: 50}
		require.NoError(t, binder.Query()(r, &p))
		assert.Equal(t, 50, p.Limit)
		assert.Nil(t, p.Active)
	})

	t.Run("invalid number fails", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/?limit=lots", nil)

		var p params
		assert.ErrorIs(t, binder.Query()(r, &p), binder.ErrFailedToParseQuery)
	})
}
