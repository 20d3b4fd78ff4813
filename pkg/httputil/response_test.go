package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON with correct content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusOK, map[string]string{"foo": "bar"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var result map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "bar", result["foo"])
	})

	t.Run("handles nil data", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusNoContent, nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"generic", func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, "duplicate_name", "m") }, http.StatusConflict, "duplicate_name"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid_port", "m") }, http.StatusBadRequest, "invalid_port"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "not_found", "m") }, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, "m", body.Message)
		})
	}
}

func TestWriteCreatedAndOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteCreated(rec, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteOK(rec, []string{"a"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["a"]`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	decode := func(body string, limit int64) (map[string]any, *httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var v map[string]any
		err := DecodeJSON(rec, req, &v, limit)
		return v, rec, err
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		v, _, err := decode(`{"name":"r1"}`, 0)
		require.NoError(t, err)
		assert.Equal(t, "r1", v["name"])
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, rec, err := decode("", 0)
		require.ErrorIs(t, err, ErrEmptyBody)
		WriteDecodeError(rec, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "empty_body")
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, rec, err := decode(`{"name":`, 0)
		require.Error(t, err)
		WriteDecodeError(rec, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		_, rec, err := decode(`{"name":"`+strings.Repeat("x", 64)+`"}`, 16)
		require.Error(t, err)
		WriteDecodeError(rec, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}
