package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"queued": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got["queued"])
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(http.ResponseWriter)
		wantCode int
		wantMsg  string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "missing line") }, http.StatusBadRequest, "missing line"},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db down") }, http.StatusInternalServerError, "db down"},
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, map[string]string{"error": "none"}) }, http.StatusOK, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.wantCode, rec.Code)
			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantMsg, got["error"])
		})
	}
}
