package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		corsOrigin     string
		method         string
		expectedStatus int
		shouldCallNext bool
	}{
		{"GET request with CORS headers", "*", http.MethodGet, http.StatusOK, true},
		{"POST request with specific origin", "https://example.com", http.MethodPost, http.StatusOK, true},
		{"OPTIONS request (preflight)", "*", http.MethodOptions, http.StatusOK, false},
		{"status from handler", "http://localhost:3000", http.MethodGet, http.StatusTeapot, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{corsOrigin: tt.corsOrigin}
			called := false
			h := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(tt.expectedStatus)
			})

			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(tt.method, "/x", nil))

			assert.Equal(t, tt.shouldCallNext, called)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.corsOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServerDefaults(t *testing.T) {
	s := newServer(nil, Config{})
	assert.Equal(t, "*", s.corsOrigin)
	assert.Equal(t, int64(50), s.maxUploadMB)
	assert.NoError(t, s.Close())
}
