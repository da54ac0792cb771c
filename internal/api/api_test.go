package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", apiHandler)

	handler := NewHandler(mux, "admin", "secret", "*")

	req := httptest.NewRequest("GET", "/api", nil)
	req.RemoteAddr = "192.168.1.10:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var info map[string]any
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.NotEmpty(t, info["version"])

	// localhost is trusted
	req = httptest.NewRequest("GET", "/api", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogHandler(t *testing.T) {
	w := httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("DELETE", "/api/log", nil))
	require.Equal(t, "OK", w.Body.String())

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("GET", "/api/log", nil))
	require.Equal(t, "application/jsonlines", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("PUT", "/api/log", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
