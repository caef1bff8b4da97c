package api

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestSetupRoutesRegistersEverySurfaceRoute(t *testing.T) {
	s := &Server{router: mux.NewRouter()}
	s.setupRoutes()

	want := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/policies"},
		{http.MethodPost, "/policies"},
		{http.MethodDelete, "/policies/abc-123"},
		{http.MethodGet, "/wallets"},
		{http.MethodGet, "/wallets/abc-123/tokens"},
		{http.MethodGet, "/positions"},
		{http.MethodPost, "/positions"},
		{http.MethodGet, "/positions/abc-123"},
		{http.MethodGet, "/executions"},
		{http.MethodGet, "/executions/abc-123"},
		{http.MethodGet, "/metrics/network"},
	}

	for _, w := range want {
		match := &mux.RouteMatch{}
		req, _ := http.NewRequest(w.method, w.path, nil)
		assert.True(t, s.router.Match(req, match), "expected route %s %s to be registered", w.method, w.path)
	}
}

func TestStopIsNoopWithoutStart(t *testing.T) {
	s := &Server{router: mux.NewRouter()}
	assert.NoError(t, s.Stop(nil))
}
