package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlists/handlers"
	"smartlists/internal/logging"
	"smartlists/services/events"
	"smartlists/services/lists"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc, err := lists.NewService(afero.NewMemMapFs(), "/lists.json", logging.Discard())
	require.NoError(t, err)
	hub := events.NewHub(logging.Discard())

	r := mux.NewRouter()
	Register(r, Handlers{
		Lists:   handlers.NewListsHandler(svc, nil, nil),
		Rules:   handlers.NewRulesHandler(),
		Status:  handlers.NewStatusHandler(nil, hub),
		Webhook: handlers.NewWebhookHandler(hub, nil, "", logging.Discard()),
	})
	return r
}

func TestRoutesAndCORS(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lists", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/lists/abc/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/jellyfin",
		strings.NewReader(`{"NotificationType":"ItemAdded","ItemId":"m1","ItemType":"Movie"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDebugRoutesAreLocalOnly(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com:7788/debug/pprof/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "http://localhost:7788/debug/pprof/cmdline", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
