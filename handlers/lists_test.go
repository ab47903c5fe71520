package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlists/handlers"
	"smartlists/internal/logging"
	"smartlists/models"
	"smartlists/services/coordinator"
	"smartlists/services/lists"
)

type fakeRefresher struct {
	results map[string]coordinator.Result
	err     error
	calls   [][]string
}

func (f *fakeRefresher) RefreshNow(_ context.Context, ids []string) (map[string]coordinator.Result, error) {
	f.calls = append(f.calls, ids)
	return f.results, f.err
}

type fakeHistory struct {
	runs      []models.RefreshRun
	members   []string
	lastLimit int
}

func (f *fakeHistory) Runs(_ context.Context, _ string, limit int) ([]models.RefreshRun, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func (f *fakeHistory) Members(context.Context, string) ([]string, error) {
	return f.members, nil
}

type listsFixture struct {
	svc       *lists.Service
	refresher *fakeRefresher
	history   *fakeHistory
	router    *mux.Router
}

func newListsFixture(t *testing.T) *listsFixture {
	t.Helper()
	svc, err := lists.NewService(afero.NewMemMapFs(), "/data/lists.json", logging.Discard())
	require.NoError(t, err)

	f := &listsFixture{svc: svc, refresher: &fakeRefresher{}, history: &fakeHistory{}}
	h := handlers.NewListsHandler(svc, f.refresher, f.history)

	r := mux.NewRouter()
	r.HandleFunc("/api/lists", h.List).Methods(http.MethodGet)
	r.HandleFunc("/api/lists", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/api/lists/{listID}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/api/lists/{listID}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/api/lists/{listID}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/lists/{listID}/refresh", h.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/api/lists/{listID}/runs", h.Runs).Methods(http.MethodGet)
	r.HandleFunc("/api/lists/{listID}/members", h.Members).Methods(http.MethodGet)
	f.router = r
	return f
}

func (f *listsFixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

func (f *listsFixture) seed(t *testing.T) models.SmartList {
	t.Helper()
	saved, err := f.svc.Save(context.Background(), models.SmartList{Name: "Unplayed", OwnerUserID: "u1", Enabled: true})
	require.NoError(t, err)
	return saved
}

func TestListsCRUD(t *testing.T) {
	f := newListsFixture(t)

	rec := f.do(http.MethodPost, "/api/lists", models.SmartList{
		ID:          "ignored",
		Name:        "Favorites",
		OwnerUserID: "u1",
		Enabled:     true,
		ExpressionSets: []models.ExpressionSet{{Expressions: []models.Expression{
			{MemberName: "IsFavorite", Operator: "Equal", TargetValue: "true"},
		}}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.SmartList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, "ignored", created.ID)
	assert.Equal(t, models.ListTypePlaylist, created.ListType)

	rec = f.do(http.MethodGet, "/api/lists/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	created.Name = "Loved"
	rec = f.do(http.MethodPut, "/api/lists/"+created.ID, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Loved", got.Name)

	rec = f.do(http.MethodGet, "/api/lists", nil)
	var all []models.SmartList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/lists/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/lists/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/lists/"+created.ID, nil).Code)
}

func TestSaveRejectsBadRules(t *testing.T) {
	f := newListsFixture(t)
	rec := f.do(http.MethodPost, "/api/lists", models.SmartList{
		Name:        "Bad",
		OwnerUserID: "u1",
		ExpressionSets: []models.ExpressionSet{{Expressions: []models.Expression{
			{MemberName: "Name", Operator: "MatchRegex", TargetValue: "("},
		}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "MatchRegex")

	all, err := f.svc.Lists(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRefreshStatusCodes(t *testing.T) {
	f := newListsFixture(t)
	list := f.seed(t)
	target := "/api/lists/" + list.ID + "/refresh"

	f.refresher.results = map[string]coordinator.Result{list.ID: {Success: true, Message: "12 items"}}
	rec := f.do(http.MethodPost, target, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "12 items")
	assert.Equal(t, [][]string{{list.ID}}, f.refresher.calls)

	f.refresher.results = map[string]coordinator.Result{list.ID: {Message: "refresh already running", Busy: true}}
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, target, nil).Code)

	f.refresher.results = map[string]coordinator.Result{list.ID: {Message: "host unreachable"}}
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodPost, target, nil).Code)

	f.refresher.err = coordinator.ErrDisposed
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, target, nil).Code)

	f.refresher.err = errors.New("unexpected")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, target, nil).Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/lists/missing/refresh", nil).Code)
	assert.Len(t, f.refresher.calls, 5)
}

func TestRunsAndMembers(t *testing.T) {
	f := newListsFixture(t)
	list := f.seed(t)
	f.history.runs = []models.RefreshRun{{ID: 2, ListID: list.ID, Success: true, ItemCount: 3}}
	f.history.members = []string{"m1", "m2", "m3"}

	rec := f.do(http.MethodGet, "/api/lists/"+list.ID+"/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.RefreshRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Equal(t, f.history.runs, runs)
	assert.Equal(t, 5, f.history.lastLimit)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/lists/"+list.ID+"/runs?limit=x", nil).Code)

	rec = f.do(http.MethodGet, "/api/lists/"+list.ID+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		ItemIDs []string `json:"itemIds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Equal(t, []string{"m1", "m2", "m3"}, members.ItemIDs)
}
