package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"smartlists/models"
	"smartlists/services/coordinator"
	"smartlists/services/lists"
	"smartlists/services/store"
)

type listService interface {
	Lists(ctx context.Context) ([]models.SmartList, error)
	Get(ctx context.Context, id string) (models.SmartList, error)
	Save(ctx context.Context, list models.SmartList) (models.SmartList, error)
	Delete(ctx context.Context, id string) error
}

var _ listService = (*lists.Service)(nil)

type listRefresher interface {
	RefreshNow(ctx context.Context, ids []string) (map[string]coordinator.Result, error)
}

var _ listRefresher = (*coordinator.Coordinator)(nil)

type runHistory interface {
	Runs(ctx context.Context, listID string, limit int) ([]models.RefreshRun, error)
	Members(ctx context.Context, listID string) ([]string, error)
}

var _ runHistory = (*store.Store)(nil)

type ListsHandler struct {
	Lists     listService
	Refresher listRefresher
	History   runHistory
}

func NewListsHandler(lists listService, refresher listRefresher, history runHistory) *ListsHandler {
	return &ListsHandler{Lists: lists, Refresher: refresher, History: history}
}

func (h *ListsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.Lists.Lists(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *ListsHandler) Get(w http.ResponseWriter, r *http.Request) {
	list, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ListsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var list models.SmartList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	list.ID = ""
	h.save(w, r, list, http.StatusCreated)
}

func (h *ListsHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var list models.SmartList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	list.ID = existing.ID
	h.save(w, r, list, http.StatusOK)
}

func (h *ListsHandler) save(w http.ResponseWriter, r *http.Request, list models.SmartList, status int) {
	saved, err := h.Lists.Save(r.Context(), list)
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": describeProblems(err)})
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, saved)
}

func (h *ListsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := listID(r)
	if err := h.Lists.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrListNotFound) {
			writeJSONError(w, "list not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh recomputes one list right away and reports the outcome.
func (h *ListsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	list, ok := h.lookup(w, r)
	if !ok {
		return
	}

	results, err := h.Refresher.RefreshNow(r.Context(), []string{list.ID})
	if err != nil {
		if errors.Is(err, coordinator.ErrDisposed) {
			writeJSONError(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := results[list.ID]
	status := http.StatusOK
	switch {
	case res.Busy:
		status = http.StatusConflict
	case !res.Success:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"listId":  list.ID,
		"success": res.Success,
		"message": res.Message,
	})
}

func (h *ListsHandler) Runs(w http.ResponseWriter, r *http.Request) {
	list, ok := h.lookup(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.History.Runs(r.Context(), list.ID, limit)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.RefreshRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *ListsHandler) Members(w http.ResponseWriter, r *http.Request) {
	list, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ids, err := h.History.Members(r.Context(), list.ID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listId": list.ID, "itemIds": ids})
}

func (h *ListsHandler) lookup(w http.ResponseWriter, r *http.Request) (models.SmartList, bool) {
	list, err := h.Lists.Get(r.Context(), listID(r))
	if err != nil {
		if errors.Is(err, models.ErrListNotFound) {
			writeJSONError(w, "list not found", http.StatusNotFound)
		} else {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return models.SmartList{}, false
	}
	return list, true
}

func listID(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["listID"])
}
