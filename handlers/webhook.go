package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"smartlists/internal/jellyfin"
	"smartlists/models"
	"smartlists/services/events"
)

type eventPublisher interface {
	PublishCatalog(evt models.CatalogEvent)
	PublishPlayback(evt models.PlaybackEvent)
}

var _ eventPublisher = (*events.Hub)(nil)

// userDataSource re-reads playback state from the host. The webhook plugin
// only sends the fields its template names, so the host copy wins.
type userDataSource interface {
	GetUserData(ctx context.Context, userID string, item models.Item) (models.UserData, error)
}

var _ userDataSource = (*jellyfin.Client)(nil)

const userDataLookupTimeout = 5 * time.Second

type WebhookHandler struct {
	Events   eventPublisher
	UserData userDataSource
	Token    string
	log      *slog.Logger
}

// NewWebhookHandler accepts Jellyfin webhook-plugin posts. userData may be
// nil, in which case playback state is taken from the payload as is.
func NewWebhookHandler(publisher eventPublisher, userData userDataSource, token string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		Events:   publisher,
		UserData: userData,
		Token:    token,
		log:      logger.With("component", "webhook"),
	}
}

func (h *WebhookHandler) Jellyfin(w http.ResponseWriter, r *http.Request) {
	if h.Token != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("token")), []byte(h.Token)) != 1 {
		writeJSONError(w, "invalid webhook token", http.StatusUnauthorized)
		return
	}

	n, err := jellyfin.DecodeWebhook(r.Body)
	if errors.Is(err, jellyfin.ErrIgnoredNotification) {
		h.log.Debug("webhook ignored", "reason", err)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case n.Catalog != nil:
		h.Events.PublishCatalog(*n.Catalog)
	case n.Playback != nil:
		evt := *n.Playback
		if h.UserData != nil {
			ctx, cancel := context.WithTimeout(r.Context(), userDataLookupTimeout)
			data, err := h.UserData.GetUserData(ctx, evt.UserID, evt.Item)
			cancel()
			if err != nil {
				h.log.Warn("user data lookup failed, using webhook payload", "item", evt.Item.ID, "user", evt.UserID, "error", err)
			} else {
				evt.State = data
			}
		}
		h.Events.PublishPlayback(evt)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
