package jellyfin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"smartlists/models"
)

// ErrIgnoredNotification marks webhook notifications that carry nothing the
// refresh pipeline cares about.
var ErrIgnoredNotification = errors.New("notification ignored")

// WebhookPayload is the JSON body posted by the Jellyfin webhook plugin.
// The generic destination template must emit these keys.
type WebhookPayload struct {
	NotificationType      string `json:"NotificationType"`
	ItemID                string `json:"ItemId"`
	ItemType              string `json:"ItemType"`
	Name                  string `json:"Name"`
	SeriesID              string `json:"SeriesId"`
	SeriesName            string `json:"SeriesName"`
	UserID                string `json:"UserId"`
	Played                bool   `json:"Played"`
	PlayCount             int    `json:"PlayCount"`
	Favorite              bool   `json:"Favorite"`
	LastPlayedDate        string `json:"LastPlayedDate"`
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks"`
}

// Notification is a decoded webhook: exactly one of Catalog and Playback is
// set.
type Notification struct {
	Catalog  *models.CatalogEvent
	Playback *models.PlaybackEvent
}

// DecodeWebhook parses a webhook body into a model event.
func DecodeWebhook(r io.Reader) (Notification, error) {
	var p WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&p); err != nil {
		return Notification{}, fmt.Errorf("decode webhook: %w", err)
	}
	if strings.TrimSpace(p.ItemID) == "" {
		return Notification{}, fmt.Errorf("%w: %s without item id", ErrIgnoredNotification, p.NotificationType)
	}

	kind, ok := models.ParseMediaKind(p.ItemType)
	if !ok {
		kind = models.MediaKind(p.ItemType)
	}
	item := models.Item{ID: normalizeID(p.ItemID), Kind: kind, Name: p.Name, SeriesID: normalizeID(p.SeriesID), SeriesName: p.SeriesName}

	catalog := func(t models.CatalogEventType) (Notification, error) {
		return Notification{Catalog: &models.CatalogEvent{Type: t, Item: item}}, nil
	}

	switch strings.ToLower(p.NotificationType) {
	case "itemadded":
		return catalog(models.CatalogItemAdded)
	case "itemdeleted", "itemremoved":
		return catalog(models.CatalogItemRemoved)
	case "itemupdated":
		return catalog(models.CatalogItemUpdated)
	case "userdatasaved", "playbackstop":
		if strings.TrimSpace(p.UserID) == "" {
			return Notification{}, fmt.Errorf("%w: %s without user id", ErrIgnoredNotification, p.NotificationType)
		}
		state := models.UserData{
			Played:                p.Played,
			PlayCount:             p.PlayCount,
			IsFavorite:            p.Favorite,
			PlaybackPositionTicks: p.PlaybackPositionTicks,
		}
		if t := parseTime(p.LastPlayedDate); !t.IsZero() {
			state.LastPlayedDate = &t
		}
		return Notification{Playback: &models.PlaybackEvent{Item: item, UserID: normalizeID(p.UserID), State: state}}, nil
	default:
		return Notification{}, fmt.Errorf("%w: %s", ErrIgnoredNotification, p.NotificationType)
	}
}

// normalizeID strips dashes so ids from the webhook plugin compare equal to
// the dashless guids the REST API returns.
func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}
