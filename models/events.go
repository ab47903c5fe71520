package models

import "time"

// CatalogEventType classifies library changes.
type CatalogEventType string

const (
	CatalogItemAdded   CatalogEventType = "added"
	CatalogItemRemoved CatalogEventType = "removed"
	CatalogItemUpdated CatalogEventType = "updated"
)

// CatalogEvent reports an item added to, removed from or updated in the library.
type CatalogEvent struct {
	Type CatalogEventType
	Item Item
}

// PlaybackEvent reports a saved user-data state for an item.
type PlaybackEvent struct {
	Item   Item
	UserID string
	State  UserData
}

// RefreshTrigger records what caused a list pass.
type RefreshTrigger string

const (
	TriggerCatalog  RefreshTrigger = "catalog"
	TriggerPlayback RefreshTrigger = "playback"
	TriggerManual   RefreshTrigger = "manual"
	TriggerSchedule RefreshTrigger = "schedule"
)

// RefreshRun is the persisted outcome of one recomputation pass.
type RefreshRun struct {
	ID         int64          `json:"id"`
	ListID     string         `json:"listId"`
	Trigger    RefreshTrigger `json:"trigger"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	ItemCount  int            `json:"itemCount"`
}
