package models

import "time"

// User is a host account that owns lists or is referenced by rules.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserData is the playback state of one item for one user.
type UserData struct {
	Played                bool       `json:"played"`
	PlayCount             int        `json:"playCount"`
	IsFavorite            bool       `json:"isFavorite"`
	LastPlayedDate        *time.Time `json:"lastPlayedDate,omitempty"`
	PlaybackPositionTicks int64      `json:"playbackPositionTicks,omitempty"`
}

// IsDefault reports whether the state carries no play history.
func (u UserData) IsDefault() bool {
	return !u.Played && !u.IsFavorite && u.PlayCount == 0
}

// HasLastPlayed reports whether a valid last-played timestamp is set.
func (u UserData) HasLastPlayed() bool {
	return u.LastPlayedDate != nil && !u.LastPlayedDate.IsZero()
}
