package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrUserNotFound = errors.New("user not found")
	ErrListNotFound = errors.New("smart list not found")
)

// MediaKind identifies the host item type.
type MediaKind string

const (
	KindMovie      MediaKind = "Movie"
	KindSeries     MediaKind = "Series"
	KindSeason     MediaKind = "Season"
	KindEpisode    MediaKind = "Episode"
	KindAudio      MediaKind = "Audio"
	KindMusicVideo MediaKind = "MusicVideo"
	KindVideo      MediaKind = "Video"
	KindBoxSet     MediaKind = "BoxSet"
	KindPlaylist   MediaKind = "Playlist"
)

// FilterableKinds are the kinds a smart list can target.
var FilterableKinds = []MediaKind{
	KindMovie,
	KindSeries,
	KindEpisode,
	KindAudio,
	KindMusicVideo,
	KindVideo,
}

// ParseMediaKind resolves a kind name case-insensitively.
func ParseMediaKind(s string) (MediaKind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range []MediaKind{KindMovie, KindSeries, KindSeason, KindEpisode, KindAudio, KindMusicVideo, KindVideo, KindBoxSet, KindPlaylist} {
		if strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return "", false
}

// IsFilterable reports whether lists may target this kind.
func (k MediaKind) IsFilterable() bool {
	for _, f := range FilterableKinds {
		if f == k {
			return true
		}
	}
	return false
}

// Person is a cast or crew credit.
type Person struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
	Type string `json:"type,omitempty"` // Actor, Director, Writer...
}

// MediaStream describes one audio, video or subtitle stream of an item.
type MediaStream struct {
	Type     string `json:"type"` // Audio, Video, Subtitle
	Codec    string `json:"codec,omitempty"`
	Language string `json:"language,omitempty"`
	Channels int    `json:"channels,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Item is the raw host record for a library entry.
type Item struct {
	ID              string        `json:"id"`
	Kind            MediaKind     `json:"kind"`
	Name            string        `json:"name"`
	SortName        string        `json:"sortName,omitempty"`
	Overview        string        `json:"overview,omitempty"`
	ProductionYear  int           `json:"productionYear,omitempty"`
	CommunityRating float64       `json:"communityRating,omitempty"`
	CriticRating    float64       `json:"criticRating,omitempty"`
	OfficialRating  string        `json:"officialRating,omitempty"`
	RunTimeTicks    int64         `json:"runTimeTicks,omitempty"`
	Path            string        `json:"path,omitempty"`
	Container       string        `json:"container,omitempty"`
	DateCreated     time.Time     `json:"dateCreated,omitempty"`
	PremiereDate    time.Time     `json:"premiereDate,omitempty"`
	DateModified    time.Time     `json:"dateModified,omitempty"`
	Genres          []string      `json:"genres,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	Studios         []string      `json:"studios,omitempty"`
	Artists         []string      `json:"artists,omitempty"`
	AlbumArtists    []string      `json:"albumArtists,omitempty"`
	Album           string        `json:"album,omitempty"`
	ParentID        string        `json:"parentId,omitempty"`
	SeriesID        string        `json:"seriesId,omitempty"`
	SeriesName      string        `json:"seriesName,omitempty"`
	SeasonNumber    *int          `json:"seasonNumber,omitempty"`
	EpisodeNumber   *int          `json:"episodeNumber,omitempty"`
	People          []Person      `json:"people,omitempty"`
	MediaStreams    []MediaStream `json:"mediaStreams,omitempty"`
}

// RuntimeMinutes converts host ticks (100ns) to whole minutes.
func (i Item) RuntimeMinutes() float64 {
	if i.RunTimeTicks <= 0 {
		return 0
	}
	return float64(i.RunTimeTicks) / float64(10_000_000*60)
}

// ItemQuery filters host library queries.
type ItemQuery struct {
	Kinds     []MediaKind
	ParentID  string
	Recursive bool
	UserID    string
}
