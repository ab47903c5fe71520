package models

// NeverPlayed is the LastPlayedByUser value for a user without play history.
const NeverPlayed int64 = -1

// Operand is the per-refresh metadata snapshot of one item that rule
// predicates evaluate against. It is never mutated after the builder
// returns it.
type Operand struct {
	ItemID   string
	Kind     MediaKind
	SeriesID string

	Name           string
	SeriesName     string
	OfficialRating string
	Overview       string
	Album          string
	FolderPath     string
	FileName       string
	Container      string
	Resolution     string
	VideoCodec     string
	AudioCodec     string

	ProductionYear  float64
	CommunityRating float64
	CriticRating    float64
	RuntimeMinutes  float64
	SeasonNumber    float64
	EpisodeNumber   float64
	AudioChannels   float64

	HasSubtitles bool

	// Epoch UTC seconds; 0 when the source date is missing or invalid.
	DateCreated  int64
	PremiereDate int64
	DateModified int64

	Genres           []string
	Tags             []string
	ParentSeriesTags []string
	Studios          []string
	People           []string
	Actors           []string
	Directors        []string
	Artists          []string
	AlbumArtists     []string
	Collections      []string
	// Collections reached through the parent series of an episode.
	ParentCollections []string
	AudioLanguages    []string

	ReferenceUserID string

	PlayedByUser        map[string]bool
	PlayCountByUser     map[string]int
	FavoriteByUser      map[string]bool
	LastPlayedByUser    map[string]int64
	NextUnwatchedByUser map[string]bool
	// Same as NextUnwatchedByUser but counting series nobody has started.
	NextUnwatchedInclusiveByUser map[string]bool
}

// NewOperand returns an operand with initialized per-user maps.
func NewOperand(itemID string, kind MediaKind, referenceUserID string) *Operand {
	return &Operand{
		ItemID:                       itemID,
		Kind:                         kind,
		ReferenceUserID:              referenceUserID,
		PlayedByUser:                 make(map[string]bool),
		PlayCountByUser:              make(map[string]int),
		FavoriteByUser:               make(map[string]bool),
		LastPlayedByUser:             make(map[string]int64),
		NextUnwatchedByUser:          make(map[string]bool),
		NextUnwatchedInclusiveByUser: make(map[string]bool),
	}
}

func (o *Operand) IsPlayed(userID string) bool {
	return o.PlayedByUser[userID]
}

func (o *Operand) PlayCount(userID string) int {
	return o.PlayCountByUser[userID]
}

func (o *Operand) IsFavorite(userID string) bool {
	return o.FavoriteByUser[userID]
}

// LastPlayed returns the last-played epoch for the user or NeverPlayed.
func (o *Operand) LastPlayed(userID string) int64 {
	if ts, ok := o.LastPlayedByUser[userID]; ok && ts > 0 {
		return ts
	}
	return NeverPlayed
}

// IsNextUnwatched reports whether this item is the user's next unwatched
// episode of its series.
func (o *Operand) IsNextUnwatched(userID string, includeUnwatchedSeries bool) bool {
	if includeUnwatchedSeries {
		return o.NextUnwatchedInclusiveByUser[userID]
	}
	return o.NextUnwatchedByUser[userID]
}

// ExtractOptions gates the expensive parts of snapshot construction.
type ExtractOptions struct {
	AudioLanguages          bool
	People                  bool
	SeriesName              bool
	ParentSeriesTags        bool
	Collections             bool
	CollectionChildEpisodes bool
	NextUnwatched           bool
	NextUnwatchedInclusive  bool
	// Users other than the reference user whose play state rules read.
	AdditionalUserIDs []string
}

// Merge returns the union of both option sets.
func (o ExtractOptions) Merge(other ExtractOptions) ExtractOptions {
	out := ExtractOptions{
		AudioLanguages:          o.AudioLanguages || other.AudioLanguages,
		People:                  o.People || other.People,
		SeriesName:              o.SeriesName || other.SeriesName,
		ParentSeriesTags:        o.ParentSeriesTags || other.ParentSeriesTags,
		Collections:             o.Collections || other.Collections,
		CollectionChildEpisodes: o.CollectionChildEpisodes || other.CollectionChildEpisodes,
		NextUnwatched:           o.NextUnwatched || other.NextUnwatched,
		NextUnwatchedInclusive:  o.NextUnwatchedInclusive || other.NextUnwatchedInclusive,
	}
	seen := make(map[string]struct{})
	for _, ids := range [][]string{o.AdditionalUserIDs, other.AdditionalUserIDs} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out.AdditionalUserIDs = append(out.AdditionalUserIDs, id)
		}
	}
	return out
}
