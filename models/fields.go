package models

import "strings"

// Rule field names as they appear in list definitions.
const (
	FieldName           = "Name"
	FieldSeriesName     = "SeriesName"
	FieldOfficialRating = "OfficialRating"
	FieldOverview       = "Overview"
	FieldAlbum          = "Album"
	FieldFolderPath     = "FolderPath"
	FieldFileName       = "FileName"
	FieldContainer      = "Container"
	FieldItemType       = "ItemType"
	FieldResolution     = "Resolution"
	FieldVideoCodec     = "VideoCodec"
	FieldAudioCodec     = "AudioCodec"

	FieldProductionYear  = "ProductionYear"
	FieldCommunityRating = "CommunityRating"
	FieldCriticRating    = "CriticRating"
	FieldRuntimeMinutes  = "RuntimeMinutes"
	FieldSeasonNumber    = "SeasonNumber"
	FieldEpisodeNumber   = "EpisodeNumber"
	FieldAudioChannels   = "AudioChannels"

	FieldHasSubtitles = "HasSubtitles"

	FieldDateCreated  = "DateCreated"
	FieldPremiereDate = "PremiereDate"
	FieldDateModified = "DateModified"

	FieldGenres         = "Genres"
	FieldTags           = "Tags"
	FieldStudios        = "Studios"
	FieldPeople         = "People"
	FieldActors         = "Actors"
	FieldDirectors      = "Directors"
	FieldArtists        = "Artists"
	FieldAlbumArtists   = "AlbumArtists"
	FieldCollections    = "Collections"
	FieldAudioLanguages = "AudioLanguages"

	FieldIsPlayed       = "IsPlayed"
	FieldIsFavorite     = "IsFavorite"
	FieldPlayCount      = "PlayCount"
	FieldNextUnwatched  = "NextUnwatched"
	FieldLastPlayedDate = "LastPlayedDate"

	FieldSimilarTo = "SimilarTo"
)

var userFields = map[string]struct{}{
	strings.ToLower(FieldIsPlayed):       {},
	strings.ToLower(FieldIsFavorite):     {},
	strings.ToLower(FieldPlayCount):      {},
	strings.ToLower(FieldNextUnwatched):  {},
	strings.ToLower(FieldLastPlayedDate): {},
}

// IsUserField reports whether the field is evaluated against a user's
// playback state.
func IsUserField(name string) bool {
	_, ok := userFields[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
