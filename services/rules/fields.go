package rules

import (
	"sort"
	"strings"

	"smartlists/models"
)

// FieldType is the declared type of a rule field. Operator dispatch is
// decided from it, never from the runtime value.
type FieldType int

const (
	TypeString FieldType = iota
	TypeBool
	TypeNumber
	TypeDate
	TypeList
	TypeUserBool
	TypeUserNumber
	TypeUserDate
	TypeSimilarity
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeDate:
		return "date"
	case TypeList:
		return "list"
	case TypeUserBool:
		return "user bool"
	case TypeUserNumber:
		return "user number"
	case TypeUserDate:
		return "user date"
	case TypeSimilarity:
		return "similarity"
	default:
		return "unknown"
	}
}

// IsUserScoped reports whether values are read from per-user maps.
func (t FieldType) IsUserScoped() bool {
	return t == TypeUserBool || t == TypeUserNumber || t == TypeUserDate
}

// Field describes one filterable attribute of an operand.
type Field struct {
	Name string
	Type FieldType

	str      func(*models.Operand) string
	boolean  func(*models.Operand) bool
	num      func(*models.Operand) float64
	date     func(*models.Operand) int64
	list     func(*models.Operand, models.ExpressionFlags) []string
	userBool func(*models.Operand, string, models.ExpressionFlags) bool
	userNum  func(*models.Operand, string) float64
	userDate func(*models.Operand, string) int64
}

var fields = map[string]*Field{}

func register(f *Field) {
	fields[strings.ToLower(f.Name)] = f
}

func init() {
	for _, f := range []*Field{
		{Name: models.FieldName, Type: TypeString, str: func(o *models.Operand) string { return o.Name }},
		{Name: models.FieldSeriesName, Type: TypeString, str: func(o *models.Operand) string { return o.SeriesName }},
		{Name: models.FieldOfficialRating, Type: TypeString, str: func(o *models.Operand) string { return o.OfficialRating }},
		{Name: models.FieldOverview, Type: TypeString, str: func(o *models.Operand) string { return o.Overview }},
		{Name: models.FieldAlbum, Type: TypeString, str: func(o *models.Operand) string { return o.Album }},
		{Name: models.FieldFolderPath, Type: TypeString, str: func(o *models.Operand) string { return o.FolderPath }},
		{Name: models.FieldFileName, Type: TypeString, str: func(o *models.Operand) string { return o.FileName }},
		{Name: models.FieldContainer, Type: TypeString, str: func(o *models.Operand) string { return o.Container }},
		{Name: models.FieldItemType, Type: TypeString, str: func(o *models.Operand) string { return string(o.Kind) }},
		{Name: models.FieldResolution, Type: TypeString, str: func(o *models.Operand) string { return o.Resolution }},
		{Name: models.FieldVideoCodec, Type: TypeString, str: func(o *models.Operand) string { return o.VideoCodec }},
		{Name: models.FieldAudioCodec, Type: TypeString, str: func(o *models.Operand) string { return o.AudioCodec }},

		{Name: models.FieldProductionYear, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.ProductionYear }},
		{Name: models.FieldCommunityRating, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.CommunityRating }},
		{Name: models.FieldCriticRating, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.CriticRating }},
		{Name: models.FieldRuntimeMinutes, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.RuntimeMinutes }},
		{Name: models.FieldSeasonNumber, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.SeasonNumber }},
		{Name: models.FieldEpisodeNumber, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.EpisodeNumber }},
		{Name: models.FieldAudioChannels, Type: TypeNumber, num: func(o *models.Operand) float64 { return o.AudioChannels }},

		{Name: models.FieldHasSubtitles, Type: TypeBool, boolean: func(o *models.Operand) bool { return o.HasSubtitles }},

		{Name: models.FieldDateCreated, Type: TypeDate, date: func(o *models.Operand) int64 { return o.DateCreated }},
		{Name: models.FieldPremiereDate, Type: TypeDate, date: func(o *models.Operand) int64 { return o.PremiereDate }},
		{Name: models.FieldDateModified, Type: TypeDate, date: func(o *models.Operand) int64 { return o.DateModified }},

		{Name: models.FieldGenres, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.Genres }},
		{Name: models.FieldTags, Type: TypeList, list: func(o *models.Operand, flags models.ExpressionFlags) []string {
			if flags.IncludeParentSeriesTags && len(o.ParentSeriesTags) > 0 {
				return append(append([]string(nil), o.Tags...), o.ParentSeriesTags...)
			}
			return o.Tags
		}},
		{Name: models.FieldStudios, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.Studios }},
		{Name: models.FieldPeople, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.People }},
		{Name: models.FieldActors, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.Actors }},
		{Name: models.FieldDirectors, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.Directors }},
		{Name: models.FieldArtists, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.Artists }},
		{Name: models.FieldAlbumArtists, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.AlbumArtists }},
		{Name: models.FieldCollections, Type: TypeList, list: func(o *models.Operand, flags models.ExpressionFlags) []string {
			if flags.IncludeChildEpisodes && len(o.ParentCollections) > 0 {
				return append(append([]string(nil), o.Collections...), o.ParentCollections...)
			}
			return o.Collections
		}},
		{Name: models.FieldAudioLanguages, Type: TypeList, list: func(o *models.Operand, _ models.ExpressionFlags) []string { return o.AudioLanguages }},

		{Name: models.FieldIsPlayed, Type: TypeUserBool, userBool: func(o *models.Operand, user string, _ models.ExpressionFlags) bool { return o.IsPlayed(user) }},
		{Name: models.FieldIsFavorite, Type: TypeUserBool, userBool: func(o *models.Operand, user string, _ models.ExpressionFlags) bool { return o.IsFavorite(user) }},
		{Name: models.FieldNextUnwatched, Type: TypeUserBool, userBool: func(o *models.Operand, user string, flags models.ExpressionFlags) bool {
			return o.IsNextUnwatched(user, flags.IncludeUnwatchedSeries)
		}},
		{Name: models.FieldPlayCount, Type: TypeUserNumber, userNum: func(o *models.Operand, user string) float64 { return float64(o.PlayCount(user)) }},
		{Name: models.FieldLastPlayedDate, Type: TypeUserDate, userDate: func(o *models.Operand, user string) int64 { return o.LastPlayed(user) }},

		{Name: models.FieldSimilarTo, Type: TypeSimilarity},
	} {
		register(f)
	}
}

// Lookup resolves a field by name, case-insensitively.
func Lookup(name string) (*Field, bool) {
	f, ok := fields[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Fields returns every known field sorted by name.
func Fields() []*Field {
	out := make([]*Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WatchedFields returns the fields whose change can alter the outcome of
// expr. Derived fields also depend on the inputs they are computed from.
func WatchedFields(expr models.Expression) []string {
	f, ok := Lookup(expr.MemberName)
	if !ok {
		return nil
	}
	switch f.Name {
	case models.FieldNextUnwatched:
		return []string{models.FieldNextUnwatched, models.FieldIsPlayed}
	case models.FieldSimilarTo:
		return []string{models.FieldSimilarTo, models.FieldGenres, models.FieldTags, models.FieldName}
	case models.FieldActors, models.FieldDirectors:
		return []string{f.Name, models.FieldPeople}
	}
	return []string{f.Name}
}
