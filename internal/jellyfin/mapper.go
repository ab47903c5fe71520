package jellyfin

import (
	"strings"
	"time"

	"smartlists/models"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func names(in []nameID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

func toItem(dto itemDTO) models.Item {
	kind, ok := models.ParseMediaKind(dto.Type)
	if !ok {
		kind = models.MediaKind(dto.Type)
	}
	item := models.Item{
		ID:              dto.ID,
		Kind:            kind,
		Name:            dto.Name,
		SortName:        dto.SortName,
		Overview:        dto.Overview,
		ProductionYear:  dto.ProductionYear,
		CommunityRating: dto.CommunityRating,
		CriticRating:    dto.CriticRating,
		OfficialRating:  dto.OfficialRating,
		RunTimeTicks:    dto.RunTimeTicks,
		Path:            dto.Path,
		Container:       dto.Container,
		DateCreated:     parseTime(dto.DateCreated),
		PremiereDate:    parseTime(dto.PremiereDate),
		DateModified:    parseTime(dto.DateLastSaved),
		Genres:          dto.Genres,
		Tags:            dto.Tags,
		Studios:         names(dto.Studios),
		Artists:         dto.Artists,
		AlbumArtists:    names(dto.AlbumArtists),
		Album:           dto.Album,
		ParentID:        dto.ParentID,
		SeriesID:        dto.SeriesID,
		SeriesName:      dto.SeriesName,
		SeasonNumber:    dto.ParentIndexNumber,
		EpisodeNumber:   dto.IndexNumber,
	}
	for _, p := range dto.People {
		item.People = append(item.People, models.Person{Name: p.Name, Role: p.Role, Type: p.Type})
	}
	for _, s := range dto.MediaStreams {
		item.MediaStreams = append(item.MediaStreams, models.MediaStream{
			Type:     s.Type,
			Codec:    s.Codec,
			Language: s.Language,
			Channels: s.Channels,
			Width:    s.Width,
			Height:   s.Height,
		})
	}
	return item
}

func toUserData(dto *userDataDTO) models.UserData {
	if dto == nil {
		return models.UserData{}
	}
	data := models.UserData{
		Played:                dto.Played,
		PlayCount:             dto.PlayCount,
		IsFavorite:            dto.IsFavorite,
		PlaybackPositionTicks: dto.PlaybackPositionTicks,
	}
	if t := parseTime(dto.LastPlayedDate); !t.IsZero() {
		data.LastPlayedDate = &t
	}
	return data
}
