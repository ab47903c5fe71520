package snapshot

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"smartlists/models"
)

var ErrUnsupportedKind = errors.New("item kind cannot be filtered")

// kindAccessor reads the cheap, always-present attributes of one media kind
// and describes which expensive extractions apply to it.
type kindAccessor interface {
	fill(o *models.Operand)
	seriesID() string
	hasCredits() bool
}

type movieAccessor struct{ item models.Item }
type seriesAccessor struct{ item models.Item }
type episodeAccessor struct{ item models.Item }
type audioAccessor struct{ item models.Item }
type videoAccessor struct{ item models.Item }

func accessorFor(item models.Item) (kindAccessor, error) {
	switch item.Kind {
	case models.KindMovie:
		return movieAccessor{item}, nil
	case models.KindSeries:
		return seriesAccessor{item}, nil
	case models.KindEpisode:
		return episodeAccessor{item}, nil
	case models.KindAudio:
		return audioAccessor{item}, nil
	case models.KindVideo, models.KindMusicVideo:
		return videoAccessor{item}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, item.Kind)
}

func (a movieAccessor) fill(o *models.Operand) {
	fillCommon(o, a.item)
	fillStreams(o, a.item.MediaStreams)
	fillFile(o, a.item)
}
func (movieAccessor) seriesID() string { return "" }
func (movieAccessor) hasCredits() bool { return true }

func (a seriesAccessor) fill(o *models.Operand) {
	fillCommon(o, a.item)
	o.SeriesID = a.item.ID
	o.SeriesName = a.item.Name
}
func (seriesAccessor) seriesID() string { return "" }
func (seriesAccessor) hasCredits() bool { return true }

func (a episodeAccessor) fill(o *models.Operand) {
	fillCommon(o, a.item)
	fillStreams(o, a.item.MediaStreams)
	fillFile(o, a.item)
	o.SeriesID = a.item.SeriesID
	if a.item.SeasonNumber != nil {
		o.SeasonNumber = float64(*a.item.SeasonNumber)
	}
	if a.item.EpisodeNumber != nil {
		o.EpisodeNumber = float64(*a.item.EpisodeNumber)
	}
}
func (a episodeAccessor) seriesID() string { return a.item.SeriesID }
func (episodeAccessor) hasCredits() bool   { return true }

func (a audioAccessor) fill(o *models.Operand) {
	fillCommon(o, a.item)
	fillStreams(o, a.item.MediaStreams)
	fillFile(o, a.item)
	o.Album = a.item.Album
	o.Artists = append([]string(nil), a.item.Artists...)
	o.AlbumArtists = append([]string(nil), a.item.AlbumArtists...)
}
func (audioAccessor) seriesID() string { return "" }
func (audioAccessor) hasCredits() bool { return false }

func (a videoAccessor) fill(o *models.Operand) {
	fillCommon(o, a.item)
	fillStreams(o, a.item.MediaStreams)
	fillFile(o, a.item)
	if a.item.Kind == models.KindMusicVideo {
		o.Album = a.item.Album
		o.Artists = append([]string(nil), a.item.Artists...)
	}
}
func (videoAccessor) seriesID() string { return "" }
func (videoAccessor) hasCredits() bool { return true }

func fillCommon(o *models.Operand, item models.Item) {
	o.Name = item.Name
	o.Overview = item.Overview
	o.OfficialRating = item.OfficialRating
	o.ProductionYear = float64(item.ProductionYear)
	o.CommunityRating = item.CommunityRating
	o.CriticRating = item.CriticRating
	o.RuntimeMinutes = item.RuntimeMinutes()
	o.DateCreated = epoch(item.DateCreated)
	o.PremiereDate = epoch(item.PremiereDate)
	o.DateModified = epoch(item.DateModified)
	o.Genres = append([]string(nil), item.Genres...)
	o.Tags = append([]string(nil), item.Tags...)
	o.Studios = append([]string(nil), item.Studios...)
}

func fillFile(o *models.Operand, item models.Item) {
	o.Container = item.Container
	if item.Path == "" {
		return
	}
	p := strings.ReplaceAll(item.Path, "\\", "/")
	o.FolderPath = path.Dir(p)
	o.FileName = path.Base(p)
}

// fillStreams reads codec and resolution data from the first video and
// audio stream.
func fillStreams(o *models.Operand, streams []models.MediaStream) {
	var videoSeen, audioSeen bool
	for _, s := range streams {
		switch strings.ToLower(s.Type) {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			o.VideoCodec = s.Codec
			o.Resolution = resolutionLabel(s.Width, s.Height)
		case "audio":
			if audioSeen {
				continue
			}
			audioSeen = true
			o.AudioCodec = s.Codec
			o.AudioChannels = float64(s.Channels)
		case "subtitle":
			o.HasSubtitles = true
		}
	}
}

func resolutionLabel(width, height int) string {
	switch {
	case height >= 2000 || width >= 3800:
		return "2160p"
	case height >= 1400 || width >= 2500:
		return "1440p"
	case height >= 1000 || width >= 1900:
		return "1080p"
	case height >= 700 || width >= 1260:
		return "720p"
	case height >= 470:
		return "480p"
	case height > 0:
		return "SD"
	}
	return ""
}
