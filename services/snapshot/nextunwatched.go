package snapshot

import (
	"context"
	"sort"

	"smartlists/models"
)

// isNextUnwatched reports whether the episode is the user's next unwatched
// episode of its series.
func (b *Builder) isNextUnwatched(ctx context.Context, item models.Item, userID string, includeUnwatchedSeries bool, cache *Cache) bool {
	if item.SeasonNumber == nil || item.EpisodeNumber == nil {
		return false
	}
	next := b.nextUnwatched(ctx, item.SeriesID, userID, includeUnwatchedSeries, cache)
	return next.found &&
		next.itemID == item.ID &&
		next.season == *item.SeasonNumber &&
		next.episode == *item.EpisodeNumber
}

// nextUnwatched returns the first unplayed episode of a series in
// season/episode order, cached per series, user and flag.
func (b *Builder) nextUnwatched(ctx context.Context, seriesID, userID string, includeUnwatchedSeries bool, cache *Cache) nextEpisode {
	key := nextUnwatchedKey{seriesID: seriesID, userID: userID, includeUnwatched: includeUnwatchedSeries}
	next, _ := loadOrCompute(cache, cache.nextUnwatched, "next", key, func() (nextEpisode, error) {
		return b.findNextUnwatched(ctx, seriesID, userID, includeUnwatchedSeries, cache), nil
	})
	return next
}

func (b *Builder) findNextUnwatched(ctx context.Context, seriesID, userID string, includeUnwatchedSeries bool, cache *Cache) nextEpisode {
	type orderedEpisode struct {
		season  int
		episode int
		item    models.Item
	}

	var ordered []orderedEpisode
	for _, ep := range b.seriesEpisodes(ctx, seriesID, userID, cache) {
		// Specials and unnumbered episodes have no place in the watch order.
		if ep.SeasonNumber == nil || ep.EpisodeNumber == nil || *ep.SeasonNumber == 0 {
			continue
		}
		ordered = append(ordered, orderedEpisode{season: *ep.SeasonNumber, episode: *ep.EpisodeNumber, item: ep})
	}
	if len(ordered) == 0 {
		return nextEpisode{}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].season != ordered[j].season {
			return ordered[i].season < ordered[j].season
		}
		return ordered[i].episode < ordered[j].episode
	})

	var candidate *orderedEpisode
	anyPlayed := false
	for i := range ordered {
		// Played state is read fresh, not from operands built earlier in the pass.
		if b.episodePlayed(ctx, userID, ordered[i].item) {
			anyPlayed = true
			continue
		}
		if candidate == nil {
			candidate = &ordered[i]
		}
	}

	if candidate == nil {
		return nextEpisode{}
	}
	if !anyPlayed && !includeUnwatchedSeries {
		return nextEpisode{}
	}
	return nextEpisode{
		found:   true,
		itemID:  candidate.item.ID,
		season:  candidate.season,
		episode: candidate.episode,
	}
}

func (b *Builder) episodePlayed(ctx context.Context, userID string, ep models.Item) bool {
	data, err := b.userData.GetUserData(ctx, userID, ep)
	if err != nil {
		b.extractionFailed("next unwatched", ep.ID, err, "user_id", userID)
		return false
	}
	return b.userData.IsPlayed(ctx, userID, ep, data)
}

func (b *Builder) seriesEpisodes(ctx context.Context, seriesID, userID string, cache *Cache) []models.Item {
	key := seriesUserKey{seriesID: seriesID, userID: userID}
	eps, _ := loadOrCompute(cache, cache.episodes, "episodes", key, func() ([]models.Item, error) {
		eps, err := b.library.QueryItems(ctx, models.ItemQuery{
			Kinds:     []models.MediaKind{models.KindEpisode},
			ParentID:  seriesID,
			Recursive: true,
			UserID:    userID,
		})
		if err != nil {
			b.extractionFailed("series episodes", seriesID, err, "user_id", userID)
			return nil, nil
		}
		return eps, nil
	})
	return eps
}
