package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"smartlists/models"
)

// Library is the host catalog.
type Library interface {
	QueryItems(ctx context.Context, q models.ItemQuery) ([]models.Item, error)
	GetItemByID(ctx context.Context, id string) (models.Item, error)
}

// UserDataStore exposes per-user playback state.
type UserDataStore interface {
	GetUserData(ctx context.Context, userID string, item models.Item) (models.UserData, error)
	IsPlayed(ctx context.Context, userID string, item models.Item, data models.UserData) bool
}

// UserDirectory resolves user ids. Unknown ids return models.ErrUserNotFound.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// UserResolutionError is returned when a user a rule depends on cannot be
// resolved. Evaluation of the list must stop rather than fall back to some
// other user's state.
type UserResolutionError struct {
	UserID string
	Err    error
}

func (e *UserResolutionError) Error() string {
	if errors.Is(e.Err, models.ErrUserNotFound) {
		return fmt.Sprintf("user %q referenced by the list no longer exists", e.UserID)
	}
	return fmt.Sprintf("resolve user %q: %v", e.UserID, e.Err)
}

func (e *UserResolutionError) Unwrap() error {
	return e.Err
}

// Builder turns raw host items into operands.
type Builder struct {
	library  Library
	userData UserDataStore
	users    UserDirectory
	log      *slog.Logger

	userRetryDelay time.Duration
}

// NewBuilder wires a builder to the host interfaces. A nil logger uses the
// default logger.
func NewBuilder(library Library, userData UserDataStore, users UserDirectory, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		library:        library,
		userData:       userData,
		users:          users,
		log:            logger.With("component", "snapshot"),
		userRetryDelay: 200 * time.Millisecond,
	}
}

// Build constructs the operand for one item as seen by refUser. Cheap
// attributes are always read; everything opts leaves off is skipped.
// Optional extractions that fail are logged and defaulted. Only user
// resolution failures are returned.
func (b *Builder) Build(ctx context.Context, item models.Item, refUser models.User, opts models.ExtractOptions, cache *Cache) (*models.Operand, error) {
	if cache == nil {
		cache = NewCache()
	}

	acc, err := accessorFor(item)
	if err != nil {
		return nil, err
	}

	users := []models.User{refUser}
	for _, id := range opts.AdditionalUserIDs {
		if id == refUser.ID {
			continue
		}
		u, err := b.ResolveUser(ctx, id, cache)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	o := models.NewOperand(item.ID, item.Kind, refUser.ID)
	acc.fill(o)

	if opts.AudioLanguages {
		o.AudioLanguages = b.audioLanguages(ctx, item, cache)
	}
	if opts.People && acc.hasCredits() {
		b.fillPeople(ctx, o, item, cache)
	}
	if seriesID := acc.seriesID(); seriesID != "" && (opts.SeriesName || opts.ParentSeriesTags) {
		b.fillSeries(ctx, o, item, seriesID, opts, cache)
	}
	if opts.Collections {
		o.Collections = b.collectionsOf(ctx, item.ID, cache)
		if opts.CollectionChildEpisodes && item.Kind == models.KindEpisode && item.SeriesID != "" {
			o.ParentCollections = b.collectionsOf(ctx, item.SeriesID, cache)
		}
	}

	for _, u := range users {
		b.fillUserState(ctx, o, item, u.ID)
		if item.Kind != models.KindEpisode || item.SeriesID == "" {
			continue
		}
		if opts.NextUnwatched {
			o.NextUnwatchedByUser[u.ID] = b.isNextUnwatched(ctx, item, u.ID, false, cache)
		}
		if opts.NextUnwatchedInclusive {
			o.NextUnwatchedInclusiveByUser[u.ID] = b.isNextUnwatched(ctx, item, u.ID, true, cache)
		}
	}

	return o, nil
}

func (b *Builder) fillUserState(ctx context.Context, o *models.Operand, item models.Item, userID string) {
	o.PlayedByUser[userID] = false
	o.PlayCountByUser[userID] = 0
	o.FavoriteByUser[userID] = false
	o.LastPlayedByUser[userID] = models.NeverPlayed

	data, err := b.userData.GetUserData(ctx, userID, item)
	if err != nil {
		b.extractionFailed("user data", item.ID, err, "user_id", userID)
		return
	}
	o.PlayedByUser[userID] = b.userData.IsPlayed(ctx, userID, item, data)
	o.PlayCountByUser[userID] = data.PlayCount
	o.FavoriteByUser[userID] = data.IsFavorite
	if data.HasLastPlayed() {
		if ts := epoch(*data.LastPlayedDate); ts > 0 {
			o.LastPlayedByUser[userID] = ts
		}
	}
}

func (b *Builder) fillPeople(ctx context.Context, o *models.Operand, item models.Item, cache *Cache) {
	people, ok := load(cache, cache.people, item.ID)
	if !ok {
		people = item.People
		if len(people) == 0 {
			detail, err := b.detail(ctx, item.ID, cache)
			if err != nil {
				b.extractionFailed("people", item.ID, err)
			} else {
				people = detail.People
			}
		}
		people = storeOnce(cache, cache.people, item.ID, people)
	}

	for _, p := range people {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		o.People = append(o.People, name)
		switch strings.ToLower(p.Type) {
		case "actor", "gueststar":
			o.Actors = append(o.Actors, name)
		case "director":
			o.Directors = append(o.Directors, name)
		}
	}
}

func (b *Builder) fillSeries(ctx context.Context, o *models.Operand, item models.Item, seriesID string, opts models.ExtractOptions, cache *Cache) {
	series, err := b.series(ctx, seriesID, cache)
	if err != nil {
		b.extractionFailed("series", item.ID, err, "series_id", seriesID)
		if opts.SeriesName {
			o.SeriesName = item.SeriesName
		}
		return
	}
	if opts.SeriesName {
		o.SeriesName = series.Name
		if o.SeriesName == "" {
			o.SeriesName = item.SeriesName
		}
	}
	if opts.ParentSeriesTags {
		o.ParentSeriesTags = append([]string(nil), series.Tags...)
	}
}

func (b *Builder) series(ctx context.Context, seriesID string, cache *Cache) (models.Item, error) {
	return loadOrCompute(cache, cache.series, "series", seriesID, func() (models.Item, error) {
		return b.library.GetItemByID(ctx, seriesID)
	})
}

// detail fetches the full host record of an item for fields list queries
// leave out.
func (b *Builder) detail(ctx context.Context, itemID string, cache *Cache) (models.Item, error) {
	return loadOrCompute(cache, cache.details, "detail", itemID, func() (models.Item, error) {
		return b.library.GetItemByID(ctx, itemID)
	})
}

func (b *Builder) audioLanguages(ctx context.Context, item models.Item, cache *Cache) []string {
	streams := item.MediaStreams
	if len(streams) == 0 {
		detail, err := b.detail(ctx, item.ID, cache)
		if err != nil {
			b.extractionFailed("audio languages", item.ID, err)
			return nil
		}
		streams = detail.MediaStreams
	}

	seen := make(map[string]struct{})
	var langs []string
	for _, s := range streams {
		if !strings.EqualFold(s.Type, "Audio") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(s.Language))
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (b *Builder) extractionFailed(field, itemID string, err error, args ...any) {
	attrs := append([]any{"field", field, "item_id", itemID, "error", err}, args...)
	b.log.Warn("snapshot extraction failed, using default", attrs...)
}

// epoch normalizes a host timestamp to UTC seconds. Zero and out-of-range
// dates become 0.
func epoch(t time.Time) int64 {
	if t.IsZero() || t.Year() <= 1 || t.Year() > 9999 {
		return 0
	}
	return t.UTC().Unix()
}
