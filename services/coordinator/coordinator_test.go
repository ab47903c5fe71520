package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"smartlists/internal/logging"
	"smartlists/models"
	"smartlists/services/coordinator/mocks"
	"smartlists/services/interest"
)

const batchDelay = 10 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeEvents struct {
	mu           sync.Mutex
	handlers     []EventHandler
	unsubscribed bool
}

func (f *fakeEvents) Subscribe(h EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}
}

type fakeLists struct {
	lists map[string]models.SmartList
}

func (f *fakeLists) Lists(context.Context) ([]models.SmartList, error) {
	out := make([]models.SmartList, 0, len(f.lists))
	for _, l := range f.lists {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLists) Get(_ context.Context, id string) (models.SmartList, error) {
	l, ok := f.lists[id]
	if !ok {
		return models.SmartList{}, fmt.Errorf("list %s: %w", id, models.ErrListNotFound)
	}
	return l, nil
}

type harness struct {
	c         *Coordinator
	refresher *mocks.MockListRefresher
	events    *fakeEvents
	clock     *fakeClock
	start     time.Time
}

func newHarness(t *testing.T, cfg Config, lists ...models.SmartList) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	source := &fakeLists{lists: make(map[string]models.SmartList)}
	for _, l := range lists {
		source.lists[l.ID] = l
	}

	h := &harness{
		refresher: mocks.NewMockListRefresher(ctrl),
		events:    &fakeEvents{},
		start:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.clock = &fakeClock{now: h.start}

	cfg.BatchDelay = batchDelay
	cfg.TickInterval = time.Hour
	cfg.Now = h.clock.Now

	c, err := New(Deps{
		Events:    h.events,
		Lists:     source,
		Index:     interest.New(source, logging.Discard()),
		Refresher: h.refresher,
		Logger:    logging.Discard(),
	}, cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Dispose)
	h.c = c
	return h
}

// settle waits for handed-off work to finish.
func (h *harness) settle() {
	h.c.tasks.Wait()
}

func smartList(id string, mode models.AutoRefreshMode, exprs ...models.Expression) models.SmartList {
	l := models.SmartList{
		ID:          id,
		Name:        id,
		OwnerUserID: "owner",
		Kinds:       []models.MediaKind{models.KindMovie, models.KindEpisode},
		Enabled:     true,
		AutoRefresh: mode,
	}
	if len(exprs) > 0 {
		l.ExpressionSets = []models.ExpressionSet{{Expressions: exprs}}
	}
	return l
}

func movie(id string) models.Item {
	return models.Item{ID: id, Kind: models.KindMovie, Name: id}
}

func TestSlidingWindowFiresOnceAfterBurst(t *testing.T) {
	h := newHarness(t, Config{}, smartList("l1", models.AutoRefreshOnAllChanges))

	h.c.OnItemAdded(movie("m1"))
	h.settle()
	require.Equal(t, []PendingRefresh{{ListID: "l1", FireAt: h.start.Add(batchDelay)}}, h.c.Pending())

	h.clock.Set(h.start.Add(batchDelay / 2))
	h.c.OnItemUpdated(movie("m2"))
	h.settle()
	require.Equal(t, []PendingRefresh{{ListID: "l1", FireAt: h.start.Add(batchDelay * 3 / 2)}}, h.c.Pending())

	// The original window has closed but the second event pushed it back.
	h.c.tick(h.start.Add(batchDelay))
	h.settle()

	h.refresher.EXPECT().
		RefreshList(gomock.Any(), gomock.Any(), models.TriggerCatalog).
		DoAndReturn(func(_ context.Context, l models.SmartList, _ models.RefreshTrigger) (bool, string) {
			assert.Equal(t, "l1", l.ID)
			return true, "2 items"
		}).
		Times(1)

	h.c.tick(h.start.Add(batchDelay * 3 / 2))
	h.settle()
	h.c.tick(h.start.Add(batchDelay * 5))
	h.settle()

	assert.Empty(t, h.c.Pending())
	assert.Equal(t, uint64(1), h.c.Stats().Dispatched)
}

func TestCatalogModeFilter(t *testing.T) {
	h := newHarness(t, Config{},
		smartList("library", models.AutoRefreshOnLibraryChanges),
		smartList("all", models.AutoRefreshOnAllChanges),
		smartList("never", models.AutoRefreshNever),
	)

	h.c.OnItemUpdated(movie("m1"))
	h.settle()
	assert.Equal(t, []string{"all"}, pendingIDs(h.c))

	h.c.OnItemRemoved(movie("m1"))
	h.settle()
	assert.Equal(t, []string{"all", "library"}, pendingIDs(h.c))
}

func TestCatalogLookupUsesItemKind(t *testing.T) {
	audio := smartList("music", models.AutoRefreshOnAllChanges)
	audio.Kinds = []models.MediaKind{models.KindAudio}
	h := newHarness(t, Config{}, audio, smartList("video", models.AutoRefreshOnAllChanges))

	h.c.OnItemAdded(models.Item{ID: "a1", Kind: models.KindAudio})
	h.settle()
	assert.Equal(t, []string{"music"}, pendingIDs(h.c))
}

func TestSeriesUpdateReachesEpisodeLists(t *testing.T) {
	eps := smartList("eps", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldSeriesName, Operator: "Contains", TargetValue: "x"})
	eps.Kinds = []models.MediaKind{models.KindEpisode}
	h := newHarness(t, Config{}, eps)

	h.c.OnItemAdded(models.Item{ID: "s1", Kind: models.KindSeries})
	h.settle()
	assert.Empty(t, h.c.Pending())

	h.c.OnItemUpdated(models.Item{ID: "s1", Kind: models.KindSeries})
	h.settle()
	assert.Equal(t, []string{"eps"}, pendingIDs(h.c))
}

func TestCatalogEventsSkipPlaybackOnlyLists(t *testing.T) {
	favorites := smartList("favorites", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldIsFavorite, Operator: "Equal", TargetValue: "true"})
	recent := smartList("recent", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldLastPlayedDate, Operator: "NewerThan", TargetValue: "7:days"},
		models.Expression{MemberName: models.FieldPlayCount, Operator: "GreaterThan", TargetValue: "1"})
	rated := smartList("rated", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldCommunityRating, Operator: "GreaterThan", TargetValue: "7"})
	h := newHarness(t, Config{}, favorites, recent, rated)

	h.c.OnItemUpdated(movie("m1"))
	h.c.OnItemAdded(movie("m2"))
	h.c.OnItemRemoved(movie("m3"))
	h.settle()
	assert.Equal(t, []string{"rated"}, pendingIDs(h.c))
}

func TestEpisodeAddMovesNextUnwatched(t *testing.T) {
	next := smartList("next", models.AutoRefreshOnLibraryChanges,
		models.Expression{MemberName: models.FieldNextUnwatched, Operator: "Equal", TargetValue: "true"})
	next.Kinds = []models.MediaKind{models.KindEpisode}
	h := newHarness(t, Config{}, next)

	h.c.OnItemAdded(models.Item{ID: "e9", Kind: models.KindEpisode, SeriesID: "s1"})
	h.settle()
	assert.Equal(t, []string{"next"}, pendingIDs(h.c))
}

func TestOwnMaterializedItemsNeverTrigger(t *testing.T) {
	collections := smartList("boxed", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldCollections, Operator: "Contains", TargetValue: "Alien"})
	collections.MaterializedID = "box-1"
	h := newHarness(t, Config{}, collections, smartList("wild", models.AutoRefreshOnAllChanges))

	h.c.OnItemUpdated(models.Item{ID: "box-1", Kind: models.KindBoxSet})
	h.c.OnItemAdded(models.Item{ID: "pl-9", Kind: models.KindPlaylist})
	h.c.OnPlaybackStateSaved(models.Item{ID: "box-1", Kind: models.KindBoxSet}, "owner", models.UserData{Played: true})
	h.settle()
	assert.Empty(t, h.c.Pending())

	// Wildcard lists are reconsidered for any change they might see.
	h.c.OnItemUpdated(models.Item{ID: "box-2", Kind: models.KindBoxSet})
	h.settle()
	assert.Equal(t, []string{"boxed", "wild"}, pendingIDs(h.c))
}

func TestPlaybackRelevanceAndUserFilter(t *testing.T) {
	played := models.Expression{MemberName: models.FieldIsPlayed, Operator: "Equal", TargetValue: "false"}

	owned := smartList("owned", models.AutoRefreshOnAllChanges, played)
	owned.OwnerUserID = "u1"
	foreign := smartList("foreign", models.AutoRefreshOnAllChanges, played)
	foreign.OwnerUserID = "u2"
	referenced := smartList("referenced", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldIsPlayed, Operator: "Equal", TargetValue: "true", UserID: "u1"})
	referenced.OwnerUserID = "u2"
	library := smartList("library-only", models.AutoRefreshOnLibraryChanges, played)
	library.OwnerUserID = "u1"

	h := newHarness(t, Config{}, owned, foreign, referenced, library)
	item := movie("m1")

	// First progress save and an identical repeat are not relevant.
	h.c.OnPlaybackStateSaved(item, "u1", models.UserData{PlaybackPositionTicks: 1000})
	h.settle()
	h.c.OnPlaybackStateSaved(item, "u1", models.UserData{PlaybackPositionTicks: 5000})
	h.settle()

	var (
		mu  sync.Mutex
		got []string
	)
	h.refresher.EXPECT().
		RefreshList(gomock.Any(), gomock.Any(), models.TriggerPlayback).
		DoAndReturn(func(_ context.Context, l models.SmartList, _ models.RefreshTrigger) (bool, string) {
			mu.Lock()
			got = append(got, l.ID)
			mu.Unlock()
			return true, ""
		}).
		Times(2)

	h.c.OnPlaybackStateSaved(item, "u1", models.UserData{Played: true, PlayCount: 1})
	h.settle()
	assert.ElementsMatch(t, []string{"owned", "referenced"}, got)

	// Same state again: nothing.
	h.c.OnPlaybackStateSaved(item, "u1", models.UserData{Played: true, PlayCount: 1, PlaybackPositionTicks: 9})
	h.settle()
	assert.Len(t, got, 2)
	assert.Empty(t, h.c.Pending())
}

func TestPlaybackDispatchCancelsPendingWindow(t *testing.T) {
	l := smartList("l1", models.AutoRefreshOnAllChanges,
		models.Expression{MemberName: models.FieldGenres, Operator: "Contains", TargetValue: "Drama"},
		models.Expression{MemberName: models.FieldIsFavorite, Operator: "Equal", TargetValue: "true"})
	h := newHarness(t, Config{}, l)

	h.c.OnItemAdded(movie("m1"))
	h.settle()
	require.Len(t, h.c.Pending(), 1)

	h.refresher.EXPECT().RefreshList(gomock.Any(), gomock.Any(), models.TriggerPlayback).Return(true, "").Times(1)
	h.c.OnPlaybackStateSaved(movie("m1"), "owner", models.UserData{IsFavorite: true})
	h.settle()
	assert.Empty(t, h.c.Pending())
}

func TestFailuresAreIsolated(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrent: 3},
		smartList("ok", models.AutoRefreshOnAllChanges),
		smartList("fails", models.AutoRefreshOnAllChanges),
		smartList("panics", models.AutoRefreshOnAllChanges),
	)

	h.refresher.EXPECT().
		RefreshList(gomock.Any(), gomock.Any(), models.TriggerManual).
		DoAndReturn(func(_ context.Context, l models.SmartList, _ models.RefreshTrigger) (bool, string) {
			switch l.ID {
			case "fails":
				return false, "host unreachable"
			case "panics":
				panic("boom")
			}
			return true, "3 items"
		}).
		Times(3)

	results, err := h.c.RefreshNow(context.Background(), []string{"ok", "fails", "panics", "gone"})
	require.NoError(t, err)

	assert.Equal(t, Result{Success: true, Message: "3 items"}, results["ok"])
	assert.Equal(t, Result{Message: "host unreachable"}, results["fails"])
	assert.False(t, results["panics"].Success)
	assert.Contains(t, results["panics"].Message, "boom")
	assert.False(t, results["gone"].Success)

	stats := h.c.Stats()
	assert.Equal(t, uint64(3), stats.Dispatched)
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Zero(t, stats.InFlight)
}

func TestManualRefreshReportsBusyList(t *testing.T) {
	h := newHarness(t, Config{}, smartList("l1", models.AutoRefreshOnAllChanges))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.refresher.EXPECT().
		RefreshList(gomock.Any(), gomock.Any(), models.TriggerManual).
		DoAndReturn(func(context.Context, models.SmartList, models.RefreshTrigger) (bool, string) {
			close(entered)
			<-release
			return true, "1 items"
		}).
		Times(1)

	done := make(chan map[string]Result, 1)
	go func() {
		results, _ := h.c.RefreshNow(context.Background(), []string{"l1"})
		done <- results
	}()
	<-entered

	results, err := h.c.RefreshNow(context.Background(), []string{"l1"})
	require.NoError(t, err)
	assert.True(t, results["l1"].Busy)
	assert.False(t, results["l1"].Success)

	close(release)
	first := <-done
	assert.True(t, first["l1"].Success)
}

func TestScheduledRefreshFoldsPendingAndDefersBusy(t *testing.T) {
	h := newHarness(t, Config{}, smartList("l1", models.AutoRefreshOnAllChanges))

	h.c.OnItemAdded(movie("m1"))
	h.settle()
	require.Len(t, h.c.Pending(), 1)

	h.refresher.EXPECT().RefreshList(gomock.Any(), gomock.Any(), models.TriggerSchedule).Return(true, "4 items").Times(1)
	results, err := h.c.RefreshScheduled(context.Background(), []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, Message: "4 items"}, results["l1"])
	assert.Empty(t, h.c.Pending())

	entered := make(chan struct{})
	release := make(chan struct{})
	h.refresher.EXPECT().
		RefreshList(gomock.Any(), gomock.Any(), models.TriggerManual).
		DoAndReturn(func(context.Context, models.SmartList, models.RefreshTrigger) (bool, string) {
			close(entered)
			<-release
			return true, ""
		}).
		Times(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.c.RefreshNow(context.Background(), []string{"l1"})
	}()
	<-entered

	results, err = h.c.RefreshScheduled(context.Background(), []string{"l1"})
	require.NoError(t, err)
	assert.NotContains(t, results, "l1")
	assert.Equal(t, []string{"l1"}, pendingIDs(h.c))

	close(release)
	<-done
}

func TestListEditsUpdateRegistrations(t *testing.T) {
	h := newHarness(t, Config{}, smartList("l1", models.AutoRefreshOnAllChanges))

	h.c.OnItemAdded(movie("m1"))
	h.settle()
	require.Len(t, h.c.Pending(), 1)

	disabled := smartList("l1", models.AutoRefreshOnAllChanges)
	disabled.Enabled = false
	h.c.OnListSaved(disabled)
	assert.Empty(t, h.c.Pending())

	h.c.OnItemAdded(movie("m2"))
	h.settle()
	assert.Empty(t, h.c.Pending())

	h.c.OnListSaved(smartList("l2", models.AutoRefreshOnAllChanges))
	h.c.OnItemAdded(movie("m3"))
	h.settle()
	assert.Equal(t, []string{"l2"}, pendingIDs(h.c))

	h.c.OnListDeleted("l2")
	assert.Empty(t, h.c.Pending())
	assert.Zero(t, h.c.Stats().Index.Lists)
}

func TestDisposeStopsEverything(t *testing.T) {
	h := newHarness(t, Config{}, smartList("l1", models.AutoRefreshOnAllChanges))
	h.c.OnItemAdded(movie("m1"))
	h.c.OnPlaybackStateSaved(movie("m1"), "u9", models.UserData{PlaybackPositionTicks: 1})
	h.settle()
	require.Len(t, h.c.Pending(), 1)

	h.c.Dispose()
	h.c.Dispose()

	assert.True(t, h.events.unsubscribed)
	assert.Empty(t, h.c.Pending())
	assert.Zero(t, h.c.Stats().PlaybackStates)

	h.c.OnItemAdded(movie("m2"))
	h.settle()
	assert.Empty(t, h.c.Pending())

	_, err := h.c.RefreshNow(context.Background(), []string{"l1"})
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, h.c.Start(context.Background()), ErrDisposed)
}

func TestChangedFields(t *testing.T) {
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		prev *models.UserData
		next models.UserData
		want []string
	}{
		{name: "first default save", next: models.UserData{PlaybackPositionTicks: 10}},
		{name: "first save already played", next: models.UserData{Played: true}, want: []string{models.FieldIsPlayed, models.FieldNextUnwatched}},
		{name: "first save favorite", next: models.UserData{IsFavorite: true}, want: []string{models.FieldIsFavorite}},
		{name: "position only", prev: &models.UserData{Played: true}, next: models.UserData{Played: true, PlaybackPositionTicks: 99}},
		{name: "unplayed", prev: &models.UserData{Played: true}, next: models.UserData{}, want: []string{models.FieldIsPlayed, models.FieldNextUnwatched}},
		{name: "play count", prev: &models.UserData{PlayCount: 1}, next: models.UserData{PlayCount: 2}, want: []string{models.FieldPlayCount}},
		{name: "last played newly set", prev: &models.UserData{}, next: models.UserData{LastPlayedDate: &last}, want: []string{models.FieldLastPlayedDate}},
		{name: "last played moved forward", prev: &models.UserData{LastPlayedDate: &last}, next: models.UserData{LastPlayedDate: ptr(last.Add(time.Hour))}, want: []string{models.FieldLastPlayedDate}},
		{name: "last played unchanged", prev: &models.UserData{LastPlayedDate: &last}, next: models.UserData{LastPlayedDate: ptr(last)}},
		{name: "last played moved back", prev: &models.UserData{LastPlayedDate: &last}, next: models.UserData{LastPlayedDate: ptr(last.Add(-time.Hour))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prev playbackState
			if tt.prev != nil {
				prev = newPlaybackState(*tt.prev)
			}
			assert.Equal(t, tt.want, changedFields(prev, tt.prev != nil, newPlaybackState(tt.next)))
		})
	}
}

func TestPlaybackCacheEvictsOldestQuarter(t *testing.T) {
	h := newHarness(t, Config{PlaybackStateCapacity: 8})
	for i := range 8 {
		h.c.recordPlayback(fmt.Sprintf("item-%d", i), "u1", models.UserData{})
	}
	require.Equal(t, 8, h.c.playback.Len())

	h.c.recordPlayback("item-8", "u1", models.UserData{})
	assert.Equal(t, 7, h.c.playback.Len())
	assert.False(t, h.c.playback.Contains(playbackKey{itemID: "item-0", userID: "u1"}))
	assert.False(t, h.c.playback.Contains(playbackKey{itemID: "item-1", userID: "u1"}))
	assert.True(t, h.c.playback.Contains(playbackKey{itemID: "item-8", userID: "u1"}))

	// Updating a known pair never evicts.
	h.c.recordPlayback("item-8", "u1", models.UserData{Played: true})
	assert.Equal(t, 7, h.c.playback.Len())
}

func pendingIDs(c *Coordinator) []string {
	var ids []string
	for _, p := range c.Pending() {
		ids = append(ids, p.ListID)
	}
	sort.Strings(ids)
	return ids
}

func ptr[T any](v T) *T { return &v }
