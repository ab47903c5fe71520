package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlists/internal/logging"
	"smartlists/internal/testsupport"
	"smartlists/models"
	"smartlists/services/refresh"
	"smartlists/services/snapshot"
)

type memberSink struct {
	mu      sync.Mutex
	members map[string][]string
	err     error
}

func (m *memberSink) Materialize(_ context.Context, list models.SmartList, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.members == nil {
		m.members = make(map[string][]string)
	}
	m.members[list.ID] = ids
	return nil
}

type runLog struct {
	mu   sync.Mutex
	runs []models.RefreshRun
}

func (r *runLog) RecordRun(_ context.Context, run models.RefreshRun) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return int64(len(r.runs)), nil
}

type fixture struct {
	lib    *testsupport.Library
	sink   *memberSink
	log    *runLog
	runner *refresh.Runner
}

func newFixture() *fixture {
	lib := testsupport.NewLibrary()
	lib.AddUser(models.User{ID: "u1", Name: "Ada"}, models.User{ID: "u2", Name: "Grace"})
	lib.AddItem(
		models.Item{ID: "m1", Kind: models.KindMovie, Name: "Heat", Genres: []string{"Action", "Crime"}},
		models.Item{ID: "m2", Kind: models.KindMovie, Name: "Alien", Genres: []string{"Horror", "Science Fiction"}, Tags: []string{"space"}},
		models.Item{ID: "m3", Kind: models.KindMovie, Name: "Aliens", Genres: []string{"Action", "Science Fiction"}, Tags: []string{"space"}},
		models.Item{ID: "m4", Kind: models.KindMovie, Name: "Amélie", Genres: []string{"Romance"}},
		models.Item{ID: "e1", Kind: models.KindEpisode, Name: "Pilot", Genres: []string{"Action"}},
	)
	lib.SetUserData("u1", "m3", models.UserData{Played: true})

	f := &fixture{lib: lib, sink: &memberSink{}, log: &runLog{}}
	builder := snapshot.NewBuilder(lib, lib, lib, logging.Discard())
	f.runner = refresh.NewRunner(lib, builder, f.sink, f.log, refresh.Config{
		Workers: 2,
		Now:     func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}, logging.Discard())
	return f
}

func movieList(exprs ...models.Expression) models.SmartList {
	return models.SmartList{
		ID:             "l1",
		Name:           "test",
		OwnerUserID:    "u1",
		Kinds:          []models.MediaKind{models.KindMovie},
		Enabled:        true,
		ExpressionSets: []models.ExpressionSet{{Expressions: exprs}},
	}
}

func TestRefreshMaterializesMatchesInNameOrder(t *testing.T) {
	f := newFixture()
	list := movieList(models.Expression{MemberName: "Genres", Operator: "Contains", TargetValue: "action"})

	ok, msg := f.runner.RefreshList(context.Background(), list, models.TriggerManual)
	require.True(t, ok, msg)
	assert.Equal(t, "2 items", msg)
	assert.Equal(t, []string{"m3", "m1"}, f.sink.members["l1"])

	require.Len(t, f.log.runs, 1)
	run := f.log.runs[0]
	assert.True(t, run.Success)
	assert.Equal(t, models.TriggerManual, run.Trigger)
	assert.Equal(t, 2, run.ItemCount)
}

func TestRefreshUsesOwnerPlaybackState(t *testing.T) {
	f := newFixture()
	list := movieList(
		models.Expression{MemberName: "Genres", Operator: "Contains", TargetValue: "action"},
		models.Expression{MemberName: "IsPlayed", Operator: "Equal", TargetValue: "false"},
	)

	ids, err := f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	// Another owner has not played anything.
	list.OwnerUserID = "u2"
	ids, err = f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m1"}, ids)
}

func TestRefreshCapsAtMaxItems(t *testing.T) {
	f := newFixture()
	list := movieList()
	list.ExpressionSets = nil
	list.MaxItems = 2

	ids, err := f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids)
}

func TestRefreshSortsBeforeCapping(t *testing.T) {
	f := newFixture()
	f.lib.AddItem(
		models.Item{ID: "m5", Kind: models.KindMovie, Name: "Solaris", Genres: []string{"Science Fiction"}, CommunityRating: 8.1},
		models.Item{ID: "m6", Kind: models.KindMovie, Name: "Sunshine", Genres: []string{"Science Fiction"}, CommunityRating: 7.3},
	)
	list := movieList(models.Expression{MemberName: "Genres", Operator: "Contains", TargetValue: "science fiction"})
	list.SortBy = models.SortByCommunityRating
	list.MaxItems = 3

	list.SortOrder = models.SortDescending
	ids, err := f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	// Equal ratings keep name order whichever way the list sorts.
	assert.Equal(t, []string{"m5", "m6", "m2"}, ids)

	list.SortOrder = models.SortAscending
	ids, err = f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m6"}, ids)
}

func TestRefreshRandomOrderStillCaps(t *testing.T) {
	f := newFixture()
	list := movieList()
	list.ExpressionSets = nil
	list.SortBy = models.SortByRandom
	list.MaxItems = 2

	ids, err := f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Subset(t, []string{"m1", "m2", "m3", "m4"}, ids)
}

func TestRefreshFailsOnMissingReferencedUser(t *testing.T) {
	f := newFixture()
	list := movieList(models.Expression{MemberName: "IsFavorite", Operator: "Equal", TargetValue: "true", UserID: "ghost"})

	ok, msg := f.runner.RefreshList(context.Background(), list, models.TriggerCatalog)
	assert.False(t, ok)
	assert.Contains(t, msg, `"ghost"`)
	assert.Nil(t, f.sink.members)

	require.Len(t, f.log.runs, 1)
	assert.False(t, f.log.runs[0].Success)
	assert.Equal(t, msg, f.log.runs[0].Message)
}

func TestRefreshReportsMaterializeFailure(t *testing.T) {
	f := newFixture()
	f.sink.err = errors.New("disk full")

	ok, msg := f.runner.RefreshList(context.Background(), movieList(), models.TriggerCatalog)
	assert.False(t, ok)
	assert.Contains(t, msg, "disk full")
}

func TestRefreshSimilarTo(t *testing.T) {
	f := newFixture()
	list := movieList(models.Expression{MemberName: "SimilarTo", Operator: "Equal", TargetValue: "alien"})
	list.SimilarityMinShared = 2

	ids, err := f.runner.Evaluate(context.Background(), list)
	require.NoError(t, err)
	// Aliens shares "science fiction" and "space"; the reference itself is excluded.
	assert.Equal(t, []string{"m3"}, ids)
}

func TestRefreshPropagatesQueryFailure(t *testing.T) {
	f := newFixture()
	f.lib.QueryErr = errors.New("host down")

	_, err := f.runner.Evaluate(context.Background(), movieList())
	assert.ErrorContains(t, err, "host down")
}
