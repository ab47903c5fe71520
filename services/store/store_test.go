package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlists/internal/logging"
	"smartlists/models"
	"smartlists/services/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "smartlists.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "smartlists.db")
	first, err := store.Open(context.Background(), path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := store.Open(context.Background(), path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, trigger := range []models.RefreshTrigger{models.TriggerCatalog, models.TriggerPlayback, models.TriggerManual} {
		_, err := s.RecordRun(ctx, models.RefreshRun{
			ListID:     "l1",
			Trigger:    trigger,
			StartedAt:  started.Add(time.Duration(i) * time.Minute),
			FinishedAt: started.Add(time.Duration(i)*time.Minute + time.Second),
			Success:    i != 1,
			Message:    fmt.Sprintf("run %d", i),
			ItemCount:  i * 10,
		})
		require.NoError(t, err)
	}
	_, err := s.RecordRun(ctx, models.RefreshRun{ListID: "other", Trigger: models.TriggerManual, StartedAt: started, FinishedAt: started})
	require.NoError(t, err)

	runs, err := s.Runs(ctx, "l1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.TriggerManual, runs[0].Trigger)
	assert.True(t, runs[0].Success)
	assert.Equal(t, 20, runs[0].ItemCount)
	assert.Equal(t, started.Add(2*time.Minute), runs[0].StartedAt)
	assert.Equal(t, "run 1", runs[1].Message)
	assert.False(t, runs[1].Success)
}

func TestRunLogIsBounded(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()
	for i := 0; i < 60; i++ {
		_, err := s.RecordRun(ctx, models.RefreshRun{ListID: "l1", Trigger: models.TriggerCatalog, StartedAt: now, FinishedAt: now, Message: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	runs, err := s.Runs(ctx, "l1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 50)
	assert.Equal(t, "59", runs[0].Message)
	assert.Equal(t, "10", runs[49].Message)
}

func TestReplaceMembersKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.ReplaceMembers(ctx, "l1", []string{"c", "a", "b"}))
	require.NoError(t, s.Materialize(ctx, models.SmartList{ID: "l2"}, []string{"x"}))
	require.NoError(t, s.ReplaceMembers(ctx, "l1", []string{"b", "d"}))

	members, err := s.Members(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, members)

	require.NoError(t, s.ReplaceMembers(ctx, "l1", nil))
	members, err = s.Members(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, members)

	members, err = s.Members(ctx, "l2")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, members)
}

func TestDeleteList(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()

	require.NoError(t, s.ReplaceMembers(ctx, "l1", []string{"a"}))
	_, err := s.RecordRun(ctx, models.RefreshRun{ListID: "l1", Trigger: models.TriggerManual, StartedAt: now, FinishedAt: now})
	require.NoError(t, err)

	require.NoError(t, s.DeleteList(ctx, "l1"))
	members, err := s.Members(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, members)
	runs, err := s.Runs(ctx, "l1", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
