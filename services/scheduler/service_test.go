package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlists/internal/logging"
	"smartlists/models"
	"smartlists/services/coordinator"
)

type fakeLists struct {
	mu    sync.Mutex
	lists []models.SmartList
	err   error
}

func (f *fakeLists) Lists(context.Context) ([]models.SmartList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SmartList(nil), f.lists...), f.err
}

func (f *fakeLists) set(lists ...models.SmartList) {
	f.mu.Lock()
	f.lists = lists
	f.mu.Unlock()
}

type fakeRefresher struct {
	mu      sync.Mutex
	batches [][]string
	results map[string]coordinator.Result
	block   chan struct{}
}

func (f *fakeRefresher) RefreshScheduled(_ context.Context, ids []string) (map[string]coordinator.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ids)
	out := make(map[string]coordinator.Result, len(ids))
	for _, id := range ids {
		if r, ok := f.results[id]; ok {
			out[id] = r
			continue
		}
		out[id] = coordinator.Result{Success: true, Message: "ok"}
	}
	return out, nil
}

func (f *fakeRefresher) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func scheduled(id string, schedules ...models.Schedule) models.SmartList {
	return models.SmartList{ID: id, Name: id, OwnerUserID: "owner", Enabled: true, Schedules: schedules, UpdatedAt: start}
}

func every(minutes int) models.Schedule {
	return models.Schedule{Trigger: models.ScheduleInterval, IntervalMinutes: minutes}
}

func newTestService(lists *fakeLists, refresher *fakeRefresher) *Service {
	return NewService(lists, refresher, Config{}, logging.Discard())
}

func TestIntervalScheduleFiresWhenDue(t *testing.T) {
	lists := &fakeLists{lists: []models.SmartList{
		scheduled("hourly", every(60)),
		scheduled("quarter", every(15)),
		scheduled("plain"),
	}}
	refresher := &fakeRefresher{}
	s := newTestService(lists, refresher)

	s.check(start)
	s.wg.Wait()
	assert.Empty(t, refresher.calls(), "first sighting only plans")

	s.check(start.Add(15 * time.Minute))
	s.wg.Wait()
	assert.Equal(t, [][]string{{"quarter"}}, refresher.calls())

	s.check(start.Add(time.Hour))
	s.wg.Wait()
	assert.Equal(t, [][]string{{"quarter"}, {"hourly", "quarter"}}, refresher.calls())

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "quarter", status[0].ListID)
	assert.Equal(t, start.Add(75*time.Minute), status[0].NextRun)
	require.NotNil(t, status[0].LastRun)
	assert.Equal(t, start.Add(time.Hour), *status[0].LastRun)
	require.NotNil(t, status[0].LastResult)
	assert.True(t, status[0].LastResult.Success)
}

func TestRunningListIsNotFiredTwice(t *testing.T) {
	lists := &fakeLists{lists: []models.SmartList{scheduled("l1", every(1))}}
	refresher := &fakeRefresher{block: make(chan struct{})}
	s := newTestService(lists, refresher)

	s.check(start)
	s.check(start.Add(time.Minute))
	s.check(start.Add(2 * time.Minute))
	require.True(t, s.Status()[0].Running)

	close(refresher.block)
	s.wg.Wait()
	assert.Len(t, refresher.calls(), 1)
	assert.False(t, s.Status()[0].Running)
	assert.Equal(t, start.Add(2*time.Minute), s.Status()[0].NextRun)
}

func TestEditedListIsReplanned(t *testing.T) {
	lists := &fakeLists{lists: []models.SmartList{scheduled("l1", every(60))}}
	refresher := &fakeRefresher{}
	s := newTestService(lists, refresher)

	s.check(start)
	edited := scheduled("l1", models.Schedule{Trigger: models.ScheduleDaily, TimeOfDay: "18:00"})
	edited.UpdatedAt = start.Add(time.Minute)
	lists.set(edited)

	s.check(start.Add(time.Hour))
	s.wg.Wait()
	assert.Empty(t, refresher.calls())
	assert.Equal(t, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC), s.Status()[0].NextRun)

	disabled := edited
	disabled.Enabled = false
	lists.set(disabled)
	s.check(start.Add(7 * time.Hour))
	s.wg.Wait()
	assert.Empty(t, refresher.calls())
	assert.Empty(t, s.Status())
}

func TestFailedRefreshIsRecorded(t *testing.T) {
	lists := &fakeLists{lists: []models.SmartList{scheduled("l1", every(5))}}
	refresher := &fakeRefresher{results: map[string]coordinator.Result{"l1": {Message: "host unreachable"}}}
	s := newTestService(lists, refresher)

	s.check(start)
	s.check(start.Add(5 * time.Minute))
	s.wg.Wait()

	status := s.Status()
	require.Len(t, status, 1)
	require.NotNil(t, status[0].LastResult)
	assert.False(t, status[0].LastResult.Success)
	assert.Equal(t, "host unreachable", status[0].LastResult.Message)
	assert.Equal(t, start.Add(10*time.Minute), status[0].NextRun)
}

func TestListSourceFailureSkipsCheck(t *testing.T) {
	lists := &fakeLists{err: errors.New("lists file unreadable")}
	refresher := &fakeRefresher{}
	s := newTestService(lists, refresher)

	s.check(start)
	s.wg.Wait()
	assert.Empty(t, refresher.calls())
	assert.Empty(t, s.Status())
}

func TestStartStop(t *testing.T) {
	lists := &fakeLists{}
	s := NewService(lists, &fakeRefresher{}, Config{CheckInterval: time.Hour}, logging.Discard())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
