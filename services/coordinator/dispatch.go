package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"smartlists/models"
)

// tick fires every pending refresh whose window has closed. Overlapping
// ticks are skipped.
func (c *Coordinator) tick(now time.Time) {
	if !c.draining.CompareAndSwap(false, true) {
		return
	}
	defer c.draining.Store(false)

	due := c.takeDue(now)
	if len(due) == 0 {
		return
	}
	c.log.Debug("pending refreshes due", "lists", due)
	c.handoff(func(ctx context.Context) {
		c.dispatch(ctx, due, models.TriggerCatalog)
	})
}

// takeDue removes and returns the due list ids, sorted.
func (c *Coordinator) takeDue(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []string
	for id, at := range c.pending {
		if at.After(now) {
			continue
		}
		delete(c.pending, id)
		due = append(due, id)
	}
	sort.Strings(due)
	return due
}

// dispatch refreshes ids concurrently. A failure or panic in one list is
// logged and never affects the others. Lists already refreshing are pushed
// back into the pending map.
func (c *Coordinator) dispatch(ctx context.Context, ids []string, trigger models.RefreshTrigger) map[string]Result {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(ids))
	)
	record := func(id string, r Result) {
		mu.Lock()
		results[id] = r
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(c.cfg.MaxConcurrent)
	for _, id := range ids {
		if !c.claim(id) {
			if trigger == models.TriggerManual {
				record(id, Result{Message: "refresh already running", Busy: true})
				continue
			}
			c.schedule([]string{id})
			continue
		}
		p.Go(func() {
			defer c.release(id)
			record(id, c.refreshOne(ctx, id, trigger))
		})
	}
	p.Wait()
	return results
}

func (c *Coordinator) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

func (c *Coordinator) refreshOne(ctx context.Context, id string, trigger models.RefreshTrigger) Result {
	list, err := c.resolveList(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrListNotFound) {
			c.log.Info("dropping refresh for deleted list", "list", id)
			c.OnListDeleted(id)
		} else {
			c.log.Error("failed to load list for refresh", "list", id, "error", err)
			c.failed.Add(1)
		}
		return Result{Message: err.Error()}
	}

	var (
		ok  bool
		msg string
		pc  panics.Catcher
	)
	started := time.Now()
	pc.Try(func() {
		ok, msg = c.refresher.RefreshList(ctx, list, trigger)
	})
	c.dispatched.Add(1)

	if r := pc.Recovered(); r != nil {
		c.failed.Add(1)
		c.log.Error("list refresh panicked", "list", list.ID, "name", list.Name, "panic", r.Value, "stack", string(r.Stack))
		return Result{Message: fmt.Sprintf("refresh panicked: %v", r.Value)}
	}
	if !ok {
		c.failed.Add(1)
		c.log.Warn("list refresh failed", "list", list.ID, "name", list.Name, "trigger", trigger, "message", msg)
		return Result{Message: msg}
	}
	c.log.Info("list refreshed", "list", list.ID, "name", list.Name, "trigger", trigger, "duration", time.Since(started), "message", msg)
	return Result{Success: true, Message: msg}
}

// resolveList prefers the stored definition and falls back to the one the
// index registered.
func (c *Coordinator) resolveList(ctx context.Context, id string) (models.SmartList, error) {
	if c.lists != nil {
		return c.lists.Get(ctx, id)
	}
	if l, ok := c.index.List(id); ok {
		return l, nil
	}
	return models.SmartList{}, fmt.Errorf("list %s: %w", id, models.ErrListNotFound)
}

// RefreshNow refreshes ids immediately and waits for the results. Pending
// catalog refreshes for those lists are folded into this run.
func (c *Coordinator) RefreshNow(ctx context.Context, ids []string) (map[string]Result, error) {
	return c.refreshImmediately(ctx, ids, models.TriggerManual)
}

// RefreshScheduled is RefreshNow for time-based triggers. Lists that are
// already refreshing go back into the pending map instead of reporting busy.
func (c *Coordinator) RefreshScheduled(ctx context.Context, ids []string) (map[string]Result, error) {
	return c.refreshImmediately(ctx, ids, models.TriggerSchedule)
}

func (c *Coordinator) refreshImmediately(ctx context.Context, ids []string, trigger models.RefreshTrigger) (map[string]Result, error) {
	c.lifecycle.RLock()
	if c.disposed {
		c.lifecycle.RUnlock()
		return nil, ErrDisposed
	}
	c.tasks.Add(1)
	c.lifecycle.RUnlock()
	defer c.tasks.Done()

	c.mu.Lock()
	for _, id := range ids {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	return c.dispatch(ctx, ids, trigger), nil
}
