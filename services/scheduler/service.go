package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"smartlists/models"
	"smartlists/services/coordinator"
)

// ListSource provides the current list definitions.
type ListSource interface {
	Lists(ctx context.Context) ([]models.SmartList, error)
}

// Refresher runs time-triggered list refreshes.
type Refresher interface {
	RefreshScheduled(ctx context.Context, ids []string) (map[string]coordinator.Result, error)
}

var _ Refresher = (*coordinator.Coordinator)(nil)

// Config tunes the scheduler loop.
type Config struct {
	CheckInterval time.Duration
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Status is the schedule state of one list.
type Status struct {
	ListID     string              `json:"listId"`
	NextRun    time.Time           `json:"nextRun"`
	LastRun    *time.Time          `json:"lastRun,omitempty"`
	LastResult *coordinator.Result `json:"lastResult,omitempty"`
	Running    bool                `json:"running"`
}

// plan tracks one list. It is recomputed whenever the list definition
// changes.
type plan struct {
	list      models.SmartList
	updatedAt time.Time
	status    Status
	running   bool
}

// Service fires list refreshes from their schedules.
type Service struct {
	lists     ListSource
	refresher Refresher
	cfg       Config
	log       *slog.Logger

	// Runtime state
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	plansMu sync.Mutex
	plans   map[string]*plan
}

func NewService(lists ListSource, refresher Refresher, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval < time.Second {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		lists:     lists,
		refresher: refresher,
		cfg:       cfg,
		log:       logger.With("component", "scheduler"),
		ctx:       context.Background(),
		plans:     make(map[string]*plan),
	}
}

// Start begins the scheduler background loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	s.log.Info("scheduler started", "check_interval", s.cfg.CheckInterval)
	return nil
}

// Stop cancels the loop and waits for in-flight refreshes until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stopped before refreshes finished")
	}
	s.running = false
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.check(s.cfg.Now())
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.check(s.cfg.Now())
		}
	}
}

// check plans newly seen or edited lists and fires every due one. Due lists
// go out in a single batch so the coordinator can bound concurrency.
func (s *Service) check(now time.Time) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	lists, err := s.lists.Lists(ctx)
	if err != nil {
		s.log.Warn("failed to load lists for schedules", "error", err)
		return
	}

	due := s.plan(lists, now)
	if len(due) == 0 {
		return
	}

	s.log.Info("scheduled refreshes due", "lists", due)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		results, err := s.refresher.RefreshScheduled(ctx, due)
		if err != nil {
			s.log.Warn("scheduled refresh rejected", "lists", due, "error", err)
		}
		s.finish(due, results, now)
	}()
}

// plan reconciles plans with lists and marks due ones running.
func (s *Service) plan(lists []models.SmartList, now time.Time) []string {
	s.plansMu.Lock()
	defer s.plansMu.Unlock()

	seen := make(map[string]struct{}, len(lists))
	var due []string
	for _, l := range lists {
		if !l.Enabled || len(l.Schedules) == 0 {
			continue
		}
		p, ok := s.plans[l.ID]
		if !ok || !p.updatedAt.Equal(l.UpdatedAt) {
			next, ok := l.NextScheduledRun(now)
			if !ok {
				continue
			}
			fresh := &plan{list: l, updatedAt: l.UpdatedAt, status: Status{ListID: l.ID, NextRun: next}}
			if p != nil {
				fresh.running = p.running
				fresh.status.LastRun = p.status.LastRun
				fresh.status.LastResult = p.status.LastResult
			}
			p = fresh
			s.plans[l.ID] = p
		}
		seen[l.ID] = struct{}{}

		if p.running || now.Before(p.status.NextRun) {
			continue
		}
		p.running = true
		due = append(due, l.ID)
	}
	for id := range s.plans {
		if _, ok := seen[id]; !ok {
			delete(s.plans, id)
		}
	}
	sort.Strings(due)
	return due
}

// finish records results and plans the next run from the fire time.
func (s *Service) finish(ids []string, results map[string]coordinator.Result, firedAt time.Time) {
	s.plansMu.Lock()
	defer s.plansMu.Unlock()

	for _, id := range ids {
		p, ok := s.plans[id]
		if !ok {
			continue
		}
		p.running = false
		ran := firedAt
		p.status.LastRun = &ran
		if r, ok := results[id]; ok {
			p.status.LastResult = &r
			if !r.Success {
				s.log.Warn("scheduled refresh failed", "list", id, "message", r.Message)
			}
		}
		if next, ok := p.list.NextScheduledRun(firedAt); ok {
			p.status.NextRun = next
		} else {
			delete(s.plans, id)
		}
	}
}

// Status returns every planned list ordered by next run.
func (s *Service) Status() []Status {
	s.plansMu.Lock()
	out := make([]Status, 0, len(s.plans))
	for _, p := range s.plans {
		st := p.status
		st.Running = p.running
		out = append(out, st)
	}
	s.plansMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ListID < out[j].ListID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}
