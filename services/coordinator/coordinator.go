package coordinator

//go:generate mockgen -destination=mocks/refresher.go -package=mocks smartlists/services/coordinator ListRefresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"smartlists/models"
	"smartlists/services/interest"
)

// ErrDisposed is returned by operations on a disposed coordinator.
var ErrDisposed = errors.New("refresh coordinator disposed")

// ListRefresher recomputes and materializes one list. Implementations
// enforce their own per-list timeout.
type ListRefresher interface {
	RefreshList(ctx context.Context, list models.SmartList, trigger models.RefreshTrigger) (bool, string)
}

// EventHandler receives host events. Calls arrive synchronously on host
// goroutines.
type EventHandler interface {
	OnItemAdded(item models.Item)
	OnItemRemoved(item models.Item)
	OnItemUpdated(item models.Item)
	OnPlaybackStateSaved(item models.Item, userID string, state models.UserData)
}

// EventSource delivers host events to subscribers.
type EventSource interface {
	Subscribe(h EventHandler) (unsubscribe func())
}

// ListSource reads list definitions.
type ListSource interface {
	Lists(ctx context.Context) ([]models.SmartList, error)
	Get(ctx context.Context, id string) (models.SmartList, error)
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Events    EventSource
	Lists     ListSource
	Index     *interest.Index
	Refresher ListRefresher
	Logger    *slog.Logger
}

// Config tunes batching and dispatch.
type Config struct {
	BatchDelay            time.Duration
	TickInterval          time.Duration
	PlaybackStateCapacity int
	MaxConcurrent         int
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BatchDelay <= 0 {
		c.BatchDelay = 5 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PlaybackStateCapacity <= 0 {
		c.PlaybackStateCapacity = 10000
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Result is the outcome of one list refresh.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Busy is set when a manual refresh found the list already running.
	Busy bool `json:"busy,omitempty"`
}

// PendingRefresh is a scheduled catalog refresh.
type PendingRefresh struct {
	ListID string    `json:"listId"`
	FireAt time.Time `json:"fireAt"`
}

// Coordinator turns host events into list refreshes. Catalog events are
// batched per list in a sliding window; relevant playback changes dispatch
// immediately.
type Coordinator struct {
	events    EventSource
	lists     ListSource
	index     *interest.Index
	refresher ListRefresher
	log       *slog.Logger
	cfg       Config

	// lifecycle guards started/disposed and the run context.
	lifecycle   sync.RWMutex
	started     bool
	disposed    bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	stopTicker  chan struct{}
	loop        sync.WaitGroup
	tasks       sync.WaitGroup

	mu           sync.Mutex
	pending      map[string]time.Time
	inFlight     map[string]struct{}
	materialized map[string]string // list id -> host list id
	ownItems     map[string]struct{}

	playbackMu sync.Mutex
	playback   *lru.Cache[playbackKey, playbackState]

	draining   atomic.Bool
	dispatched atomic.Uint64
	failed     atomic.Uint64
}

// New wires a coordinator. Call Start to subscribe to host events.
func New(deps Deps, cfg Config) (*Coordinator, error) {
	if deps.Index == nil {
		return nil, errors.New("coordinator: interest index is required")
	}
	if deps.Refresher == nil {
		return nil, errors.New("coordinator: list refresher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	playback, err := lru.New[playbackKey, playbackState](cfg.PlaybackStateCapacity)
	if err != nil {
		return nil, fmt.Errorf("coordinator: playback cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		events:       deps.Events,
		lists:        deps.Lists,
		index:        deps.Index,
		refresher:    deps.Refresher,
		log:          logger.With("component", "refresh-coordinator"),
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
		pending:      make(map[string]time.Time),
		inFlight:     make(map[string]struct{}),
		materialized: make(map[string]string),
		ownItems:     make(map[string]struct{}),
		playback:     playback,
	}, nil
}

// Start loads the current lists into the index, subscribes to host events
// and starts the ticker.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	if c.started {
		return nil
	}

	if c.lists != nil {
		lists, err := c.lists.Lists(ctx)
		if err != nil {
			return fmt.Errorf("load lists: %w", err)
		}
		c.index.Rebuild(lists)
		c.mu.Lock()
		for _, l := range lists {
			c.trackMaterializedLocked(l)
		}
		c.mu.Unlock()
		c.log.Info("coordinator loaded lists", "lists", len(lists), "eligible", c.index.Stats().Lists)
	}

	c.cancel()
	c.ctx, c.cancel = context.WithCancel(ctx)
	if c.events != nil {
		c.unsubscribe = c.events.Subscribe(c)
	}

	c.stopTicker = make(chan struct{})
	c.loop.Add(1)
	go c.tickerLoop(c.stopTicker)

	c.started = true
	c.log.Info("coordinator started", "batch_delay", c.cfg.BatchDelay, "tick", c.cfg.TickInterval)
	return nil
}

func (c *Coordinator) tickerLoop(stop <-chan struct{}) {
	defer c.loop.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(c.cfg.Now())
		}
	}
}

// Dispose unsubscribes from host events, stops the ticker, waits for
// handed-off work and clears all in-memory state. It is safe to call more
// than once.
func (c *Coordinator) Dispose() {
	c.lifecycle.Lock()
	if c.disposed {
		c.lifecycle.Unlock()
		return
	}
	c.disposed = true
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.stopTicker != nil {
		close(c.stopTicker)
		c.stopTicker = nil
	}
	c.cancel()
	c.lifecycle.Unlock()

	c.loop.Wait()
	c.tasks.Wait()

	c.mu.Lock()
	clear(c.pending)
	clear(c.inFlight)
	clear(c.materialized)
	clear(c.ownItems)
	c.mu.Unlock()
	c.playback.Purge()

	c.log.Info("coordinator disposed")
}

// handoff runs fn on its own goroutine unless the coordinator is disposed.
func (c *Coordinator) handoff(fn func(ctx context.Context)) bool {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.disposed {
		return false
	}
	ctx := c.ctx
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn(ctx)
	}()
	return true
}

func (c *Coordinator) isDisposed() bool {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	return c.disposed
}

// OnListSaved refreshes the index registrations of a created or edited list.
func (c *Coordinator) OnListSaved(list models.SmartList) {
	if c.isDisposed() {
		return
	}
	c.index.Upsert(list)

	c.mu.Lock()
	c.untrackMaterializedLocked(list.ID)
	c.trackMaterializedLocked(list)
	if !list.AutoRefreshEligible() {
		delete(c.pending, list.ID)
	}
	c.mu.Unlock()
}

// OnListDeleted drops every trace of a list.
func (c *Coordinator) OnListDeleted(listID string) {
	if c.isDisposed() {
		return
	}
	c.index.Remove(listID)

	c.mu.Lock()
	c.untrackMaterializedLocked(listID)
	delete(c.pending, listID)
	c.mu.Unlock()
}

func (c *Coordinator) trackMaterializedLocked(l models.SmartList) {
	if l.MaterializedID == "" {
		return
	}
	c.materialized[l.ID] = l.MaterializedID
	c.ownItems[l.MaterializedID] = struct{}{}
}

func (c *Coordinator) untrackMaterializedLocked(listID string) {
	if id, ok := c.materialized[listID]; ok {
		delete(c.ownItems, id)
		delete(c.materialized, listID)
	}
}

// schedule places ids in the pending map at now+BatchDelay. A later event
// for the same list pushes its fire time back.
func (c *Coordinator) schedule(ids []string) {
	if len(ids) == 0 {
		return
	}
	fireAt := c.cfg.Now().Add(c.cfg.BatchDelay)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.pending[id] = fireAt
	}
	c.log.Debug("refresh scheduled", "lists", ids, "fire_at", fireAt)
}

// Pending returns the scheduled catalog refreshes ordered by fire time.
func (c *Coordinator) Pending() []PendingRefresh {
	c.mu.Lock()
	out := make([]PendingRefresh, 0, len(c.pending))
	for id, at := range c.pending {
		out = append(out, PendingRefresh{ListID: id, FireAt: at})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ListID < out[j].ListID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Stats is a point-in-time summary for the status endpoint.
type Stats struct {
	Pending        int            `json:"pending"`
	InFlight       int            `json:"inFlight"`
	PlaybackStates int            `json:"playbackStates"`
	Dispatched     uint64         `json:"dispatched"`
	Failed         uint64         `json:"failed"`
	Index          interest.Stats `json:"index"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	pending, inFlight := len(c.pending), len(c.inFlight)
	c.mu.Unlock()
	return Stats{
		Pending:        pending,
		InFlight:       inFlight,
		PlaybackStates: c.playback.Len(),
		Dispatched:     c.dispatched.Load(),
		Failed:         c.failed.Load(),
		Index:          c.index.Stats(),
	}
}
