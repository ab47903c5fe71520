package interest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"smartlists/models"
	"smartlists/services/rules"
)

// Wildcard is the field key registered by lists that care about any change
// to an item of a kind.
const Wildcard = "*"

// ErrInconsistent reports bookkeeping that no longer matches the registered
// lists. It never reaches callers; the index rebuilds itself instead.
var ErrInconsistent = errors.New("change-interest index inconsistent")

// ListSource provides the current list definitions for a full rebuild.
type ListSource interface {
	Lists(ctx context.Context) ([]models.SmartList, error)
}

type key struct {
	kind  models.MediaKind
	field string
}

// state is an immutable view of the index. Mutations build a new state and
// publish it, so lookups never take a lock.
type state struct {
	entries map[key]map[string]struct{}
	byList  map[string][]key
	lists   map[string]models.SmartList
	// fallback is set while a rebuild is pending; lookups then return every
	// eligible list.
	fallback bool
}

func newState() *state {
	return &state{
		entries: make(map[key]map[string]struct{}),
		byList:  make(map[string][]key),
		lists:   make(map[string]models.SmartList),
	}
}

func (s *state) clone() *state {
	next := &state{
		entries:  make(map[key]map[string]struct{}, len(s.entries)),
		byList:   make(map[string][]key, len(s.byList)),
		lists:    make(map[string]models.SmartList, len(s.lists)),
		fallback: s.fallback,
	}
	for k, ids := range s.entries {
		set := make(map[string]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		next.entries[k] = set
	}
	for id, keys := range s.byList {
		next.byList[id] = append([]key(nil), keys...)
	}
	for id, l := range s.lists {
		next.lists[id] = l
	}
	return next
}

func (s *state) add(list models.SmartList) {
	if !list.AutoRefreshEligible() {
		return
	}
	s.lists[list.ID] = list

	var keys []key
	seen := make(map[key]struct{})
	register := func(k key) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		set, ok := s.entries[k]
		if !ok {
			set = make(map[string]struct{})
			s.entries[k] = set
		}
		set[list.ID] = struct{}{}
		keys = append(keys, k)
	}

	fields := watchedFields(list)
	for _, kind := range list.EffectiveKinds() {
		if len(fields) == 0 {
			register(key{kind: kind, field: Wildcard})
			continue
		}
		for _, f := range fields {
			register(key{kind: kind, field: f})
		}
	}
	s.byList[list.ID] = keys
}

func (s *state) remove(listID string) error {
	delete(s.lists, listID)
	keys, ok := s.byList[listID]
	if !ok {
		return nil
	}
	delete(s.byList, listID)

	var err error
	for _, k := range keys {
		set, ok := s.entries[k]
		if !ok {
			err = fmt.Errorf("%w: list %s registered under missing key %s/%s", ErrInconsistent, listID, k.kind, k.field)
			continue
		}
		if _, ok := set[listID]; !ok {
			err = fmt.Errorf("%w: list %s missing from key %s/%s", ErrInconsistent, listID, k.kind, k.field)
			continue
		}
		delete(set, listID)
		if len(set) == 0 {
			delete(s.entries, k)
		}
	}
	return err
}

// watchedFields returns the lower-cased fields the list's rules read, or
// nil when no rule names a known field.
func watchedFields(list models.SmartList) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range list.ExpressionSets {
		for _, expr := range set.Expressions {
			for _, f := range rules.WatchedFields(expr) {
				f = strings.ToLower(f)
				if _, ok := seen[f]; ok {
					continue
				}
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

// Index maps (item kind, changed field) to the lists that must be
// reconsidered.
type Index struct {
	mu     sync.Mutex
	state  atomic.Pointer[state]
	source ListSource
	log    *slog.Logger

	rebuildTimeout time.Duration
	retryDelay     time.Duration
	rebuilding     sync.WaitGroup
	rebuildGen     atomic.Uint64
	// pending holds edits made while a background rebuild is in flight;
	// they are replayed onto the rebuilt state before it is published.
	pending []func(next *state) error
}

// New returns an empty index. source is used for background rebuilds and
// may be nil.
func New(source ListSource, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{
		source:         source,
		log:            logger.With("component", "interest-index"),
		rebuildTimeout: 30 * time.Second,
		retryDelay:     time.Second,
	}
	idx.state.Store(newState())
	return idx
}

// Rebuild replaces the index contents with registrations for lists.
func (idx *Index) Rebuild(lists []models.SmartList) {
	next := newState()
	for _, l := range lists {
		next.add(l)
	}

	idx.mu.Lock()
	idx.rebuildGen.Add(1)
	idx.pending = nil
	idx.state.Store(next)
	idx.mu.Unlock()

	idx.log.Debug("index rebuilt", "lists", len(next.lists), "keys", len(next.entries))
}

// Lookup returns the ids of lists interested in a change of fields on an
// item of kind, including the kind's wildcard lists. While a rebuild is
// pending it returns every eligible list.
func (idx *Index) Lookup(kind models.MediaKind, fields []string) []string {
	st := idx.state.Load()

	ids := make(map[string]struct{})
	if st.fallback {
		for id := range st.lists {
			ids[id] = struct{}{}
		}
		return sortedIDs(ids)
	}

	for id := range st.entries[key{kind: kind, field: Wildcard}] {
		ids[id] = struct{}{}
	}
	for _, f := range fields {
		for id := range st.entries[key{kind: kind, field: strings.ToLower(f)}] {
			ids[id] = struct{}{}
		}
	}
	return sortedIDs(ids)
}

// List returns the definition the index last registered for id.
func (idx *Index) List(id string) (models.SmartList, bool) {
	l, ok := idx.state.Load().lists[id]
	return l, ok
}

// Upsert replaces every registration of the list with ones derived from its
// current rules. Disabled lists and lists that never auto-refresh end up
// unregistered.
func (idx *Index) Upsert(list models.SmartList) {
	idx.mutate(func(next *state) error {
		err := next.remove(list.ID)
		next.add(list)
		return err
	})
}

// Remove purges every registration of the list.
func (idx *Index) Remove(listID string) {
	idx.mutate(func(next *state) error {
		return next.remove(listID)
	})
}

// Invalidate clears the index and rebuilds it in the background.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.invalidateLocked(nil)
}

func (idx *Index) mutate(fn func(next *state) error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.state.Load()
	next := cur.clone()
	if err := fn(next); err != nil {
		idx.log.Warn("index inconsistency, rebuilding", "error", err)
		idx.pending = append(idx.pending, fn)
		idx.invalidateLocked(next.lists)
		return
	}
	if cur.fallback {
		idx.pending = append(idx.pending, fn)
	}
	idx.state.Store(next)
}

// invalidateLocked publishes a fallback state and starts a rebuild. known
// seeds the fallback list set; nil keeps the current one.
func (idx *Index) invalidateLocked(known map[string]models.SmartList) {
	if known == nil {
		known = idx.state.Load().lists
	}
	fallback := newState()
	fallback.fallback = true
	var snapshot []models.SmartList
	for id, l := range known {
		fallback.lists[id] = l
		snapshot = append(snapshot, l)
	}
	gen := idx.rebuildGen.Add(1)
	idx.state.Store(fallback)

	idx.rebuilding.Add(1)
	go idx.rebuildInBackground(gen, snapshot)
}

func (idx *Index) rebuildInBackground(gen uint64, known []models.SmartList) {
	defer idx.rebuilding.Done()

	lists := known
	if idx.source != nil {
		ctx, cancel := context.WithTimeout(context.Background(), idx.rebuildTimeout)
		defer cancel()
		loaded, err := retry.DoWithData(
			func() ([]models.SmartList, error) { return idx.source.Lists(ctx) },
			retry.Context(ctx),
			retry.Attempts(5),
			retry.Delay(idx.retryDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			idx.log.Error("index rebuild failed, keeping last known lists", "error", err)
		} else {
			lists = loaded
		}
	}

	next := newState()
	for _, l := range lists {
		next.add(l)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	// A newer rebuild or explicit Rebuild supersedes this one.
	if idx.rebuildGen.Load() != gen {
		return
	}
	for _, fn := range idx.pending {
		if err := fn(next); err != nil {
			idx.log.Warn("replaying index edit after rebuild", "error", err)
		}
	}
	idx.pending = nil
	idx.state.Store(next)
	idx.log.Info("index rebuilt in background", "lists", len(next.lists), "keys", len(next.entries))
}

// WaitRebuild blocks until pending background rebuilds finish.
func (idx *Index) WaitRebuild() {
	idx.rebuilding.Wait()
}

// Stats summarizes the index.
type Stats struct {
	Lists     int  `json:"lists"`
	Keys      int  `json:"keys"`
	Wildcards int  `json:"wildcards"`
	Fallback  bool `json:"fallback"`
}

func (idx *Index) Stats() Stats {
	st := idx.state.Load()
	stats := Stats{Lists: len(st.lists), Keys: len(st.entries), Fallback: st.fallback}
	for k := range st.entries {
		if k.field == Wildcard {
			stats.Wildcards++
		}
	}
	return stats
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
