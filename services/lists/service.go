package lists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"smartlists/models"
	"smartlists/services/rules"
)

var (
	ErrPathRequired  = errors.New("lists file path not provided")
	ErrNameRequired  = errors.New("name is required")
	ErrOwnerRequired = errors.New("owner user id is required")
	ErrInvalidList   = errors.New("invalid list definition")
)

// Listener is told about saved and deleted lists.
type Listener interface {
	OnListSaved(list models.SmartList)
	OnListDeleted(listID string)
}

// Service persists smart list definitions in a JSON file.
type Service struct {
	mu        sync.RWMutex
	fs        afero.Fs
	path      string
	lists     map[string]models.SmartList
	listeners []Listener
	log       *slog.Logger
	now       func() time.Time
}

// NewService loads the lists file at path on fsys, creating its directory
// when needed.
func NewService(fsys afero.Fs, path string, logger *slog.Logger) (*Service, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lists dir: %w", err)
		}
	}

	svc := &Service{
		fs:    fsys,
		path:  path,
		lists: make(map[string]models.SmartList),
		log:   logger.With("component", "lists"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	if err := svc.load(); err != nil {
		return nil, err
	}
	return svc, nil
}

// AddListener registers l for save and delete notifications.
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Lists returns every list sorted by creation time, then name.
func (s *Service) Lists(context.Context) ([]models.SmartList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

// Get returns the list with the given id.
func (s *Service) Get(_ context.Context, id string) (models.SmartList, error) {
	id = strings.TrimSpace(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		return models.SmartList{}, fmt.Errorf("list %q: %w", id, models.ErrListNotFound)
	}
	return l, nil
}

// Save validates and stores a list. Rules are compiled up front so a bad
// operator or literal is reported here rather than on the next refresh.
// A list without an id is created.
func (s *Service) Save(_ context.Context, list models.SmartList) (models.SmartList, error) {
	list.Name = strings.TrimSpace(list.Name)
	list.OwnerUserID = strings.TrimSpace(list.OwnerUserID)
	now := s.now()
	if err := Validate(list, now); err != nil {
		return models.SmartList{}, err
	}
	if list.ListType == "" {
		list.ListType = models.ListTypePlaylist
	}
	if list.AutoRefresh == "" {
		list.AutoRefresh = models.AutoRefreshOnLibraryChanges
	}

	s.mu.Lock()
	if strings.TrimSpace(list.ID) == "" {
		list.ID = uuid.NewString()
		list.CreatedAt = now
	} else if existing, ok := s.lists[list.ID]; ok {
		list.CreatedAt = existing.CreatedAt
	} else if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	list.UpdatedAt = now

	prev, existed := s.lists[list.ID]
	s.lists[list.ID] = list
	if err := s.saveLocked(); err != nil {
		if existed {
			s.lists[list.ID] = prev
		} else {
			delete(s.lists, list.ID)
		}
		s.mu.Unlock()
		return models.SmartList{}, err
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info("list saved", "list", list.ID, "name", list.Name, "created", !existed)
	for _, l := range listeners {
		l.OnListSaved(list)
	}
	return list, nil
}

// Delete removes a list.
func (s *Service) Delete(_ context.Context, id string) error {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	prev, ok := s.lists[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("list %q: %w", id, models.ErrListNotFound)
	}
	delete(s.lists, id)
	if err := s.saveLocked(); err != nil {
		s.lists[id] = prev
		s.mu.Unlock()
		return err
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info("list deleted", "list", id, "name", prev.Name)
	for _, l := range listeners {
		l.OnListDeleted(id)
	}
	return nil
}

// Validate checks a list definition and compiles its rules. Rule problems
// come back as *rules.CompilationError values joined together.
func Validate(list models.SmartList, now time.Time) error {
	if strings.TrimSpace(list.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(list.OwnerUserID) == "" {
		return ErrOwnerRequired
	}
	for _, k := range list.Kinds {
		if !k.IsFilterable() {
			return fmt.Errorf("%w: kind %q cannot be filtered", ErrInvalidList, k)
		}
	}
	switch list.AutoRefresh {
	case "", models.AutoRefreshNever, models.AutoRefreshOnLibraryChanges, models.AutoRefreshOnAllChanges:
	default:
		return fmt.Errorf("%w: unknown auto refresh mode %q", ErrInvalidList, list.AutoRefresh)
	}
	switch list.ListType {
	case "", models.ListTypePlaylist, models.ListTypeCollection:
	default:
		return fmt.Errorf("%w: unknown list type %q", ErrInvalidList, list.ListType)
	}
	if list.MaxItems < 0 {
		return fmt.Errorf("%w: maxItems must not be negative", ErrInvalidList)
	}
	if list.SortBy != "" && !slices.Contains(models.SortFields, list.SortBy) {
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidList, list.SortBy)
	}
	switch list.SortOrder {
	case "", models.SortAscending, models.SortDescending:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidList, list.SortOrder)
	}
	for i, sched := range list.Schedules {
		if _, err := sched.Next(now); err != nil {
			return fmt.Errorf("%w: schedule %d: %w", ErrInvalidList, i, err)
		}
	}

	_, err := rules.CompileRuleSet(list.ExpressionSets, rules.Options{
		ReferenceUserID: list.OwnerUserID,
		Now:             func() time.Time { return now },
		MinShared:       list.MinShared(),
	})
	return err
}

func (s *Service) sortedLocked() []models.SmartList {
	out := make([]models.SmartList, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Service) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lists file: %w", err)
	}

	var stored []models.SmartList
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode lists: %w", err)
	}

	for _, l := range stored {
		if strings.TrimSpace(l.ID) == "" {
			continue
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = l.CreatedAt
		}
		s.lists[l.ID] = l
	}
	s.log.Debug("lists loaded", "count", len(s.lists), "path", s.path)
	return nil
}

func (s *Service) saveLocked() error {
	data, err := json.MarshalIndent(s.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode lists: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write lists temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace lists file: %w", err)
	}
	return nil
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Saved   func(list models.SmartList)
	Deleted func(listID string)
}

func (f ListenerFuncs) OnListSaved(list models.SmartList) {
	if f.Saved != nil {
		f.Saved(list)
	}
}

func (f ListenerFuncs) OnListDeleted(listID string) {
	if f.Deleted != nil {
		f.Deleted(listID)
	}
}
