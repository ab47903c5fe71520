// Package testsupport provides in-memory host fakes shared by package tests.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"smartlists/models"
)

// Library is an in-memory host implementing the catalog, user-data and
// user-directory interfaces.
type Library struct {
	mu sync.Mutex

	items    map[string]models.Item
	children map[string][]string
	userData map[string]map[string]models.UserData
	users    map[string]models.User

	// QueryErr, when set, fails every QueryItems call.
	QueryErr error
	// QueryDelay slows every QueryItems call down.
	QueryDelay time.Duration
	// UserErr fails GetUserByID; UserFailures limits it to the first N calls.
	UserErr      error
	UserFailures int

	calls map[string]int
}

func NewLibrary() *Library {
	return &Library{
		items:    make(map[string]models.Item),
		children: make(map[string][]string),
		userData: make(map[string]map[string]models.UserData),
		users:    make(map[string]models.User),
		calls:    make(map[string]int),
	}
}

func (l *Library) AddItem(items ...models.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		l.items[it.ID] = it
	}
}

func (l *Library) AddUser(users ...models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range users {
		l.users[u.ID] = u
	}
}

// AddCollection registers a BoxSet and its member ids.
func (l *Library) AddCollection(id, name string, memberIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[id] = models.Item{ID: id, Kind: models.KindBoxSet, Name: name}
	l.children[id] = append(l.children[id], memberIDs...)
}

func (l *Library) SetUserData(userID, itemID string, data models.UserData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userData[userID] == nil {
		l.userData[userID] = make(map[string]models.UserData)
	}
	l.userData[userID][itemID] = data
}

// Calls returns how often a method was invoked.
func (l *Library) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *Library) QueryItems(_ context.Context, q models.ItemQuery) ([]models.Item, error) {
	l.mu.Lock()
	delay := l.QueryDelay
	l.mu.Unlock()
	time.Sleep(delay)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["QueryItems"]++
	if l.QueryErr != nil {
		return nil, l.QueryErr
	}

	var out []models.Item
	if ids, ok := l.children[q.ParentID]; ok && q.ParentID != "" {
		for _, id := range ids {
			if it, ok := l.items[id]; ok && kindMatches(it.Kind, q.Kinds) {
				out = append(out, it)
			}
		}
		return out, nil
	}

	for _, it := range l.items {
		if !kindMatches(it.Kind, q.Kinds) {
			continue
		}
		if q.ParentID != "" && it.ParentID != q.ParentID && it.SeriesID != q.ParentID {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Library) GetItemByID(_ context.Context, id string) (models.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["GetItemByID"]++
	it, ok := l.items[id]
	if !ok {
		return models.Item{}, models.ErrItemNotFound
	}
	return it, nil
}

func (l *Library) GetUserData(_ context.Context, userID string, item models.Item) (models.UserData, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["GetUserData"]++
	return l.userData[userID][item.ID], nil
}

func (l *Library) IsPlayed(_ context.Context, _ string, _ models.Item, data models.UserData) bool {
	return data.Played
}

func (l *Library) GetUserByID(_ context.Context, id string) (models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["GetUserByID"]++
	if l.UserErr != nil && (l.UserFailures == 0 || l.calls["GetUserByID"] <= l.UserFailures) {
		return models.User{}, l.UserErr
	}
	u, ok := l.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func kindMatches(kind models.MediaKind, kinds []models.MediaKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Episode builds a numbered episode of a series.
func Episode(id, seriesID string, season, episode int) models.Item {
	s, e := season, episode
	return models.Item{
		ID:            id,
		Kind:          models.KindEpisode,
		Name:          id,
		SeriesID:      seriesID,
		ParentID:      seriesID,
		SeasonNumber:  &s,
		EpisodeNumber: &e,
	}
}
