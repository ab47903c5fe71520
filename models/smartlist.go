package models

import (
	"sort"
	"strings"
	"time"
)

// AutoRefreshMode controls which event classes trigger a list refresh.
type AutoRefreshMode string

const (
	AutoRefreshNever            AutoRefreshMode = "Never"
	AutoRefreshOnLibraryChanges AutoRefreshMode = "OnLibraryChanges"
	AutoRefreshOnAllChanges     AutoRefreshMode = "OnAllChanges"
)

// ListType selects how a list is materialized on the host.
type ListType string

const (
	ListTypePlaylist   ListType = "Playlist"
	ListTypeCollection ListType = "Collection"
)

// SortField orders a list's members before the MaxItems cap applies.
type SortField string

const (
	SortByName            SortField = "Name"
	SortByProductionYear  SortField = "ProductionYear"
	SortByDateCreated     SortField = "DateCreated"
	SortByPremiereDate    SortField = "PremiereDate"
	SortByCommunityRating SortField = "CommunityRating"
	SortByCriticRating    SortField = "CriticRating"
	SortByRuntime         SortField = "Runtime"
	SortByRandom          SortField = "Random"
)

// SortFields lists every accepted sort field.
var SortFields = []SortField{
	SortByName, SortByProductionYear, SortByDateCreated, SortByPremiereDate,
	SortByCommunityRating, SortByCriticRating, SortByRuntime, SortByRandom,
}

type SortOrder string

const (
	SortAscending  SortOrder = "Ascending"
	SortDescending SortOrder = "Descending"
)

// ExpressionFlags carry operator-specific knobs.
type ExpressionFlags struct {
	IncludeUnwatchedSeries  bool `json:"includeUnwatchedSeries,omitempty"`
	IncludeChildEpisodes    bool `json:"includeChildEpisodes,omitempty"`
	IncludeParentSeriesTags bool `json:"includeParentSeriesTags,omitempty"`
}

// Expression is one field/operator/value clause of a rule.
type Expression struct {
	MemberName  string          `json:"memberName"`
	Operator    string          `json:"operator"`
	TargetValue string          `json:"targetValue"`
	UserID      string          `json:"userId,omitempty"`
	Flags       ExpressionFlags `json:"flags,omitempty"`
}

// ExpressionSet is an AND-group of expressions.
type ExpressionSet struct {
	Expressions []Expression `json:"expressions"`
}

// SmartList is a persisted list definition.
type SmartList struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	OwnerUserID         string          `json:"ownerUserId"`
	Kinds               []MediaKind     `json:"kinds"`
	ExpressionSets      []ExpressionSet `json:"expressionSets"`
	Enabled             bool            `json:"enabled"`
	AutoRefresh         AutoRefreshMode `json:"autoRefresh"`
	ListType            ListType        `json:"listType"`
	MaxItems            int             `json:"maxItems,omitempty"`
	MaterializedID      string          `json:"materializedId,omitempty"`
	SimilarityMinShared int             `json:"similarityMinShared,omitempty"`
	SortBy              SortField       `json:"sortBy,omitempty"`
	SortOrder           SortOrder       `json:"sortOrder,omitempty"`
	Schedules           []Schedule      `json:"schedules,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// HasRules reports whether any expression set carries at least one expression.
func (l SmartList) HasRules() bool {
	for _, set := range l.ExpressionSets {
		if len(set.Expressions) > 0 {
			return true
		}
	}
	return false
}

// EffectiveKinds returns the filterable kinds of the list. An empty kind list
// targets every filterable kind.
func (l SmartList) EffectiveKinds() []MediaKind {
	if len(l.Kinds) == 0 {
		return append([]MediaKind(nil), FilterableKinds...)
	}
	kinds := make([]MediaKind, 0, len(l.Kinds))
	seen := make(map[MediaKind]struct{}, len(l.Kinds))
	for _, k := range l.Kinds {
		if !k.IsFilterable() {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	return kinds
}

// AutoRefreshEligible reports whether events may trigger this list at all.
func (l SmartList) AutoRefreshEligible() bool {
	return l.Enabled && l.AutoRefresh != AutoRefreshNever && l.AutoRefresh != ""
}

// ReferencedUserIDs returns the distinct explicit user ids named by
// user-scoped expressions, sorted.
func (l SmartList) ReferencedUserIDs() []string {
	seen := make(map[string]struct{})
	for _, set := range l.ExpressionSets {
		for _, expr := range set.Expressions {
			id := strings.TrimSpace(expr.UserID)
			if id == "" || !IsUserField(expr.MemberName) {
				continue
			}
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReferencesUser reports whether userID owns the list or is named by a
// user-scoped rule.
func (l SmartList) ReferencesUser(userID string) bool {
	if userID == "" {
		return false
	}
	if strings.EqualFold(l.OwnerUserID, userID) {
		return true
	}
	for _, id := range l.ReferencedUserIDs() {
		if strings.EqualFold(id, userID) {
			return true
		}
	}
	return false
}

// MinShared returns the SimilarTo threshold, defaulting to one shared term.
func (l SmartList) MinShared() int {
	if l.SimilarityMinShared <= 0 {
		return 1
	}
	return l.SimilarityMinShared
}

// Ordering returns the effective sort, defaulting to name ascending.
func (l SmartList) Ordering() (SortField, SortOrder) {
	by, order := l.SortBy, l.SortOrder
	if by == "" {
		by = SortByName
	}
	if order == "" {
		order = SortAscending
	}
	return by, order
}
