package similarity

import (
	"strings"
	"sync"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// Reference is the union of genre and tag terms of the items a SimilarTo
// rule resolved to. Candidates are scored by how many distinct terms they
// share with it.
type Reference struct {
	mu      sync.RWMutex
	itemIDs map[string]struct{}
	terms   map[string]struct{}
}

// NewReference returns an empty reference set.
func NewReference() *Reference {
	return &Reference{
		itemIDs: make(map[string]struct{}),
		terms:   make(map[string]struct{}),
	}
}

// Add records a reference item. Items already added are ignored so a title
// matched by several sub-rules contributes once.
func (r *Reference) Add(itemID string, genres, tags []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.itemIDs[itemID]; ok {
		return false
	}
	r.itemIDs[itemID] = struct{}{}
	for _, values := range [][]string{genres, tags} {
		for _, v := range values {
			if key := Normalize(v); key != "" {
				r.terms[key] = struct{}{}
			}
		}
	}
	return true
}

// Contains reports whether the item is itself one of the references.
func (r *Reference) Contains(itemID string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.itemIDs[itemID]
	return ok
}

// Len returns the number of distinct reference items.
func (r *Reference) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.itemIDs)
}

// Terms returns the number of distinct reference terms.
func (r *Reference) Terms() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terms)
}

// SharedCount counts the distinct genre and tag terms of a candidate that
// also appear in the reference.
func (r *Reference) SharedCount(genres, tags []string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.terms) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(genres)+len(tags))
	shared := 0
	for _, values := range [][]string{genres, tags} {
		for _, v := range values {
			key := Normalize(v)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := r.terms[key]; ok {
				shared++
			}
		}
	}
	return shared
}

// Normalize folds a genre or tag to a comparison key: transliterated to
// ASCII, lowercased, "&" spelled "and", punctuation dropped and whitespace
// collapsed. "Sci-Fi & Fantasy" and "sci fi and fantasy" share a key.
func Normalize(s string) string {
	s = unidecode.Unidecode(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '/':
			result.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}
