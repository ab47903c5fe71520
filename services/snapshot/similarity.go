package snapshot

import (
	"smartlists/models"
	"smartlists/utils/similarity"
)

// ReferenceMatcher selects the items a SimilarTo rule compares against.
type ReferenceMatcher interface {
	Matches(*models.Operand) bool
}

// SimilarityReference resolves the reference items among candidates once
// per pass and returns the union of their genres and tags. Later calls on
// the same cache return the first result.
func (b *Builder) SimilarityReference(cache *Cache, candidates []*models.Operand, matchers []ReferenceMatcher) *similarity.Reference {
	cache.similarityOnce.Do(func() {
		ref := similarity.NewReference()
		for _, o := range candidates {
			for _, m := range matchers {
				if m.Matches(o) {
					ref.Add(o.ItemID, o.Genres, o.Tags)
					break
				}
			}
		}
		b.log.Debug("similarity reference resolved", "items", ref.Len(), "terms", ref.Terms())
		cache.similarity = ref
	})
	return cache.similarity
}
