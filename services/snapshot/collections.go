package snapshot

import (
	"context"
	"sort"

	"smartlists/models"
)

// collectionsOf returns the names of the collections that hold itemID.
func (b *Builder) collectionsOf(ctx context.Context, itemID string, cache *Cache) []string {
	if names, ok := load(cache, cache.itemCollections, itemID); ok {
		return names
	}
	idx := b.collectionIndex(ctx, cache)
	names := append([]string(nil), idx.memberOf[itemID]...)
	return storeOnce(cache, cache.itemCollections, itemID, names)
}

// collectionIndex resolves every collection's children once per pass.
func (b *Builder) collectionIndex(ctx context.Context, cache *Cache) *collectionIndex {
	cache.collectionsOnce.Do(func() {
		cache.collections = b.buildCollectionIndex(ctx)
	})
	return cache.collections
}

func (b *Builder) buildCollectionIndex(ctx context.Context) *collectionIndex {
	idx := &collectionIndex{
		members:  make(map[string]map[string]struct{}),
		memberOf: make(map[string][]string),
	}

	boxSets, err := b.library.QueryItems(ctx, models.ItemQuery{
		Kinds:     []models.MediaKind{models.KindBoxSet},
		Recursive: true,
	})
	if err != nil {
		b.extractionFailed("collections", "", err)
		return idx
	}

	for _, set := range boxSets {
		children, err := b.library.QueryItems(ctx, models.ItemQuery{ParentID: set.ID})
		if err != nil {
			b.extractionFailed("collection children", set.ID, err)
			continue
		}
		members := make(map[string]struct{}, len(children))
		for _, child := range children {
			members[child.ID] = struct{}{}
		}
		idx.members[set.ID] = members
		for id := range members {
			idx.memberOf[id] = append(idx.memberOf[id], set.Name)
		}
	}

	for id := range idx.memberOf {
		sort.Strings(idx.memberOf[id])
	}

	b.log.Debug("collection index built", "collections", len(idx.members), "members", len(idx.memberOf))
	return idx
}
