package coordinator

import (
	"context"

	"smartlists/models"
	"smartlists/services/rules"
)

// metadataFields are the rule fields a catalog event can change. Playback
// state is per user and only moves through playback events.
var metadataFields = func() []string {
	var names []string
	for _, f := range rules.Fields() {
		if f.Type.IsUserScoped() {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}()

type interestQuery struct {
	kind   models.MediaKind
	fields []string
}

func (c *Coordinator) OnItemAdded(item models.Item) {
	c.onCatalog(models.CatalogItemAdded, item)
}

func (c *Coordinator) OnItemRemoved(item models.Item) {
	c.onCatalog(models.CatalogItemRemoved, item)
}

func (c *Coordinator) OnItemUpdated(item models.Item) {
	c.onCatalog(models.CatalogItemUpdated, item)
}

func (c *Coordinator) onCatalog(evt models.CatalogEventType, item models.Item) {
	if c.isOwnItem(item) {
		return
	}
	c.handoff(func(context.Context) {
		queries := catalogQueries(evt, item)
		ids := c.matchLists(queries, func(l models.SmartList) bool {
			return catalogModeAllows(evt, l.AutoRefresh)
		})
		if len(ids) == 0 {
			return
		}
		c.log.Debug("catalog change matched lists", "event", evt, "item", item.ID, "kind", item.Kind, "lists", len(ids))
		c.schedule(ids)
	})
}

// catalogQueries lists the (kind, fields) lookups for a catalog event.
// Updates reach further than adds and removes: a series or season update
// can change the derived fields of its episodes.
func catalogQueries(evt models.CatalogEventType, item models.Item) []interestQuery {
	switch item.Kind {
	case models.KindBoxSet:
		queries := make([]interestQuery, 0, len(models.FilterableKinds))
		for _, k := range models.FilterableKinds {
			queries = append(queries, interestQuery{kind: k, fields: []string{models.FieldCollections}})
		}
		return queries
	case models.KindSeason:
		if evt != models.CatalogItemUpdated {
			return nil
		}
		return []interestQuery{{kind: models.KindEpisode, fields: metadataFields}}
	}

	queries := []interestQuery{{kind: item.Kind, fields: metadataFields}}
	if evt == models.CatalogItemUpdated && item.Kind == models.KindSeries {
		queries = append(queries, interestQuery{kind: models.KindEpisode, fields: metadataFields})
	}
	if item.Kind == models.KindEpisode && evt != models.CatalogItemUpdated {
		// A new or removed episode moves the series' next-unwatched pointer.
		nextUnwatched := []string{models.FieldNextUnwatched}
		queries = append(queries,
			interestQuery{kind: models.KindEpisode, fields: nextUnwatched},
			interestQuery{kind: models.KindSeries, fields: nextUnwatched},
		)
	}
	return queries
}

func catalogModeAllows(evt models.CatalogEventType, mode models.AutoRefreshMode) bool {
	switch evt {
	case models.CatalogItemAdded, models.CatalogItemRemoved:
		return mode == models.AutoRefreshOnLibraryChanges || mode == models.AutoRefreshOnAllChanges
	default:
		return mode == models.AutoRefreshOnAllChanges
	}
}

// isOwnItem reports whether an item is one of our materialized lists or a
// host playlist. Refreshing those would feed back into themselves.
func (c *Coordinator) isOwnItem(item models.Item) bool {
	if item.Kind == models.KindPlaylist {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, own := c.ownItems[item.ID]
	return own
}

// matchLists runs the index lookups and keeps the lists accepted by keep.
func (c *Coordinator) matchLists(queries []interestQuery, keep func(models.SmartList) bool) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, q := range queries {
		for _, id := range c.index.Lookup(q.kind, q.fields) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			l, ok := c.index.List(id)
			if !ok || !keep(l) {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Coordinator) OnPlaybackStateSaved(item models.Item, userID string, state models.UserData) {
	if c.isOwnItem(item) || userID == "" {
		return
	}
	c.handoff(func(ctx context.Context) {
		changed := c.recordPlayback(item.ID, userID, state)
		if len(changed) == 0 {
			return
		}

		queries := []interestQuery{{kind: item.Kind, fields: changed}}
		if item.Kind == models.KindEpisode {
			queries = append(queries, interestQuery{kind: models.KindSeries, fields: changed})
		}
		ids := c.matchLists(queries, func(l models.SmartList) bool {
			return l.AutoRefresh == models.AutoRefreshOnAllChanges && l.ReferencesUser(userID)
		})
		if len(ids) == 0 {
			return
		}

		c.mu.Lock()
		for _, id := range ids {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		c.log.Debug("playback change matched lists", "item", item.ID, "user", userID, "fields", changed, "lists", len(ids))
		c.dispatch(ctx, ids, models.TriggerPlayback)
	})
}
