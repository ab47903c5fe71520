package coordinator

import "smartlists/models"

type playbackKey struct {
	itemID string
	userID string
}

type playbackState struct {
	played     bool
	playCount  int
	favorite   bool
	lastPlayed int64
}

func newPlaybackState(d models.UserData) playbackState {
	s := playbackState{played: d.Played, playCount: d.PlayCount, favorite: d.IsFavorite}
	if d.HasLastPlayed() {
		s.lastPlayed = d.LastPlayedDate.Unix()
	}
	return s
}

func (s playbackState) isDefault() bool {
	return !s.played && !s.favorite && s.playCount == 0 && s.lastPlayed == 0
}

// changedFields diffs next against the previously seen state. Position-only
// saves produce nothing. A first observation only counts when it already
// carries play history. Last-played only counts when it moves forward.
func changedFields(prev playbackState, seen bool, next playbackState) []string {
	if !seen {
		if next.isDefault() {
			return nil
		}
		prev = playbackState{}
	}

	var fields []string
	if prev.played != next.played {
		fields = append(fields, models.FieldIsPlayed, models.FieldNextUnwatched)
	}
	if prev.playCount != next.playCount {
		fields = append(fields, models.FieldPlayCount)
	}
	if prev.favorite != next.favorite {
		fields = append(fields, models.FieldIsFavorite)
	}
	if next.lastPlayed > prev.lastPlayed {
		fields = append(fields, models.FieldLastPlayedDate)
	}
	return fields
}

// recordPlayback stores the latest state for (item, user) and returns the
// rule fields the save changed.
func (c *Coordinator) recordPlayback(itemID, userID string, state models.UserData) []string {
	key := playbackKey{itemID: itemID, userID: userID}
	next := newPlaybackState(state)

	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	prev, seen := c.playback.Peek(key)
	if !seen {
		c.makeRoomLocked()
	}
	c.playback.Add(key, next)
	return changedFields(prev, seen, next)
}

// makeRoomLocked evicts the oldest quarter of the cache once it is full.
func (c *Coordinator) makeRoomLocked() {
	capacity := c.cfg.PlaybackStateCapacity
	if c.playback.Len() < capacity {
		return
	}
	evict := max(capacity/4, 1)
	for range evict {
		if _, _, ok := c.playback.RemoveOldest(); !ok {
			break
		}
	}
	c.log.Debug("playback state cache trimmed", "evicted", evict, "remaining", c.playback.Len())
}
