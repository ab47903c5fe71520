package snapshot

import (
	"context"
	"errors"
	"strings"

	"github.com/avast/retry-go/v4"

	"smartlists/models"
)

const userLookupAttempts = 3

// ResolveUser returns the user with the given id, cached for the pass.
// Transient directory failures are retried; an unknown id is not.
func (b *Builder) ResolveUser(ctx context.Context, userID string, cache *Cache) (models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.User{}, &UserResolutionError{UserID: userID, Err: models.ErrUserNotFound}
	}
	if cache == nil {
		cache = NewCache()
	}

	user, err := loadOrCompute(cache, cache.users, "user", userID, func() (models.User, error) {
		return retry.DoWithData(
			func() (models.User, error) {
				return b.users.GetUserByID(ctx, userID)
			},
			retry.Context(ctx),
			retry.Attempts(userLookupAttempts),
			retry.Delay(b.userRetryDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, models.ErrUserNotFound)
			}),
		)
	})
	if err != nil {
		b.log.Error("user resolution failed", "user_id", userID, "error", err)
		return models.User{}, &UserResolutionError{UserID: userID, Err: err}
	}
	return user, nil
}

// ResolveUsers resolves every id, stopping at the first failure.
func (b *Builder) ResolveUsers(ctx context.Context, ids []string, cache *Cache) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, err := b.ResolveUser(ctx, id, cache)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
