// Package loaders batches the per-match lookups of a reconciliation into one
// store round trip per kind.
package loaders

import (
	"context"
	"fmt"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/models"
	"layover-match/internal/store"

	"github.com/graph-gophers/dataloader/v7"
)

const batchWait = 5 * time.Millisecond

type Loaders struct {
	Profiles *dataloader.Loader[string, *models.Profile]
	Messages *dataloader.Loader[string, []models.Message]
}

// New returns loaders without a cache beyond their own lifetime; build one
// set per reconciliation.
func New(profiles store.ProfileStore, messages store.MessageStore) *Loaders {
	return &Loaders{
		Profiles: dataloader.NewBatchedLoader(profileBatchFn(profiles), dataloader.WithWait[string, *models.Profile](batchWait)),
		Messages: dataloader.NewBatchedLoader(messageBatchFn(messages), dataloader.WithWait[string, []models.Message](batchWait)),
	}
}

func profileBatchFn(profiles store.ProfileStore) dataloader.BatchFunc[string, *models.Profile] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*models.Profile] {
		results := make([]*dataloader.Result[*models.Profile], len(keys))

		found, err := profiles.GetProfiles(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[*models.Profile]{Error: err}
			}
			return results
		}

		byID := make(map[string]*models.Profile, len(found))
		for i := range found {
			byID[found[i].UserID] = &found[i]
		}
		for i, key := range keys {
			if p, ok := byID[key]; ok {
				results[i] = &dataloader.Result[*models.Profile]{Data: p}
			} else {
				results[i] = &dataloader.Result[*models.Profile]{Error: fmt.Errorf("profile %s: %w", key, apperr.ErrNotFound)}
			}
		}
		return results
	}
}

// messageBatchFn yields an empty thread for matches with no messages.
func messageBatchFn(messages store.MessageStore) dataloader.BatchFunc[string, []models.Message] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[[]models.Message] {
		results := make([]*dataloader.Result[[]models.Message], len(keys))

		threads, err := messages.ListMessagesForMatches(ctx, keys)
		for i, key := range keys {
			if err != nil {
				results[i] = &dataloader.Result[[]models.Message]{Error: err}
				continue
			}
			results[i] = &dataloader.Result[[]models.Message]{Data: threads[key]}
		}
		return results
	}
}
