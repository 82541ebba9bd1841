package domain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"example.com/trainingsync/internal/observability"
)

// SyncResult reports what an incremental sync stored.
type SyncResult struct {
	Count int
}

// Sync pulls activities newer than the latest stored one and upserts them by
// external id. Concurrent syncs for the same user share one execution, which
// finishes even if the caller that started it is cancelled.
func (s *Service) Sync(ctx context.Context, userID string) (SyncResult, error) {
	v, err, _ := doShared(ctx, &s.syncGroup, "sync:"+userID, s.opts.SharedTimeout, func(work context.Context) (interface{}, error) {
		return s.syncOnce(work, userID)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return v.(SyncResult), nil
}

func (s *Service) syncOnce(ctx context.Context, userID string) (result SyncResult, err error) {
	start := s.now()
	defer func() {
		observability.RecordSync(err, result.Count, time.Since(start))
	}()

	cred, err := s.tokens.Load(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}
	cred, err = s.tokens.EnsureValidToken(ctx, cred)
	if err != nil {
		return SyncResult{}, err
	}

	latest, err := s.activities.LatestActivity(ctx, userID)
	if err != nil {
		return SyncResult{}, persistenceErr("latest activity", err)
	}

	var after *time.Time
	if latest != nil {
		ts := latest.StartTimestamp
		after = &ts
	}

	items, err := s.provider.ListActivities(ctx, cred.AccessToken, after, s.opts.PageSize)
	if err != nil {
		s.logger.Warn("activity listing failed", zap.String("user_id", userID), zap.Error(err))
		return SyncResult{}, err
	}
	if len(items) == 0 {
		return SyncResult{}, nil
	}

	for i := range items {
		items[i].UserID = userID
		items[i].StartTimestamp = items[i].StartTimestamp.UTC()
	}

	count, err := s.activities.UpsertActivities(ctx, userID, items)
	if err != nil {
		return SyncResult{}, persistenceErr("upsert activities", err)
	}

	s.logger.Info("activities synced", zap.String("user_id", userID), zap.Int("count", count))
	return SyncResult{Count: count}, nil
}
