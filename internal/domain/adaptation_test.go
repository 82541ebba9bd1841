package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/domain"
)

func TestSuggestHighEffortOnly(t *testing.T) {
	plan := &domain.Plan{Sessions: []domain.PlannedSession{
		{ID: "s1", Date: now.Add(-24 * time.Hour), SessionType: "intervals", Title: "6x800m"},
		{ID: "s2", Date: now.Add(24 * time.Hour), SessionType: "easy", Title: "Recovery"},
		{ID: "s3", Date: now.Add(72 * time.Hour), SessionType: "tempo", Title: "Tempo 5k"},
	}}
	record := domain.FeedbackRecord{SessionDate: now, Sensation: 9, Adherence: domain.AdherenceFollowed}

	got := domain.Suggest(record, plan)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "9/10")
	assert.Contains(t, got[0], "Tempo 5k")
}

func TestSuggestAllRulesFire(t *testing.T) {
	record := domain.FeedbackRecord{
		SessionDate: now,
		Sensation:   8,
		Adherence:   domain.AdherencePartial,
		Pain:        domain.Pain{HasPain: true, Area: "knee"},
	}

	got := domain.Suggest(record, nil)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "8/10")
	assert.Contains(t, got[1], "knee")
	assert.Contains(t, got[2], string(domain.AdherencePartial))
}

func TestSuggestFallback(t *testing.T) {
	got := domain.Suggest(domain.FeedbackRecord{Sensation: 5, Adherence: domain.AdherenceFollowed}, nil)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "unchanged")

	got = domain.Suggest(domain.FeedbackRecord{Sensation: 7}, nil)
	require.Len(t, got, 1, "missing adherence does not count as a deviation")
}

func TestSuggestDoesNotMutatePlan(t *testing.T) {
	plan := &domain.Plan{Sessions: []domain.PlannedSession{{ID: "s1", Date: now.Add(24 * time.Hour), SessionType: "tempo", Title: "Tempo"}}}
	before := *plan
	before.Sessions = append([]domain.PlannedSession(nil), plan.Sessions...)

	domain.Suggest(domain.FeedbackRecord{SessionDate: now, Sensation: 10, Pain: domain.Pain{HasPain: true}}, plan)
	assert.Equal(t, before, *plan)
}

func TestAdaptRequiresPlan(t *testing.T) {
	service, store, _ := newService(t)
	record := domain.FeedbackRecord{Sensation: 9}

	_, err := service.Adapt(context.Background(), "user-1", record)
	require.ErrorIs(t, err, domain.ErrNotFound)

	store.PutPlan("user-1", domain.PlannedSession{ID: "s1", Date: now})
	got, err := service.Adapt(context.Background(), "user-1", record)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = service.Adapt(context.Background(), "user-1", domain.FeedbackRecord{Sensation: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
