package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/domain"
)

func feedbackFor(sessionID string) domain.FeedbackRecord {
	return domain.FeedbackRecord{
		UserID:      "user-1",
		SessionID:   sessionID,
		SessionDate: now.Add(-24 * time.Hour),
		Adherence:   domain.AdherenceFollowed,
		Sensation:   6,
		Pain:        domain.Pain{HasPain: false, Area: "ignored"},
	}
}

func TestSubmitFeedbackStoresOncePerSession(t *testing.T) {
	service, store, _ := newService(t)

	saved, err := service.SubmitFeedback(context.Background(), feedbackFor("a1"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, now, saved.CreatedAt)
	assert.Empty(t, saved.Pain.Area, "area dropped without pain")

	_, err = service.SubmitFeedback(context.Background(), feedbackFor("a1"))
	require.ErrorIs(t, err, domain.ErrDuplicateFeedback)
	assert.Len(t, store.Feedback(), 1)

	_, err = service.SubmitFeedback(context.Background(), feedbackFor("a2"))
	require.NoError(t, err)
	assert.Len(t, store.Feedback(), 2)
}

func TestSubmitFeedbackValidation(t *testing.T) {
	service, store, _ := newService(t)

	cases := map[string]func(*domain.FeedbackRecord){
		"sessionId":   func(r *domain.FeedbackRecord) { r.SessionID = " " },
		"sessionDate": func(r *domain.FeedbackRecord) { r.SessionDate = time.Time{} },
		"sensation":   func(r *domain.FeedbackRecord) { r.Sensation = 11 },
		"adherence":   func(r *domain.FeedbackRecord) { r.Adherence = "sort of" },
	}
	for field, mutate := range cases {
		record := feedbackFor("a1")
		mutate(&record)
		_, err := service.SubmitFeedback(context.Background(), record)
		require.ErrorIs(t, err, domain.ErrValidation, field)

		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr), field)
		assert.Equal(t, field, verr.Field)
	}

	anonymous := feedbackFor("a1")
	anonymous.UserID = ""
	_, err := service.SubmitFeedback(context.Background(), anonymous)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Empty(t, store.Feedback())
}

func TestSubmitFeedbackStoreFailure(t *testing.T) {
	service, store, _ := newService(t)
	store.InsertFeedbackErr = errors.New("connection reset")

	_, err := service.SubmitFeedback(context.Background(), feedbackFor("a1"))
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrDuplicateFeedback)
}

func TestReplacePlanValidates(t *testing.T) {
	service, _, _ := newService(t)

	_, err := service.ReplacePlan(context.Background(), domain.Plan{UserID: "user-1"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = service.ReplacePlan(context.Background(), domain.Plan{UserID: "user-1", Sessions: []domain.PlannedSession{
		{ID: "s1", Date: now},
		{ID: "s1", Date: now.Add(24 * time.Hour)},
	}})
	require.ErrorIs(t, err, domain.ErrValidation)

	saved, err := service.ReplacePlan(context.Background(), domain.Plan{UserID: "user-1", Sessions: []domain.PlannedSession{
		{ID: "s2", Date: now.Add(24 * time.Hour), PlannedDistanceKm: km(8)},
		{ID: "s1", Date: now},
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	active, err := service.ActivePlan(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, active.Sessions, 2)
	assert.Equal(t, "s2", active.Sessions[0].ID, "plan order is preserved")
}

func TestListFeedbackClampsPageSize(t *testing.T) {
	service, store, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < domain.MaxFeedbackPage+5; i++ {
		record := feedbackFor(fmt.Sprintf("a%03d", i))
		record.ID = fmt.Sprintf("f%03d", i)
		record.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertFeedback(ctx, record))
	}

	page, next, err := service.ListFeedback(ctx, "user-1", nil, 500)
	require.NoError(t, err)
	assert.Len(t, page, domain.MaxFeedbackPage)
	require.NotNil(t, next)

	page, _, err = service.ListFeedback(ctx, "user-1", nil, 0)
	require.NoError(t, err)
	assert.Len(t, page, domain.DefaultFeedbackPage)
}
