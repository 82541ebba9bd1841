package domain_test

import (
	"testing"
	"time"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/domain/domaintest"
)

var now = time.Date(2025, time.October, 27, 20, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...func(*domain.Options)) (*domain.Service, *domaintest.Store, *domaintest.Provider) {
	t.Helper()
	store := domaintest.NewStore()
	provider := &domaintest.Provider{}
	options := domain.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	service := domain.NewService(domain.Dependencies{
		Credentials: store,
		Activities:  store,
		Feedback:    store,
		Plans:       store,
		Dialogues:   store,
		AuthStates:  store,
		Provider:    provider,
	}, options, domain.WithClock(func() time.Time { return now }))
	return service, store, provider
}

func credentialExpiringIn(userID string, d time.Duration) domain.Credential {
	return domain.Credential{
		UserID:            userID,
		AccessToken:       "old-access",
		RefreshToken:      "old-refresh",
		ExpiresAt:         now.Add(d).Unix(),
		ExternalAthleteID: "134815",
	}
}

func km(v float64) *float64 { return &v }
