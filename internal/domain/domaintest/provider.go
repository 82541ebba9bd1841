package domaintest

import (
	"context"
	"sync"
	"time"

	"example.com/trainingsync/internal/domain"
)

// Provider is a scripted domain.Provider. ListActivities honours the after
// cursor the way the real API does.
type Provider struct {
	mu sync.Mutex

	Grant       domain.TokenGrant
	RefreshErr  error
	ExchangeErr error
	ListErr     error
	Remote      []domain.Activity
	// Delay is slept inside RefreshToken and ListActivities.
	Delay time.Duration
	// AfterRefresh runs once RefreshToken has produced its grant.
	AfterRefresh func()

	RefreshCalls  int
	ListCalls     int
	LastAfter     *time.Time
	LastToken     string
	LastPerPage   int
	LastRefreshed string
}

func (p *Provider) AuthorizeURL(state string) string {
	return "https://provider.test/oauth/authorize?state=" + state
}

func (p *Provider) ExchangeCode(_ context.Context, _ string) (domain.TokenGrant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ExchangeErr != nil {
		return domain.TokenGrant{}, p.ExchangeErr
	}
	return p.Grant, nil
}

func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	p.sleep(ctx)
	p.mu.Lock()
	p.RefreshCalls++
	p.LastRefreshed = refreshToken
	grant, err := p.Grant, p.RefreshErr
	after := p.AfterRefresh
	p.mu.Unlock()

	if err != nil {
		return domain.TokenGrant{}, err
	}
	if after != nil {
		after()
	}
	return grant, nil
}

func (p *Provider) ListActivities(ctx context.Context, accessToken string, after *time.Time, perPage int) ([]domain.Activity, error) {
	p.sleep(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListCalls++
	p.LastToken = accessToken
	p.LastAfter = after
	p.LastPerPage = perPage
	if p.ListErr != nil {
		return nil, p.ListErr
	}

	out := make([]domain.Activity, 0, len(p.Remote))
	for _, a := range p.Remote {
		if after != nil && !a.StartTimestamp.After(*after) {
			continue
		}
		out = append(out, a)
		if perPage > 0 && len(out) == perPage {
			break
		}
	}
	return out, nil
}

// Calls returns the refresh and list call counts.
func (p *Provider) Calls() (refresh, list int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RefreshCalls, p.ListCalls
}

func (p *Provider) sleep(ctx context.Context) {
	if p.Delay <= 0 {
		return
	}
	select {
	case <-time.After(p.Delay):
	case <-ctx.Done():
	}
}
