package domain

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"example.com/trainingsync/internal/observability"
)

// CredentialManager keeps one valid provider access token per user.
// Refreshes for the same user are collapsed into a single provider call.
type CredentialManager struct {
	repo     CredentialRepository
	states   AuthStateStore
	provider Provider
	buffer   time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewCredentialManager constructs a CredentialManager. timeout bounds a shared
// refresh, which keeps running when the request that started it goes away.
func NewCredentialManager(repo CredentialRepository, states AuthStateStore, provider Provider, buffer, timeout time.Duration, logger *zap.Logger, now func() time.Time) *CredentialManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &CredentialManager{
		repo:     repo,
		states:   states,
		provider: provider,
		buffer:   buffer,
		timeout:  timeout,
		logger:   logger,
		now:      now,
	}
}

// Load returns the stored credential or ErrAuthentication when none is linked.
func (m *CredentialManager) Load(ctx context.Context, userID string) (Credential, error) {
	cred, err := m.repo.GetCredential(ctx, userID)
	if err != nil {
		return Credential{}, persistenceErr("load credential", err)
	}
	if cred == nil {
		return Credential{}, fmt.Errorf("%w: no provider credential linked", ErrAuthentication)
	}
	return *cred, nil
}

// EnsureValidToken returns cred unchanged unless it expires within the safety
// buffer, in which case the refresh token is exchanged and the new triple stored.
func (m *CredentialManager) EnsureValidToken(ctx context.Context, cred Credential) (Credential, error) {
	if !cred.ExpiresWithin(m.now(), m.buffer) {
		return cred, nil
	}

	v, err, shared := doShared(ctx, &m.group, "refresh:"+cred.UserID, m.timeout, func(work context.Context) (interface{}, error) {
		return m.refresh(work, cred)
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		m.logger.Debug("token refresh shared", zap.String("user_id", cred.UserID))
	}
	return v.(Credential), nil
}

func (m *CredentialManager) refresh(ctx context.Context, cred Credential) (Credential, error) {
	// Another request may have rotated the grant since cred was read.
	current, err := m.repo.GetCredential(ctx, cred.UserID)
	if err != nil {
		return Credential{}, persistenceErr("reload credential", err)
	}
	if current != nil && !current.ExpiresWithin(m.now(), m.buffer) {
		return *current, nil
	}
	if current != nil {
		cred = *current
	}
	if strings.TrimSpace(cred.RefreshToken) == "" {
		observability.RecordTokenRefresh("rejected")
		return Credential{}, fmt.Errorf("%w: missing refresh token", ErrAuthentication)
	}

	grant, err := m.provider.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		observability.RecordTokenRefresh("failed")
		m.logger.Warn("token refresh failed", zap.String("user_id", cred.UserID), zap.Error(err))
		return Credential{}, err
	}

	next := cred
	next.AccessToken = grant.AccessToken
	next.ExpiresAt = grant.ExpiresAt
	if grant.RefreshToken != "" {
		next.RefreshToken = grant.RefreshToken
	}
	if err := m.repo.SaveCredential(ctx, next); err != nil {
		observability.RecordTokenRefresh("failed")
		return Credential{}, persistenceErr("save credential", err)
	}

	observability.RecordTokenRefresh("refreshed")
	m.logger.Info("provider token refreshed",
		zap.String("user_id", cred.UserID),
		zap.Time("expires_at", time.Unix(next.ExpiresAt, 0).UTC()),
	)
	return next, nil
}

// Authorize issues a fresh OAuth state for userID and returns the provider
// consent URL carrying it. Only the latest state is accepted by Exchange.
func (m *CredentialManager) Authorize(ctx context.Context, userID string) (url, state string, err error) {
	state = uuid.NewString()
	if err := m.states.SaveAuthState(ctx, userID, state); err != nil {
		return "", "", persistenceErr("save authorization state", err)
	}
	return m.provider.AuthorizeURL(state), state, nil
}

// Exchange trades an authorization code for a grant and links it to userID.
// state must match the one issued by Authorize; it is consumed either way.
func (m *CredentialManager) Exchange(ctx context.Context, userID, code, state string) (Credential, error) {
	if strings.TrimSpace(code) == "" {
		return Credential{}, invalid("code", "is required")
	}
	if strings.TrimSpace(state) == "" {
		return Credential{}, invalid("state", "is required")
	}

	expected, err := m.states.TakeAuthState(ctx, userID)
	if err != nil {
		return Credential{}, persistenceErr("load authorization state", err)
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		m.logger.Warn("authorization state mismatch", zap.String("user_id", userID))
		return Credential{}, invalid("state", "does not match a pending authorization")
	}

	grant, err := m.provider.ExchangeCode(ctx, code)
	if err != nil {
		return Credential{}, err
	}

	cred := Credential{
		UserID:            userID,
		AccessToken:       grant.AccessToken,
		RefreshToken:      grant.RefreshToken,
		ExpiresAt:         grant.ExpiresAt,
		ExternalAthleteID: grant.AthleteID,
	}
	if err := m.repo.SaveCredential(ctx, cred); err != nil {
		return Credential{}, persistenceErr("save credential", err)
	}
	m.logger.Info("provider linked", zap.String("user_id", userID), zap.String("athlete_id", grant.AthleteID))
	return cred, nil
}
