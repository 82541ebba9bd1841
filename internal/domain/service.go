// Package domain defines the business logic for plan reconciliation: provider
// credentials, activity sync, session matching, the feedback dialogue, and plan
// adaptation.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CredentialRepository stores the provider grant owned by a user.
type CredentialRepository interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	SaveCredential(ctx context.Context, credential Credential) error
}

// ActivityRepository persists activities ingested from the provider.
type ActivityRepository interface {
	LatestActivity(ctx context.Context, userID string) (*Activity, error)
	UpsertActivities(ctx context.Context, userID string, activities []Activity) (int, error)
	ListRecentActivities(ctx context.Context, userID string, limit int) ([]Activity, error)
}

// FeedbackRepository persists feedback records.
type FeedbackRepository interface {
	InsertFeedback(ctx context.Context, record FeedbackRecord) error
	FeedbackExists(ctx context.Context, userID, sessionID string) (bool, error)
	ListFeedback(ctx context.Context, userID string, cursor *Cursor, limit int) ([]FeedbackRecord, *Cursor, error)
}

// PlanRepository reads and replaces the plan produced by the plan generator.
type PlanRepository interface {
	ActivePlan(ctx context.Context, userID string) (*Plan, error)
	ReplacePlan(ctx context.Context, plan Plan) error
}

// DialogueStore keeps in-progress dialogue snapshots so a client can resume.
type DialogueStore interface {
	LoadDialogue(ctx context.Context, userID string) (*DialogueSnapshot, error)
	SaveDialogue(ctx context.Context, snapshot DialogueSnapshot) error
	DeleteDialogue(ctx context.Context, userID string) error
}

// AuthStateStore remembers the OAuth state issued to a user until the
// provider redirects back. TakeAuthState returns "" when none is pending and
// removes what it returns.
type AuthStateStore interface {
	SaveAuthState(ctx context.Context, userID, state string) error
	TakeAuthState(ctx context.Context, userID string) (string, error)
}

// TokenGrant is a token triple issued by the provider.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	AthleteID    string
}

// Provider is the external fitness-tracking provider.
type Provider interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (TokenGrant, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error)
	ListActivities(ctx context.Context, accessToken string, after *time.Time, perPage int) ([]Activity, error)
}

// Options tunes the reconciliation engine.
type Options struct {
	RefreshBuffer      time.Duration
	PageSize           int
	MatchWindow        time.Duration
	MatchCandidates    int
	MatchScanLimit     int
	DialogueCloseDelay time.Duration
	SharedTimeout      time.Duration
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		RefreshBuffer:      5 * time.Minute,
		PageSize:           200,
		MatchWindow:        12 * time.Hour,
		MatchCandidates:    5,
		MatchScanLimit:     50,
		DialogueCloseDelay: 4 * time.Second,
		SharedTimeout:      30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RefreshBuffer <= 0 {
		o.RefreshBuffer = d.RefreshBuffer
	}
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MatchWindow <= 0 {
		o.MatchWindow = d.MatchWindow
	}
	if o.MatchCandidates <= 0 {
		o.MatchCandidates = d.MatchCandidates
	}
	if o.MatchScanLimit < o.MatchCandidates {
		o.MatchScanLimit = max(d.MatchScanLimit, o.MatchCandidates)
	}
	if o.SharedTimeout <= 0 {
		o.SharedTimeout = d.SharedTimeout
	}
	if o.DialogueCloseDelay < 0 {
		o.DialogueCloseDelay = 0
	}
	return o
}

// Dependencies groups the collaborators of Service.
type Dependencies struct {
	Credentials CredentialRepository
	Activities  ActivityRepository
	Feedback    FeedbackRepository
	Plans       PlanRepository
	Dialogues   DialogueStore
	AuthStates  AuthStateStore
	Provider    Provider
}

// Service orchestrates reconciliation workflows.
type Service struct {
	credentials CredentialRepository
	activities  ActivityRepository
	feedback    FeedbackRepository
	plans       PlanRepository
	dialogues   DialogueStore
	provider    Provider
	tokens      *CredentialManager
	matcher     Matcher
	opts        Options
	logger      *zap.Logger
	now         func() time.Time
	syncGroup   singleflight.Group
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(deps Dependencies, opts Options, options ...Option) *Service {
	opts = opts.withDefaults()
	s := &Service{
		credentials: deps.Credentials,
		activities:  deps.Activities,
		feedback:    deps.Feedback,
		plans:       deps.Plans,
		dialogues:   deps.Dialogues,
		provider:    deps.Provider,
		matcher:     Matcher{Window: opts.MatchWindow},
		opts:        opts,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	s.tokens = NewCredentialManager(deps.Credentials, deps.AuthStates, deps.Provider, opts.RefreshBuffer, opts.SharedTimeout, s.logger, s.now)
	return s
}

// Credentials exposes the credential manager.
func (s *Service) Credentials() *CredentialManager {
	return s.tokens
}

// ActivePlan returns the user's plan or ErrNotFound.
func (s *Service) ActivePlan(ctx context.Context, userID string) (*Plan, error) {
	plan, err := s.plans.ActivePlan(ctx, userID)
	if err != nil {
		return nil, persistenceErr("load plan", err)
	}
	if plan == nil {
		return nil, ErrNotFound
	}
	return plan, nil
}

// ReplacePlan stores the ordered session list produced by the plan generator.
func (s *Service) ReplacePlan(ctx context.Context, plan Plan) (*Plan, error) {
	if len(plan.Sessions) == 0 {
		return nil, invalid("sessions", "must not be empty")
	}
	seen := make(map[string]struct{}, len(plan.Sessions))
	for i, session := range plan.Sessions {
		if session.ID == "" {
			return nil, invalid("sessions.id", "is required")
		}
		if _, dup := seen[session.ID]; dup {
			return nil, invalid("sessions.id", "must be unique")
		}
		seen[session.ID] = struct{}{}
		if session.Date.IsZero() {
			return nil, invalid("sessions.date", "is required")
		}
		if session.PlannedDurationMinutes < 0 {
			return nil, invalid("sessions.plannedDurationMinutes", "must be >= 0")
		}
		plan.Sessions[i].Date = session.Date.UTC()
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plan.CreatedAt = s.now().UTC()
	if err := s.plans.ReplacePlan(ctx, plan); err != nil {
		return nil, persistenceErr("replace plan", err)
	}
	return &plan, nil
}
