// Package domaintest provides in-memory collaborators for exercising the
// domain service without Postgres, Redis or a provider.
package domaintest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/trainingsync/internal/domain"
)

// Store implements every domain repository and the dialogue store in memory.
type Store struct {
	mu          sync.Mutex
	credentials map[string]domain.Credential
	activities  map[string]domain.Activity
	feedback    []domain.FeedbackRecord
	plans       map[string]domain.Plan
	dialogues   map[string]domain.DialogueSnapshot
	authStates  map[string]string

	// Set to make the next InsertFeedback calls fail.
	InsertFeedbackErr error
	// Set to make SaveDialogue fail.
	SaveDialogueErr error

	CredentialWrites int
	UpsertCalls      int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		credentials: make(map[string]domain.Credential),
		activities:  make(map[string]domain.Activity),
		plans:       make(map[string]domain.Plan),
		dialogues:   make(map[string]domain.DialogueSnapshot),
		authStates:  make(map[string]string),
	}
}

func (s *Store) GetCredential(_ context.Context, userID string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[userID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// SaveCredential fails like a database driver once ctx is done.
func (s *Store) SaveCredential(ctx context.Context, cred domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.ExternalAthleteID == "" {
		cred.ExternalAthleteID = s.credentials[cred.UserID].ExternalAthleteID
	}
	s.credentials[cred.UserID] = cred
	s.CredentialWrites++
	return nil
}

// PutCredential seeds a credential without counting it as a write.
func (s *Store) PutCredential(cred domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.UserID] = cred
}

func (s *Store) LatestActivity(_ context.Context, userID string) (*domain.Activity, error) {
	recent := s.sortedActivities(userID)
	if len(recent) == 0 {
		return nil, nil
	}
	return &recent[0], nil
}

func (s *Store) UpsertActivities(_ context.Context, userID string, activities []domain.Activity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	for _, a := range activities {
		a.UserID = userID
		s.activities[a.ExternalID] = a
	}
	return len(activities), nil
}

func (s *Store) ListRecentActivities(_ context.Context, userID string, limit int) ([]domain.Activity, error) {
	recent := s.sortedActivities(userID)
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

// Activities returns every stored activity for userID, newest first.
func (s *Store) Activities(userID string) []domain.Activity {
	return s.sortedActivities(userID)
}

func (s *Store) sortedActivities(userID string) []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTimestamp.Equal(out[j].StartTimestamp) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].StartTimestamp.After(out[j].StartTimestamp)
	})
	return out
}

func (s *Store) InsertFeedback(_ context.Context, record domain.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertFeedbackErr != nil {
		return s.InsertFeedbackErr
	}
	for _, existing := range s.feedback {
		if existing.UserID == record.UserID && existing.SessionID == record.SessionID {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateFeedback, record.SessionID)
		}
	}
	s.feedback = append(s.feedback, record)
	return nil
}

func (s *Store) FeedbackExists(_ context.Context, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.feedback {
		if existing.UserID == userID && existing.SessionID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListFeedback(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.FeedbackRecord, *domain.Cursor, error) {
	s.mu.Lock()
	records := make([]domain.FeedbackRecord, 0)
	for _, r := range s.feedback {
		if r.UserID == userID {
			records = append(records, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if cursor != nil {
		filtered := records[:0]
		for _, r := range records {
			if r.CreatedAt.Before(cursor.CreatedAt) || (r.CreatedAt.Equal(cursor.CreatedAt) && r.ID < cursor.ID) {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if limit <= 0 {
		limit = 20
	}
	var next *domain.Cursor
	if len(records) > limit {
		last := records[limit-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		records = records[:limit]
	}
	return records, next, nil
}

// Feedback returns every stored record.
func (s *Store) Feedback() []domain.FeedbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeedbackRecord(nil), s.feedback...)
}

func (s *Store) ActivePlan(_ context.Context, userID string) (*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[userID]
	if !ok {
		return nil, nil
	}
	plan.Sessions = append([]domain.PlannedSession(nil), plan.Sessions...)
	return &plan, nil
}

func (s *Store) ReplacePlan(_ context.Context, plan domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan.Sessions = append([]domain.PlannedSession(nil), plan.Sessions...)
	s.plans[plan.UserID] = plan
	return nil
}

// PutPlan seeds a plan for userID.
func (s *Store) PutPlan(userID string, sessions ...domain.PlannedSession) {
	_ = s.ReplacePlan(context.Background(), domain.Plan{ID: "plan-" + userID, UserID: userID, Sessions: sessions, CreatedAt: time.Now().UTC()})
}

func (s *Store) LoadDialogue(_ context.Context, userID string) (*domain.DialogueSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.dialogues[userID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (s *Store) SaveDialogue(_ context.Context, snapshot domain.DialogueSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveDialogueErr != nil {
		return s.SaveDialogueErr
	}
	s.dialogues[snapshot.UserID] = snapshot
	return nil
}

func (s *Store) DeleteDialogue(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogues, userID)
	return nil
}

func (s *Store) SaveAuthState(_ context.Context, userID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authStates[userID] = state
	return nil
}

func (s *Store) TakeAuthState(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.authStates[userID]
	delete(s.authStates, userID)
	return state, nil
}
