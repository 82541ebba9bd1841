package domain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"example.com/trainingsync/internal/observability"
)

const (
	apologySave       = "Sorry, your feedback could not be saved. Please send your last answer again."
	apologyAdaptation = "Sorry, suggestions are unavailable right now. Your feedback was saved."
)

// DialogueOutcome is the result of applying one dialogue answer.
type DialogueOutcome struct {
	Snapshot    DialogueSnapshot
	Record      *FeedbackRecord
	Suggestions []string
	CloseAfter  time.Duration
}

// StartDialogue resumes the user's open dialogue or opens one for the next
// pending match.
func (s *Service) StartDialogue(ctx context.Context, userID string) (*DialogueSnapshot, error) {
	existing, err := s.dialogues.LoadDialogue(ctx, userID)
	if err != nil {
		return nil, persistenceErr("load dialogue", err)
	}
	if existing != nil && !existing.Terminal() {
		return existing, nil
	}

	match, err := s.FindPendingMatch(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := NewDialogue(userID, *match, s.now())
	if err := s.dialogues.SaveDialogue(ctx, snapshot); err != nil {
		return nil, persistenceErr("save dialogue", err)
	}
	observability.RecordDialogueStep(string(snapshot.Step))
	s.logger.Info("dialogue opened",
		zap.String("user_id", userID),
		zap.String("activity_id", match.Activity.ExternalID),
		zap.String("planned_session_id", match.Session.ID),
	)
	return &snapshot, nil
}

// CurrentDialogue returns the open dialogue or ErrNotFound.
func (s *Service) CurrentDialogue(ctx context.Context, userID string) (*DialogueSnapshot, error) {
	snapshot, err := s.dialogues.LoadDialogue(ctx, userID)
	if err != nil {
		return nil, persistenceErr("load dialogue", err)
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}
	return snapshot, nil
}

// AnswerDialogue advances the open dialogue by one answer. Feedback is only
// persisted when the dialogue reaches the complete step; if that write fails the
// snapshot stays on the comment step so the answer can be sent again.
func (s *Service) AnswerDialogue(ctx context.Context, userID, answer string) (*DialogueOutcome, error) {
	current, err := s.CurrentDialogue(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := current.Advance(answer, s.now())
	if err != nil {
		return nil, err
	}
	observability.RecordDialogueStep(string(next.Step))

	switch next.Step {
	case StepDeferred:
		if err := s.dialogues.DeleteDialogue(ctx, userID); err != nil {
			return nil, persistenceErr("delete dialogue", err)
		}
		return &DialogueOutcome{Snapshot: next}, nil
	case StepComplete:
		return s.completeDialogue(ctx, *current, next)
	}

	if err := s.dialogues.SaveDialogue(ctx, next); err != nil {
		return nil, persistenceErr("save dialogue", err)
	}
	return &DialogueOutcome{Snapshot: next}, nil
}

func (s *Service) completeDialogue(ctx context.Context, previous, next DialogueSnapshot) (*DialogueOutcome, error) {
	record, err := next.Record()
	if err != nil {
		return nil, err
	}

	saved, err := s.SubmitFeedback(ctx, record)
	if err != nil {
		if errors.Is(err, ErrDuplicateFeedback) {
			if delErr := s.dialogues.DeleteDialogue(ctx, previous.UserID); delErr != nil {
				s.logger.Warn("dialogue cleanup failed", zap.String("user_id", previous.UserID), zap.Error(delErr))
			}
			return nil, err
		}

		s.logger.Error("dialogue feedback not saved", zap.String("user_id", previous.UserID), zap.Error(err))
		previous.Transcript = append(append([]DialogueMessage(nil), previous.Transcript...), DialogueMessage{From: speakerCoach, Text: apologySave})
		if saveErr := s.dialogues.SaveDialogue(ctx, previous); saveErr != nil {
			s.logger.Warn("dialogue snapshot not saved", zap.String("user_id", previous.UserID), zap.Error(saveErr))
		}
		return &DialogueOutcome{Snapshot: previous}, err
	}

	suggestions, err := s.Adapt(ctx, saved.UserID, *saved)
	if err != nil {
		s.logger.Warn("adaptation unavailable", zap.String("user_id", saved.UserID), zap.Error(err))
		suggestions = nil
		next.Transcript = append(next.Transcript, DialogueMessage{From: speakerCoach, Text: apologyAdaptation})
	}
	for _, suggestion := range suggestions {
		next.Transcript = append(next.Transcript, DialogueMessage{From: speakerCoach, Text: suggestion})
	}

	if err := s.dialogues.DeleteDialogue(ctx, saved.UserID); err != nil {
		s.logger.Warn("dialogue cleanup failed", zap.String("user_id", saved.UserID), zap.Error(err))
	}

	return &DialogueOutcome{
		Snapshot:    next,
		Record:      saved,
		Suggestions: suggestions,
		CloseAfter:  s.opts.DialogueCloseDelay,
	}, nil
}

// AbandonDialogue discards the open dialogue without persisting anything.
func (s *Service) AbandonDialogue(ctx context.Context, userID string) error {
	if err := s.dialogues.DeleteDialogue(ctx, userID); err != nil {
		return persistenceErr("delete dialogue", err)
	}
	observability.RecordDialogueStep("abandoned")
	return nil
}
