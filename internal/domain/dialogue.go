package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DialogueStep is one state of the feedback dialogue.
type DialogueStep string

const (
	StepIntro        DialogueStep = "intro"
	StepAdherence    DialogueStep = "adherence"
	StepSensation    DialogueStep = "sensation"
	StepPainPresence DialogueStep = "pain_presence"
	StepPainArea     DialogueStep = "pain_area"
	StepComment      DialogueStep = "comment"
	StepComplete     DialogueStep = "complete"
	StepDeferred     DialogueStep = "deferred"
)

// Intro and pain presence answers.
const (
	ChoiceProceed = "proceed"
	ChoiceDefer   = "defer"

	PainNone   = "no pain"
	PainMild   = "mild discomfort"
	PainMarked = "marked pain"
)

const (
	speakerCoach   = "coach"
	speakerAthlete = "athlete"
)

// DialoguePair is the matched activity and planned session under review.
type DialoguePair struct {
	ActivityID        string     `json:"activityId"`
	ActivityName      string     `json:"activityName"`
	ActivityStart     time.Time  `json:"activityStart"`
	PlannedSessionID  string     `json:"plannedSessionId"`
	SessionTitle      string     `json:"sessionTitle"`
	SessionDate       time.Time  `json:"sessionDate"`
	PlannedVsRealized Comparison `json:"plannedVsRealized"`
}

// DialogueAnswers accumulates the answers collected so far.
type DialogueAnswers struct {
	Adherence Adherence `json:"adherence,omitempty"`
	Sensation int       `json:"sensation,omitempty"`
	PainLevel string    `json:"painLevel,omitempty"`
	HasPain   bool      `json:"hasPain,omitempty"`
	PainArea  string    `json:"painArea,omitempty"`
	Comment   string    `json:"comment,omitempty"`
}

// DialogueMessage is one transcript line.
type DialogueMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// DialogueSnapshot is the serializable state of a dialogue: the active step and
// the answers so far. Exactly one step is active at a time.
type DialogueSnapshot struct {
	UserID     string            `json:"userId"`
	Step       DialogueStep      `json:"step"`
	Pair       DialoguePair      `json:"pair"`
	Answers    DialogueAnswers   `json:"answers"`
	Transcript []DialogueMessage `json:"transcript"`
	StartedAt  time.Time         `json:"startedAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Prompt describes what the active step expects.
type Prompt struct {
	Step     DialogueStep
	Text     string
	Choices  []string
	Optional bool
}

// NewDialogue opens a dialogue at the intro step for a matched pair.
func NewDialogue(userID string, match PendingMatch, now time.Time) DialogueSnapshot {
	d := DialogueSnapshot{
		UserID: userID,
		Step:   StepIntro,
		Pair: DialoguePair{
			ActivityID:        match.Activity.ExternalID,
			ActivityName:      match.Activity.Name,
			ActivityStart:     match.Activity.StartTimestamp.UTC(),
			PlannedSessionID:  match.Session.ID,
			SessionTitle:      match.Session.Title,
			SessionDate:       match.Session.Date.UTC(),
			PlannedVsRealized: CompareEffort(match.Activity, match.Session),
		},
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	d.Transcript = []DialogueMessage{{From: speakerCoach, Text: d.Prompt().Text}}
	return d
}

// Terminal reports whether the dialogue has ended.
func (d DialogueSnapshot) Terminal() bool {
	return d.Step == StepComplete || d.Step == StepDeferred
}

// Prompt returns the question for the active step.
func (d DialogueSnapshot) Prompt() Prompt {
	switch d.Step {
	case StepIntro:
		return Prompt{
			Step: StepIntro,
			Text: fmt.Sprintf("Your activity %q on %s looks like the planned session %q. Share some quick feedback?",
				d.Pair.ActivityName, d.Pair.ActivityStart.Format("2006-01-02"), d.Pair.SessionTitle),
			Choices: []string{ChoiceProceed, ChoiceDefer},
		}
	case StepAdherence:
		choices := make([]string, 0, len(Adherences))
		for _, a := range Adherences {
			choices = append(choices, string(a))
		}
		return Prompt{Step: StepAdherence, Text: "Did you follow the planned session?", Choices: choices}
	case StepSensation:
		return Prompt{Step: StepSensation, Text: "How hard did it feel, from 1 (very easy) to 10 (maximal)?"}
	case StepPainPresence:
		return Prompt{Step: StepPainPresence, Text: "Did you feel any pain?", Choices: []string{PainNone, PainMild, PainMarked}}
	case StepPainArea:
		return Prompt{Step: StepPainArea, Text: "Where did you feel it?"}
	case StepComment:
		return Prompt{Step: StepComment, Text: "Anything else to add? (optional)", Optional: true}
	case StepDeferred:
		return Prompt{Step: StepDeferred, Text: "No problem, we can talk about it later."}
	default:
		return Prompt{Step: StepComplete, Text: "Thanks, your feedback has been recorded."}
	}
}

// Advance applies one answer to the active step and returns the next snapshot.
// An invalid answer returns a ValidationError and leaves d untouched.
func (d DialogueSnapshot) Advance(answer string, now time.Time) (DialogueSnapshot, error) {
	answer = strings.TrimSpace(answer)
	prompt := d.Prompt()
	next := d
	next.Transcript = append([]DialogueMessage(nil), d.Transcript...)

	switch d.Step {
	case StepIntro:
		choice, ok := matchChoice(answer, prompt.Choices)
		if !ok {
			return d, invalid("answer", "must be one of: "+strings.Join(prompt.Choices, ", "))
		}
		if choice == ChoiceDefer {
			next.Step = StepDeferred
		} else {
			next.Step = StepAdherence
		}
		answer = choice
	case StepAdherence:
		choice, ok := matchChoice(answer, prompt.Choices)
		if !ok {
			return d, invalid("answer", "must be one of: "+strings.Join(prompt.Choices, ", "))
		}
		next.Answers.Adherence = Adherence(choice)
		next.Step = StepSensation
		answer = choice
	case StepSensation:
		value, err := strconv.Atoi(answer)
		if err != nil || value < 1 || value > 10 {
			return d, invalid("answer", "must be an integer between 1 and 10")
		}
		next.Answers.Sensation = value
		next.Step = StepPainPresence
	case StepPainPresence:
		choice, ok := matchChoice(answer, prompt.Choices)
		if !ok {
			return d, invalid("answer", "must be one of: "+strings.Join(prompt.Choices, ", "))
		}
		next.Answers.PainLevel = choice
		next.Answers.HasPain = choice != PainNone
		if next.Answers.HasPain {
			next.Step = StepPainArea
		} else {
			next.Answers.PainArea = ""
			next.Step = StepComment
		}
		answer = choice
	case StepPainArea:
		if answer == "" {
			return d, invalid("answer", "pain area is required")
		}
		next.Answers.PainArea = answer
		next.Step = StepComment
	case StepComment:
		next.Answers.Comment = answer
		next.Step = StepComplete
	default:
		return d, invalid("dialogue", "is already closed")
	}

	if answer != "" {
		next.Transcript = append(next.Transcript, DialogueMessage{From: speakerAthlete, Text: answer})
	}
	next.Transcript = append(next.Transcript, DialogueMessage{From: speakerCoach, Text: next.Prompt().Text})
	next.UpdatedAt = now.UTC()
	return next, nil
}

// Record builds the feedback record of a completed dialogue.
func (d DialogueSnapshot) Record() (FeedbackRecord, error) {
	if d.Step != StepComplete {
		return FeedbackRecord{}, invalid("dialogue", "is not complete")
	}
	return FeedbackRecord{
		UserID:       d.UserID,
		SessionID:    d.Pair.ActivityID,
		SessionDate:  d.Pair.SessionDate,
		SessionTitle: d.Pair.SessionTitle,
		Adherence:    d.Answers.Adherence,
		Sensation:    d.Answers.Sensation,
		Pain: Pain{
			HasPain: d.Answers.HasPain,
			Area:    d.Answers.PainArea,
		},
		Comment:           d.Answers.Comment,
		PlannedVsRealized: d.Pair.PlannedVsRealized,
	}, nil
}

// matchChoice accepts a choice by its text (case-insensitive) or 1-based position.
func matchChoice(answer string, choices []string) (string, bool) {
	for _, choice := range choices {
		if strings.EqualFold(answer, choice) {
			return choice, true
		}
	}
	if idx, err := strconv.Atoi(answer); err == nil && idx >= 1 && idx <= len(choices) {
		return choices[idx-1], true
	}
	return "", false
}
