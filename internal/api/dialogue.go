package api

import (
	"net/http"

	"example.com/trainingsync/internal/domain"
)

func (h *Handler) dialogue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		snapshot, err := h.service.StartDialogue(r.Context(), userID)
		if err != nil {
			h.fail(w, r, "dialogue not started", err)
			return
		}
		writeJSON(w, http.StatusOK, toDialogueView(*snapshot))
	case http.MethodGet:
		snapshot, err := h.service.CurrentDialogue(r.Context(), userID)
		if err != nil {
			h.fail(w, r, "dialogue lookup failed", err)
			return
		}
		writeJSON(w, http.StatusOK, toDialogueView(*snapshot))
	case http.MethodDelete:
		if err := h.service.AbandonDialogue(r.Context(), userID); err != nil {
			h.fail(w, r, "dialogue not abandoned", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) answerDialogue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	outcome, err := h.service.AnswerDialogue(r.Context(), userID, req.Answer)
	if err != nil {
		status, code := statusFor(err)
		h.log(r, status, "dialogue answer rejected", err)
		if outcome == nil {
			writeError(w, status, code, err.Error())
			return
		}
		view := toDialogueView(outcome.Snapshot)
		writeJSON(w, status, DialogueErrorResponse{Type: code, Detail: err.Error(), Dialogue: &view})
		return
	}

	resp := AnswerResponse{
		Dialogue:     toDialogueView(outcome.Snapshot),
		Suggestions:  outcome.Suggestions,
		CloseAfterMs: outcome.CloseAfter.Milliseconds(),
	}
	if outcome.Record != nil {
		view := toFeedbackView(*outcome.Record)
		resp.Feedback = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnswerRequest is the payload for POST /dialogue/answer.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// PromptView describes what the active step expects.
type PromptView struct {
	Text     string   `json:"text"`
	Choices  []string `json:"choices,omitempty"`
	Optional bool     `json:"optional"`
}

// DialogueView exposes a dialogue snapshot with its active prompt.
type DialogueView struct {
	Step       domain.DialogueStep      `json:"step"`
	Prompt     PromptView               `json:"prompt"`
	Pair       domain.DialoguePair      `json:"pair"`
	Answers    domain.DialogueAnswers   `json:"answers"`
	Transcript []domain.DialogueMessage `json:"transcript"`
	Done       bool                     `json:"done"`
}

// AnswerResponse is the result of one accepted answer.
type AnswerResponse struct {
	Dialogue     DialogueView  `json:"dialogue"`
	Feedback     *FeedbackView `json:"feedback,omitempty"`
	Suggestions  []string      `json:"suggestions,omitempty"`
	CloseAfterMs int64         `json:"closeAfterMs,omitempty"`
}

// DialogueErrorResponse is an error body that still carries the dialogue state.
type DialogueErrorResponse struct {
	Type     string        `json:"type"`
	Detail   string        `json:"detail"`
	Dialogue *DialogueView `json:"dialogue,omitempty"`
}

func toDialogueView(snapshot domain.DialogueSnapshot) DialogueView {
	prompt := snapshot.Prompt()
	return DialogueView{
		Step: snapshot.Step,
		Prompt: PromptView{
			Text:     prompt.Text,
			Choices:  prompt.Choices,
			Optional: prompt.Optional,
		},
		Pair:       snapshot.Pair,
		Answers:    snapshot.Answers,
		Transcript: snapshot.Transcript,
		Done:       snapshot.Terminal(),
	}
}
