package api

import (
	"net/http"

	"github.com/soaringjerry/dyad/internal/services"
)

type createSessionResponse struct {
	SessionID string                 `json:"session_id"`
	Status    services.SessionStatus `json:"status"`
	TokenA    string                 `json:"token_a"`
	TokenB    string                 `json:"token_b"`
}

// POST /api/create-session
func (rt *Router) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	out, err := rt.sessions.Create(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID: out.SessionID,
		Status:    out.Status,
		TokenA:    out.TokenA,
		TokenB:    out.TokenB,
	})
}

// GET /api/get-session?token=
func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	view, err := rt.sessions.Get(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	QuestionID  string `json:"question_id" validate:"required,max=64"`
	ChoiceValue *int   `json:"choice_value" validate:"required"`
}

type saveProgressRequest struct {
	Token    string          `json:"token"`
	Answers  []answerRequest `json:"answers" validate:"max=500,dive"`
	FreeText *string         `json:"free_text" validate:"omitempty,max=10000"`
}

// POST /api/save-progress
// { token, answers: [{question_id, choice_value}], free_text? }
func (rt *Router) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req saveProgressRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	answers := make([]services.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, services.Answer{QuestionID: a.QuestionID, ChoiceValue: *a.ChoiceValue})
	}
	err := rt.progress.Save(r.Context(), services.ProgressRequest{
		Token:    req.Token,
		Answers:  answers,
		FreeText: req.FreeText,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type completeSessionRequest struct {
	Token    string  `json:"token"`
	FreeText *string `json:"free_text" validate:"omitempty,max=10000"`
}

// POST /api/complete-session
// { token, free_text? }
func (rt *Router) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req completeSessionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	status, err := rt.completion.Complete(r.Context(), services.CompletionRequest{
		Token:    req.Token,
		FreeText: req.FreeText,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status})
}
