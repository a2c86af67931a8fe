package api

import (
	"net/http"

	"github.com/soaringjerry/dyad/internal/services"
)

type adminLoginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// POST /api/admin/login
func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req adminLoginRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rt.adminAuth == nil {
		writeServiceError(w, r, services.NewUnauthorizedError("admin login disabled"))
		return
	}
	res, err := rt.adminLogin.Login(req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"expires_in": int(res.ExpiresIn.Seconds()),
	})
}

// GET, POST /api/admin/questions
func (rt *Router) handleAdminQuestions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		qs, err := rt.questions.List(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
	case http.MethodPost:
		var in services.QuestionInput
		if err := decodeRequest(w, r, &in); err != nil {
			writeServiceError(w, r, err)
			return
		}
		q, err := rt.questions.Create(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type questionActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// POST /api/admin/questions/{id}/active
func (rt *Router) handleAdminQuestionActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req questionActiveRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := rt.questions.SetActive(r.Context(), id, *req.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "active": *req.Active})
}

// GET /api/admin/sessions/{id}
func (rt *Router) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	detail, err := rt.admin.SessionDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GET /api/admin/sessions/{id}/export?format=long|wide
func (rt *Router) handleAdminSessionExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")
	data, err := rt.admin.Export(r.Context(), id, format)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if format == "" {
		format = "long"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="session-`+id+`-`+format+`.csv"`)
	_, _ = w.Write(data)
}
