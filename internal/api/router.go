package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/soaringjerry/dyad/internal/metrics"
	"github.com/soaringjerry/dyad/internal/middleware"
	"github.com/soaringjerry/dyad/internal/services"
	"github.com/soaringjerry/dyad/internal/utils"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Deps wires the router to its store and optional collaborators.
type Deps struct {
	Store services.Store
	// Notifier receives sessions that became ready. Nil ensures the report
	// run inline.
	Notifier          services.ReadyNotifier
	AdminAuth         *middleware.AdminAuth
	AdminPasswordHash string
	AdminTokenTTL     time.Duration
	CreateLimiter     *middleware.RateLimiter
	// CORSOrigins restricts cross-origin callers; empty allows any origin.
	CORSOrigins []string
	StaticDir   string
	Commit      string
	BuildTime   string
}

type Router struct {
	sessions   *services.SessionService
	progress   *services.ProgressService
	completion *services.CompletionService
	questions  *services.QuestionService
	admin      *services.AdminService
	adminLogin *services.AdminAuthService
	adminAuth  *middleware.AdminAuth
	limiter    *middleware.RateLimiter
	cors       *middleware.CORSPolicy
	staticDir  string
	commit     string
	buildTime  string
}

func NewRouter(d Deps) *Router {
	notifier := d.Notifier
	if notifier == nil {
		notifier = services.NewReportService(d.Store)
	}
	var signer services.TokenSigner
	if d.AdminAuth != nil {
		signer = d.AdminAuth.SignToken
	}
	return &Router{
		sessions:   services.NewSessionService(d.Store),
		progress:   services.NewProgressService(d.Store),
		completion: services.NewCompletionService(d.Store, notifier),
		questions:  services.NewQuestionService(d.Store),
		admin:      services.NewAdminService(d.Store),
		adminLogin: services.NewAdminAuthService(d.AdminPasswordHash, signer, d.AdminTokenTTL),
		adminAuth:  d.AdminAuth,
		limiter:    d.CreateLimiter,
		cors:       middleware.NewCORSPolicy(d.CORSOrigins),
		staticDir:  d.StaticDir,
		commit:     d.Commit,
		buildTime:  d.BuildTime,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	// Participant operations; method checks happen in the handlers.
	mux.Handle("/api/create-session", rt.limiter.Limit(http.HandlerFunc(rt.handleCreateSession)))
	mux.HandleFunc("/api/get-session", rt.handleGetSession)
	mux.HandleFunc("/api/save-progress", rt.handleSaveProgress)
	mux.HandleFunc("/api/complete-session", rt.handleCompleteSession)

	mux.HandleFunc("/api/admin/login", rt.handleAdminLogin)
	admin := rt.adminAuth.RequireAdmin
	mux.Handle("/api/admin/questions", admin(http.HandlerFunc(rt.handleAdminQuestions)))
	mux.Handle("/api/admin/questions/{id}/active", admin(http.HandlerFunc(rt.handleAdminQuestionActive)))
	mux.Handle("/api/admin/sessions/{id}", admin(http.HandlerFunc(rt.handleAdminSession)))
	mux.Handle("/api/admin/sessions/{id}/export", admin(http.HandlerFunc(rt.handleAdminSessionExport)))

	mux.HandleFunc("/health", rt.handleHealth)
	mux.HandleFunc("/version", rt.handleVersion)
	mux.Handle("/metrics", metrics.Handler())

	if rt.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(rt.staticDir)))
	}
}

// Handler returns the full middleware chain around a fresh mux.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return rt.cors.Wrap(
		middleware.SecureHeaders(
			middleware.NoStore(
				middleware.Locale(
					middleware.Tracing(
						middleware.Metrics(mux))))))
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       "Dyad API",
		"locale":     locale,
		"msg":        utils.T(locale, "health.ok"),
		"commit":     rt.commit,
		"build_time": rt.buildTime,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.commit,
		"build_time": rt.buildTime,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	middleware.WriteError(w, r, http.StatusMethodNotAllowed, string(services.ErrorMethodNotAllowed))
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid, services.ErrorMissingToken:
		return http.StatusBadRequest
	case services.ErrorInvalidToken, services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorAlreadyCompleted, services.ErrorIncompleteAnswers, services.ErrorConcurrentCompletion:
		return http.StatusConflict
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Expected *int   `json:"expected,omitempty"`
	Received *int   `json:"received,omitempty"`
}

// writeServiceError renders err as the public error body. Causes are logged,
// never sent.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		se = &services.ServiceError{Code: services.ErrorPersistence, Message: "internal error", Err: err}
	}
	status := statusFor(se.Code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "code", se.Code, "error", err)
	}
	body := errorBody{
		Error:   string(se.Code),
		Message: utils.T(middleware.LocaleFromContext(r.Context()), "error."+string(se.Code)),
	}
	if se.Code == services.ErrorIncompleteAnswers {
		expected, received := se.Expected, se.Received
		body.Expected, body.Received = &expected, &received
	}
	writeJSON(w, status, body)
}

// decodeRequest reads a single JSON object into dst and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.NewInvalidError(fmt.Sprintf("decode body: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return services.NewInvalidError("body must contain a single JSON object")
	}
	if err := validate.Struct(dst); err != nil {
		return services.NewInvalidError(err.Error())
	}
	return nil
}
