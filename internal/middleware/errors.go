package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/soaringjerry/dyad/internal/utils"
)

// WriteError writes the JSON error body shared by every API response:
// {"error": code, "message": localized text}.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": utils.T(LocaleFromContext(r.Context()), "error."+code),
	})
}
