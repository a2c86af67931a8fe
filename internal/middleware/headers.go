package middleware

import "net/http"

// headerSet is a fixed group of response headers written before the wrapped
// handler runs, so handlers may still override individual entries.
type headerSet []struct{ key, value string }

func (hs headerSet) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range hs {
			h.Set(kv.key, kv.value)
		}
		next.ServeHTTP(w, r)
	})
}

var securityHeaders = headerSet{
	{"Referrer-Policy", "no-referrer"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

// Session views carry answer state and the participant token in the URL.
var noStoreHeaders = headerSet{
	{"Cache-Control", "no-store, max-age=0"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// SecureHeaders suppresses the referrer and framing for every response.
func SecureHeaders(next http.Handler) http.Handler { return securityHeaders.wrap(next) }

// NoStore marks responses uncacheable.
func NoStore(next http.Handler) http.Handler { return noStoreHeaders.wrap(next) }
