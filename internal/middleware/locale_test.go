package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLocale(t *testing.T) {
	var got string
	h := Locale(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "zh" {
		t.Fatalf("locale = %q, want zh", got)
	}
	if cl := rec.Header().Get("Content-Language"); cl != "zh" {
		t.Fatalf("Content-Language = %q, want zh", cl)
	}

	req = httptest.NewRequest(http.MethodGet, "/health?lang=en", nil)
	req.Header.Set("Accept-Language", "zh")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
}

func TestLocaleFromContextDefault(t *testing.T) {
	if got := LocaleFromContext(context.Background()); got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
	if got := LocaleFromContext(WithLocale(context.Background(), "zh")); got != "zh" {
		t.Fatalf("locale = %q, want zh", got)
	}
}
