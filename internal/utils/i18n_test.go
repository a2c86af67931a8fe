package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
}

func TestT_UnknownKey(t *testing.T) {
	if got := T("en", "error.nope"); got != "error.nope" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestT_CatalogsCoverSameKeys(t *testing.T) {
	for key := range translations["en"] {
		if _, ok := translations["zh"][key]; !ok {
			t.Fatalf("zh missing %s", key)
		}
	}
}
