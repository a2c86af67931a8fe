package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// SupportedLocales lists the locales with server-side message catalogs.
var SupportedLocales = []string{"en", "zh"}

// DetermineLocale resolves the locale from an explicit query param, then the
// Accept-Language header, then def. Supported values are base tags like "en", "zh".
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	if len(supported) == 0 {
		return "en"
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, language.Make(strings.ToLower(s)))
	}
	matcher := language.NewMatcher(tags)

	if q := strings.TrimSpace(queryLang); q != "" {
		if tag, err := language.Parse(q); err == nil {
			if _, idx, conf := matcher.Match(tag); conf != language.No {
				return strings.ToLower(supported[idx])
			}
		}
	}
	if a := strings.TrimSpace(acceptLang); a != "" {
		if prefs, _, err := language.ParseAcceptLanguage(a); err == nil && len(prefs) > 0 {
			if _, idx, conf := matcher.Match(prefs...); conf != language.No {
				return strings.ToLower(supported[idx])
			}
		}
	}
	for _, s := range supported {
		if strings.EqualFold(s, def) {
			return strings.ToLower(s)
		}
	}
	return strings.ToLower(supported[0])
}
