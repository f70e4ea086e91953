package util

import (
	"strings"

	"github.com/faro-watch/faro/backend/pkg/common"
)

// SanitizePostgresText drops NUL bytes and invalid UTF-8, neither of which a
// Postgres text column accepts.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeArticle cleans every free-text field of a submitted article.
// Offsets of extracted mentions refer to the sanitized RawText.
func SanitizeArticle(a common.Article) common.Article {
	a.ID = strings.TrimSpace(SanitizePostgresText(a.ID))
	a.Outlet = strings.TrimSpace(SanitizePostgresText(a.Outlet))
	a.Title = strings.TrimSpace(SanitizePostgresText(a.Title))
	a.URL = strings.TrimSpace(SanitizePostgresText(a.URL))
	a.Language = strings.ToLower(strings.TrimSpace(a.Language))
	a.RawText = SanitizePostgresText(a.RawText)
	return a
}
