// Package sanitize escapes untrusted text before it is placed into markup.
//
// Everything the remote service sends us as free text (titles, authors,
// genres, descriptions, usernames) goes through Text before it reaches a
// template. The result is typed template.HTML so html/template inserts it
// as-is instead of escaping it a second time.
package sanitize

import (
	"html"
	"html/template"
)

// Text escapes s so that it renders as literal visible characters.
// <, >, &, ' and " can never become structural markup.
//
// Escaping is not idempotent on the bytes (a second pass turns "&lt;" into
// "&amp;lt;") but it is on what the reader sees: the visible text of Text(s)
// is always exactly s.
func Text(s string) template.HTML {
	return template.HTML(html.EscapeString(s))
}

// Optional escapes *s, or returns fallback (escaped) when s is nil or blank.
func Optional(s *string, fallback string) template.HTML {
	if s == nil || *s == "" {
		return Text(fallback)
	}
	return Text(*s)
}
