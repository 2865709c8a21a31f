// ABOUTME: Deterministic placeholder avatars for conversations without a photo
// ABOUTME: Renders the display name's initial into an SVG data URL

package avatar

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vincent-petithory/dataurl"
)

var palette = []string{
	"#1abc9c", "#2ecc71", "#3498db", "#9b59b6", "#34495e",
	"#16a085", "#27ae60", "#2980b9", "#8e44ad", "#2c3e50",
	"#f39c12", "#e67e22", "#e74c3c", "#d35400", "#c0392b",
	"#7f8c8d",
}

// Initial returns the upper-cased first letter or digit of name, or "?".
func Initial(name string) string {
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r))
		}
	}
	return "?"
}

// Placeholder returns an SVG data URL for name. Equal initials produce
// byte-identical output.
func Placeholder(name string) string {
	initial := Initial(name)
	r := []rune(initial)[0]
	color := palette[int(r)%len(palette)]

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 128 128">`+
			`<rect width="128" height="128" rx="64" fill="%s"/>`+
			`<text x="50%%" y="50%%" dy=".35em" text-anchor="middle" fill="#ffffff" `+
			`font-family="Helvetica, Arial, sans-serif" font-size="56">%s</text></svg>`,
		color, escapeXML(initial))

	return dataurl.New([]byte(svg), "image/svg+xml").String()
}

// Resolve returns stored when it is non-empty, otherwise a placeholder for name.
func Resolve(stored, name string) string {
	if strings.TrimSpace(stored) != "" {
		return stored
	}
	return Placeholder(name)
}

func escapeXML(s string) string {
	switch s {
	case "&":
		return "&amp;"
	case "<":
		return "&lt;"
	case ">":
		return "&gt;"
	}
	return s
}
