// Package templates embeds the minimal HTML pages of the browser consent
// flow. Styling is deliberately absent; the product UI lives elsewhere.
package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var files embed.FS

// Load parses the embedded page templates.
func Load() (*template.Template, error) {
	return template.ParseFS(files, "*.html")
}
