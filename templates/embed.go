// Package templates provides embedded document templates.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed starter/*.md
var starterFS embed.FS

var starter = template.Must(template.ParseFS(starterFS, "starter/member.md"))

// Member fills the front-matter of a starter document.
type Member struct {
	Slug     string
	Name     string
	Color    string
	Timezone string
}

// StarterDocument renders a sample checklist document for m. Empty name,
// colour and timezone fall back to the slug, a neutral grey and UTC.
func StarterDocument(m Member) ([]byte, error) {
	if m.Slug == "" {
		return nil, fmt.Errorf("starter document: member slug is required")
	}
	if m.Name == "" {
		m.Name = m.Slug
	}
	if m.Color == "" {
		m.Color = "#888888"
	}
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}

	var buf bytes.Buffer
	if err := starter.Execute(&buf, m); err != nil {
		return nil, fmt.Errorf("render starter document: %w", err)
	}
	return buf.Bytes(), nil
}
