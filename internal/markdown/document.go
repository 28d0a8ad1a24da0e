// Package markdown parses member checklist documents.
//
// A document is a YAML front-matter block naming its owner followed by
// markdown checklist items grouped under headings:
//
//	---
//	member: alice
//	timezone: America/Los_Angeles
//	---
//	## Morning
//	- [ ] Brush teeth
//	  time: 07:30
//	  recurring: daily
//
// Indented "key: value" lines under an item are metadata; other indented
// lines are free-text notes.
package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/randalmurphal/famplan/internal/recurrence"
)

// maxSlugLen caps derived task keys.
const maxSlugLen = 80

// Document is one parsed member document.
type Document struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Owner    Owner  `json:"owner"`
	Tasks    []Task `json:"tasks"`
}

// Task is one checklist item with its derived fields.
type Task struct {
	Key        string              `json:"key"`
	Title      string              `json:"title"`
	Notes      string              `json:"notes,omitempty"`
	Category   string              `json:"category,omitempty"`
	Tags       []string            `json:"tags"`
	Checked    bool                `json:"checked"`
	TimeOfDay  string              `json:"timeOfDay,omitempty"`
	Metadata   map[string]string   `json:"metadata"`
	Recurrence *recurrence.Pattern `json:"recurrence,omitempty"`
	// SourceLine is the 1-based line of the checkbox counted from the top
	// of the file, front-matter included.
	SourceLine int `json:"sourceLine"`
}

// Parse parses one document. path is recorded as-is and used in errors.
func Parse(path string, content []byte) (*Document, error) {
	lines := splitLines(string(content))

	owner, bodyStart, err := splitFrontMatter(path, lines)
	if err != nil {
		return nil, err
	}

	items := scan(lines[bodyStart:], bodyStart)
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, derive(item))
	}
	assignKeys(tasks)

	return &Document{
		Path:     path,
		Checksum: Checksum(content),
		Owner:    owner,
		Tasks:    tasks,
	}, nil
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func derive(item openTask) Task {
	t := Task{
		Title:      item.title,
		Category:   item.category,
		Checked:    item.checked,
		Metadata:   item.metadata,
		SourceLine: item.line,
		Tags:       parseTags(item.metadata["tags"]),
	}
	if notes, ok := item.metadata["notes"]; ok {
		t.Notes = notes
	} else {
		t.Notes = strings.Join(item.notes, "\n")
	}
	t.TimeOfDay = recurrence.NormalizeTime(item.metadata["time"])
	t.Recurrence = recurrence.ParsePattern(item.metadata["recurring"], t.TimeOfDay)
	return t
}

func parseTags(value string) []string {
	tags := []string{}
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// assignKeys gives each task a key unique within the document: the "id"
// metadata value or the slugified title, suffixed -1, -2, ... on collision
// in document order.
func assignKeys(tasks []Task) {
	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		candidate := strings.TrimSpace(tasks[i].Metadata["id"])
		if candidate == "" {
			candidate = Slugify(tasks[i].Title)
		}
		key := candidate
		for n := 1; seen[key]; n++ {
			key = fmt.Sprintf("%s-%d", candidate, n)
		}
		seen[key] = true
		tasks[i].Key = key
	}
}

// Slugify lower-cases s and collapses every run of characters outside
// [a-z0-9] into one hyphen, trimming hyphens at either end. The result is
// capped at 80 characters; an empty result becomes "task".
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug == "" {
		return "task"
	}
	return slug
}

// Checksum returns the hex sha256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
