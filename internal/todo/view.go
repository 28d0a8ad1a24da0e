package todo

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/famplan/internal/db"
)

// View is the serialized form of a task returned by the service.
type View struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Notes       string         `json:"notes,omitempty"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags"`
	Status      string         `json:"status"`
	TimeOfDay   string         `json:"timeOfDay,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Member      MemberView     `json:"member"`
	Recurring   *RecurringView `json:"recurring"`
	CompletedAt *time.Time     `json:"completedAt"`
	ClearedAt   *time.Time     `json:"clearedAt"`
	Source      *SourceRef     `json:"source"`
}

// MemberView identifies the owner of a task.
type MemberView struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	ColorHex string `json:"colorHex,omitempty"`
}

// RecurringView describes the rule a task recurs by.
type RecurringView struct {
	ID         string   `json:"id"`
	Frequency  string   `json:"frequency"`
	DaysOfWeek []string `json:"daysOfWeek"`
	DayOfMonth *int     `json:"dayOfMonth"`
	TimeOfDay  string   `json:"timeOfDay,omitempty"`
	Timezone   string   `json:"timezone"`
	Pattern    string   `json:"pattern,omitempty"`
}

// SourceRef points at the document line a task came from.
type SourceRef struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

// IsRecurring reports whether the task is linked to a rule.
func (v *View) IsRecurring() bool {
	return v.Recurring != nil
}

func newView(d *db.TaskDetail) *View {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	v := &View{
		ID:          d.ID,
		Title:       d.Title,
		Notes:       d.Notes,
		Category:    d.Category,
		Tags:        tags,
		Status:      d.Status,
		TimeOfDay:   d.TimeOfDay,
		Timezone:    d.Timezone,
		CompletedAt: d.CompletedAt,
		ClearedAt:   d.ClearedAt,
		Member: MemberView{
			ID:       d.Member.ID,
			Slug:     d.Member.Slug,
			Name:     d.Member.Name,
			ColorHex: d.Member.ColorHex,
		},
	}
	if r := d.Rule; r != nil {
		days := r.DaysOfWeek
		if days == nil {
			days = []string{}
		}
		v.Recurring = &RecurringView{
			ID:         r.ID,
			Frequency:  r.Frequency,
			DaysOfWeek: days,
			DayOfMonth: r.DayOfMonth,
			TimeOfDay:  r.TimeOfDay,
			Timezone:   r.Timezone,
			Pattern:    gjson.Get(r.Metadata, "raw").String(),
		}
	}
	if d.SourcePath != "" {
		v.Source = &SourceRef{Path: d.SourcePath, Line: d.SourceLine}
	}
	return v
}

func newViews(details []db.TaskDetail) []View {
	out := make([]View, 0, len(details))
	for i := range details {
		out = append(out, *newView(&details[i]))
	}
	return out
}
