package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/recurrence"
)

const aliceDoc = `---
member: alice
timezone: America/Los_Angeles
---
## Morning
- [ ] Brush teeth
  time: 07:30
  recurring: daily
- [x] Take out trash
  recurring: weekly:MON,THU@18:00
`

func TestParse_Alice(t *testing.T) {
	doc, err := Parse("alice.md", []byte(aliceDoc))
	require.NoError(t, err)

	assert.Equal(t, "alice.md", doc.Path)
	assert.Equal(t, Owner{Slug: "alice", Name: "alice", Timezone: "America/Los_Angeles"}, doc.Owner)
	require.Len(t, doc.Tasks, 2)

	brush := doc.Tasks[0]
	assert.Equal(t, "brush-teeth", brush.Key)
	assert.Equal(t, "Brush teeth", brush.Title)
	assert.Equal(t, "Morning", brush.Category)
	assert.Equal(t, "07:30", brush.TimeOfDay)
	assert.Equal(t, 6, brush.SourceLine)
	assert.False(t, brush.Checked)
	require.NotNil(t, brush.Recurrence)
	assert.Equal(t, recurrence.Daily, brush.Recurrence.Frequency)
	assert.Equal(t, "07:30", brush.Recurrence.TimeOfDay)

	trash := doc.Tasks[1]
	assert.Equal(t, "take-out-trash", trash.Key)
	assert.Equal(t, "Morning", trash.Category)
	assert.True(t, trash.Checked)
	assert.Empty(t, trash.TimeOfDay)
	require.NotNil(t, trash.Recurrence)
	assert.Equal(t, recurrence.Weekly, trash.Recurrence.Frequency)
	assert.Equal(t, []string{"MON", "THU"}, trash.Recurrence.DaysOfWeek)
	assert.Equal(t, "18:00", trash.Recurrence.TimeOfDay)
	assert.Equal(t, "weekly:MON,THU@18:00", trash.Recurrence.Raw)
}

func TestParse_Deterministic(t *testing.T) {
	content := []byte(aliceDoc + "- [ ] Brush teeth\n- [ ] Brush teeth\n")
	a, err := Parse("alice.md", content)
	require.NoError(t, err)
	b, err := Parse("alice.md", content)
	require.NoError(t, err)

	keys := func(d *Document) []string {
		var out []string
		for _, task := range d.Tasks {
			out = append(out, task.Key)
		}
		return out
	}
	assert.Equal(t, keys(a), keys(b))
	assert.Equal(t, []string{"brush-teeth", "take-out-trash", "brush-teeth-1", "brush-teeth-2"}, keys(a))
	assert.Equal(t, a.Checksum, b.Checksum)
}

func TestParse_Checksum(t *testing.T) {
	a, err := Parse("a.md", []byte(aliceDoc))
	require.NoError(t, err)
	b, err := Parse("a.md", []byte(aliceDoc+"\n"))
	require.NoError(t, err)

	assert.Len(t, a.Checksum, 64)
	assert.NotEqual(t, a.Checksum, b.Checksum)
	assert.Equal(t, Checksum([]byte(aliceDoc)), a.Checksum)
}

func TestParse_FrontMatterErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no front-matter", "## Morning\n- [ ] Task\n"},
		{"unclosed", "---\nmember: alice\n- [ ] Task\n"},
		{"missing member", "---\nname: Alice\n---\n- [ ] Task\n"},
		{"blank member", "---\nmember: \"  \"\n---\n"},
		{"bad yaml", "---\nmember: [alice\n---\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.md", []byte(tt.content))
			require.Error(t, err)
			assert.True(t, ferrors.IsValidation(err), "want validation error, got %v", err)
			assert.Contains(t, err.Error(), "bad.md")
		})
	}
}

func TestParse_Owner(t *testing.T) {
	doc, err := Parse("bob.md", []byte("---\r\nmember: bob\r\nname: Bob B\r\ncolor: \"#00ff00\"\r\n---\r\n"))
	require.NoError(t, err)
	assert.Equal(t, Owner{Slug: "bob", Name: "Bob B", Color: "#00ff00"}, doc.Owner)
	assert.Empty(t, doc.Tasks)
}

func TestParse_Derivation(t *testing.T) {
	content := strings.Join([]string{
		"---",
		"member: carol",
		"---",
		"Intro prose is ignored.",
		"- [ ] Orphan before heading",
		"  first note line",
		"",
		"  second note line",
		"  tags: home, , chores ,",
		"  time: 25:00",
		"### Evening",
		"- [X] Custom id task",
		"  id: my-id",
		"  notes: explicit notes",
		"  free text is dropped when notes metadata exists",
		"  recurring: monthly:15",
		"  url: https://example.com/a",
		"- [ ] Second with same id",
		"  id: my-id",
		"- [ ] !!!",
	}, "\n")

	doc, err := Parse("carol.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 4)

	orphan := doc.Tasks[0]
	assert.Equal(t, "orphan-before-heading", orphan.Key)
	assert.Empty(t, orphan.Category)
	assert.Equal(t, "first note line\nsecond note line", orphan.Notes)
	assert.Equal(t, []string{"home", "chores"}, orphan.Tags)
	assert.Empty(t, orphan.TimeOfDay, "invalid time is dropped")
	assert.Nil(t, orphan.Recurrence)
	assert.Equal(t, 5, orphan.SourceLine)

	custom := doc.Tasks[1]
	assert.Equal(t, "my-id", custom.Key)
	assert.Equal(t, "Evening", custom.Category)
	assert.Equal(t, "explicit notes", custom.Notes)
	assert.True(t, custom.Checked)
	assert.Equal(t, "https://example.com/a", custom.Metadata["url"])
	require.NotNil(t, custom.Recurrence)
	assert.Equal(t, recurrence.Monthly, custom.Recurrence.Frequency)
	require.NotNil(t, custom.Recurrence.DayOfMonth)
	assert.Equal(t, 15, *custom.Recurrence.DayOfMonth)
	assert.Empty(t, custom.Recurrence.TimeOfDay)

	assert.Equal(t, "my-id-1", doc.Tasks[2].Key)
	assert.Equal(t, "task", doc.Tasks[3].Key)
	assert.Equal(t, []string{}, doc.Tasks[3].Tags)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Brush teeth":          "brush-teeth",
		"  Take   out trash! ": "take-out-trash",
		"Café au lait":         "caf-au-lait",
		"---":                  "task",
		"":                     "task",
		"A1 b2":                "a1-b2",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}

	long := Slugify(strings.Repeat("ab ", 40))
	assert.Len(t, long, 80)
	assert.True(t, strings.HasPrefix(long, "ab-ab-"))
}

func TestParse_SourceLineCountsFrontMatter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "short front-matter", content: "---\nmember: a\n---\n- [ ] Sweep\n", want: 4},
		{name: "longer front-matter", content: "---\nmember: a\nname: A\ncolor: '#fff'\ntimezone: UTC\n---\n- [ ] Sweep\n", want: 7},
		{name: "blank lines after front-matter", content: "---\nmember: a\n---\n\n\n## Chores\n- [ ] Sweep\n", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse("a.md", []byte(tt.content))
			require.NoError(t, err)
			require.Len(t, doc.Tasks, 1)
			assert.Equal(t, tt.want, doc.Tasks[0].SourceLine)
		})
	}
}
