package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/famplan/internal/db"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/markdown"
)

const aliceDoc = `---
member: alice
name: Alice
color: "#ff8800"
timezone: America/Los_Angeles
---
## Morning
- [ ] Brush teeth
  time: 07:30
  recurring: daily
  tags: health, kids
- [x] Take out trash
  recurring: weekly:MON,THU@18:00
`

const bobDoc = `---
member: bob
---
- [ ] Water plants
  recurring: weekend
`

func parse(t *testing.T, path, content string) *markdown.Document {
	t.Helper()
	doc, err := markdown.Parse(path, []byte(content))
	require.NoError(t, err)
	return doc
}

func details(t *testing.T, store *db.StoreDB) map[string]db.TaskDetail {
	t.Helper()
	list, err := store.ListTaskDetails(context.Background(), db.TaskFilter{IncludeCleared: true})
	require.NoError(t, err)
	out := make(map[string]db.TaskDetail, len(list))
	for _, d := range list {
		out[d.SourceKey] = d
	}
	return out
}

func markDone(t *testing.T, store *db.StoreDB, id string) {
	t.Helper()
	err := store.RunInTx(context.Background(), func(tx *db.TxOps) error {
		task, err := db.GetTaskTx(tx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		task.Status = db.StatusDone
		task.CompletedAt = &now
		return db.UpdateTaskTx(tx, task)
	})
	require.NoError(t, err)
}

func TestReconcile_EndToEnd(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)

	summary, err := engine.Reconcile(context.Background(), []*markdown.Document{parse(t, "alice.md", aliceDoc)})
	require.NoError(t, err)
	assert.Equal(t, ModePreserve, summary.Mode)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.Equal(t, 2, summary.TasksProcessed)
	assert.Equal(t, 0, summary.DocumentsUnchanged)
	assert.Equal(t, "Synced 2 todos from 1 markdown file(s).", summary.Message())

	got := details(t, store)
	require.Len(t, got, 2)

	brush := got["brush-teeth"]
	assert.Equal(t, "Brush teeth", brush.Title)
	assert.Equal(t, "Morning", brush.Category)
	assert.Equal(t, "07:30", brush.TimeOfDay)
	assert.Equal(t, "America/Los_Angeles", brush.Timezone)
	assert.Equal(t, []string{"health", "kids"}, brush.Tags)
	assert.Equal(t, db.StatusPending, brush.Status)
	assert.Equal(t, "alice.md", brush.SourcePath)
	assert.Equal(t, "Alice", brush.Member.Name)
	assert.Equal(t, "#ff8800", brush.Member.ColorHex)
	require.NotNil(t, brush.Rule)
	assert.Equal(t, db.FrequencyDaily, brush.Rule.Frequency)
	assert.Equal(t, "07:30", brush.Rule.TimeOfDay)
	assert.Equal(t, "America/Los_Angeles", brush.Rule.Timezone)
	assert.JSONEq(t, `{"raw":"daily"}`, brush.Rule.Metadata)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(brush.Metadata), &meta))
	assert.Equal(t, "Morning", meta["category"])
	assert.Equal(t, []any{"health", "kids"}, meta["tags"])
	assert.Equal(t, "daily", meta["recurring"])
	assert.Equal(t, "07:30", meta["time"])

	trash := got["take-out-trash"]
	assert.Equal(t, db.StatusPending, trash.Status, "checked box does not complete a new task")
	require.NotNil(t, trash.Rule)
	assert.Equal(t, db.FrequencyWeekly, trash.Rule.Frequency)
	assert.Equal(t, []string{"MON", "THU"}, trash.Rule.DaysOfWeek)
	assert.Equal(t, "18:00", trash.Rule.TimeOfDay)
}

func TestReconcile_PreserveKeepsCompletion(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store, WithMode(ModePreserve))
	ctx := context.Background()
	docs := []*markdown.Document{parse(t, "alice.md", aliceDoc)}

	_, err := engine.Reconcile(ctx, docs)
	require.NoError(t, err)
	trash := details(t, store)["take-out-trash"]
	markDone(t, store, trash.ID)

	summary, err := engine.Reconcile(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentsUnchanged)
	assert.Zero(t, summary.TasksRemoved)

	after := details(t, store)["take-out-trash"]
	assert.Equal(t, trash.ID, after.ID)
	assert.Equal(t, db.StatusDone, after.Status)
	assert.NotNil(t, after.CompletedAt)
}

func TestReconcile_ReplaceResetsCompletion(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store, WithMode(ModeReplace))
	ctx := context.Background()
	docs := []*markdown.Document{parse(t, "alice.md", aliceDoc)}

	_, err := engine.Reconcile(ctx, docs)
	require.NoError(t, err)
	markDone(t, store, details(t, store)["take-out-trash"].ID)

	summary, err := engine.Reconcile(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, summary.Mode)
	assert.Equal(t, 2, summary.TasksRemoved)
	assert.Equal(t, 1, summary.MembersRemoved)

	after := details(t, store)["take-out-trash"]
	assert.Equal(t, db.StatusPending, after.Status)
	assert.Nil(t, after.CompletedAt)
}

func TestReconcile_Tombstones(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, []*markdown.Document{
		parse(t, "alice.md", aliceDoc),
		parse(t, "bob.md", bobDoc),
	})
	require.NoError(t, err)
	require.Len(t, details(t, store), 3)

	// Alice drops her recurring brush task; bob's document disappears.
	trimmed := `---
member: alice
---
## Morning
- [x] Take out trash
  recurring: weekly:MON,THU@18:00
`
	summary, err := engine.Reconcile(ctx, []*markdown.Document{parse(t, "alice.md", trimmed)})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TasksRemoved, "brush from alice, water plants from bob")
	assert.Equal(t, 2, summary.RulesRemoved)
	assert.Equal(t, 1, summary.SourcesRemoved)
	assert.Equal(t, 1, summary.MembersRemoved)

	got := details(t, store)
	require.Len(t, got, 1)
	assert.Contains(t, got, "take-out-trash")
	assert.Empty(t, got["take-out-trash"].Timezone, "timezone follows the document")

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &db.Counts{Members: 1, Sources: 1, Rules: 1, Tasks: 1}, counts)
}

func TestReconcile_KeepsMembersWithManualTasks(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, []*markdown.Document{parse(t, "bob.md", bobDoc)})
	require.NoError(t, err)

	bob, err := store.GetMemberBySlug(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, store.RunInTx(ctx, func(tx *db.TxOps) error {
		return db.InsertTaskTx(tx, &db.Task{MemberID: bob.ID, Title: "Call grandma"})
	}))

	summary, err := engine.Reconcile(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.MembersRemoved)

	got := details(t, store)
	require.Len(t, got, 1)
	assert.Equal(t, "Call grandma", got[""].Title)
}

func TestReconcile_FailureRollsBack(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, []*markdown.Document{parse(t, "alice.md", aliceDoc)})
	require.NoError(t, err)
	before, err := store.Counts(ctx)
	require.NoError(t, err)

	bad := parse(t, "bob.md", bobDoc)
	bad.Tasks[0].Recurrence.Frequency = "HOURLY"

	_, err = engine.Reconcile(ctx, []*markdown.Document{parse(t, "carol.md", "---\nmember: carol\n---\n- [ ] Read\n"), bad})
	require.Error(t, err)
	assert.True(t, ferrors.IsStore(err), "got %v", err)

	after, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	carol, err := store.GetMemberBySlug(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, carol, "documents applied before the failure are rolled back")
}

func TestReconcile_Validation(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)
	ctx := context.Background()

	alice := parse(t, "alice.md", aliceDoc)
	_, err := engine.Reconcile(ctx, []*markdown.Document{alice, alice})
	assert.True(t, ferrors.IsValidation(err))

	// One member per document.
	aliceAgain := parse(t, "alice-paris.md", "---\nmember: alice\nname: Alice B\ntimezone: Europe/Paris\n---\n- [ ] Croissants\n")
	_, err = engine.Reconcile(ctx, []*markdown.Document{alice, aliceAgain})
	require.Error(t, err)
	assert.True(t, ferrors.IsValidation(err))
	assert.Contains(t, err.Error(), "alice-paris.md")

	dupKeys := parse(t, "bob.md", bobDoc)
	dupKeys.Tasks = append(dupKeys.Tasks, dupKeys.Tasks[0])
	_, err = engine.Reconcile(ctx, []*markdown.Document{dupKeys})
	assert.True(t, ferrors.IsValidation(err))

	_, err = engine.Reconcile(ctx, []*markdown.Document{{Path: "x.md"}})
	assert.True(t, ferrors.IsValidation(err))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &db.Counts{}, counts)
}

func TestReconcile_Concurrent(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	engine := New(store)
	docs := []*markdown.Document{parse(t, "alice.md", aliceDoc), parse(t, "bob.md", bobDoc)}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reconcile(context.Background(), docs)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &db.Counts{Members: 2, Sources: 2, Rules: 3, Tasks: 3}, counts)
}

func TestSyncDir(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice.md"), []byte(aliceDoc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bob.md"), []byte(bobDoc), 0644))

	engine := New(store, WithContentDir(root, ""), WithLogger(nil))
	summary, err := engine.SyncDir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentsProcessed)
	assert.Equal(t, 3, summary.TasksProcessed)

	missing := New(store, WithContentDir(filepath.Join(root, "gone"), "*.md"))
	summary, err = missing.SyncDir(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.DocumentsProcessed)
	assert.Equal(t, 2, summary.SourcesRemoved, "an empty content dir tombstones everything")
}

func TestSyncDir_InvalidDocument(t *testing.T) {
	t.Parallel()
	store := db.NewTestStoreDB(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.md"), []byte("no front-matter"), 0644))

	_, err := New(store, WithContentDir(root, "")).SyncDir(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.IsValidation(err))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePreserve, m)

	m, err = ParseMode("replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)

	_, err = ParseMode("wipe")
	assert.Error(t, err)
}
