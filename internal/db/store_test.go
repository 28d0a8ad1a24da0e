package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/famplan/internal/db/driver"
)

// seedSource creates a member and a source and returns their ids.
func seedSource(t *testing.T, store *StoreDB, slug, path string) (memberID, sourceID string) {
	t.Helper()
	err := store.RunInTx(context.Background(), func(tx *TxOps) error {
		m := &Member{Slug: slug, Timezone: "America/New_York"}
		if err := UpsertMemberTx(tx, m); err != nil {
			return err
		}
		src := &Source{Path: path, Checksum: "abc"}
		if err := UpsertSourceTx(tx, src); err != nil {
			return err
		}
		memberID, sourceID = m.ID, src.ID
		return nil
	})
	require.NoError(t, err)
	return memberID, sourceID
}

func TestMembers(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()

	var firstID string
	err := store.RunInTx(ctx, func(tx *TxOps) error {
		m := &Member{Slug: "alice"}
		if err := UpsertMemberTx(tx, m); err != nil {
			return err
		}
		firstID = m.ID
		assert.Equal(t, "alice", m.Name, "name defaults to slug")

		again := &Member{Slug: "alice", Name: "Alice", ColorHex: "#ff0000"}
		if err := UpsertMemberTx(tx, again); err != nil {
			return err
		}
		assert.Equal(t, firstID, again.ID, "upsert keeps the existing id")
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetMemberBySlug(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "#ff0000", got.ColorHex)
	assert.Empty(t, got.Timezone)

	missing, err := store.GetMemberBySlug(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	members, err := store.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSources(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx *TxOps) error {
		src := &Source{Path: "alice.md", Checksum: "one"}
		require.NoError(t, UpsertSourceTx(tx, src))
		firstID := src.ID

		again := &Source{Path: "alice.md", Checksum: "two"}
		require.NoError(t, UpsertSourceTx(tx, again))
		assert.Equal(t, firstID, again.ID)

		got, err := GetSourceByPathTx(tx, "alice.md")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "two", got.Checksum)

		missing, err := GetSourceByPathTx(tx, "bob.md")
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertSourceTask_KeepsStatus(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	memberID, sourceID := seedSource(t, store, "alice", "alice.md")

	var taskID string
	err := store.RunInTx(ctx, func(tx *TxOps) error {
		task := &Task{
			MemberID: memberID, Title: "Feed cat", Category: "Morning",
			Tags: []string{"pets"}, SourceID: sourceID, SourceKey: "feed-cat", SourceLine: 7,
		}
		if err := UpsertSourceTaskTx(tx, task); err != nil {
			return err
		}
		taskID = task.ID
		assert.Equal(t, StatusPending, task.Status)
		return nil
	})
	require.NoError(t, err)

	// Complete the task, then re-upsert it from the document.
	completed := time.Now().Add(-time.Hour)
	err = store.RunInTx(ctx, func(tx *TxOps) error {
		task, err := GetTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		task.Status = StatusDone
		task.CompletedAt = &completed
		return UpdateTaskTx(tx, task)
	})
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(tx *TxOps) error {
		task := &Task{
			MemberID: memberID, Title: "Feed the cat", SourceID: sourceID,
			SourceKey: "feed-cat", SourceLine: 9,
		}
		if err := UpsertSourceTaskTx(tx, task); err != nil {
			return err
		}
		assert.Equal(t, taskID, task.ID)
		assert.Equal(t, StatusDone, task.Status)
		require.NotNil(t, task.CompletedAt)
		assert.WithinDuration(t, completed, *task.CompletedAt, time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Feed the cat", got.Title)
	assert.Equal(t, 9, got.SourceLine)
	assert.Empty(t, got.Category, "category replaced by the new document value")
	assert.Empty(t, got.Tags)
}

func TestInsertAndUpdateTask(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	memberID, _ := seedSource(t, store, "alice", "alice.md")

	task := &Task{MemberID: memberID, Title: "Call mom", TimeOfDay: "18:00", Tags: []string{"family"}}
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		return InsertTaskTx(tx, task)
	}))

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "18:00", got.TimeOfDay)
	assert.Equal(t, []string{"family"}, got.Tags)
	assert.Empty(t, got.SourceID)
	assert.Equal(t, "{}", got.Metadata)

	err = store.RunInTx(ctx, func(tx *TxOps) error {
		return UpdateTaskTx(tx, &Task{ID: "missing", Title: "x", Status: StatusPending})
	})
	assert.Error(t, err)

	missing, err := store.GetTask(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClearAndReactivate(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	aliceID, _ := seedSource(t, store, "alice", "alice.md")
	bobID, _ := seedSource(t, store, "bob", "bob.md")

	done := time.Now().Add(-2 * time.Hour)
	tasks := []*Task{
		{MemberID: aliceID, Title: "a1", Status: StatusDone, CompletedAt: &done},
		{MemberID: aliceID, Title: "a2", Status: StatusPending},
		{MemberID: bobID, Title: "b1", Status: StatusDone, CompletedAt: &done},
	}
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		for _, task := range tasks {
			if err := InsertTaskTx(tx, task); err != nil {
				return err
			}
		}
		return nil
	}))

	now := time.Now()
	var cleared int
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		if cleared, err = ClearFinishedTx(tx, "nobody", now); err != nil {
			return err
		}
		assert.Equal(t, 0, cleared, "unknown member clears nothing")

		cleared, err = ClearFinishedTx(tx, "alice", now)
		return err
	}))
	assert.Equal(t, 1, cleared)

	visible, err := store.ListTaskDetails(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 2, "cleared task hidden by default")

	all, err := store.ListTaskDetails(ctx, TaskFilter{IncludeCleared: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	var reactivated int
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		reactivated, err = ReactivateTasksTx(tx, []string{tasks[0].ID, tasks[1].ID}, now)
		return err
	}))
	assert.Equal(t, 1, reactivated, "only DONE tasks are reactivated")

	got, err := store.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ClearedAt)
}

func TestListTaskDetails_OrderAndJoins(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	bobID, bobSrc := seedSource(t, store, "bob", "bob.md")
	aliceID, _ := seedSource(t, store, "alice", "alice.md")

	dom := 15
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		rule := &Rule{
			MemberID: bobID, SourceID: bobSrc, SourceKey: "rent-recurring", Title: "Rent",
			Frequency: FrequencyMonthly, DayOfMonth: &dom, TimeOfDay: "09:00",
			Metadata: `{"raw":"monthly:15"}`,
		}
		if err := UpsertRuleTx(tx, rule); err != nil {
			return err
		}
		if err := UpsertSourceTaskTx(tx, &Task{
			MemberID: bobID, Title: "Rent", Category: "Bills", SourceID: bobSrc,
			SourceKey: "rent", SourceLine: 3, RuleID: rule.ID,
		}); err != nil {
			return err
		}
		for _, task := range []*Task{
			{MemberID: aliceID, Title: "Zebra", Category: "B"},
			{MemberID: aliceID, Title: "Apple", Category: "B"},
			{MemberID: aliceID, Title: "Late", Category: "A", TimeOfDay: "20:00"},
			{MemberID: aliceID, Title: "Early", Category: "A", TimeOfDay: "07:00"},
		} {
			if err := InsertTaskTx(tx, task); err != nil {
				return err
			}
		}
		return nil
	}))

	details, err := store.ListTaskDetails(ctx, TaskFilter{})
	require.NoError(t, err)
	var titles []string
	for _, d := range details {
		titles = append(titles, d.Title)
	}
	assert.Equal(t, []string{"Early", "Late", "Apple", "Zebra", "Rent"}, titles)

	rent := details[4]
	assert.Equal(t, "bob", rent.Member.Slug)
	assert.Equal(t, "bob.md", rent.SourcePath)
	require.NotNil(t, rent.Rule)
	assert.Equal(t, FrequencyMonthly, rent.Rule.Frequency)
	require.NotNil(t, rent.Rule.DayOfMonth)
	assert.Equal(t, 15, *rent.Rule.DayOfMonth)
	assert.Equal(t, "UTC", rent.Rule.Timezone)
	assert.Equal(t, 1, rent.Rule.Interval)
	assert.Equal(t, []string{}, rent.Rule.DaysOfWeek)
	assert.JSONEq(t, `{"raw":"monthly:15"}`, rent.Rule.Metadata)
	assert.Nil(t, details[0].Rule)

	onlyBob, err := store.ListTaskDetails(ctx, TaskFilter{MemberSlug: "bob", Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, onlyBob, 1)

	var recurring []DoneRecurring
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		recurring, err = ListDoneRecurringTx(tx)
		return err
	}))
	assert.Empty(t, recurring, "pending tasks are not sweep candidates")
}

func TestTombstoneDeletes(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	aliceID, aliceSrc := seedSource(t, store, "alice", "alice.md")
	bobID, bobSrc := seedSource(t, store, "bob", "bob.md")

	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		for _, key := range []string{"keep", "drop"} {
			if err := UpsertSourceTaskTx(tx, &Task{MemberID: aliceID, Title: key, SourceID: aliceSrc, SourceKey: key}); err != nil {
				return err
			}
			if err := UpsertRuleTx(tx, &Rule{MemberID: aliceID, SourceID: aliceSrc, SourceKey: key + "-recurring", Title: key, Frequency: FrequencyDaily}); err != nil {
				return err
			}
		}
		return UpsertSourceTaskTx(tx, &Task{MemberID: bobID, Title: "bob", SourceID: bobSrc, SourceKey: "bob"})
	}))

	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		n, err := DeleteStaleTasksTx(tx, aliceSrc, map[string]bool{"keep": true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = DeleteStaleRulesTx(tx, aliceSrc, map[string]bool{"keep-recurring": true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		removed, err := DeleteSourcesExceptTx(tx, map[string]bool{"alice.md": true})
		require.NoError(t, err)
		assert.Equal(t, &SourceRemoval{Sources: 1, Tasks: 1}, removed)

		n, err = DeleteUnusedMembersTx(tx, map[string]bool{"alice": true})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "bob no longer owns anything")
		return nil
	}))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Counts{Members: 1, Sources: 1, Rules: 1, Tasks: 1}, counts)
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()
	aliceID, aliceSrc := seedSource(t, store, "alice", "alice.md")
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		return UpsertSourceTaskTx(tx, &Task{MemberID: aliceID, Title: "x", SourceID: aliceSrc, SourceKey: "x"})
	}))

	var removed *Counts
	require.NoError(t, store.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		removed, err = DeleteAllTx(tx)
		return err
	}))
	assert.Equal(t, &Counts{Members: 1, Sources: 1, Tasks: 1}, removed)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Counts{}, counts)
}

func TestRunInTx_Rollback(t *testing.T) {
	t.Parallel()
	store := NewTestStoreDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx *TxOps) error {
		require.NoError(t, tx.Lock("reconcile"))
		if err := UpsertMemberTx(tx, &Member{Slug: "alice"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	m, err := store.GetMemberBySlug(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, m, "rolled back member must not persist")
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dsn     func(t *testing.T) string
		dialect driver.Dialect
		wantErr bool
	}{
		{name: "nested sqlite file", dsn: func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "nested", "famplan.db")
		}, dialect: driver.DialectSQLite},
		{name: "in memory", dsn: func(*testing.T) string { return memoryDSN }, dialect: driver.DialectSQLite},
		{name: "unknown dialect", dsn: func(*testing.T) string { return "x" }, dialect: driver.Dialect("oracle"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dsn := tt.dsn(t)

			store, err := OpenStore(dsn, tt.dialect)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, dsn, store.Path())
			assert.Equal(t, tt.dialect, store.Driver().Dialect())

			counts, err := store.Counts(context.Background())
			require.NoError(t, err)
			assert.Zero(t, counts.Tasks, "schema is migrated")
			require.NoError(t, store.Close())

			if dsn == memoryDSN {
				return
			}
			// Reopening re-runs migrations idempotently.
			store, err = OpenStore(dsn, tt.dialect)
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}
}
