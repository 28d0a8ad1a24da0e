package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	StatusPending = "PENDING"
	StatusDone    = "DONE"
)

// Task is a stored task. SourceID and SourceKey are empty for tasks created
// by hand. Metadata is a JSON object.
type Task struct {
	ID          string
	MemberID    string
	Title       string
	Notes       string
	Category    string
	Tags        []string
	Status      string
	TimeOfDay   string
	Timezone    string
	Metadata    string
	SourceID    string
	SourceKey   string
	SourceLine  int
	RuleID      string
	CompletedAt *time.Time
	ClearedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const taskColumns = `t.id, t.member_id, t.title, t.notes, t.category, t.tags, t.status,
	t.time_of_day, t.timezone, t.metadata, t.source_id, t.source_key, t.source_line,
	t.recurrence_rule_id, t.completed_at, t.cleared_at, t.created_at, t.updated_at`

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}

// UpsertSourceTaskTx inserts or updates a document task keyed by
// (source_id, source_key). Status, completed_at and cleared_at of an
// existing row are kept; on return t carries the stored values.
func UpsertSourceTaskTx(tx *TxOps, t *Task) error {
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Metadata == "" {
		t.Metadata = "{}"
	}
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}

	var (
		id, status         string
		completed, cleared sql.NullString
	)
	err = tx.QueryRow(`
		INSERT INTO tasks (
			id, member_id, title, notes, category, tags, status, time_of_day, timezone,
			metadata, source_id, source_key, source_line, recurrence_rule_id,
			completed_at, cleared_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)
		ON CONFLICT(source_id, source_key) DO UPDATE SET
			member_id = excluded.member_id,
			title = excluded.title,
			notes = excluded.notes,
			category = excluded.category,
			tags = excluded.tags,
			time_of_day = excluded.time_of_day,
			timezone = excluded.timezone,
			metadata = excluded.metadata,
			source_line = excluded.source_line,
			recurrence_rule_id = excluded.recurrence_rule_id,
			updated_at = excluded.updated_at
		RETURNING id, status, completed_at, cleared_at
	`, t.ID, t.MemberID, t.Title, nullString(t.Notes), nullString(t.Category), tags, StatusPending,
		nullString(t.TimeOfDay), nullString(t.Timezone), t.Metadata, t.SourceID, t.SourceKey,
		t.SourceLine, nullString(t.RuleID), formatTime(now), formatTime(now),
	).Scan(&id, &status, &completed, &cleared)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.SourceKey, err)
	}

	t.ID = id
	t.Status = status
	if t.CompletedAt, err = scanNullTime(completed); err != nil {
		return err
	}
	if t.ClearedAt, err = scanNullTime(cleared); err != nil {
		return err
	}
	t.UpdatedAt = now
	return nil
}

// InsertTaskTx inserts a task that has no source document.
func InsertTaskTx(tx *TxOps, t *Task) error {
	now := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Metadata == "" {
		t.Metadata = "{}"
	}
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (
			id, member_id, title, notes, category, tags, status, time_of_day, timezone,
			metadata, completed_at, cleared_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.MemberID, t.Title, nullString(t.Notes), nullString(t.Category), tags, t.Status,
		nullString(t.TimeOfDay), nullString(t.Timezone), t.Metadata,
		nullTime(t.CompletedAt), nullTime(t.ClearedAt), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// GetTaskTx returns the task with id, or nil if none exists.
func GetTaskTx(tx *TxOps, id string) (*Task, error) {
	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// GetTask returns the task with id, or nil if none exists.
func (s *StoreDB) GetTask(ctx context.Context, id string) (*Task, error) {
	var t *Task
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		t, err = GetTaskTx(tx, id)
		return err
	})
	return t, err
}

// UpdateTaskTx writes the mutable fields of an existing task.
func UpdateTaskTx(tx *TxOps, t *Task) error {
	now := time.Now()
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE tasks SET
			title = ?, notes = ?, category = ?, tags = ?, status = ?,
			time_of_day = ?, timezone = ?, completed_at = ?, cleared_at = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, nullString(t.Notes), nullString(t.Category), tags, t.Status,
		nullString(t.TimeOfDay), nullString(t.Timezone), nullTime(t.CompletedAt),
		nullTime(t.ClearedAt), formatTime(now), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, sql.ErrNoRows)
	}
	t.UpdatedAt = now
	return nil
}

// DeleteStaleTasksTx removes tasks of sourceID whose key is not in keep.
func DeleteStaleTasksTx(tx *TxOps, sourceID string, keep map[string]bool) (int, error) {
	return deleteStaleKeysTx(tx, "tasks", sourceID, keep)
}

// ClearFinishedTx stamps cleared_at on DONE tasks that are not yet cleared,
// optionally restricted to one member. An unknown slug matches nothing.
func ClearFinishedTx(tx *TxOps, memberSlug string, now time.Time) (int, error) {
	query := `UPDATE tasks SET cleared_at = ?, updated_at = ?
		WHERE status = ? AND cleared_at IS NULL`
	args := []any{formatTime(now), formatTime(now), StatusDone}
	if memberSlug != "" {
		query += ` AND member_id IN (SELECT id FROM members WHERE slug = ?)`
		args = append(args, memberSlug)
	}

	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear finished tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DoneRecurring is a completed task linked to a recurrence rule, with the
// rule fields needed to find its most recent occurrence.
type DoneRecurring struct {
	TaskID        string
	CompletedAt   time.Time
	TaskTimeOfDay string
	TaskTimezone  string
	Frequency     string
	DaysOfWeek    []string
	DayOfMonth    *int
	RuleTimeOfDay string
	RuleTimezone  string
}

// ListDoneRecurringTx returns DONE tasks that have completed_at and a rule.
func ListDoneRecurringTx(tx *TxOps) ([]DoneRecurring, error) {
	rows, err := tx.Query(`
		SELECT t.id, t.completed_at, t.time_of_day, t.timezone,
			r.frequency, r.days_of_week, r.day_of_month, r.time_of_day, r.timezone
		FROM tasks t
		JOIN recurrence_rules r ON r.id = t.recurrence_rule_id
		WHERE t.status = ? AND t.completed_at IS NOT NULL
	`, StatusDone)
	if err != nil {
		return nil, fmt.Errorf("list done recurring tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DoneRecurring
	for rows.Next() {
		var (
			d                                  DoneRecurring
			completed, days                    string
			taskTime, taskTZ, ruleTime, ruleTZ sql.NullString
			dom                                sql.NullInt64
		)
		if err := rows.Scan(&d.TaskID, &completed, &taskTime, &taskTZ,
			&d.Frequency, &days, &dom, &ruleTime, &ruleTZ); err != nil {
			return nil, fmt.Errorf("scan done recurring task: %w", err)
		}
		if d.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(days), &d.DaysOfWeek); err != nil {
			d.DaysOfWeek = nil
		}
		d.DayOfMonth = scanNullInt(dom)
		d.TaskTimeOfDay = taskTime.String
		d.TaskTimezone = taskTZ.String
		d.RuleTimeOfDay = ruleTime.String
		d.RuleTimezone = ruleTZ.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReactivateTasksTx returns the given DONE tasks to PENDING and clears their
// completion and clear stamps. Tasks no longer DONE are left alone.
func ReactivateTasksTx(tx *TxOps, ids []string, now time.Time) (int, error) {
	total := 0
	for _, batch := range chunk(ids, maxBatch) {
		args := append([]any{StatusPending, formatTime(now), StatusDone}, toArgs(batch)...)
		res, err := tx.Exec(`
			UPDATE tasks SET status = ?, completed_at = NULL, cleared_at = NULL, updated_at = ?
			WHERE status = ? AND id IN (`+placeholders(len(batch))+`)
		`, args...)
		if err != nil {
			return total, fmt.Errorf("reactivate tasks: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// TaskFilter narrows ListTaskDetailsTx. Zero values match everything except
// cleared tasks, which are only included with IncludeCleared.
type TaskFilter struct {
	ID             string
	MemberSlug     string
	Status         string
	IncludeCleared bool
}

// TaskDetail is a task joined with its member, rule and source.
type TaskDetail struct {
	Task
	Member     Member
	Rule       *Rule
	SourcePath string
}

// ListTaskDetailsTx returns tasks matching filter ordered by member slug,
// category, time of day and title.
func ListTaskDetailsTx(tx *TxOps, filter TaskFilter) ([]TaskDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.ID != "" {
		where = append(where, "t.id = ?")
		args = append(args, filter.ID)
	}
	if filter.MemberSlug != "" {
		where = append(where, "m.slug = ?")
		args = append(args, filter.MemberSlug)
	}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, filter.Status)
	}
	if !filter.IncludeCleared && filter.ID == "" {
		where = append(where, "t.cleared_at IS NULL")
	}

	query := `SELECT ` + taskColumns + `,
			m.id, m.slug, m.name, m.color_hex, m.timezone, m.created_at, m.updated_at,
			r.id, r.frequency, r.repeat_interval, r.days_of_week, r.day_of_month,
			r.time_of_day, r.timezone, r.metadata,
			s.path
		FROM tasks t
		JOIN members m ON m.id = t.member_id
		LEFT JOIN recurrence_rules r ON r.id = t.recurrence_rule_id
		LEFT JOIN sources s ON s.id = t.source_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY m.slug, COALESCE(t.category, ''), COALESCE(t.time_of_day, ''), t.title, t.id`

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TaskDetail
	for rows.Next() {
		d, err := scanTaskDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetTaskDetailTx returns one task with its joins, or nil.
func GetTaskDetailTx(tx *TxOps, id string) (*TaskDetail, error) {
	details, err := ListTaskDetailsTx(tx, TaskFilter{ID: id})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, nil
	}
	return &details[0], nil
}

// ListTaskDetails returns tasks matching filter.
func (s *StoreDB) ListTaskDetails(ctx context.Context, filter TaskFilter) ([]TaskDetail, error) {
	var out []TaskDetail
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		out, err = ListTaskDetailsTx(tx, filter)
		return err
	})
	return out, err
}

// taskFields returns scan destinations for taskColumns and a finisher that
// copies them into t.
func taskFields(t *Task) ([]any, func() error) {
	var (
		notes, category, tz, timeOfDay sql.NullString
		sourceID, sourceKey, ruleID    sql.NullString
		completed, cleared             sql.NullString
		sourceLine                     sql.NullInt64
		tags, createdAt, updatedAt     string
	)
	dest := []any{
		&t.ID, &t.MemberID, &t.Title, &notes, &category, &tags, &t.Status,
		&timeOfDay, &tz, &t.Metadata, &sourceID, &sourceKey, &sourceLine,
		&ruleID, &completed, &cleared, &createdAt, &updatedAt,
	}
	finish := func() error {
		t.Notes = notes.String
		t.Category = category.String
		t.TimeOfDay = timeOfDay.String
		t.Timezone = tz.String
		t.SourceID = sourceID.String
		t.SourceKey = sourceKey.String
		t.SourceLine = int(sourceLine.Int64)
		t.RuleID = ruleID.String
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			t.Tags = nil
		}
		var err error
		if t.CompletedAt, err = scanNullTime(completed); err != nil {
			return err
		}
		if t.ClearedAt, err = scanNullTime(cleared); err != nil {
			return err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return err
		}
		return nil
	}
	return dest, finish
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	dest, finish := taskFields(&t)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTaskDetail(row rowScanner) (*TaskDetail, error) {
	var (
		d                            TaskDetail
		color, memberTZ              sql.NullString
		memberCreated, memberUpdated string
		ruleID, freq, days, ruleTime sql.NullString
		ruleTZ, ruleMeta, sourcePath sql.NullString
		interval, dom                sql.NullInt64
	)
	dest, finish := taskFields(&d.Task)
	dest = append(dest,
		&d.Member.ID, &d.Member.Slug, &d.Member.Name, &color, &memberTZ, &memberCreated, &memberUpdated,
		&ruleID, &freq, &interval, &days, &dom, &ruleTime, &ruleTZ, &ruleMeta,
		&sourcePath,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}

	d.Member.ColorHex = color.String
	d.Member.Timezone = memberTZ.String
	var err error
	if d.Member.CreatedAt, err = parseTime(memberCreated); err != nil {
		return nil, err
	}
	if d.Member.UpdatedAt, err = parseTime(memberUpdated); err != nil {
		return nil, err
	}

	if ruleID.Valid {
		r := &Rule{
			ID:         ruleID.String,
			MemberID:   d.MemberID,
			SourceID:   d.SourceID,
			Frequency:  freq.String,
			Interval:   int(interval.Int64),
			DayOfMonth: scanNullInt(dom),
			TimeOfDay:  ruleTime.String,
			Timezone:   ruleTZ.String,
			Metadata:   ruleMeta.String,
		}
		if err := json.Unmarshal([]byte(days.String), &r.DaysOfWeek); err != nil {
			r.DaysOfWeek = nil
		}
		d.Rule = r
	}
	d.SourcePath = sourcePath.String
	return &d, nil
}
