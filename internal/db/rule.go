package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recurrence frequencies as stored in recurrence_rules.frequency.
const (
	FrequencyDaily   = "DAILY"
	FrequencyWeekly  = "WEEKLY"
	FrequencyMonthly = "MONTHLY"
	FrequencyCustom  = "CUSTOM"
)

// Rule is a stored recurrence rule. Metadata is a JSON object whose "raw"
// key holds the pattern text as written in the document.
type Rule struct {
	ID         string
	MemberID   string
	SourceID   string
	SourceKey  string
	Title      string
	Notes      string
	Frequency  string
	Interval   int
	DaysOfWeek []string
	DayOfMonth *int
	TimeOfDay  string
	Timezone   string
	Metadata   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertRuleTx inserts or updates a rule keyed by (source_id, source_key)
// and sets r.ID.
func UpsertRuleTx(tx *TxOps, r *Rule) error {
	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	if r.Timezone == "" {
		r.Timezone = "UTC"
	}
	if r.Metadata == "" {
		r.Metadata = "{}"
	}
	days := r.DaysOfWeek
	if days == nil {
		days = []string{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("marshal days of week: %w", err)
	}

	var id string
	err = tx.QueryRow(`
		INSERT INTO recurrence_rules (
			id, member_id, source_id, source_key, title, notes, frequency,
			repeat_interval, days_of_week, day_of_month, time_of_day, timezone,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, source_key) DO UPDATE SET
			member_id = excluded.member_id,
			title = excluded.title,
			notes = excluded.notes,
			frequency = excluded.frequency,
			repeat_interval = excluded.repeat_interval,
			days_of_week = excluded.days_of_week,
			day_of_month = excluded.day_of_month,
			time_of_day = excluded.time_of_day,
			timezone = excluded.timezone,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING id
	`, r.ID, r.MemberID, r.SourceID, r.SourceKey, r.Title, nullString(r.Notes), r.Frequency,
		r.Interval, string(daysJSON), nullInt(r.DayOfMonth), nullString(r.TimeOfDay), r.Timezone,
		r.Metadata, formatTime(now), formatTime(now)).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.SourceKey, err)
	}
	r.ID = id
	r.UpdatedAt = now
	return nil
}

// DeleteStaleRulesTx removes rules of sourceID whose key is not in keep.
func DeleteStaleRulesTx(tx *TxOps, sourceID string, keep map[string]bool) (int, error) {
	return deleteStaleKeysTx(tx, "recurrence_rules", sourceID, keep)
}

// deleteStaleKeysTx removes rows of table generated from sourceID whose
// source_key is not in keep.
func deleteStaleKeysTx(tx *TxOps, table, sourceID string, keep map[string]bool) (int, error) {
	rows, err := tx.Query(`SELECT id, source_key FROM `+table+` WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("list %s keys: %w", table, err)
	}
	var stale []string
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan %s key: %w", table, err)
		}
		if !keep[key] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate %s keys: %w", table, err)
	}
	_ = rows.Close()

	return deleteByIDsTx(tx, table, stale)
}
