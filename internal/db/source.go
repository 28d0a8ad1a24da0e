package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is one ingested document, keyed by its path relative to the
// content root.
type Source struct {
	ID           string
	Path         string
	Checksum     string
	LastSyncedAt time.Time
	CreatedAt    time.Time
}

// UpsertSourceTx inserts or updates a source keyed by path and sets src.ID.
func UpsertSourceTx(tx *TxOps, src *Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.LastSyncedAt.IsZero() {
		src.LastSyncedAt = time.Now()
	}

	var id string
	err := tx.QueryRow(`
		INSERT INTO sources (id, path, checksum, last_synced_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum = excluded.checksum,
			last_synced_at = excluded.last_synced_at
		RETURNING id
	`, src.ID, src.Path, src.Checksum, formatTime(src.LastSyncedAt), formatTime(src.LastSyncedAt)).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.Path, err)
	}
	src.ID = id
	return nil
}

// GetSourceByPathTx returns the source stored for path, or nil.
func GetSourceByPathTx(tx *TxOps, path string) (*Source, error) {
	var (
		src               Source
		synced, createdAt string
	)
	err := tx.QueryRow(`
		SELECT id, path, checksum, last_synced_at, created_at FROM sources WHERE path = ?
	`, path).Scan(&src.ID, &src.Path, &src.Checksum, &synced, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", path, err)
	}
	if src.LastSyncedAt, err = parseTime(synced); err != nil {
		return nil, err
	}
	if src.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &src, nil
}

// SourceRemoval counts the rows removed with vanished sources.
type SourceRemoval struct {
	Sources int
	Tasks   int
	Rules   int
}

// DeleteSourcesExceptTx removes every source whose path is not in keep,
// together with the tasks and rules generated from it.
func DeleteSourcesExceptTx(tx *TxOps, keep map[string]bool) (*SourceRemoval, error) {
	rows, err := tx.Query(`SELECT id, path FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if !keep[path] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	_ = rows.Close()

	var out SourceRemoval
	for _, batch := range chunk(stale, maxBatch) {
		in := placeholders(len(batch))
		args := toArgs(batch)

		res, err := tx.Exec(`DELETE FROM tasks WHERE source_id IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("delete source tasks: %w", err)
		}
		n, _ := res.RowsAffected()
		out.Tasks += int(n)

		res, err = tx.Exec(`DELETE FROM recurrence_rules WHERE source_id IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("delete source rules: %w", err)
		}
		n, _ = res.RowsAffected()
		out.Rules += int(n)
	}

	removed, err := deleteByIDsTx(tx, "sources", stale)
	if err != nil {
		return nil, err
	}
	out.Sources = removed
	return &out, nil
}
