package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Member is a household member, identified by the slug in their document's
// front-matter.
type Member struct {
	ID        string
	Slug      string
	Name      string
	ColorHex  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const memberColumns = `id, slug, name, color_hex, timezone, created_at, updated_at`

// UpsertMemberTx inserts or updates a member keyed by slug and sets m.ID.
func UpsertMemberTx(tx *TxOps, m *Member) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Name == "" {
		m.Name = m.Slug
	}

	var id string
	err := tx.QueryRow(`
		INSERT INTO members (id, slug, name, color_hex, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			color_hex = excluded.color_hex,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
		RETURNING id
	`, m.ID, m.Slug, m.Name, nullString(m.ColorHex), nullString(m.Timezone),
		formatTime(now), formatTime(now)).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert member %s: %w", m.Slug, err)
	}
	m.ID = id
	m.UpdatedAt = now
	return nil
}

// GetMemberBySlugTx returns the member with slug, or nil if none exists.
func GetMemberBySlugTx(tx *TxOps, slug string) (*Member, error) {
	row := tx.QueryRow(`SELECT `+memberColumns+` FROM members WHERE slug = ?`, slug)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", slug, err)
	}
	return m, nil
}

// GetMemberBySlug returns the member with slug, or nil if none exists.
func (s *StoreDB) GetMemberBySlug(ctx context.Context, slug string) (*Member, error) {
	var m *Member
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		m, err = GetMemberBySlugTx(tx, slug)
		return err
	})
	return m, err
}

// ListMembersTx returns all members ordered by slug.
func ListMembersTx(tx *TxOps) ([]Member, error) {
	rows, err := tx.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListMembers returns all members ordered by slug.
func (s *StoreDB) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		members, err = ListMembersTx(tx)
		return err
	})
	return members, err
}

// DeleteUnusedMembersTx deletes members whose slug is not in keep and who
// own no tasks or rules. It returns the number of members removed.
func DeleteUnusedMembersTx(tx *TxOps, keep map[string]bool) (int, error) {
	rows, err := tx.Query(`
		SELECT m.id, m.slug FROM members m
		WHERE NOT EXISTS (SELECT 1 FROM tasks t WHERE t.member_id = m.id)
		  AND NOT EXISTS (SELECT 1 FROM recurrence_rules r WHERE r.member_id = m.id)
	`)
	if err != nil {
		return 0, fmt.Errorf("find unused members: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id, slug string
		if err := rows.Scan(&id, &slug); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan member: %w", err)
		}
		if !keep[slug] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate members: %w", err)
	}
	_ = rows.Close()

	return deleteByIDsTx(tx, "members", stale)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		m                    Member
		color, tz            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&m.ID, &m.Slug, &m.Name, &color, &tz, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.ColorHex = color.String
	m.Timezone = tz.String
	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
