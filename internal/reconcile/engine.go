// Package reconcile writes parsed member documents into the store.
//
// A pass runs in a single transaction under the store-level "reconcile"
// lock. In preserve mode rows are upserted by (source, key) and rows whose
// keys vanished from the documents are deleted, so completion state
// survives re-syncs. Replace mode wipes all document-derived state first.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/famplan/internal/db"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/markdown"
)

// LockName is the store lock held for the duration of a pass.
const LockName = "reconcile"

// Mode selects how a pass treats rows already in the store.
type Mode string

const (
	// ModePreserve upserts and deletes only rows whose keys disappeared.
	ModePreserve Mode = "preserve"
	// ModeReplace deletes all tasks, rules, sources and members first.
	ModeReplace Mode = "replace"
)

// ParseMode parses a mode name; empty means ModePreserve.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePreserve:
		return ModePreserve, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", ferrors.ErrConfigInvalid("sync.mode", fmt.Sprintf("unknown mode %q (want preserve or replace)", s))
	}
}

// Summary reports what one pass did.
type Summary struct {
	Mode               Mode `json:"mode"`
	DocumentsProcessed int  `json:"documentsProcessed"`
	TasksProcessed     int  `json:"tasksProcessed"`
	DocumentsUnchanged int  `json:"documentsUnchanged"`
	TasksRemoved       int  `json:"tasksRemoved"`
	RulesRemoved       int  `json:"rulesRemoved"`
	SourcesRemoved     int  `json:"sourcesRemoved"`
	MembersRemoved     int  `json:"membersRemoved"`
}

// Message is the one-line result shown after a sync.
func (s *Summary) Message() string {
	return fmt.Sprintf("Synced %d todos from %d markdown file(s).", s.TasksProcessed, s.DocumentsProcessed)
}

// Engine reconciles documents into a store. Passes are serialized.
type Engine struct {
	store   db.TxRunner
	mode    Mode
	root    string
	pattern string
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the reconciliation mode.
func WithMode(mode Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithContentDir sets the directory and glob pattern SyncDir loads.
func WithContentDir(root, pattern string) Option {
	return func(e *Engine) {
		e.root = root
		e.pattern = pattern
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for last_synced_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over store.
func New(store db.TxRunner, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		mode:    ModePreserve,
		pattern: markdown.DefaultPattern,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.mode == "" {
		e.mode = ModePreserve
	}
	return e
}

// Mode returns the engine's reconciliation mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// SyncDir loads the content directory and reconciles it.
func (e *Engine) SyncDir(ctx context.Context) (*Summary, error) {
	docs, err := markdown.LoadDir(ctx, e.root, e.pattern)
	if err != nil {
		if ferrors.AsFamplanError(err) != nil {
			return nil, err
		}
		return nil, fmt.Errorf("load documents from %s: %w", e.root, err)
	}
	return e.Reconcile(ctx, docs)
}

// Reconcile applies docs to the store in one transaction. Documents are
// applied in order; any failure leaves the store as it was.
func (e *Engine) Reconcile(ctx context.Context, docs []*markdown.Document) (*Summary, error) {
	if err := validate(docs); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var summary *Summary
	err := e.store.RunInTx(ctx, func(tx *db.TxOps) error {
		summary = &Summary{Mode: e.mode}
		if err := tx.Lock(LockName); err != nil {
			return err
		}
		return e.apply(tx, docs, summary)
	})
	if err != nil {
		if ferrors.AsFamplanError(err) != nil {
			return nil, err
		}
		return nil, ferrors.ErrStore("reconcile documents", err)
	}

	e.logger.Info("reconciled documents",
		"mode", summary.Mode,
		"documents", summary.DocumentsProcessed,
		"unchanged", summary.DocumentsUnchanged,
		"tasks", summary.TasksProcessed,
		"tasks_removed", summary.TasksRemoved,
		"sources_removed", summary.SourcesRemoved,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (e *Engine) apply(tx *db.TxOps, docs []*markdown.Document, summary *Summary) error {
	if e.mode == ModeReplace {
		removed, err := db.DeleteAllTx(tx)
		if err != nil {
			return err
		}
		summary.TasksRemoved = removed.Tasks
		summary.RulesRemoved = removed.Rules
		summary.SourcesRemoved = removed.Sources
		summary.MembersRemoved = removed.Members
	}

	keepPaths := make(map[string]bool, len(docs))
	keepSlugs := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if err := e.applyDocument(tx, doc, summary); err != nil {
			return err
		}
		keepPaths[doc.Path] = true
		keepSlugs[doc.Owner.Slug] = true
		summary.DocumentsProcessed++
	}

	if e.mode != ModePreserve {
		return nil
	}

	removed, err := db.DeleteSourcesExceptTx(tx, keepPaths)
	if err != nil {
		return err
	}
	summary.SourcesRemoved += removed.Sources
	summary.TasksRemoved += removed.Tasks
	summary.RulesRemoved += removed.Rules

	members, err := db.DeleteUnusedMembersTx(tx, keepSlugs)
	if err != nil {
		return err
	}
	summary.MembersRemoved += members
	return nil
}

func (e *Engine) applyDocument(tx *db.TxOps, doc *markdown.Document, summary *Summary) error {
	member := &db.Member{
		Slug:     doc.Owner.Slug,
		Name:     doc.Owner.Name,
		ColorHex: doc.Owner.Color,
		Timezone: doc.Owner.Timezone,
	}
	if err := db.UpsertMemberTx(tx, member); err != nil {
		return err
	}

	prev, err := db.GetSourceByPathTx(tx, doc.Path)
	if err != nil {
		return err
	}
	if prev != nil && prev.Checksum == doc.Checksum {
		summary.DocumentsUnchanged++
	}

	src := &db.Source{Path: doc.Path, Checksum: doc.Checksum, LastSyncedAt: e.now()}
	if err := db.UpsertSourceTx(tx, src); err != nil {
		return err
	}

	taskKeys := make(map[string]bool, len(doc.Tasks))
	ruleKeys := make(map[string]bool)
	for i := range doc.Tasks {
		t := &doc.Tasks[i]

		var ruleID string
		if t.Recurrence != nil {
			rule, err := ruleFor(member.ID, src.ID, doc.Owner.Timezone, t)
			if err != nil {
				return err
			}
			if err := db.UpsertRuleTx(tx, rule); err != nil {
				return err
			}
			ruleID = rule.ID
			ruleKeys[rule.SourceKey] = true
		}

		task, err := taskFor(member.ID, src.ID, ruleID, doc.Owner.Timezone, t)
		if err != nil {
			return err
		}
		if err := db.UpsertSourceTaskTx(tx, task); err != nil {
			return err
		}
		taskKeys[t.Key] = true
		summary.TasksProcessed++
	}

	if e.mode == ModePreserve {
		n, err := db.DeleteStaleTasksTx(tx, src.ID, taskKeys)
		if err != nil {
			return err
		}
		summary.TasksRemoved += n
		n, err = db.DeleteStaleRulesTx(tx, src.ID, ruleKeys)
		if err != nil {
			return err
		}
		summary.RulesRemoved += n
	}

	e.logger.Debug("applied document", "path", doc.Path, "member", member.Slug, "tasks", len(doc.Tasks))
	return nil
}

// RuleKey is the source key of the rule generated for a task key.
func RuleKey(taskKey string) string {
	return taskKey + "-recurring"
}

func ruleFor(memberID, sourceID, timezone string, t *markdown.Task) (*db.Rule, error) {
	meta, err := json.Marshal(map[string]string{"raw": t.Recurrence.Raw})
	if err != nil {
		return nil, fmt.Errorf("marshal rule metadata: %w", err)
	}
	timeOfDay := t.Recurrence.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = t.TimeOfDay
	}
	if timezone == "" {
		timezone = "UTC"
	}
	return &db.Rule{
		MemberID:   memberID,
		SourceID:   sourceID,
		SourceKey:  RuleKey(t.Key),
		Title:      t.Title,
		Notes:      t.Notes,
		Frequency:  string(t.Recurrence.Frequency),
		Interval:   1,
		DaysOfWeek: t.Recurrence.DaysOfWeek,
		DayOfMonth: t.Recurrence.DayOfMonth,
		TimeOfDay:  timeOfDay,
		Timezone:   timezone,
		Metadata:   string(meta),
	}, nil
}

func taskFor(memberID, sourceID, ruleID, timezone string, t *markdown.Task) (*db.Task, error) {
	meta := make(map[string]any, len(t.Metadata)+2)
	for k, v := range t.Metadata {
		meta[k] = v
	}
	if t.Category != "" {
		meta["category"] = t.Category
	}
	meta["tags"] = t.Tags
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal task metadata: %w", err)
	}
	return &db.Task{
		MemberID:   memberID,
		Title:      t.Title,
		Notes:      t.Notes,
		Category:   t.Category,
		Tags:       t.Tags,
		TimeOfDay:  t.TimeOfDay,
		Timezone:   timezone,
		Metadata:   string(raw),
		SourceID:   sourceID,
		SourceKey:  t.Key,
		SourceLine: t.SourceLine,
		RuleID:     ruleID,
	}, nil
}

// validate rejects batches the store cannot apply consistently.
func validate(docs []*markdown.Document) error {
	seen := make(map[string]bool, len(docs))
	owners := make(map[string]string, len(docs))
	for _, doc := range docs {
		if doc == nil {
			return ferrors.ErrDocumentInvalid("<nil>", "document is nil")
		}
		if doc.Owner.Slug == "" {
			return ferrors.ErrDocumentInvalid(doc.Path, "front-matter has no 'member' field")
		}
		if seen[doc.Path] {
			return ferrors.ErrDocumentInvalid(doc.Path, "document path appears twice in one pass")
		}
		seen[doc.Path] = true
		if other, ok := owners[doc.Owner.Slug]; ok {
			return ferrors.ErrDocumentInvalid(doc.Path,
				fmt.Sprintf("member %q is already defined by %s", doc.Owner.Slug, other))
		}
		owners[doc.Owner.Slug] = doc.Path

		keys := make(map[string]bool, len(doc.Tasks))
		for _, t := range doc.Tasks {
			if keys[t.Key] {
				return ferrors.ErrDocumentInvalid(doc.Path, fmt.Sprintf("task key %q is not unique", t.Key))
			}
			keys[t.Key] = true
		}
	}
	return nil
}
