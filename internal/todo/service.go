// Package todo is the read/write surface over the task store used by the
// CLI. Reads run a reactivation sweep first so recurring tasks whose period
// restarted show up as pending again.
package todo

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/famplan/internal/db"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/reconcile"
	"github.com/randalmurphal/famplan/internal/recurrence"
)

// Filter narrows List. Zero values match all non-cleared tasks.
type Filter struct {
	MemberSlug     string
	Status         string
	IncludeCleared bool
}

// ClearResult reports what ClearFinished changed.
type ClearResult struct {
	Cleared     int `json:"cleared"`
	Reactivated int `json:"reactivated"`
}

// Service lists and edits tasks.
type Service struct {
	store   db.TxRunner
	engine  *reconcile.Engine
	sweeper *recurrence.Sweeper
	logger  *slog.Logger
	now     func() time.Time

	sweeps singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the reconciliation engine used by Sync.
func WithEngine(e *reconcile.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source for completion stamps and sweeps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a service over store.
func New(store db.TxRunner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.sweeper = recurrence.NewSweeper(store,
		recurrence.WithClock(s.now),
		recurrence.WithLogger(s.logger),
	)
	return s
}

// List sweeps, then returns tasks matching filter ordered by member,
// category, time of day and title.
func (s *Service) List(ctx context.Context, filter Filter) ([]View, error) {
	status, err := normalizeStatus(filter.Status)
	if err != nil {
		return nil, err
	}
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}

	var details []db.TaskDetail
	err = s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		details, err = db.ListTaskDetailsTx(tx, db.TaskFilter{
			MemberSlug:     filter.MemberSlug,
			Status:         status,
			IncludeCleared: filter.IncludeCleared,
		})
		return err
	})
	if err != nil {
		return nil, ferrors.ErrStore("list tasks", err)
	}
	return newViews(details), nil
}

// Get returns one task by id.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	var detail *db.TaskDetail
	err := s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		detail, err = db.GetTaskDetailTx(tx, id)
		return err
	})
	if err != nil {
		return nil, ferrors.ErrStore("get task", err)
	}
	if detail == nil {
		return nil, ferrors.ErrTaskNotFound(id)
	}
	return newView(detail), nil
}

// Sweep reopens recurring tasks whose period restarted. Concurrent callers
// share one pass.
func (s *Service) Sweep(ctx context.Context) (*recurrence.SweepResult, error) {
	v, err, shared := s.sweeps.Do("sweep", func() (any, error) {
		return s.sweeper.Sweep(ctx)
	})
	if err != nil {
		return nil, ferrors.ErrStore("sweep recurring tasks", err)
	}
	result := v.(*recurrence.SweepResult)
	if shared {
		s.logger.Debug("joined in-flight sweep", "reactivated", result.Reactivated)
	}
	return result, nil
}

// Sync reconciles the content directory into the store.
func (s *Service) Sync(ctx context.Context) (*reconcile.Summary, error) {
	if s.engine == nil {
		return nil, ferrors.ErrConfigInvalid("content.dir", "no content directory configured")
	}
	return s.engine.SyncDir(ctx)
}

func normalizeStatus(status string) (string, error) {
	switch s := strings.ToUpper(strings.TrimSpace(status)); s {
	case "", db.StatusPending, db.StatusDone:
		return s, nil
	default:
		return "", ferrors.ErrInputInvalid("status", "must be PENDING or DONE, got "+status)
	}
}
