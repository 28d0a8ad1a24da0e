package recurrence

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/famplan/internal/db"
)

// SweepResult reports what a reactivation sweep changed.
type SweepResult struct {
	Reactivated int `json:"reactivated"`
}

// Sweeper reopens completed recurring tasks whose current period has begun
// since they were completed.
type Sweeper struct {
	store  db.TxRunner
	logger *slog.Logger
	now    func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithLogger sets the logger for the sweeper.
func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store db.TxRunner, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
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
	return s
}

// Sweep runs one reactivation pass in its own transaction.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	var result *SweepResult
	err := s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		result, err = s.SweepTx(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SweepTx runs one reactivation pass inside tx.
func (s *Sweeper) SweepTx(tx *db.TxOps) (*SweepResult, error) {
	candidates, err := db.ListDoneRecurringTx(tx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &SweepResult{}, nil
	}

	now := s.now()
	var due []string
	for _, c := range candidates {
		if Due(c, now) {
			due = append(due, c.TaskID)
		}
	}
	if len(due) == 0 {
		return &SweepResult{}, nil
	}

	n, err := db.ReactivateTasksTx(tx, due, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reactivated recurring tasks", "count", n, "candidates", len(candidates))
	return &SweepResult{Reactivated: n}, nil
}

// Due reports whether a completed recurring task should reopen at now: its
// completion precedes the rule's most recent occurrence. The occurrence is
// evaluated in the rule's timezone, then the task's, then UTC.
func Due(c db.DoneRecurring, now time.Time) bool {
	loc := ResolveLocation(c.RuleTimezone, c.TaskTimezone)
	timeOfDay := c.RuleTimeOfDay
	if timeOfDay == "" {
		timeOfDay = c.TaskTimeOfDay
	}
	rule := Rule{
		Frequency:  Frequency(c.Frequency),
		DaysOfWeek: c.DaysOfWeek,
		DayOfMonth: c.DayOfMonth,
		TimeOfDay:  timeOfDay,
	}
	return c.CompletedAt.Before(MostRecentOccurrence(rule, loc, now))
}
