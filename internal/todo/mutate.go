package todo

import (
	"context"
	"strings"

	"github.com/randalmurphal/famplan/internal/db"
	ferrors "github.com/randalmurphal/famplan/internal/errors"
	"github.com/randalmurphal/famplan/internal/recurrence"
)

// CreateInput describes a task added by hand.
type CreateInput struct {
	Title      string
	MemberSlug string
	Notes      string
	Category   string
	TimeOfDay  string
	Tags       []string
}

// Patch holds the fields Update changes. Nil fields are left alone.
type Patch struct {
	Title     *string
	Notes     *string
	Category  *string
	TimeOfDay *string
	Tags      *[]string
	Status    *string
}

// Create adds a pending task with no source document for an existing
// member. The task takes the member's timezone.
func (s *Service) Create(ctx context.Context, in CreateInput) (*View, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ferrors.ErrInputInvalid("title", "title is required")
	}
	timeOfDay, err := parseTimeField(in.TimeOfDay)
	if err != nil {
		return nil, err
	}

	var detail *db.TaskDetail
	err = s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		member, err := db.GetMemberBySlugTx(tx, in.MemberSlug)
		if err != nil {
			return err
		}
		if member == nil {
			return ferrors.ErrMemberNotFound(in.MemberSlug)
		}
		task := &db.Task{
			MemberID:  member.ID,
			Title:     title,
			Notes:     strings.TrimSpace(in.Notes),
			Category:  strings.TrimSpace(in.Category),
			Tags:      cleanTags(in.Tags),
			TimeOfDay: timeOfDay,
			Timezone:  member.Timezone,
		}
		if err := db.InsertTaskTx(tx, task); err != nil {
			return err
		}
		detail, err = db.GetTaskDetailTx(tx, task.ID)
		return err
	})
	if err != nil {
		return nil, storeErr("create task", err)
	}

	s.logger.Info("created task", "id", detail.ID, "member", detail.Member.Slug)
	return newView(detail), nil
}

// Update applies patch to the task with id. Setting a status clears
// cleared_at; DONE stamps completed_at and PENDING removes it.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*View, error) {
	var status string
	if patch.Status != nil {
		var err error
		if status, err = normalizeStatus(*patch.Status); err != nil {
			return nil, err
		}
		if status == "" {
			return nil, ferrors.ErrInputInvalid("status", "status cannot be empty")
		}
	}
	var timeOfDay string
	if patch.TimeOfDay != nil {
		var err error
		if timeOfDay, err = parseTimeField(*patch.TimeOfDay); err != nil {
			return nil, err
		}
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, ferrors.ErrInputInvalid("title", "title cannot be empty")
	}

	var detail *db.TaskDetail
	err := s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		task, err := db.GetTaskTx(tx, id)
		if err != nil {
			return err
		}
		if task == nil {
			return ferrors.ErrTaskNotFound(id)
		}

		if patch.Title != nil {
			task.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Notes != nil {
			task.Notes = strings.TrimSpace(*patch.Notes)
		}
		if patch.Category != nil {
			task.Category = strings.TrimSpace(*patch.Category)
		}
		if patch.TimeOfDay != nil {
			task.TimeOfDay = timeOfDay
		}
		if patch.Tags != nil {
			task.Tags = cleanTags(*patch.Tags)
		}
		if patch.Status != nil {
			task.Status = status
			task.ClearedAt = nil
			if status == db.StatusDone {
				now := s.now()
				task.CompletedAt = &now
			} else {
				task.CompletedAt = nil
			}
		}

		if err := db.UpdateTaskTx(tx, task); err != nil {
			return err
		}
		detail, err = db.GetTaskDetailTx(tx, id)
		return err
	})
	if err != nil {
		return nil, storeErr("update task", err)
	}

	s.logger.Debug("updated task", "id", id, "status", detail.Status)
	return newView(detail), nil
}

// ClearFinished hides DONE tasks, optionally for one member, then sweeps
// in the same transaction. An unknown member slug clears nothing.
func (s *Service) ClearFinished(ctx context.Context, memberSlug string) (*ClearResult, error) {
	result := &ClearResult{}
	err := s.store.RunInTx(ctx, func(tx *db.TxOps) error {
		n, err := db.ClearFinishedTx(tx, memberSlug, s.now())
		if err != nil {
			return err
		}
		result.Cleared = n

		swept, err := s.sweeper.SweepTx(tx)
		if err != nil {
			return err
		}
		result.Reactivated = swept.Reactivated
		return nil
	})
	if err != nil {
		return nil, storeErr("clear finished tasks", err)
	}

	s.logger.Info("cleared finished tasks", "member", memberSlug,
		"cleared", result.Cleared, "reactivated", result.Reactivated)
	return result, nil
}

func parseTimeField(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	t := recurrence.NormalizeTime(value)
	if t == "" {
		return "", ferrors.ErrInputInvalid("timeOfDay", "expected HH:MM, got "+value)
	}
	return t, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// storeErr passes typed errors through and wraps the rest as store failures.
func storeErr(op string, err error) error {
	if ferrors.AsFamplanError(err) != nil {
		return err
	}
	return ferrors.ErrStore(op, err)
}
