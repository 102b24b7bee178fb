package engine

import (
	"context"
	"strings"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/scoring"
	"github.com/verte-zerg/dopabank/internal/store"
)

// StartResult describes the outcome of StartTask. When Started is false a
// task was already running and StartTime/Elapsed describe that task.
type StartResult struct {
	Started   bool
	StartTime time.Time
	Elapsed   time.Duration
}

// Completion is the result of closing a task.
type Completion struct {
	Entry   model.HistoryEntry
	Score   scoring.Score
	Elapsed time.Duration
	Balance int
}

// StartTask moves the user from idle to running. A second start while
// running does not touch the recorded start time.
func (e *Engine) StartTask(ctx context.Context, userID string) (StartResult, error) {
	var res StartResult
	err := e.store.Update(ctx, userID, func(u *model.UserRecord) error {
		now := e.now()
		if u.ActiveTask != nil {
			res.StartTime = u.ActiveTask.StartTime.Time
			res.Elapsed = now.Sub(res.StartTime)
			return store.ErrSkipWrite
		}
		u.ActiveTask = &model.ActiveTask{StartTime: model.NewTimestamp(now)}
		res = StartResult{Started: true, StartTime: now}
		return nil
	})
	return res, err
}

// ActiveElapsed reports how long the running task has been open. The bool
// is false when the user is idle.
func (e *Engine) ActiveElapsed(ctx context.Context, userID string) (time.Duration, bool, error) {
	u, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if u.ActiveTask == nil {
		return 0, false, nil
	}
	return e.now().Sub(u.ActiveTask.StartTime.Time), true, nil
}

// CancelTask discards the running task without scoring it. It reports
// false when there was nothing to cancel.
func (e *Engine) CancelTask(ctx context.Context, userID string) (bool, error) {
	canceled := false
	err := e.store.Update(ctx, userID, func(u *model.UserRecord) error {
		if u.ActiveTask == nil {
			return store.ErrSkipWrite
		}
		u.ActiveTask = nil
		canceled = true
		return nil
	})
	return canceled, err
}

// EndTask closes the running task, scores it and records the award. It
// returns nil with no error when the user is idle.
//
// Clearing the active task, the balance delta and the history entry happen
// in one store update, so either all three are visible or none is.
func (e *Engine) EndTask(ctx context.Context, userID string, d model.Difficulty, name string) (*Completion, error) {
	var out *Completion
	err := e.store.Update(ctx, userID, func(u *model.UserRecord) error {
		if u.ActiveTask == nil {
			return store.ErrSkipWrite
		}
		start := u.ActiveTask.StartTime.Time
		end := e.now()
		elapsed := end.Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		score := scoring.ComputeDuration(elapsed, d)

		bucket := d
		if !bucket.IsValid() {
			bucket = model.DifficultyStandard
		}
		applyEarned(u, score.FinalPoints, bucket)

		name = strings.TrimSpace(name)
		if name == "" {
			name = e.taskName
		}
		entry := appendHistory(u, model.HistoryEntry{
			Name:       name,
			Difficulty: bucket,
			StartTime:  model.NewTimestamp(start),
			EndTime:    model.NewTimestamp(end),
			Duration:   elapsed.Seconds(),
			Points:     score.FinalPoints,
			Date:       e.dateOf(end),
		})
		u.ActiveTask = nil

		out = &Completion{
			Entry:   entry,
			Score:   score,
			Elapsed: elapsed,
			Balance: u.Points,
		}
		return nil
	})
	return out, err
}
