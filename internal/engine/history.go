package engine

import (
	"context"
	"sort"

	"github.com/verte-zerg/dopabank/internal/model"
)

// appendHistory numbers entry with the user's completion count and appends
// it. Callers hold the user's lock and have already counted the completion.
func appendHistory(u *model.UserRecord, entry model.HistoryEntry) model.HistoryEntry {
	entry.ID = u.TasksCompleted
	u.TasksHistory = append(u.TasksHistory, entry)
	return entry
}

// TodayTasks returns today's completed tasks, most recent first.
func (e *Engine) TodayTasks(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	u, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := e.dateOf(e.now())
	out := make([]model.HistoryEntry, 0)
	for _, entry := range u.TasksHistory {
		if entry.Date == today {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndTime.After(out[j].EndTime.Time)
	})
	return out, nil
}

// History returns the last limit completed tasks, most recent first. A
// non-positive limit returns everything.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]model.HistoryEntry, error) {
	u, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := u.TasksHistory
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]model.HistoryEntry, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out, nil
}
