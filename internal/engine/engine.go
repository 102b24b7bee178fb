// Package engine is the economy core: the task timer, scoring hand-off,
// point ledger, reward catalog and history queries, all serialized per user
// through the record store.
package engine

import (
	"context"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
	"github.com/verte-zerg/dopabank/internal/stats"
	"github.com/verte-zerg/dopabank/internal/store"
)

// DefaultTaskName labels completed tasks that were given no name.
const DefaultTaskName = "Task"

// Options configures an Engine.
type Options struct {
	// Location fixes the timezone used for history dates. Defaults to time.Local.
	Location *time.Location
	// Now overrides the clock, for tests.
	Now func() time.Time
	// DefaultTaskName overrides DefaultTaskName.
	DefaultTaskName string
}

// Engine exposes the boundary API used by front-ends.
type Engine struct {
	store    *store.Store
	catalog  catalog
	loc      *time.Location
	now      func() time.Time
	taskName string
}

// New wires an engine over st. The reward catalog follows st.Scope().
func New(st *store.Store, opts Options) *Engine {
	e := &Engine{
		store:    st,
		loc:      opts.Location,
		now:      opts.Now,
		taskName: opts.DefaultTaskName,
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.taskName == "" {
		e.taskName = DefaultTaskName
	}
	if st.Scope() == model.ScopeGlobal {
		e.catalog = globalCatalog{store: st}
	} else {
		e.catalog = userCatalog{store: st}
	}
	return e
}

// Scope reports the reward scope in effect.
func (e *Engine) Scope() model.RewardScope { return e.store.Scope() }

// Location reports the timezone used for history dates.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// User returns the user's record, creating it on first access.
func (e *Engine) User(ctx context.Context, userID string) (*model.UserRecord, error) {
	return e.store.GetOrCreate(ctx, userID)
}

// Stats summarizes the user's history as of now.
func (e *Engine) Stats(ctx context.Context, userID string) (stats.Summary, error) {
	u, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Summarize(u, e.now().In(e.loc)), nil
}

func (e *Engine) dateOf(t time.Time) string {
	return t.In(e.loc).Format(stats.DateLayout)
}
