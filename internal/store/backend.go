package store

import (
	"context"
	"fmt"

	"github.com/verte-zerg/dopabank/internal/model"
)

// Backend persists the two logical documents: the user-record mapping and
// the reward-catalog mapping. Every Save call overwrites the whole document.
type Backend interface {
	// LoadUsers returns the stored mapping and whether the document existed.
	LoadUsers(ctx context.Context) (map[string]*model.UserRecord, bool, error)
	SaveUsers(ctx context.Context, users map[string]*model.UserRecord) error
	// LoadRewards returns the stored reward catalog and whether it existed.
	LoadRewards(ctx context.Context) (map[string]model.Reward, bool, error)
	SaveRewards(ctx context.Context, rewards map[string]model.Reward) error
	// ArchiveRewards moves the reward catalog aside so it is never loaded again.
	ArchiveRewards(ctx context.Context) error
	// Location describes where the data lives, for messages.
	Location() string
	Close() error
}

// PersistError reports a failed durable write. The in-memory state that the
// write was meant to capture has already been applied.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// OpenBackend constructs a backend by name: "json" expects a directory, "sqlite" a
// database file path.
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", "json":
		b, err := OpenJSON(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "sqlite":
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want json or sqlite)", kind)
	}
}
