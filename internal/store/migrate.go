package store

import (
	"context"
	"fmt"

	"github.com/verte-zerg/dopabank/internal/model"
)

// migrateLegacyRewards copies a leftover global catalog into every user
// whose personal catalog is empty, then archives the catalog so this runs
// once.
func (s *Store) migrateLegacyRewards(ctx context.Context) error {
	legacy, ok, err := s.backend.LoadRewards(ctx)
	if err != nil {
		return fmt.Errorf("failed to load legacy rewards: %w", err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	for id, u := range s.users {
		if len(u.Rewards) > 0 {
			continue
		}
		work := u.Clone()
		work.Rewards = model.CloneRewards(legacy)
		s.users[id] = work
	}
	err = s.persistUsersLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.backend.ArchiveRewards(ctx); err != nil {
		return &PersistError{Op: "archive rewards", Path: s.backend.Location(), Err: err}
	}
	return nil
}
