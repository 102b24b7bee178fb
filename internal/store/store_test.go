package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
)

func openJSONStore(t *testing.T, dir string, scope model.RewardScope) *Store {
	t.Helper()
	b, err := OpenJSON(dir)
	if err != nil {
		t.Fatalf("open json backend: %v", err)
	}
	st, err := Open(context.Background(), b, scope)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func openSQLiteStore(t *testing.T, path string, scope model.RewardScope) *Store {
	t.Helper()
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	st, err := Open(context.Background(), b, scope)
	if err != nil {
		_ = b.Close()
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestOpenCreatesEmptyUsersDocument(t *testing.T) {
	dir := t.TempDir()
	openJSONStore(t, dir, model.ScopePerUser)
	data, err := os.ReadFile(filepath.Join(dir, usersFileName))
	if err != nil {
		t.Fatalf("read users.json: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("expected empty mapping, got %q", data)
	}
}

func TestGetOrCreatePersistsDefaults(t *testing.T) {
	dir := t.TempDir()
	st := openJSONStore(t, dir, model.ScopePerUser)
	u, err := st.GetOrCreate(context.Background(), "42")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if u.Points != 0 || u.TasksCompleted != 0 || u.ActiveTask != nil {
		t.Fatalf("unexpected defaults: %+v", u)
	}
	if len(u.DifficultyStats) != len(model.Difficulties) {
		t.Fatalf("expected %d difficulty buckets, got %d", len(model.Difficulties), len(u.DifficultyStats))
	}
	if u.Rewards == nil {
		t.Fatalf("expected per-user reward collection")
	}

	reopened := openJSONStore(t, dir, model.ScopePerUser)
	if _, ok := reopened.Get("42"); !ok {
		t.Fatalf("expected user to be persisted on first access")
	}
}

func TestUpdateRoundTripsThroughJSON(t *testing.T) {
	dir := t.TempDir()
	st := openJSONStore(t, dir, model.ScopePerUser)
	start := time.Unix(1700000000, 250_000_000)
	err := st.Update(context.Background(), "7", func(u *model.UserRecord) error {
		u.Points = 12
		u.ActiveTask = &model.ActiveTask{StartTime: model.NewTimestamp(start)}
		u.Rewards["1"] = model.Reward{Name: "Кофе", Cost: 100}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := openJSONStore(t, dir, model.ScopePerUser)
	u, ok := reopened.Get("7")
	if !ok {
		t.Fatalf("expected user 7")
	}
	if u.Points != 12 {
		t.Fatalf("expected 12 points, got %d", u.Points)
	}
	if u.ActiveTask == nil || !u.ActiveTask.StartTime.Equal(start) {
		t.Fatalf("unexpected active task: %+v", u.ActiveTask)
	}
	if r := u.Rewards["1"]; r.Name != "Кофе" || r.Cost != 100 || r.ID != "1" {
		t.Fatalf("unexpected reward: %+v", r)
	}

	data, err := os.ReadFile(filepath.Join(dir, usersFileName))
	if err != nil {
		t.Fatalf("read users.json: %v", err)
	}
	if !strings.Contains(string(data), "Кофе") {
		t.Fatalf("expected unescaped unicode in document")
	}
}

func TestUpdateFailureLeavesRecordUnchanged(t *testing.T) {
	st := openJSONStore(t, t.TempDir(), model.ScopePerUser)
	ctx := context.Background()
	if err := st.Update(ctx, "1", func(u *model.UserRecord) error {
		u.Points = 10
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	boom := errors.New("boom")
	err := st.Update(ctx, "1", func(u *model.UserRecord) error {
		u.Points = 999
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	u, _ := st.Get("1")
	if u.Points != 10 {
		t.Fatalf("expected points to stay 10, got %d", u.Points)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st := openJSONStore(t, dir, model.ScopeGlobal)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.Update(ctx, "u", func(u *model.UserRecord) error {
			u.Points++
			return nil
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("unexpected temp file left behind: %s", e.Name())
		}
	}
}

func TestGlobalCatalogPersists(t *testing.T) {
	dir := t.TempDir()
	st := openJSONStore(t, dir, model.ScopeGlobal)
	err := st.UpdateCatalog(context.Background(), func(c map[string]model.Reward) error {
		c["1"] = model.Reward{Name: "Movie", Cost: 300}
		return nil
	})
	if err != nil {
		t.Fatalf("update catalog: %v", err)
	}
	reopened := openJSONStore(t, dir, model.ScopeGlobal)
	if r, ok := reopened.Catalog()["1"]; !ok || r.Name != "Movie" || r.ID != "1" {
		t.Fatalf("unexpected catalog: %+v", reopened.Catalog())
	}
}

func TestLegacyRewardsMigrateOnceJSON(t *testing.T) {
	dir := t.TempDir()
	users := `{"1": {"points": 5, "tasks_completed": 0, "difficulty_stats": {}, "active_task": null, "tasks_history": []},
		"2": {"points": 0, "tasks_completed": 0, "difficulty_stats": {}, "active_task": null, "tasks_history": [], "rewards": {"1": {"name": "Own", "cost": 1}}}}`
	legacy := `{"1": {"name": "Coffee", "cost": 100}, "3": {"name": "Game", "cost": 500}}`
	if err := os.WriteFile(filepath.Join(dir, usersFileName), []byte(users), 0o644); err != nil {
		t.Fatalf("write users: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rewardsFileName), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write rewards: %v", err)
	}

	st := openJSONStore(t, dir, model.ScopePerUser)
	u1, _ := st.Get("1")
	if len(u1.Rewards) != 2 || u1.Rewards["3"].Name != "Game" {
		t.Fatalf("expected legacy rewards copied to user 1, got %+v", u1.Rewards)
	}
	u2, _ := st.Get("2")
	if len(u2.Rewards) != 1 || u2.Rewards["1"].Name != "Own" {
		t.Fatalf("expected user 2 rewards untouched, got %+v", u2.Rewards)
	}
	if _, err := os.Stat(filepath.Join(dir, rewardsFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected legacy document to be moved, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, rewardsFileName+backupSuffix)); err != nil {
		t.Fatalf("expected backup document: %v", err)
	}

	// A second open must not re-run the migration.
	if err := st.Update(context.Background(), "1", func(u *model.UserRecord) error {
		u.Rewards = map[string]model.Reward{}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	reopened := openJSONStore(t, dir, model.ScopePerUser)
	u1, _ = reopened.Get("1")
	if len(u1.Rewards) != 0 {
		t.Fatalf("migration ran twice: %+v", u1.Rewards)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dopabank.db")
	ctx := context.Background()
	st := openSQLiteStore(t, path, model.ScopeGlobal)
	if err := st.Update(ctx, "9", func(u *model.UserRecord) error {
		u.Points = 77
		u.TasksCompleted = 1
		u.DifficultyStats[model.DifficultyHard] = 1
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := st.UpdateCatalog(ctx, func(c map[string]model.Reward) error {
		c["1"] = model.Reward{Name: "Walk", Cost: 20}
		return nil
	}); err != nil {
		t.Fatalf("update catalog: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openSQLiteStore(t, path, model.ScopeGlobal)
	defer func() {
		_ = reopened.Close()
	}()
	u, ok := reopened.Get("9")
	if !ok || u.Points != 77 || u.DifficultyStats[model.DifficultyHard] != 1 {
		t.Fatalf("unexpected user after reopen: %+v", u)
	}
	if r := reopened.Catalog()["1"]; r.Name != "Walk" || r.Cost != 20 {
		t.Fatalf("unexpected catalog after reopen: %+v", reopened.Catalog())
	}
}

func TestLegacyRewardsMigrateOnceSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dopabank.db")
	ctx := context.Background()

	global := openSQLiteStore(t, path, model.ScopeGlobal)
	if _, err := global.GetOrCreate(ctx, "1"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := global.UpdateCatalog(ctx, func(c map[string]model.Reward) error {
		c["1"] = model.Reward{Name: "Coffee", Cost: 100}
		return nil
	}); err != nil {
		t.Fatalf("update catalog: %v", err)
	}
	_ = global.Close()

	perUser := openSQLiteStore(t, path, model.ScopePerUser)
	u, _ := perUser.Get("1")
	if u.Rewards["1"].Name != "Coffee" {
		t.Fatalf("expected migrated reward, got %+v", u.Rewards)
	}
	_ = perUser.Close()

	backend, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = backend.Close()
	}()
	if _, ok, err := backend.LoadRewards(ctx); err != nil || ok {
		t.Fatalf("expected rewards table archived, ok=%v err=%v", ok, err)
	}
	archived, err := backend.tableExists(ctx, rewardsBackupTable)
	if err != nil || !archived {
		t.Fatalf("expected %s table, ok=%v err=%v", rewardsBackupTable, archived, err)
	}
}

type failingBackend struct {
	*JSONBackend
	fail bool
}

func (b *failingBackend) SaveUsers(ctx context.Context, users map[string]*model.UserRecord) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.JSONBackend.SaveUsers(ctx, users)
}

func TestPersistErrorKeepsMemoryState(t *testing.T) {
	jb, err := OpenJSON(t.TempDir())
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	fb := &failingBackend{JSONBackend: jb}
	st, err := Open(context.Background(), fb, model.ScopePerUser)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	fb.fail = true
	err = st.Update(context.Background(), "1", func(u *model.UserRecord) error {
		u.Points = 3
		return nil
	})
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	u, ok := st.Get("1")
	if !ok || u.Points != 3 {
		t.Fatalf("expected in-memory state to be kept, got %+v", u)
	}
}
