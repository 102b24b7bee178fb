package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/verte-zerg/dopabank/internal/model"
)

const (
	usersFileName   = "users.json"
	rewardsFileName = "rewards.json"
	backupSuffix    = ".backup"
)

// JSONBackend keeps each document in its own indented JSON file.
type JSONBackend struct {
	dir string
}

// OpenJSON uses dir for users.json and rewards.json, creating it if needed.
func OpenJSON(dir string) (*JSONBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &JSONBackend{dir: dir}, nil
}

func (b *JSONBackend) usersPath() string   { return filepath.Join(b.dir, usersFileName) }
func (b *JSONBackend) rewardsPath() string { return filepath.Join(b.dir, rewardsFileName) }

// Location implements Backend.
func (b *JSONBackend) Location() string { return b.dir }

// Close implements Backend.
func (b *JSONBackend) Close() error { return nil }

// LoadUsers implements Backend.
func (b *JSONBackend) LoadUsers(_ context.Context) (map[string]*model.UserRecord, bool, error) {
	users := map[string]*model.UserRecord{}
	ok, err := readJSON(b.usersPath(), &users)
	if err != nil {
		return nil, false, err
	}
	if users == nil {
		users = map[string]*model.UserRecord{}
	}
	return users, ok, nil
}

// SaveUsers implements Backend.
func (b *JSONBackend) SaveUsers(_ context.Context, users map[string]*model.UserRecord) error {
	return writeJSONAtomic(b.usersPath(), users)
}

// LoadRewards implements Backend.
func (b *JSONBackend) LoadRewards(_ context.Context) (map[string]model.Reward, bool, error) {
	rewards := map[string]model.Reward{}
	ok, err := readJSON(b.rewardsPath(), &rewards)
	if err != nil {
		return nil, false, err
	}
	if rewards == nil {
		rewards = map[string]model.Reward{}
	}
	return model.CloneRewards(rewards), ok, nil
}

// SaveRewards implements Backend.
func (b *JSONBackend) SaveRewards(_ context.Context, rewards map[string]model.Reward) error {
	return writeJSONAtomic(b.rewardsPath(), rewards)
}

// ArchiveRewards implements Backend.
func (b *JSONBackend) ArchiveRewards(_ context.Context) error {
	src := b.rewardsPath()
	if err := os.Rename(src, src+backupSuffix); err != nil {
		return fmt.Errorf("failed to archive %s: %w", src, err)
	}
	return nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSONAtomic replaces path with the encoding of v. The document is
// written to a temp file in the same directory and renamed into place, so a
// crash leaves either the old or the new document.
func writeJSONAtomic(path string, v any) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	enc := json.NewEncoder(writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(path), err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
