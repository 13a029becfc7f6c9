package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"digit_bot/internal/models"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// FileStore состояние в yaml-файле. Запись через временный файл и rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load отсутствующий файл не ошибка: пустое состояние с дефолтными настройками.
func (s *FileStore) Load(_ context.Context) (models.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.PersistedState{Settings: models.DefaultStrategySettings()}
	bs, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, errors.Wrap(err, "read state file")
	}
	if err := yaml.Unmarshal(bs, &st); err != nil {
		return st, errors.Wrapf(err, "parse %s", s.path)
	}
	return st, nil
}

func (s *FileStore) Save(_ context.Context, st models.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs, err := yaml.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal state to yaml")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create state dir")
	}

	temp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	if _, err = temp.Write(bs); err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return errors.Wrap(err, "write content")
	}
	if err = temp.Close(); err != nil {
		_ = os.Remove(temp.Name())
		return errors.Wrap(err, "close temp state file")
	}
	// токены внутри: только владелец
	if err = os.Chmod(temp.Name(), 0o600); err != nil {
		_ = os.Remove(temp.Name())
		return errors.Wrap(err, "chmod state file")
	}
	return errors.Wrap(os.Rename(temp.Name(), s.path), "replace state file")
}
