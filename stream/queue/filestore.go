package queue

import (
	"encoding/json"
	"os"
	"path"

	"github.com/gofrs/flock"
)

const (
	queueFileName     = "offline-queue.json"
	queueFileLockName = "offline-queue.lock"
)

// FileStore persists the queue as a JSON snapshot on local disk, guarded by a
// file lock so a half-written snapshot from a crashing process can't be read
// by its replacement.
type FileStore struct {
	queuePath string
	fileLock  *flock.Flock
}

func NewFileStore(storageDir string) (*FileStore, error) {
	if err := os.MkdirAll(storageDir, os.ModePerm); err != nil {
		return nil, err
	}

	return &FileStore{
		queuePath: path.Join(storageDir, queueFileName),
		fileLock:  flock.New(path.Join(storageDir, queueFileLockName)),
	}, nil
}

func (s *FileStore) Load() ([]Entry, error) {
	if err := s.fileLock.Lock(); err != nil {
		return nil, err
	}
	defer s.fileLock.Unlock()

	file, err := os.ReadFile(s.queuePath)
	if os.IsNotExist(err) {
		// No snapshot from a prior run; nothing to recover
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if len(file) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(file, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FileStore) Save(entries []Entry) error {
	if err := s.fileLock.Lock(); err != nil {
		return err
	}
	defer s.fileLock.Unlock()

	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	return os.WriteFile(s.queuePath, data, 0644)
}
