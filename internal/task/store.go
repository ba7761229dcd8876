package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bookpilot/internal/logging"
)

// CredentialStore resolves linked identity secrets by identity key. The
// persisted task collection never contains secrets; they are re-joined here
// at load time.
type CredentialStore interface {
	Lookup(identityKey string) (*Credentials, bool)
}

// Store persists the task collection as a single JSON file. Every
// structural change rewrites the whole file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the full collection, atomically via a temp file rename.
func (s *Store) Save(tasks []*Task) error {
	records := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, t.Record())
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tasks file: %w", err)
	}
	return nil
}

// Load reads the collection and re-joins credentials by identity key.
// A missing file is an empty collection, not an error. creds may be nil.
func (s *Store) Load(creds CredentialStore) ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	log := logging.Get(logging.CategoryStore)
	tasks := make([]*Task, 0, len(records))
	for _, rec := range records {
		t := FromRecord(rec)
		if key := t.Params.IdentityKey; key != "" && creds != nil {
			if c, ok := creds.Lookup(key); ok {
				t.Credentials = c
			} else {
				log.Warnf("task %s: no credentials for identity %q", t.ID, key)
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
