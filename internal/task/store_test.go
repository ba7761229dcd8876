package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type mapCredStore map[string]Credentials

func (m mapCredStore) Lookup(key string) (*Credentials, bool) {
	c, ok := m[key]
	if !ok {
		return nil, false
	}
	return &c, true
}

func TestStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	store := NewStore(path)

	first := New(sampleParams())
	first.Credentials = &Credentials{Username: "alice", Password: "hunter2"}
	second := New(Params{Site: "known", Day: "3", Time: "08:00"})

	require.NoError(t, store.Save([]*Task{first, second}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hunter2")

	creds := mapCredStore{"alice@example.test": {Username: "alice", Password: "hunter2"}}
	loaded, err := store.Load(creds)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	require.Equal(t, first.ID, loaded[0].ID)
	if diff := cmp.Diff(first.Params, loaded[0].Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	// Credentials re-joined by identity key for the task that has one.
	require.NotNil(t, loaded[0].Credentials)
	require.Equal(t, "hunter2", loaded[0].Credentials.Password)
	require.Nil(t, loaded[1].Credentials)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	tasks, err := store.Load(nil)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestStoreLoadUnknownIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	store := NewStore(path)

	tk := New(sampleParams())
	require.NoError(t, store.Save([]*Task{tk}))

	loaded, err := store.Load(mapCredStore{})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Nil(t, loaded[0].Credentials)
}

func TestLoadCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	content := `{"alice@example.test": {"username": "alice", "password": "hunter2"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := LoadCredentials(path)
	require.NoError(t, err)

	c, ok := store.Lookup("alice@example.test")
	require.True(t, ok)
	require.Equal(t, "alice", c.Username)

	_, ok = store.Lookup("nobody")
	require.False(t, ok)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	store, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	_, ok := store.Lookup("anyone")
	require.False(t, ok)
}
