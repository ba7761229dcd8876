package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileCredentialStore reads identity credentials from a JSON file mapping
// identity keys to username/password pairs. The file lives outside the task
// store so the persisted task collection stays free of secrets.
type FileCredentialStore struct {
	creds map[string]Credentials
}

// LoadCredentials reads a credential file. A missing file yields an empty
// store.
func LoadCredentials(path string) (*FileCredentialStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FileCredentialStore{creds: map[string]Credentials{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var raw map[string]struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}

	creds := make(map[string]Credentials, len(raw))
	for key, c := range raw {
		creds[key] = Credentials{Username: c.Username, Password: c.Password}
	}
	return &FileCredentialStore{creds: creds}, nil
}

// Lookup implements CredentialStore.
func (f *FileCredentialStore) Lookup(identityKey string) (*Credentials, bool) {
	c, ok := f.creds[identityKey]
	if !ok {
		return nil, false
	}
	return &c, true
}
