package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Credentials is what a profile remembers between chatctl runs.
type Credentials struct {
	Token     string    `toml:"token"`
	UserID    string    `toml:"user_id"`
	Email     string    `toml:"email"`
	ExpiresAt time.Time `toml:"expires_at"`
}

// SaveCredentials stores creds for a profile, readable only by the owner.
func SaveCredentials(name string, creds *Credentials) error {
	path := CredentialsPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(creds)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadCredentials returns nil, nil when the profile has never signed in.
func LoadCredentials(name string) (*Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(CredentialsPath(name), &creds); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &creds, nil
}

// DeleteCredentials forgets a profile's token. Missing credentials are not an error.
func DeleteCredentials(name string) error {
	err := os.Remove(CredentialsPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
