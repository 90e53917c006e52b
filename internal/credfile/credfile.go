// Package credfile handles reading and writing B2 application-key
// credential files: the key id/application key pair plus the realm they
// authorize against, persisted so a caller need not re-supply them on every
// process start. A static key pair has no refresh token or expiry to
// track, so the format is a plain JSON struct written with the same
// atomic-write discipline an OAuth2 token file would use.
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// File is the on-disk format for a B2 credential file.
type File struct {
	KeyID          string            `json:"keyId"`
	ApplicationKey string            `json:"applicationKey"`
	Realm          string            `json:"realm"`
	Meta           map[string]string `json:"meta,omitempty"`
}

// Load reads a saved credential file from disk. Returns (nil, nil) if the
// file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credfile: decoding %s: %w", path, err)
	}

	if f.KeyID == "" || f.ApplicationKey == "" {
		return nil, fmt.Errorf("credfile: %s missing keyId/applicationKey (re-authorize required)", path)
	}

	return &f, nil
}

// Save writes a credential file to disk atomically (write-to-temp +
// fsync + rename) with 0600 permissions. Never logs the application key.
func Save(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename. Same
	// directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial credential file behind.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file at path, ignoring a not-found error.
// It removes only the saved key pair; an account-info store is not touched.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credfile: removing %s: %w", path, err)
	}

	return nil
}
