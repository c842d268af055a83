// Package session persists the shopper's login and carries it across the
// gateway in the Storefront-Session header.
// The session file is stored in ~/.config/storefront/session.toml.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"storefront/internal/model"
)

const defaultSessionPath = "~/.config/storefront/session.toml"

// DefaultPath returns the default session file path.
func DefaultPath() string {
	return defaultSessionPath
}

// Load reads the session from path. A missing file is an anonymous session.
// An unreadable or malformed file is an error; the returned session is then
// anonymous too.
func Load(path string) (model.Session, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return model.Session{}, fmt.Errorf("resolve path: %w", err)
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Session{}, nil
		}
		return model.Session{}, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return model.Session{}, fmt.Errorf("read session: %w", err)
	}

	var s model.Session
	if err := toml.Unmarshal(bytes, &s); err != nil {
		return model.Session{}, fmt.Errorf("parse session %s: %w", resolved, err)
	}
	s.Token = strings.TrimSpace(s.Token)
	s.Username = strings.TrimSpace(s.Username)
	return s, nil
}

// Save writes the session to path, creating directories as needed. The file
// holds a bearer token, so it is readable by the owner only.
func Save(path string, s model.Session) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	bytes, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	return nil
}

// Clear removes the session file. Clearing a missing file is not an error.
func Clear(path string) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultSessionPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
