// Package session manages the on-disk marker that flags an authenticated,
// ready WhatsApp session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Marker is the <client-id>.json file whose presence means the session was
// reported ready. Its content is the client's self-reported info blob.
type Marker struct {
	path string
}

// NewMarker returns the marker for clientID inside dir.
func NewMarker(dir, clientID string) *Marker {
	return &Marker{path: filepath.Join(dir, clientID+".json")}
}

// Path returns the marker file location.
func (m *Marker) Path() string {
	return m.path
}

// Exists reports whether the marker file is present.
func (m *Marker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Write stores info as the marker content. An existing marker is left as is.
func (m *Marker) Write(info any) error {
	if m.Exists() {
		return nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session marker: %w", err)
	}
	return nil
}

// Read decodes the marker content into v.
func (m *Marker) Read(v any) error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read session marker: %w", err)
	}
	return json.Unmarshal(data, v)
}

// Remove deletes the marker. A missing marker is not an error.
func (m *Marker) Remove() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session marker: %w", err)
	}
	return nil
}
