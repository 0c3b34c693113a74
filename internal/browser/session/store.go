// internal/browser/session/store.go
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// StateStore persists one StorageState per platform under the data
// directory, so a manual login survives process restarts. Files hold live
// auth cookies and are kept owner-only.
type StateStore struct {
	dir string
}

func NewStateStore(dataDir string) *StateStore {
	return &StateStore{dir: filepath.Join(dataDir, "sessions")}
}

// Path returns the state file location for a platform.
func (st *StateStore) Path(platform string) string {
	return filepath.Join(st.dir, sanitizeName(platform)+".json")
}

// Save writes the state atomically: a rename either installs the full new
// state or leaves the previous one intact.
func (st *StateStore) Save(platform string, state *schemas.StorageState) error {
	if state == nil {
		return fmt.Errorf("nil storage state for %q", platform)
	}
	if err := os.MkdirAll(st.dir, 0o700); err != nil {
		return fmt.Errorf("creating session state dir: %w", err)
	}

	data, err := jsonAPI.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session state for %q: %w", platform, err)
	}

	tmp, err := os.CreateTemp(st.dir, sanitizeName(platform)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting state file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, st.Path(platform)); err != nil {
		return fmt.Errorf("installing session state for %q: %w", platform, err)
	}
	return nil
}

// Load reads a previously saved state. A missing file returns
// os.ErrNotExist via the wrapped error.
func (st *StateStore) Load(platform string) (*schemas.StorageState, error) {
	data, err := os.ReadFile(st.Path(platform))
	if err != nil {
		return nil, fmt.Errorf("reading session state for %q: %w", platform, err)
	}

	var state schemas.StorageState
	if err := jsonAPI.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding session state for %q: %w", platform, err)
	}
	return &state, nil
}

// Delete removes a platform's saved state. Missing files are not an error.
func (st *StateStore) Delete(platform string) error {
	err := os.Remove(st.Path(platform))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session state for %q: %w", platform, err)
	}
	return nil
}

// sanitizeName keeps platform identifiers filesystem-safe.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_", " ", "_")
	cleaned := replacer.Replace(strings.ToLower(strings.TrimSpace(name)))
	if cleaned == "" {
		return "default"
	}
	return cleaned
}
