// Package settings provides storage for llm-translator user settings:
// API keys for inference servers and the customizable translation prompts.
//
// Data files live in the XDG data directory:
//
//	$XDG_DATA_HOME/llm-translator/  (default: ~/.local/share/llm-translator/)
//
// Files stored:
//   - auth.json     API keys keyed by server URL
//   - prompts.json  translation prompt templates
//
// The config file lives in the XDG config directory, see ConfigFilePath.
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. LLMTR_API_KEY environment variable
//  3. api_key in the config file or preset
//  4. This key store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	appDirName = "llm-translator"
	fileName   = "auth.json"
)

// Entry is one stored API key.
type Entry struct {
	Key string `json:"key"`
	// Note is free text shown by "auth list".
	Note string `json:"note,omitempty"`
}

// Store holds API keys keyed by normalized server URL.
type Store map[string]*Entry

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// PromptsFilePath returns the path to the prompts.json file.
// Default: ~/.local/share/llm-translator/prompts.json.
func PromptsFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompts.json"), nil
}

// DataDir returns the data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ConfigFilePath returns the default config file path:
// $XDG_CONFIG_HOME/llm-translator/config.yaml (or ~/.config/...).
func ConfigFilePath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDirName, "config.yaml"), nil
}

// ServerKey normalizes a server URL for use as a store key, so that
// "http://localhost:1234/", "http://localhost:1234/v1" and
// "HTTP://LOCALHOST:1234" share one entry.
func ServerKey(serverURL string) string {
	k := strings.ToLower(strings.TrimRight(strings.TrimSpace(serverURL), "/"))
	k = strings.TrimSuffix(k, "/v1")
	return strings.TrimRight(k, "/")
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the key store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return make(Store)
	}
	if store == nil {
		return make(Store)
	}
	return store
}

// Save writes the key store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling keys: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// SetAPIKey stores the key for a server (upsert).
func SetAPIKey(serverURL, key, note string) error {
	store := Load()
	store[ServerKey(serverURL)] = &Entry{Key: key, Note: note}
	return Save(store)
}

// GetAPIKey returns the stored key for a server, or "".
func GetAPIKey(serverURL string) string {
	if e := Load()[ServerKey(serverURL)]; e != nil {
		return e.Key
	}
	return ""
}

// Remove deletes the key for a server. Missing entries are not an error.
func Remove(serverURL string) error {
	store := Load()
	k := ServerKey(serverURL)
	if _, ok := store[k]; !ok {
		return nil
	}
	delete(store, k)
	return Save(store)
}

// Servers returns the stored server URLs in sorted order.
func (s Store) Servers() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// RemoveAll removes all stored keys.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}
