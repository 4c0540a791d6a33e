package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	configDirName = "safehouse"
	profilesDir   = "profiles"
	stateFile     = "state.json"
)

// Profile is a saved API endpoint, key and tenant.
type Profile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	APIKey   string `json:"api_key"`
	TenantID string `json:"tenant_id"`
}

// State holds the active profile selection.
type State struct {
	ActiveProfile string `json:"active_profile"`
}

// Store keeps profiles under a config directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultStore returns the store under $XDG_CONFIG_HOME/safehouse, or
// ~/.config/safehouse.
func DefaultStore() (*Store, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return NewStore(filepath.Join(xdgConfig, configDirName)), nil
}

// Save writes p, replacing any profile with the same name. Profiles hold API
// keys and are written 0600.
func (s *Store) Save(p Profile) (*Profile, error) {
	p.Name = sanitizeName(p.Name)
	if p.Name == "" {
		return nil, errors.New("profile name is required")
	}
	if p.URL == "" {
		return nil, errors.New("profile url is required")
	}

	if err := os.MkdirAll(filepath.Join(s.dir, profilesDir), 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(s.profilePath(p.Name), data, 0600); err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}
	return &p, nil
}

// List returns all saved profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, profilesDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok {
			continue
		}
		p, err := s.Load(name)
		if err != nil {
			continue
		}
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Load reads a profile by name.
func (s *Store) Load(name string) (*Profile, error) {
	data, err := os.ReadFile(s.profilePath(name))
	if err != nil {
		return nil, fmt.Errorf("profile %q not found: %w", name, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	return &p, nil
}

// Delete removes a profile and clears it if it was active.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.profilePath(name)); err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}

	active, err := s.Active()
	if err == nil && active == name {
		return s.saveState(&State{})
	}
	return nil
}

// SetActive selects the profile used when none is named.
func (s *Store) SetActive(name string) error {
	if _, err := s.Load(name); err != nil {
		return err
	}
	return s.saveState(&State{ActiveProfile: name})
}

// Active returns the active profile name, or "" when none is set.
func (s *Store) Active() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return "", fmt.Errorf("parse state: %w", err)
	}
	return state.ActiveProfile, nil
}

func (s *Store) saveState(state *State) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, stateFile), data, 0600)
}

func (s *Store) profilePath(name string) string {
	return filepath.Join(s.dir, profilesDir, name+".json")
}

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	return strings.Trim(name, "-")
}
