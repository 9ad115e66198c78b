package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// profilesFile is the on-disk shape of profiles.json: the active search
// plus named saved searches.
type profilesFile struct {
	Active   models.SearchConfig            `json:"active"`
	Profiles map[string]models.SearchConfig `json:"profiles"`
}

// ConfigStore holds the active SearchConfig and named profiles, persisted
// in profiles.json. The monitor loop snapshots the active config at the
// start of each cycle; the UI rewrites it between cycles.
type ConfigStore struct {
	mu       sync.RWMutex
	logger   *core.Logger
	path     string
	active   models.SearchConfig
	profiles map[string]models.SearchConfig
}

// NewConfigStore creates a config store with the given defaults, then
// overlays whatever profiles.json holds. A missing or corrupt file keeps
// the defaults; not fatal.
func NewConfigStore(logger *core.Logger, path string, defaults models.SearchConfig) *ConfigStore {
	defaults.Normalize()
	c := &ConfigStore{
		logger:   logger,
		path:     path,
		active:   defaults,
		profiles: make(map[string]models.SearchConfig),
	}
	c.load()
	return c
}

func (c *ConfigStore) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to read profiles, keeping defaults", "path", c.path, "error", err)
		}
		return
	}

	var file profilesFile
	if err := json.Unmarshal(data, &file); err != nil {
		c.logger.Warn("Profiles file is corrupt, keeping defaults", "path", c.path, "error", err)
		return
	}

	if len(file.Active.Params) > 0 {
		file.Active.Normalize()
		c.active = file.Active
	}
	if file.Profiles != nil {
		for name, profile := range file.Profiles {
			profile.Normalize()
			file.Profiles[name] = profile
		}
		c.profiles = file.Profiles
	}
}

func (c *ConfigStore) saveLocked() error {
	file := profilesFile{
		Active:   c.active.Clone(),
		Profiles: c.profiles,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// Current returns a copy of the active config. Concurrent external edits
// apply only on the cycle after the snapshot.
func (c *ConfigStore) Current() models.SearchConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.Clone()
}

// Update merges new params (locked keys skipped) and an optional interval
// into the active config and persists it.
func (c *ConfigStore) Update(params models.SearchParams, intervalSeconds *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range params {
		if models.LockedParams[key] {
			continue
		}
		c.active.Params[key] = value
	}

	if intervalSeconds != nil {
		c.active.CheckIntervalSeconds = *intervalSeconds
	}
	c.active.Normalize()

	return c.saveLocked()
}

// Profiles returns a copy of the named profiles.
func (c *ConfigStore) Profiles() map[string]models.SearchConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.SearchConfig, len(c.profiles))
	for name, profile := range c.profiles {
		out[name] = profile.Clone()
	}
	return out
}

// SaveProfile stores the active config under a name.
func (c *ConfigStore) SaveProfile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.profiles[name] = c.active.Clone()
	return c.saveLocked()
}

// LoadProfile replaces the active config with a named profile.
func (c *ConfigStore) LoadProfile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile, ok := c.profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found", name)
	}

	c.active = profile.Clone()
	c.active.Normalize()
	return c.saveLocked()
}

// DeleteProfile removes a named profile.
func (c *ConfigStore) DeleteProfile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}

	delete(c.profiles, name)
	return c.saveLocked()
}
