package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// StoreConfig bounds the found-listings store.
type StoreConfig struct {
	TTL time.Duration
	Cap int
}

// Store is the persisted set of previously-notified listings. The monitor
// loop is the sole writer of new entries; the UI reads snapshots and may
// dismiss or clear entries through the same mutex.
type Store struct {
	mu      sync.Mutex
	logger  *core.Logger
	path    string
	config  StoreConfig
	entries []models.FoundListing
}

// NewStore creates a store backed by a JSON file at path.
func NewStore(logger *core.Logger, path string, config StoreConfig) *Store {
	if config.TTL == 0 {
		config.TTL = 30 * 24 * time.Hour
	}
	if config.Cap == 0 {
		config.Cap = 500
	}
	return &Store{
		logger: logger,
		path:   path,
		config: config,
	}
}

// Load reads the persisted set. A missing or corrupt file starts the
// store empty; neither is fatal.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read found listings, starting empty", "path", s.path, "error", err)
		}
		s.entries = nil
		return
	}

	var entries []models.FoundListing
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Found listings file is corrupt, starting empty", "path", s.path, "error", err)
		s.entries = nil
		return
	}

	if len(entries) > s.config.Cap {
		entries = entries[len(entries)-s.config.Cap:]
	}
	s.entries = entries
}

// IsNew reports whether a token has never been recorded. Dismissed
// entries still count as seen.
func (s *Store) IsNew(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.Token == token {
			return false
		}
	}
	return true
}

// Empty reports whether the store holds no entries.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

// Len returns the number of entries, dismissed included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RecordSeen stamps and appends listings whose tokens are not yet in the
// store.
func (s *Store) RecordSeen(listings []models.Listing, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.entries))
	for _, entry := range s.entries {
		known[entry.Token] = true
	}

	for _, listing := range listings {
		if known[listing.Token] {
			continue
		}
		known[listing.Token] = true
		s.entries = append(s.entries, models.FoundListing{
			Listing: listing,
			FoundAt: now,
		})
	}
}

// Save prunes entries older than the TTL, evicts oldest-first down to the
// cap, then atomically replaces the file. A crash mid-write never leaves
// an unreadable store.
func (s *Store) Save(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(now)
}

func (s *Store) saveLocked(now time.Time) error {
	cutoff := now.Add(-s.config.TTL)
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.FoundAt.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	s.entries = kept

	if len(s.entries) > s.config.Cap {
		sort.SliceStable(s.entries, func(i, j int) bool {
			return s.entries[i].FoundAt.Before(s.entries[j].FoundAt)
		})
		s.entries = s.entries[len(s.entries)-s.config.Cap:]
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode found listings: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write found listings: %w", err)
	}
	return nil
}

// Snapshot returns the non-dismissed entries, newest first, for the UI.
func (s *Store) Snapshot() []models.FoundListing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FoundListing, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !s.entries[i].Dismissed {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// Dismiss hides a listing from the UI while keeping it for dedup.
// Returns false when no visible entry matches the token.
func (s *Store) Dismiss(token string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Token == token && !s.entries[i].Dismissed {
			s.entries[i].Dismissed = true
			if err := s.saveLocked(now); err != nil {
				s.logger.Error("Failed to persist dismissal", "token", token, "error", err)
			}
			return true
		}
	}
	return false
}

// Clear removes every entry and persists the empty set.
func (s *Store) Clear(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.saveLocked(now)
}
