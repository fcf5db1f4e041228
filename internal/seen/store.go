// Package seen suppresses re-notification of listings that were already alerted.
package seen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store records dedupe keys of notified listings.
type Store interface {
	// FilterNew returns the keys not seen before, preserving input order.
	FilterNew(ctx context.Context, keys []string) ([]string, error)
	// MarkSeen records keys as notified.
	MarkSeen(ctx context.Context, keys []string) error
}

const fileVersion = 1

type fileState struct {
	Version int                  `json:"version"`
	Created time.Time            `json:"created"`
	Hits    map[string]time.Time `json:"hits"`
}

// FileStore keeps seen keys in a JSON file. Entries older than the TTL are pruned on save.
type FileStore struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewFileStore returns a FileStore at path. ttl <= 0 keeps keys forever.
func NewFileStore(path string, ttl time.Duration) *FileStore {
	return &FileStore{path: path, ttl: ttl, now: time.Now}
}

func (s *FileStore) load() (fileState, error) {
	state := fileState{Version: fileVersion, Created: s.now().UTC(), Hits: map[string]time.Time{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read seen file: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}

	// Older files are a bare list of keys.
	var legacy []string
	if json.Unmarshal(data, &legacy) == nil {
		for _, k := range legacy {
			state.Hits[k] = state.Created
		}
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode seen file: %w", err)
	}
	if state.Hits == nil {
		state.Hits = map[string]time.Time{}
	}
	return state, nil
}

func (s *FileStore) expired(at time.Time, now time.Time) bool {
	return s.ttl > 0 && now.Sub(at) > s.ttl
}

// FilterNew implements Store.
func (s *FileStore) FilterNew(_ context.Context, keys []string) ([]string, error) {
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]string, 0, len(keys))
	dup := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := dup[k]; ok {
			continue
		}
		dup[k] = struct{}{}
		if at, ok := state.Hits[k]; ok && !s.expired(at, now) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// MarkSeen implements Store.
func (s *FileStore) MarkSeen(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	state, err := s.load()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for k, at := range state.Hits {
		if s.expired(at, now) {
			delete(state.Hits, k)
		}
	}
	for _, k := range keys {
		state.Hits[k] = now
	}
	return s.save(state)
}

// Keys returns the stored keys, sorted.
func (s *FileStore) Keys() ([]string, error) {
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(state.Hits))
	for k := range state.Hits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) save(state fileState) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create seen dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seen file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write seen file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace seen file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
