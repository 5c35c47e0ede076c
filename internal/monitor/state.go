package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry tracks one remote file the monitor has acted on. A file is submitted
// while its task is in flight and processed once that task reaches a terminal
// status; only then does the monitor stop resubmitting it.
type Entry struct {
	FileID    string    `json:"file_id"`
	Name      string    `json:"name"`
	TaskID    string    `json:"task_id"`
	Processed bool      `json:"processed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State persists the monitor's processed-file ledger as a JSON file so a
// restart never resubmits media that already ran.
type State struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewState loads the ledger at path, starting empty when no file exists. An
// empty path yields an in-memory ledger that never persists.
func NewState(path string) (*State, error) {
	s := &State{path: path, entries: make(map[string]Entry)}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Known reports whether the file has been submitted or processed already.
func (s *State) Known(fileID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[fileID]
	return ok
}

// MarkSubmitted records that a task was created for the file.
func (s *State) MarkSubmitted(fileID, name, taskID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return errors.New("file id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fileID] = Entry{
		FileID:    fileID,
		Name:      name,
		TaskID:    taskID,
		UpdatedAt: time.Now().UTC(),
	}
	return s.save()
}

// MarkProcessed finalizes the file once its task settled.
func (s *State) MarkProcessed(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[fileID]
	if !ok {
		entry = Entry{FileID: fileID}
	}
	entry.Processed = true
	entry.UpdatedAt = time.Now().UTC()
	s.entries[fileID] = entry
	return s.save()
}

// Pending returns entries whose tasks have not settled yet.
func (s *State) Pending() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []Entry
	for _, entry := range s.entries {
		if !entry.Processed {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].FileID < pending[j].FileID })
	return pending
}

// Counts returns processed and pending entry totals.
func (s *State) Counts() (processed, pending int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.Processed {
			processed++
		} else {
			pending++
		}
	}
	return processed, pending
}

func (s *State) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read monitor state: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse monitor state: %w", err)
	}
	s.entries = make(map[string]Entry, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.FileID) != "" {
			s.entries[entry.FileID] = entry
		}
	}
	return nil
}

// save writes the ledger atomically. Callers hold the write lock.
func (s *State) save() error {
	if s.path == "" {
		return nil
	}

	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FileID < entries[j].FileID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal monitor state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state: %w", err)
	}
	return nil
}
