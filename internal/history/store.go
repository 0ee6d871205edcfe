// Package history keeps the download history as a JSON array on disk.
//
// Entries are only ever appended. Every write replaces the whole file through a
// temporary sibling and a rename, so a crash leaves either the old or the new
// history, never a torn one.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFile is the history file name used in the working directory.
const DefaultFile = "download_history.json"

// ErrCorrupt means the history file exists but is not a JSON array of entries.
// Load logs it and treats the history as empty.
var ErrCorrupt = errors.New("history: file is corrupt")

// Status is the final outcome of a job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one attempted job. SourceURL is the normalized form of URL;
// VideoKey is the same for every link to one video and Nil when the site's
// identifier is unknown.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	SourceURL string    `json:"source_url,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	VideoKey  uuid.UUID `json:"video_key,omitzero"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Title     string    `json:"title,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Store reads and appends to one history file.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewStore(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Load returns every entry in insertion order. A missing file is an empty
// history; so is a corrupt one, after logging ErrCorrupt.
func (s *Store) Load() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.logger.Warn("history: ignoring unreadable history", "path", s.path, "error", err)
		return nil
	}
	return entries
}

// Tail returns the last n entries, oldest first. n <= 0 returns everything.
func (s *Store) Tail(n int) []Entry {
	entries := s.Load()
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// Append adds e to the end of the history and persists the full sequence.
// A missing ID or timestamp is filled in. A corrupt file is kept aside as
// "<name>.corrupt-<unix>" before it is replaced.
func (s *Store) Append(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return e, fmt.Errorf("history: generate id: %w", err)
		}
		e.ID = id
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC()

	entries, err := s.read()
	if errors.Is(err, ErrCorrupt) {
		backup := s.path + ".corrupt-" + strconv.FormatInt(s.now().Unix(), 10)
		if rerr := os.Rename(s.path, backup); rerr != nil {
			return e, fmt.Errorf("history: back up corrupt file: %w", rerr)
		}
		s.logger.Warn("history: corrupt file moved aside", "path", s.path, "backup", backup)
		entries = nil
	} else if err != nil {
		return e, err
	}

	entries = append(entries, e)
	if err := s.write(entries); err != nil {
		return e, err
	}
	s.logger.Debug("history: entry recorded", "id", e.ID, "url", e.URL, "status", e.Status)
	return e, nil
}

func (s *Store) read() ([]Entry, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return entries, nil
}

func (s *Store) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("history: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("history: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode(s.path)); err != nil {
		return fmt.Errorf("history: set mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("history: replace %s: %w", s.path, err)
	}
	committed = true
	return nil
}

// fileMode keeps the permissions of an existing history file; a new one gets 0644.
func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
