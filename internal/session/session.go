// Package session implements the append-only, crash-safe session log: one
// line-delimited JSON file per session-id under the user-data directory.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/waysongjiang/pyopencode/internal/provider"
)

// Store opens and appends to session log files rooted at a single
// directory (typically ~/.config/pyopencode/sessions).
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Session is one session's ordered message list plus the path of the file
// that further messages are appended to.
type Session struct {
	ID       string
	Messages []provider.Message

	path string
	mu   sync.Mutex
}

// Open reads an existing session log, ignoring a trailing corrupt line
// (the file may have been truncated by a crash mid-write). A session-id
// with no existing file opens as an empty session.
func (s *Store) Open(id string) (*Session, error) {
	p := s.path(id)
	sess := &Session{ID: id, path: p}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return sess, nil
	} else if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", id, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	// A scanner error here (e.g. a line longer than the max buffer, or an
	// I/O error) is treated the same as a truncated trailing line: best
	// effort, keep whatever parsed cleanly before it.
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("session: read error, truncating at last good line")
	}

	for i, line := range lines {
		var msg provider.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			if i == len(lines)-1 {
				log.Warn().Str("session", id).Msg("session: ignoring corrupt trailing line")
				break
			}
			return nil, fmt.Errorf("session: corrupt line %d in %s: %w", i, id, err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, nil
}

// Append writes one message as a line, flushes, and fsyncs best-effort.
// The in-memory Messages slice is updated only after the write succeeds.
func (s *Session) Append(msg provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal message: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("session: fsync failed, continuing")
	}

	s.Messages = append(s.Messages, msg)
	return nil
}

// Replace overwrites the full message list and rewrites the file from
// scratch. It exists for the sanitizer, which must persist a
// dropped-orphan repair; compaction never goes through here because it
// only changes what is sent to the LLM, not the persisted log.
func (s *Session) Replace(msgs []provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open temp: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			f.Close()
			return fmt.Errorf("session: encode: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("session: fsync failed on replace")
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: rename: %w", err)
	}
	s.Messages = msgs
	return nil
}

// List returns the session-ids with an existing log file, sorted by
// filename (which embeds creation order when ids are time-prefixed).
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".jsonl" {
			ids = append(ids, name[:len(name)-len(".jsonl")])
		}
	}
	return ids, nil
}
