// Package delta makes tool-driven file changes reversible: write-path
// tools and the bash tool's tree capture record pre-images here, keyed by
// (session, turn), and the undo CLI command replays them backward.
package delta

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// The tracker shares a database file with the web cache but owns its own
// table.
const schema = `
CREATE TABLE IF NOT EXISTS file_deltas (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	turn_id     INTEGER NOT NULL,
	file_path   TEXT NOT NULL,
	op          TEXT NOT NULL,
	old_content BLOB,
	created     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_deltas_turn ON file_deltas(session_id, turn_id);
`

const (
	opModify = "modify"
	opCreate = "create"
)

// Tracker persists per-turn file pre-images. Record calls outside an
// active session/turn are dropped silently; recording is best-effort and
// must never fail a tool call.
type Tracker struct {
	mu        sync.Mutex
	db        *sql.DB
	sessionID string
	turnID    int64 // 0 = no active turn
}

// New binds a Tracker to db, ensuring its table exists.
func New(db *sql.DB) (*Tracker, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("delta: schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

// SetSession names the session that subsequent records belong to.
func (t *Tracker) SetSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = id
}

// BeginTurn scopes subsequent records to one turn, until the next call.
func (t *Tracker) BeginTurn(turnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnID = turnID
}

// RecordModify stashes a file's content as it was before a modification.
// Only the first pre-image per file per turn is kept: later edits to the
// same file in the same turn still undo back to the turn's start.
func (t *Tracker) RecordModify(filePath string, oldContent []byte) {
	t.record(opModify, filePath, oldContent)
}

// RecordCreate marks a file as created this turn; undo removes it.
func (t *Tracker) RecordCreate(filePath string) {
	t.record(opCreate, filePath, nil)
}

func (t *Tracker) record(op, filePath string, oldContent []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turnID == 0 || t.sessionID == "" {
		return
	}

	var already int
	err := t.db.QueryRow(
		`SELECT 1 FROM file_deltas WHERE session_id = ? AND turn_id = ? AND file_path = ? LIMIT 1`,
		t.sessionID, t.turnID, filePath,
	).Scan(&already)
	if err == nil {
		return
	}

	_, err = t.db.Exec(
		`INSERT INTO file_deltas (session_id, turn_id, file_path, op, old_content, created)
		 VALUES (?, ?, ?, ?, ?, strftime('%s','now'))`,
		t.sessionID, t.turnID, filePath, op, oldContent,
	)
	if err != nil {
		log.Warn().Err(err).Str("file", filePath).Str("op", op).Msg("delta: record failed")
	}
}

// Undo replays one turn's deltas newest-first: modifies restore the
// stashed content, creates remove the file. Returns the affected paths.
func (t *Tracker) Undo(sessionID string, turnID int64) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.db.Query(
		`SELECT file_path, op, old_content FROM file_deltas
		 WHERE session_id = ? AND turn_id = ?
		 ORDER BY id DESC`,
		sessionID, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("delta: undo query: %w", err)
	}
	defer rows.Close()

	var affected []string
	for rows.Next() {
		var (
			filePath, op string
			oldContent   []byte
		)
		if err := rows.Scan(&filePath, &op, &oldContent); err != nil {
			log.Warn().Err(err).Msg("delta: scan failed")
			continue
		}
		affected = append(affected, filePath)

		var undoErr error
		switch op {
		case opModify:
			undoErr = os.WriteFile(filePath, oldContent, 0o600)
		case opCreate:
			if undoErr = os.Remove(filePath); os.IsNotExist(undoErr) {
				undoErr = nil
			}
		}
		if undoErr != nil {
			log.Warn().Err(undoErr).Str("file", filePath).Str("op", op).Msg("delta: undo failed")
		}
	}
	return affected, rows.Err()
}

// DeleteTurn discards one turn's records without applying them.
func (t *Tracker) DeleteTurn(sessionID string, turnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.db.Exec(
		`DELETE FROM file_deltas WHERE session_id = ? AND turn_id = ?`,
		sessionID, turnID,
	); err != nil {
		log.Warn().Err(err).Int64("turn", turnID).Msg("delta: delete turn failed")
	}
}
