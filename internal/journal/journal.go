// Package journal persists unflushed turns to a local sqlite spool so a crash
// between buffering and a confirmed flush loses nothing. Turns are appended as
// they are created, marked flushed when the backend acks their batch, and any
// unflushed rows left over from a previous run are drained into the new
// session's buffer at startup.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/journal/migrations"
	"github.com/voxaid/voxaid/internal/logging"
)

// Journal is the durable spool backing the in-memory turn buffers.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and applies pending
// migrations.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records a turn for the given user before any flush attempt.
func (j *Journal) Append(userID string, turn session.Turn) error {
	_, err := j.db.Exec(
		`INSERT INTO journal_turns (user_id, conversation_id, seq, speaker, content, created_at, flushed)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		userID, turn.ConversationID, turn.Seq, int(turn.Speaker), turn.Content,
		turn.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return nil
}

// MarkFlushed records that the backend accepted every turn in the batch.
func (j *Journal) MarkFlushed(batch *session.Batch) error {
	if batch == nil || len(batch.Turns) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal mark flushed: %w", err)
	}
	defer tx.Rollback()

	for _, turn := range batch.Turns {
		if _, err := tx.Exec(
			`UPDATE journal_turns SET flushed = 1 WHERE conversation_id = ? AND seq = ?`,
			turn.ConversationID, turn.Seq,
		); err != nil {
			return fmt.Errorf("journal mark flushed: %w", err)
		}
	}
	return tx.Commit()
}

// DrainUnflushed removes and returns the user's unflushed turns from a prior
// run, ordered as they were created. Flushed rows are pruned at the same time.
func (j *Journal) DrainUnflushed(userID string) ([]session.Turn, error) {
	rows, err := j.db.Query(
		`SELECT conversation_id, seq, speaker, content, created_at
		 FROM journal_turns WHERE user_id = ? AND flushed = 0
		 ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal drain: %w", err)
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var (
			turn    session.Turn
			speaker int
			created string
		)
		if err := rows.Scan(&turn.ConversationID, &turn.Seq, &speaker, &turn.Content, &created); err != nil {
			return nil, fmt.Errorf("journal drain: %w", err)
		}
		turn.Speaker = session.Speaker(speaker)
		ts, perr := time.Parse(time.RFC3339Nano, created)
		if perr != nil {
			logging.Warnf("[journal] bad created_at %q for %s/%d, using now", created, turn.ConversationID, turn.Seq)
			ts = time.Now().UTC()
		}
		turn.CreatedAt = ts
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal drain: %w", err)
	}

	if _, err := j.db.Exec(`DELETE FROM journal_turns WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("journal drain: %w", err)
	}
	return turns, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
