// Package journal records every tick a bot plays to a SQLite database:
// the circumstances it saw, the command it wrote, the instructions it
// spent and any error.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/rbot/protocol"
)

var log = commonlog.GetLogger("rbot.journal")

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal: closed")

// Entry is one journaled tick.
type Entry struct {
	Session       string
	Tick          int64
	At            time.Time
	Circumstances protocol.Circumstances
	Command       *protocol.Command // nil when the tick failed or wrote nothing valid
	Steps         int64
	Duration      time.Duration
	Err           string
}

// Journal handles SQLite storage for ticks.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

const schema = `CREATE TABLE IF NOT EXISTS ticks (
	session      TEXT    NOT NULL,
	tick         INTEGER NOT NULL,
	at           INTEGER NOT NULL,
	last_tick_ms INTEGER NOT NULL,
	move_result  INTEGER NOT NULL,
	hit_points   INTEGER NOT NULL,
	surroundings BLOB,
	command      BLOB,
	steps        INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	error        TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (session, tick)
)`

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: creating table: %w", err)
	}
	log.Debugf("journal opened at %s", path)
	return &Journal{db: db, path: path}, nil
}

// Path returns the database path.
func (j *Journal) Path() string { return j.path }

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Record stores one tick, replacing an earlier record of the same tick.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}

	surroundings := make([]byte, len(e.Circumstances.Surroundings))
	for i, t := range e.Circumstances.Surroundings {
		surroundings[i] = byte(t)
	}
	var command []byte
	if e.Command != nil {
		command = make([]byte, e.Command.Size())
		if err := e.Command.Encode(command); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ticks
			(session, tick, at, last_tick_ms, move_result, hit_points, surroundings, command, steps, duration_ns, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Tick, e.At.UnixNano(),
		int64(e.Circumstances.LastTickDuration), int64(e.Circumstances.LastMoveResult), int64(e.Circumstances.HitPoints),
		surroundings, command, e.Steps, int64(e.Duration), e.Err,
	)
	if err != nil {
		return fmt.Errorf("journal: saving tick %d of %s: %w", e.Tick, e.Session, err)
	}
	return nil
}

// Ticks returns the journaled ticks of a session in order.
func (j *Journal) Ticks(ctx context.Context, session string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT tick, at, last_tick_ms, move_result, hit_points, surroundings, command, steps, duration_ns, error
			FROM ticks WHERE session = ? ORDER BY tick`, session)
	if err != nil {
		return nil, fmt.Errorf("journal: querying ticks: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                          Entry
			at, lastTick, result, hp   int64
			duration                   int64
			surroundings, commandBytes []byte
		)
		if err := rows.Scan(&e.Tick, &at, &lastTick, &result, &hp, &surroundings, &commandBytes, &e.Steps, &duration, &e.Err); err != nil {
			return nil, fmt.Errorf("journal: scanning tick: %w", err)
		}
		e.Session = session
		e.At = time.Unix(0, at)
		e.Duration = time.Duration(duration)
		e.Circumstances = protocol.Circumstances{
			LastTickDuration: uint32(lastTick),
			LastMoveResult:   protocol.MoveResult(result),
			HitPoints:        uint16(hp),
			Surroundings:     make([]protocol.TileType, len(surroundings)),
		}
		for i, b := range surroundings {
			e.Circumstances.Surroundings[i] = protocol.TileType(b)
		}
		if len(commandBytes) > 0 {
			cmd, err := protocol.DecodeCommand(commandBytes)
			if err != nil {
				return nil, fmt.Errorf("journal: tick %d: %w", e.Tick, err)
			}
			e.Command = &cmd
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns the sessions that have journaled ticks, with their
// tick counts.
func (j *Journal) Sessions(ctx context.Context) (map[string]int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, "SELECT session, COUNT(*) FROM ticks GROUP BY session")
	if err != nil {
		return nil, fmt.Errorf("journal: querying sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("journal: scanning session: %w", err)
		}
		out[s] = n
	}
	return out, rows.Err()
}
