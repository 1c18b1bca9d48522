// Package audit provides an observability-only record of SMS traffic: a
// local SQLite log of inbound and outbound messages, each row stamped
// with a generated UUID. Nothing reads this table to resume or re-send a
// message — the transmit queue is the only source of truth for that —
// this exists purely so an operator can ask "what did this gateway do"
// after the fact.
package audit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	// database/sql driver registration
	_ "github.com/mattn/go-sqlite3"
)

// Direction distinguishes an inbound SMS (received from the modem) from
// an outbound one (queued for transmission).
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "in"
	}
	return "out"
}

// Entry is one logged message.
type Entry struct {
	ID        string
	Direction Direction
	Phone     string
	Body      string
	CreatedAt time.Time
}

const schemaVersion = "smsgwd audit v1"

// Log is a thin wrapper around *sql.DB recording message traffic.
type Log struct {
	*sql.DB
}

// Open opens (and if necessary creates and initializes) the audit
// database at path.
func Open(path string) (*Log, error) {
	needsInit := true
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if rows, err := db.Query("SELECT version FROM schema_version"); err == nil {
		if rows.Next() {
			var version string
			if err := rows.Scan(&version); err == nil && version == schemaVersion {
				needsInit = false
			}
		}
		rows.Close()
	}

	l := &Log{db}
	if needsInit {
		if err := l.init(); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *Log) init() error {
	cmds := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
			uuid char(36) UNIQUE NOT NULL,
			direction char(3) NOT NULL,
			phone char(20) NOT NULL,
			body text NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS messages_phone ON messages (phone)",
		`CREATE TABLE IF NOT EXISTS schema_version (
			version char(32) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"INSERT INTO schema_version(version) VALUES(?)",
	}
	for i, cmd := range cmds {
		var err error
		if i == len(cmds)-1 {
			_, err = l.Exec(cmd, schemaVersion)
		} else {
			_, err = l.Exec(cmd)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Record logs one message, generating a fresh UUID for it.
func (l *Log) Record(dir Direction, phone, body string) error {
	id := uuid.NewString()
	_, err := l.Exec("INSERT INTO messages(uuid, direction, phone, body) VALUES(?, ?, ?, ?)",
		id, dir.String(), phone, body)
	return err
}

// Recent returns the most recent entries, newest first, up to limit.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.Query(
		"SELECT uuid, direction, phone, body, created_at FROM messages ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var dir string
		var created string
		if err := rows.Scan(&e.ID, &dir, &e.Phone, &e.Body, &created); err != nil {
			return nil, err
		}
		if dir == "in" {
			e.Direction = Inbound
		} else {
			e.Direction = Outbound
		}
		if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByPhone returns the number of logged messages per phone number,
// for the dashboard's activity summary.
func (l *Log) CountByPhone() (map[string]int, error) {
	rows, err := l.Query("SELECT phone, COUNT(id) FROM messages GROUP BY phone")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var phone string
		var n int
		if err := rows.Scan(&phone, &n); err != nil {
			return nil, err
		}
		counts[phone] = n
	}
	return counts, rows.Err()
}
