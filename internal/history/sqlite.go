// Package history archives completed conversations in a local SQLite
// database so prior research survives restarts and is queryable offline.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Archive wraps a SQLite database holding conversations, messages, and
// citations.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Archive, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "barrister.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Cascading deletes keep messages and citations consistent with their
	// conversation.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (a *Archive) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := a.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := a.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (a *Archive) AppliedMigrations() ([]int, error) {
	rows, err := a.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SaveConversation inserts the conversation or, when it already exists,
// refreshes its title and updated_at.
func (a *Archive) SaveConversation(c Conversation) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err := a.db.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		c.ID, c.Title, created.UTC().Format(time.RFC3339), updated.UTC().Format(time.RFC3339),
	)
	return err
}

// AppendMessage stores one turn with its citations. The owning conversation
// must already exist; its updated_at is bumped to the message time.
func (a *Archive) AppendMessage(m Message) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	ts := created.UTC().Format(time.RFC3339)

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, ts,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting message: %w", err)
	}

	for _, cit := range m.Citations {
		if _, err := tx.Exec(`
			INSERT INTO citations (message_id, title, url, snippet, source)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, cit.Title, cit.URL, cit.Snippet, cit.Source,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting citation: %w", err)
		}
	}

	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, m.ConversationID); err != nil {
		tx.Rollback()
		return fmt.Errorf("updating conversation timestamp: %w", err)
	}

	return tx.Commit()
}

// GetConversation returns the conversation with its messages in insertion
// order, citations included.
func (a *Archive) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := a.db.QueryRow(`
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	rows, err := a.db.Query(`
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY rowid ASC`, id,
	)
	if err != nil {
		return Conversation{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var msgCreated string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &msgCreated); err != nil {
			return Conversation{}, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, msgCreated); err != nil {
			return Conversation{}, fmt.Errorf("parsing message created_at: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, err
	}

	for i := range c.Messages {
		cits, err := a.citationsFor(c.Messages[i].ID)
		if err != nil {
			return Conversation{}, err
		}
		c.Messages[i].Citations = cits
	}

	return c, nil
}

func (a *Archive) citationsFor(messageID string) ([]Citation, error) {
	rows, err := a.db.Query(`
		SELECT title, url, snippet, source FROM citations
		WHERE message_id = ? ORDER BY id ASC`, messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cits []Citation
	for rows.Next() {
		var c Citation
		if err := rows.Scan(&c.Title, &c.URL, &c.Snippet, &c.Source); err != nil {
			return nil, err
		}
		cits = append(cits, c)
	}
	return cits, rows.Err()
}

// ListConversations returns up to limit conversations, most recently
// updated first, without their messages.
func (a *Archive) ListConversations(limit int) ([]Conversation, error) {
	rows, err := a.db.Query(`
		SELECT id, title, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteConversation removes the conversation and, via cascading deletes,
// its messages and citations. Returns ErrNotFound for an unknown id.
func (a *Archive) DeleteConversation(id string) error {
	res, err := a.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
