package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Zuo-Peng/chat-archive/internal/identity"
	"github.com/Zuo-Peng/chat-archive/internal/parse"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS chats (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    topic       TEXT,
    avatar      TEXT,
    source_path TEXT NOT NULL DEFAULT '',
    mtime       INTEGER NOT NULL DEFAULT 0,
    size        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
    id     TEXT PRIMARY KEY,
    name   TEXT NOT NULL,
    avatar TEXT NOT NULL,
    color  TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    id                TEXT PRIMARY KEY,
    chat_id           TEXT NOT NULL REFERENCES chats(id),
    user_id           TEXT NOT NULL REFERENCES users(id),
    created_at        TEXT NOT NULL,
    edited_at         TEXT,
    reference         TEXT,
    message_type      TEXT NOT NULL,
    content           TEXT,
    format            TEXT,
    formatted_content TEXT,
    attachments       TEXT,
    seq               INTEGER NOT NULL DEFAULT 0,
    line_number       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS messages_by_chat ON messages (chat_id, created_at, seq);

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
`

const searchSchema = `
DROP TABLE IF EXISTS message_search;
CREATE VIRTUAL TABLE message_search USING fts5(
    id UNINDEXED,
    content,
    formatted_content,
    tokenize='unicode61'
);
INSERT INTO message_search (id, content, formatted_content)
    SELECT id, content, formatted_content FROM messages;
`

// schemaVersion should be bumped whenever transcript parsing changes, to
// force a full re-ingest.
const schemaVersion = "1"

const timeLayout = time.RFC3339

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection: the pragmas above hold for it, and writers queue on it
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	d := &DB{db: db}
	if err := d.migrateSchemaVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrateSchemaVersion() error {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err == nil && ver == schemaVersion {
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	// force re-ingest by resetting all chat mtime/size to 0
	if _, err := d.db.Exec("UPDATE chats SET mtime = 0, size = 0"); err != nil {
		return err
	}
	_, err = d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

// DuplicateMessageError means a message id was already taken. Ids are
// random, so this points at a bug upstream rather than bad input.
type DuplicateMessageError struct {
	ID string
}

func (e *DuplicateMessageError) Error() string {
	return fmt.Sprintf("duplicate message id %s", e.ID)
}

func isPrimaryKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

type ChatInfo struct {
	SourcePath string
	Mtime      int64
	Size       int64
}

func (d *DB) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	var info ChatInfo
	err := d.db.QueryRowContext(ctx,
		"SELECT source_path, mtime, size FROM chats WHERE id = ?",
		chatID,
	).Scan(&info.SourcePath, &info.Mtime, &info.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *DB) AllChatIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id FROM chats")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// DeleteChat removes a chat and its messages. Users stay.
func (d *DB) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteChat(ctx, tx, chatID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteChat(ctx context.Context, tx *sql.Tx, chatID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", chatID)
	return err
}

type WriteResult struct {
	Messages   int
	Users      int
	Duplicates []*DuplicateMessageError
}

// WriteChat replaces a chat's rows in one transaction: the old chat and its
// messages go, the chat is inserted, users are inserted unless their id
// exists (first writer wins), then the messages. A message whose id is taken
// is skipped and reported; any other error rolls the whole chat back.
func (d *DB) WriteChat(ctx context.Context, chat parse.Chat, users []identity.User, msgs []parse.Message) (WriteResult, error) {
	var res WriteResult
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if err := deleteChat(ctx, tx, chat.ID); err != nil {
		return res, fmt.Errorf("delete old chat: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO chats (id, name, topic, avatar, source_path, mtime, size)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.Name, chat.Topic, chat.Avatar, chat.SourcePath, chat.Mtime.UnixNano(), chat.Size,
	)
	if err != nil {
		return res, fmt.Errorf("insert chat: %w", err)
	}

	for _, u := range users {
		r, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO users (id, name, avatar, color) VALUES (?, ?, ?, ?)",
			u.ID, u.Name, u.Avatar, nullable(u.Color),
		)
		if err != nil {
			return res, fmt.Errorf("insert user %s: %w", u.ID, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Users++
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, chat_id, user_id, created_at, edited_at, reference, message_type,
		                       content, format, formatted_content, attachments, seq, line_number)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return res, err
	}
	defer stmt.Close()

	for _, m := range msgs {
		attachments, err := encodeAttachments(m.Attachments)
		if err != nil {
			return res, err
		}
		var edited *string
		if m.EditedAt != nil {
			s := m.EditedAt.UTC().Format(timeLayout)
			edited = &s
		}
		_, err = stmt.ExecContext(ctx,
			m.ID, chat.ID, m.SenderID,
			m.CreatedAt.UTC().Format(timeLayout), edited, m.Reference, string(m.Type),
			m.Content, m.Format, m.FormattedContent, attachments, m.Seq, m.LineNumber,
		)
		if isPrimaryKeyViolation(err) {
			res.Duplicates = append(res.Duplicates, &DuplicateMessageError{ID: m.ID})
			continue
		}
		if err != nil {
			return res, fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		res.Messages++
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, err
	}
	return res, nil
}

// encodeAttachments stores attachment references as a JSON list of paths
// relative to attachments/, or NULL when there are none.
func encodeAttachments(atts []parse.Attachment) (*string, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = a.StoredName
	}
	data, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RebuildSearch recreates the full-text index from the messages table.
func (d *DB) RebuildSearch(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, searchSchema); err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}
	return nil
}

// Users returns every archived user, for seeding the identity registry.
func (d *DB) Users(ctx context.Context) ([]identity.User, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, name, avatar, color FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []identity.User
	for rows.Next() {
		var u identity.User
		var color sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &u.Avatar, &color); err != nil {
			return nil, err
		}
		u.Color = color.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// Bindings returns which user each chat's senders resolved to.
func (d *DB) Bindings(ctx context.Context) ([]identity.Binding, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT m.chat_id, u.name, u.id
		FROM messages m JOIN users u ON u.id = m.user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Binding
	for rows.Next() {
		var b identity.Binding
		if err := rows.Scan(&b.Scope, &b.Name, &b.ID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type Counts struct {
	Chats    int
	Users    int
	Messages int
	Indexed  int // rows in the search index, -1 if it was never built
}

func (d *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := d.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM chats),
		       (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM messages)`,
	).Scan(&c.Chats, &c.Users, &c.Messages)
	if err != nil {
		return c, err
	}
	var exists int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE name = 'message_search'",
	).Scan(&exists); err != nil {
		return c, err
	}
	c.Indexed = -1
	if exists > 0 {
		err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM message_search").Scan(&c.Indexed)
	}
	return c, err
}

type ChatRow struct {
	ID         string
	Name       string
	Topic      string
	SourcePath string
	Messages   int
	First      string
	Last       string
}

// ListChats returns chats with their message counts, newest activity first.
func (d *DB) ListChats(ctx context.Context) ([]ChatRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id, c.name, COALESCE(c.topic, ''), c.source_path,
		       COUNT(m.id), COALESCE(MIN(m.created_at), ''), COALESCE(MAX(m.created_at), '')
		FROM chats c LEFT JOIN messages m ON m.chat_id = c.id
		GROUP BY c.id
		ORDER BY MAX(m.created_at) DESC, c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var c ChatRow
		if err := rows.Scan(&c.ID, &c.Name, &c.Topic, &c.SourcePath, &c.Messages, &c.First, &c.Last); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type MessageRow struct {
	ID          string
	ChatID      string
	ChatName    string
	SourcePath  string
	Sender      string
	CreatedAt   string
	Type        string
	Content     string
	Attachments []string
	Seq         int
	LineNumber  int
}

const messageColumns = `
	m.id, m.chat_id, c.name, c.source_path, u.name, m.created_at, m.message_type,
	COALESCE(m.content, ''), COALESCE(m.attachments, ''), m.seq, m.line_number
	FROM messages m
	JOIN chats c ON c.id = m.chat_id
	JOIN users u ON u.id = m.user_id`

func scanMessage(s interface{ Scan(...any) error }) (MessageRow, error) {
	var m MessageRow
	var attachments string
	if err := s.Scan(&m.ID, &m.ChatID, &m.ChatName, &m.SourcePath, &m.Sender, &m.CreatedAt,
		&m.Type, &m.Content, &attachments, &m.Seq, &m.LineNumber); err != nil {
		return m, err
	}
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return m, fmt.Errorf("message %s attachments: %w", m.ID, err)
		}
	}
	return m, nil
}

func (d *DB) GetMessage(ctx context.Context, id string) (*MessageRow, error) {
	m, err := scanMessage(d.db.QueryRowContext(ctx, "SELECT"+messageColumns+" WHERE m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessages returns a chat's messages in transcript order.
func (d *DB) GetMessages(ctx context.Context, chatID string) ([]MessageRow, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT"+messageColumns+" WHERE m.chat_id = ? ORDER BY m.seq", chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
