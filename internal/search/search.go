package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/chat-archive/internal/index"
)

type Result struct {
	MessageID string
	ChatID    string
	ChatName  string
	Sender    string
	CreatedAt string
	Snippet   string
	Rank      float64
}

type Options struct {
	Query  string
	Chat   string // "" = all; chat name or id
	Sender string // "" = all; display name
	Since  string // "" = no filter, e.g. "2024-01-01"
	Limit  int
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
// The unicode61 tokenizer does not split those, so MATCH misses substrings.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	runes := []rune(text)
	if idx < 0 || len(lower) != len(text) {
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}
	qRunes := []rune(query)
	runePos := len([]rune(text[:idx]))
	start := max(runePos-contextChars, 0)
	end := min(runePos+len(qRunes)+contextChars, len(runes))

	prefix, suffix := "", ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

// Search finds messages matching opts.Query, best match first. It needs the
// search index built by an ingest run.
func Search(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if containsCJK(opts.Query) {
		return searchLike(ctx, db, opts)
	}
	return searchFTS(ctx, db, opts)
}

// filters returns the shared WHERE conditions over m (messages), c (chats)
// and u (users).
func filters(opts Options) ([]string, []any) {
	var conditions []string
	var args []any
	if opts.Chat != "" {
		conditions = append(conditions, "(c.id = ? OR c.name = ?)")
		args = append(args, opts.Chat, opts.Chat)
	}
	if opts.Sender != "" {
		conditions = append(conditions, "u.name = ?")
		args = append(args, opts.Sender)
	}
	if opts.Since != "" {
		conditions = append(conditions, "m.created_at >= ?")
		args = append(args, opts.Since)
	}
	return conditions, args
}

func searchFTS(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	conditions, args := filters(opts)
	conditions = append([]string{"message_search MATCH ?"}, conditions...)
	args = append([]any{opts.Query}, args...)

	query := fmt.Sprintf(`
		SELECT
			m.id,
			c.id,
			c.name,
			u.name,
			m.created_at,
			snippet(message_search, 1, '>>>', '<<<', '...', 24) AS snip,
			bm25(message_search, 0.0, 1.0, 0.5) AS rank
		FROM message_search
		JOIN messages m ON m.id = message_search.id
		JOIN chats c ON c.id = m.chat_id
		JOIN users u ON u.id = m.user_id
		WHERE %s
		ORDER BY rank
		LIMIT ?
	`, strings.Join(conditions, " AND "))
	args = append(args, opts.Limit)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func searchLike(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	conditions, args := filters(opts)
	conditions = append([]string{"m.content LIKE ?"}, conditions...)
	args = append([]any{"%" + opts.Query + "%"}, args...)

	query := fmt.Sprintf(`
		SELECT m.id, c.id, c.name, u.name, m.created_at, m.content
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		JOIN users u ON u.id = m.user_id
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))
	args = append(args, opts.Limit)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var content string
		if err := rows.Scan(&r.MessageID, &r.ChatID, &r.ChatName, &r.Sender, &r.CreatedAt, &content); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(content, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		var snippet sql.NullString
		if err := rows.Scan(&r.MessageID, &r.ChatID, &r.ChatName, &r.Sender, &r.CreatedAt, &snippet, &r.Rank); err != nil {
			return nil, err
		}
		r.Snippet = snippet.String
		results = append(results, r)
	}
	return results, rows.Err()
}
