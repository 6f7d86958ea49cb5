package render

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/chat-archive/internal/index"
	"github.com/Zuo-Peng/chat-archive/internal/parse"
)

const (
	colorReset   = "\033[0m"
	colorSender  = "\033[1;34m" // bold blue
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	HitMessageID string
	Context      int    // messages before/after hit to show
	Width        int    // wrap width (0 = no wrap)
	Query        string // search query for keyword highlighting
	Color        bool
}

// fts5Operators are FTS5 operators that should not be highlighted as keywords.
var fts5Operators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
	"and": true, "or": true, "not": true, "near": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in on/off.
func highlightKeywords(text, query, on, off string) string {
	if query == "" || on == "" {
		return text
	}
	for _, term := range strings.Fields(query) {
		term = strings.Trim(term, `"*`)
		if term == "" || fts5Operators[term] {
			continue
		}
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			if pos+len(term) > len(text) {
				break
			}
			replacement := on + text[pos:pos+len(term)] + off
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth && visW > 0 {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}
	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// window picks the messages within n of the hit. hit is -1 when the id is
// not in msgs, in which case the window starts at the top.
func window(msgs []index.MessageRow, hitID string, n int) (start, end, hit int) {
	hit = -1
	for i, m := range msgs {
		if m.ID == hitID {
			hit = i
			break
		}
	}
	center := max(hit, 0)
	start = max(center-n, 0)
	end = min(center+n+1, len(msgs))
	if hit < 0 {
		end = min(2*n+1, len(msgs))
	}
	return start, end, hit
}

// RenderChat renders a chat as text around opts.HitMessageID and returns it
// with the 0-based line of the hit header (-1 if none).
func RenderChat(ctx context.Context, db *index.DB, chatID string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}
	if opts.Context < 0 {
		opts.Context = 1000000 // no limit
	}

	msgs, err := db.GetMessages(ctx, chatID)
	if err != nil {
		return "", -1, fmt.Errorf("get messages: %w", err)
	}
	if len(msgs) == 0 {
		return "(empty chat)", -1, nil
	}
	start, end, hit := window(msgs, opts.HitMessageID, opts.Context)

	paint := func(color, s string) string {
		if !opts.Color {
			return s
		}
		return color + s + colorReset
	}
	on, off := "", ""
	if opts.Color {
		on, off = colorBoldRed, colorReset
	}

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(paint(colorDim, fmt.Sprintf("--- %s [%s] ---", msgs[0].ChatName, chatID)))
	if start > 0 {
		writeLine(paint(colorDim, fmt.Sprintf("... (%d messages before) ...", start)))
	}

	for i := start; i < end; i++ {
		m := msgs[i]
		if i == hit {
			hitLine = lineCount
			writeLine(paint(colorHit, fmt.Sprintf(">> %s > %s <<", m.Sender, m.CreatedAt)))
		} else {
			writeLine(paint(colorSender, m.Sender) + " " + paint(colorDim, m.CreatedAt))
		}

		text := m.Content
		if m.Type == string(parse.MessageRedacted) {
			text = paint(colorDim, "(deleted)")
		}
		for _, a := range m.Attachments {
			text = strings.TrimPrefix(text+"\n[attachment: "+a+"]", "\n")
		}
		text = highlightKeywords(text, opts.Query, on, off)
		for _, tl := range strings.Split(indentLines(text, "  "), "\n") {
			writeLine(tl)
		}
		writeLine("")
	}

	if after := len(msgs) - end; after > 0 {
		writeLine(paint(colorDim, fmt.Sprintf("... (%d messages after) ...", after)))
	}
	return b.String(), hitLine, nil
}
