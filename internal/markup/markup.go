// Package markup implements the lightweight inline formatting used by
// WhatsApp-style transcripts: ```monospace```, _italic_, *bold* and ~strike~.
//
// Text is parsed once into a sequence of cells, and each pass turns runs of
// cells into opaque span atoms. A later pass may wrap an earlier span but never
// looks inside it, so passes cannot re-match each other's output.
package markup

import (
	"strings"
	"unicode"
)

// Dialect is the format tag stored next to content rendered by this package.
const Dialect = "whatsapp_markdown"

const fence = '`'

type spanKind int

const (
	kindMono spanKind = iota
	kindItalic
	kindBold
	kindStrike
)

var tags = map[spanKind][2]string{
	kindMono:   {"<pre>", "</pre>"},
	kindItalic: {"<em>", "</em>"},
	kindBold:   {"<strong>", "</strong>"},
	kindStrike: {"<del>", "</del>"},
}

var delims = map[spanKind]rune{
	kindItalic: '_',
	kindBold:   '*',
	kindStrike: '~',
}

type span struct {
	kind  spanKind
	cells []cell
}

// cell is either a literal rune or, when span is set, an already resolved span.
type cell struct {
	r    rune
	span *span
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Render returns text as HTML: literal text escaped, markup spans turned into
// tags and newlines into <br>.
func Render(text string) string {
	var b strings.Builder
	writeCells(&b, parse(text), true, false)
	return b.String()
}

// Detect applies the same substitutions as Render without escaping or newline
// conversion. Delimiters consumed by a span are kept in backslash-escaped form,
// so Detect's output never contains markup of its own.
func Detect(text string) string {
	var b strings.Builder
	writeCells(&b, parse(text), false, false)
	return b.String()
}

// HasMarkup reports whether text contains at least one span.
func HasMarkup(text string) bool {
	return Detect(text) != text
}

// Format returns the dialect tag and the rendered form of text if it has
// markup; ok is false for plain text.
func Format(text string) (dialect, formatted string, ok bool) {
	if !HasMarkup(text) {
		return "", "", false
	}
	return Dialect, Render(text), true
}

func parse(text string) []cell {
	cells := monospace([]rune(text))
	cells = inline(cells, kindItalic)
	cells = inline(cells, kindBold)
	cells = inline(cells, kindStrike)
	return cells
}

// monospace resolves ```...``` spans. The closing fence is the first unescaped
// fence after the opening one. Two adjacent fences enclose nothing and are
// kept as six literal backticks.
func monospace(rs []rune) []cell {
	out := make([]cell, 0, len(rs))
	for i := 0; i < len(rs); {
		if isFence(rs, i) {
			switch j := closingFence(rs, i+3); {
			case j == i+3:
				for _, r := range rs[i : i+6] {
					out = append(out, cell{r: r})
				}
				i += 6
				continue
			case j > i+3:
				inner := make([]cell, 0, j-i-3)
				for _, r := range rs[i+3 : j] {
					inner = append(inner, cell{r: r})
				}
				out = append(out, cell{span: &span{kind: kindMono, cells: inner}})
				i = j + 3
				continue
			}
		}
		out = append(out, cell{r: rs[i]})
		i++
	}
	return out
}

func isFence(rs []rune, i int) bool {
	if i+3 > len(rs) || rs[i] != fence || rs[i+1] != fence || rs[i+2] != fence {
		return false
	}
	return i == 0 || rs[i-1] != '\\'
}

func closingFence(rs []rune, from int) int {
	for j := from; j+3 <= len(rs); j++ {
		if isFence(rs, j) {
			return j
		}
	}
	return -1
}

// inline resolves single-character delimited spans for one kind. The opener
// must follow start-of-text or a non-word cell, the closer is the next
// delimiter and must precede end-of-text or a non-word cell, and neither may
// be escaped with a backslash.
func inline(cells []cell, kind spanKind) []cell {
	d := delims[kind]
	out := make([]cell, 0, len(cells))
	for i := 0; i < len(cells); {
		if opens(cells, i, d) {
			if j := nextDelim(cells, i+1, d); j > i+1 && closes(cells, j) {
				out = append(out, cell{span: &span{kind: kind, cells: cells[i+1 : j]}})
				i = j + 1
				continue
			}
		}
		out = append(out, cells[i])
		i++
	}
	return out
}

func opens(cells []cell, i int, d rune) bool {
	c := cells[i]
	if c.span != nil || c.r != d || escaped(cells, i) {
		return false
	}
	return i == 0 || !isWord(cells[i-1])
}

func closes(cells []cell, j int) bool {
	if escaped(cells, j) {
		return false
	}
	return j+1 == len(cells) || !isWord(cells[j+1])
}

func nextDelim(cells []cell, from int, d rune) int {
	for j := from; j < len(cells); j++ {
		if cells[j].span == nil && cells[j].r == d {
			return j
		}
	}
	return -1
}

func escaped(cells []cell, i int) bool {
	return i > 0 && cells[i-1].span == nil && cells[i-1].r == '\\'
}

func isWord(c cell) bool {
	if c.span != nil {
		return false
	}
	return c.r == '_' || unicode.IsLetter(c.r) || unicode.IsDigit(c.r)
}

func isDelim(r rune) bool {
	return r == fence || r == '_' || r == '*' || r == '~'
}

func writeCells(b *strings.Builder, cells []cell, html, inSpan bool) {
	for _, c := range cells {
		if c.span != nil {
			writeSpan(b, c.span, html)
			continue
		}
		switch {
		case html && c.r == '\n':
			b.WriteString("<br>")
		case html:
			b.WriteString(htmlEscaper.Replace(string(c.r)))
		case inSpan && isDelim(c.r):
			b.WriteByte('\\')
			b.WriteRune(c.r)
		default:
			b.WriteRune(c.r)
		}
	}
}

func writeSpan(b *strings.Builder, s *span, html bool) {
	tag := tags[s.kind]
	b.WriteString(tag[0])
	d, marked := delims[s.kind]
	if marked && !html {
		b.WriteByte('\\')
		b.WriteRune(d)
	}
	writeCells(b, s.cells, html, true)
	if marked && !html {
		b.WriteByte('\\')
		b.WriteRune(d)
	}
	b.WriteString(tag[1])
}
