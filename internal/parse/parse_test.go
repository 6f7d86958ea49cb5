package parse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DayMonthYear, time.UTC)
	tests := []struct {
		line   string
		kind   LineKind
		sender string
		body   string
	}{
		{"01/01/23, 09:00 - Alice: Hello", MessageHeader, "Alice", "Hello"},
		{"01/01/23, 09:00 - +44 7700 900123: hi: there", MessageHeader, "+44 7700 900123", "hi: there"},
		{"01/01/23, 09:00 - Messages are end-to-end encrypted.", SystemNotice, "", ""},
		{"01/01/23, 09:00 - Bob joined using this group's invite link", SystemNotice, "", ""},
		{"01/01/23, 09:00 - Alice:", SystemNotice, "", ""},
		{"01/01/23, 09:00 - Alice:no space", SystemNotice, "", ""},
		{"world", Continuation, "", ""},
		{"", Continuation, "", ""},
		{"1/01/23, 09:00 - Alice: short day", Continuation, "", ""},
		{"31/02/23, 09:00 - Alice: no such date", Continuation, "", ""},
		{"01/13/23, 09:00 - Alice: no such month", Continuation, "", ""},
		{"01/01/23, 24:00 - Alice: no such hour", Continuation, "", ""},
		{"01/01/23, 09:00 Alice: missing dash", Continuation, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := c.Classify(tt.line)
			if got.Kind != tt.kind {
				t.Fatalf("Classify(%q).Kind = %v, want %v", tt.line, got.Kind, tt.kind)
			}
			if got.Sender != tt.sender || got.Body != tt.body {
				t.Errorf("Classify(%q) = %q/%q, want %q/%q", tt.line, got.Sender, got.Body, tt.sender, tt.body)
			}
		})
	}
}

func TestClassifyDateOrder(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	line := "02/03/23, 14:05 - Alice: hi"

	dmy := NewClassifier(DayMonthYear, loc).Classify(line)
	if want := time.Date(2023, time.March, 2, 14, 5, 0, 0, loc); !dmy.Time.Equal(want) {
		t.Errorf("dmy time = %v, want %v", dmy.Time, want)
	}
	mdy := NewClassifier(MonthDayYear, loc).Classify(line)
	if want := time.Date(2023, time.February, 3, 14, 5, 0, 0, loc); !mdy.Time.Equal(want) {
		t.Errorf("mdy time = %v, want %v", mdy.Time, want)
	}

	if _, err := ParseDateOrder("ymd"); err == nil {
		t.Error("ParseDateOrder(ymd) succeeded, want error")
	}
	if o, err := ParseDateOrder("MDY"); err != nil || o != MonthDayYear {
		t.Errorf("ParseDateOrder(MDY) = %q, %v", o, err)
	}
}

// names resolves every sender to "u:<name>".
var names = SenderResolverFunc(func(name string) (string, error) { return "u:" + name, nil })

func assemble(t *testing.T, lines ...string) ([]Message, Stats) {
	t.Helper()
	a := NewAssembler("chat1", "/src", NewClassifier(DayMonthYear, time.UTC), names)
	n := 0
	a.NewID = func() string { n++; return fmt.Sprintf("m%d", n) }
	msgs, stats, err := a.Assemble(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return msgs, stats
}

func content(m Message) string {
	if m.Content == nil {
		return "<nil>"
	}
	return *m.Content
}

func TestAssembleContinuation(t *testing.T) {
	msgs, _ := assemble(t,
		"01/01/23, 09:00 - Alice: Hello",
		"world",
	)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if content(m) != "Hello\nworld" {
		t.Errorf("content = %q, want %q", content(m), "Hello\nworld")
	}
	if m.SenderID != "u:Alice" || m.ID != "m1" || m.ChatID != "chat1" {
		t.Errorf("message = %+v", m)
	}
	if m.Format != nil {
		t.Errorf("format = %q, want nil", *m.Format)
	}
	if want := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC); !m.CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", m.CreatedAt, want)
	}
}

func TestAssembleAttachmentCaption(t *testing.T) {
	msgs, stats := assemble(t,
		"01/01/23, 09:00 - Bob: IMG-001.jpg (file attached)",
		"nice photo",
	)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if len(m.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(m.Attachments))
	}
	att := m.Attachments[0]
	if att.StoredName != "chat1/IMG-001.jpg" || att.Source != filepath.Join("/src", "IMG-001.jpg") || att.MessageID != m.ID {
		t.Errorf("attachment = %+v", att)
	}
	if content(m) != "nice photo" {
		t.Errorf("content = %q, want %q", content(m), "nice photo")
	}
	if stats.Captions != 1 {
		t.Errorf("captions = %d, want 1", stats.Captions)
	}
}

func TestAssembleAttachmentForms(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		stored  string
		content string
		count   int
	}{
		{
			name:    "embedded with text",
			lines:   []string{"01/01/23, 09:00 - Bob: look IMG-20230101-WA0001.jpg (file attached)", "more"},
			stored:  "chat1/IMG-20230101-WA0001.jpg",
			content: "look\nmore",
			count:   1,
		},
		{
			name:    "bare suffix with echo and caption",
			lines:   []string{"01/01/23, 09:00 - Bob: report.pdf (file attached)", "report.pdf", "for monday"},
			stored:  "chat1/report.pdf",
			content: "for monday",
			count:   1,
		},
		{
			name:    "caption not taken from a header",
			lines:   []string{"01/01/23, 09:00 - Bob: IMG-001.jpg (file attached)", "01/01/23, 09:01 - Alice: nice"},
			stored:  "chat1/IMG-001.jpg",
			content: "<nil>",
			count:   2,
		},
		{
			name:    "path in name is flattened",
			lines:   []string{"01/01/23, 09:00 - Bob: ../../etc/passwd (file attached)"},
			stored:  "chat1/passwd",
			content: "<nil>",
			count:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, _ := assemble(t, tt.lines...)
			if len(msgs) != tt.count {
				t.Fatalf("got %d messages, want %d", len(msgs), tt.count)
			}
			m := msgs[0]
			if len(m.Attachments) != 1 || m.Attachments[0].StoredName != tt.stored {
				t.Errorf("attachments = %+v, want %s", m.Attachments, tt.stored)
			}
			if content(m) != tt.content {
				t.Errorf("content = %q, want %q", content(m), tt.content)
			}
		})
	}
}

func TestAssembleDeleted(t *testing.T) {
	msgs, stats := assemble(t,
		"01/01/23, 09:00 - Alice: This message was deleted",
		"stray",
		"01/01/23, 09:01 - Bob: You deleted this message",
	)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Type != MessageRedacted || m.Content != nil || m.Format != nil {
			t.Errorf("message %s = type %s content %s", m.ID, m.Type, content(m))
		}
	}
	if stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.Dropped)
	}
}

func TestAssembleMarkupAcrossLines(t *testing.T) {
	msgs, _ := assemble(t,
		"01/01/23, 09:00 - Alice: *bold",
		"still bold*",
	)
	m := msgs[0]
	if m.Format == nil || m.FormattedContent == nil {
		t.Fatal("format not set for span closing on a continuation line")
	}
	if want := "<strong>bold<br>still bold</strong>"; *m.FormattedContent != want {
		t.Errorf("formatted = %q, want %q", *m.FormattedContent, want)
	}
}

func TestAssembleNoticesAndOrphans(t *testing.T) {
	msgs, stats := assemble(t,
		"before anything",
		"01/01/23, 08:59 - Messages are end-to-end encrypted.",
		"01/01/23, 09:00 - Alice: one",
		"01/01/23, 09:00 - Carol left",
		"01/01/23, 09:01 - Bob: two",
	)
	if len(msgs) != 2 || content(msgs[0]) != "one" || content(msgs[1]) != "two" {
		t.Fatalf("messages = %v", msgs)
	}
	if msgs[0].Seq != 0 || msgs[1].Seq != 1 || msgs[1].LineNumber != 5 {
		t.Errorf("seq/line = %d/%d, %d/%d", msgs[0].Seq, msgs[0].LineNumber, msgs[1].Seq, msgs[1].LineNumber)
	}
	if stats.Orphans != 1 || stats.Notices != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAssembleLineEndings(t *testing.T) {
	a := NewAssembler("c", "/src", NewClassifier(DayMonthYear, time.UTC), names)
	in := "\xEF\xBB\xBF01/01/23, 09:00 - Alice: Hello\r\nworld\r\n"
	msgs, _, err := a.Assemble(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || content(msgs[0]) != "Hello\nworld" {
		t.Errorf("messages = %+v", msgs)
	}
}

// Emitted messages always match the header count; captions are never headers.
func TestAssembleCountsHeaders(t *testing.T) {
	lines := []string{
		"01/01/23, 09:00 - Alice: Hello",
		"world",
		"01/01/23, 09:01 - Bob: IMG-001.jpg (file attached)",
		"nice photo",
		"01/01/23, 09:02 - Bob: This message was deleted",
		"01/01/23, 09:03 - group created",
		"01/01/23, 09:04 - Alice: doc.pdf (file attached)",
		"doc.pdf",
		"01/01/23, 09:05 - Alice: _bye_",
	}
	msgs, stats := assemble(t, lines...)
	if stats.Headers != 5 || len(msgs) != stats.Headers {
		t.Errorf("messages = %d, headers = %d, want 5", len(msgs), stats.Headers)
	}
	if stats.Lines != len(lines) {
		t.Errorf("lines = %d, want %d", stats.Lines, len(lines))
	}
}

func TestAssembleInvalidEncoding(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.txt")
	data := "01/01/23, 09:00 - Alice: fine\n01/01/23, 09:01 - Bob: \xff\xfe\n"
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewAssembler("c", dir, NewClassifier(DayMonthYear, time.UTC), names)
	msgs, _, err := a.ParseFile(context.Background(), p)
	var tu *TranscriptUnreadableError
	if !errors.As(err, &tu) {
		t.Fatalf("err = %v, want TranscriptUnreadableError", err)
	}
	if tu.Path != p || tu.Line != 2 || !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("err = %+v", tu)
	}
	if msgs != nil {
		t.Errorf("got %d messages, want none", len(msgs))
	}
}

func TestAssembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAssembler("c", "/src", NewClassifier(DayMonthYear, time.UTC), names)
	_, _, err := a.Assemble(ctx, strings.NewReader("01/01/23, 09:00 - Alice: hi"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAssembleResolverError(t *testing.T) {
	boom := errors.New("boom")
	r := SenderResolverFunc(func(string) (string, error) { return "", boom })
	a := NewAssembler("c", "/src", NewClassifier(DayMonthYear, time.UTC), r)
	_, _, err := a.Assemble(context.Background(), strings.NewReader("01/01/23, 09:00 - Alice: hi"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
