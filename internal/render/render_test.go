package render

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zuo-Peng/chat-archive/internal/identity"
	"github.com/Zuo-Peng/chat-archive/internal/index"
	"github.com/Zuo-Peng/chat-archive/internal/parse"
)

func TestWrapLine(t *testing.T) {
	tests := []struct {
		line  string
		width int
		want  []string
	}{
		{"abcdef", 0, []string{"abcdef"}},
		{"abcdef", 4, []string{"abcd", "ef"}},
		{"\033[1mabcd\033[0m", 2, []string{"\033[1mab", "cd\033[0m"}},
		{"你好世界", 5, []string{"你好", "世界"}},
		{"", 3, []string{""}},
	}
	for _, tt := range tests {
		got := wrapLine(tt.line, tt.width)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("wrapLine(%q, %d) = %q, want %q", tt.line, tt.width, got, tt.want)
		}
	}
}

func TestHighlightKeywords(t *testing.T) {
	got := highlightKeywords("Lunch or dinner", "lunch OR dinner", "[", "]")
	if got != "[Lunch] or [dinner]" {
		t.Errorf("got %q", got)
	}
	if got := highlightKeywords("lunch", "lunch", "", ""); got != "lunch" {
		t.Errorf("uncolored = %q", got)
	}
}

func TestWindow(t *testing.T) {
	msgs := make([]index.MessageRow, 10)
	for i := range msgs {
		msgs[i].ID = fmt.Sprintf("m%d", i)
	}
	tests := []struct {
		hit              string
		n                int
		start, end, want int
	}{
		{"m5", 2, 3, 8, 5},
		{"m0", 2, 0, 3, 0},
		{"m9", 3, 6, 10, 9},
		{"nope", 2, 0, 5, -1},
	}
	for _, tt := range tests {
		s, e, h := window(msgs, tt.hit, tt.n)
		if s != tt.start || e != tt.end || h != tt.want {
			t.Errorf("window(%s, %d) = %d, %d, %d", tt.hit, tt.n, s, e, h)
		}
	}
}

func TestRenderChat(t *testing.T) {
	ctx := context.Background()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "backup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var msgs []parse.Message
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("message %d", i)
		msgs = append(msgs, parse.Message{
			ID: fmt.Sprintf("m%d", i), ChatID: "c1", SenderID: "u1", Seq: i,
			CreatedAt: time.Date(2023, 1, 1, 9, i, 0, 0, time.UTC),
			Type:      parse.MessageDefault, Content: &content,
		})
	}
	msgs[4].Type, msgs[4].Content = parse.MessageRedacted, nil
	msgs[3].Attachments = []parse.Attachment{{StoredName: "c1/IMG-001.jpg"}}
	users := []identity.User{{ID: "u1", Name: "Alice", Avatar: "default.svg"}}
	if _, err := db.WriteChat(ctx, parse.Chat{ID: "c1", Name: "Family"}, users, msgs); err != nil {
		t.Fatal(err)
	}

	out, hitLine, err := RenderChat(ctx, db, "c1", Options{HitMessageID: "m3", Context: 1})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(out, "\n")
	if hitLine < 0 || !strings.HasPrefix(lines[hitLine], ">> Alice > 2023-01-01T09:03:00Z") {
		t.Fatalf("hit line %d in:\n%s", hitLine, out)
	}
	for _, want := range []string{"--- Family [c1] ---", "(2 messages before)", "message 2", "[attachment: c1/IMG-001.jpg]", "(deleted)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "message 1") || strings.Contains(out, "\033[") {
		t.Errorf("unexpected content:\n%s", out)
	}
}
