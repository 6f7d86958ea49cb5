package sidecar

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadJSON(t *testing.T) {
	p := writeDoc(t, "info.json", `{
  "chats": {
    "Family": {"avatar": "family.png", "topic": "Weekend plans",
               "users": {"Mum": {"user_id": "+4470", "color": "#ABC"}}}
  },
  "users": {
    "Alice": {"user_id": "+4471", "avatar": "/abs/alice.jpg", "color": "#48FF63"},
    "Bob": {"user_id": "+4472", "color": "green"}
  }
}`)
	doc, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Found() {
		t.Error("Found() = false")
	}

	chat := doc.Chat("Family")
	if chat.Topic != "Weekend plans" || chat.Avatar != filepath.Join(filepath.Dir(p), "family.png") {
		t.Errorf("chat = %+v", chat)
	}

	hints := doc.Hints()
	if len(hints) != 2 || hints[0].Name != "Alice" || hints[1].Name != "Bob" {
		t.Fatalf("hints = %+v", hints)
	}
	if hints[0].Key != "+4471" || hints[0].Avatar != "/abs/alice.jpg" || hints[0].Color != "#48ff63" {
		t.Errorf("alice = %+v", hints[0])
	}
	if hints[1].Color != "" {
		t.Errorf("invalid color kept: %q", hints[1].Color)
	}

	mum := doc.ChatProfiles("Family")
	if len(mum) != 1 || mum[0].Key != "+4470" || mum[0].Color != "#abc" {
		t.Errorf("chat profiles = %+v", mum)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeDoc(t, "info.yaml", `
users:
  Alice:
    user_id: "+4471"
    avatar: avatars/alice.png
`)
	doc, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	h := doc.Hints()
	if len(h) != 1 || h[0].Avatar != filepath.Join(filepath.Dir(p), "avatars", "alice.png") {
		t.Errorf("hints = %+v", h)
	}
}

func TestLoadMissing(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "info.json"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Found() || len(doc.Hints()) != 0 || doc.Chat("x").Topic != "" {
		t.Errorf("doc = %+v, want empty", doc)
	}
}

func TestLoadMalformed(t *testing.T) {
	p := writeDoc(t, "info.json", `{"users": [`)
	if _, err := Load(p); err == nil {
		t.Error("Load succeeded on malformed document")
	}
}
