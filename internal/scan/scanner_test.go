package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestChatName(t *testing.T) {
	tests := map[string]string{
		"/in/family/WhatsApp Chat with Family.txt": "Family",
		"/in/WhatsApp Chat with +44 7700 900123.txt": "+44 7700 900123",
		"/in/notes.txt": "notes",
	}
	for in, want := range tests {
		if got := ChatName(in); got != want {
			t.Errorf("ChatName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScanRoot(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")
	touch(t, filepath.Join(root, "a", "WhatsApp Chat with Family.txt"))
	touch(t, filepath.Join(root, "b", "WhatsApp Chat with Family.txt"))
	touch(t, filepath.Join(root, "b", "IMG-001.jpg"))
	touch(t, filepath.Join(root, "c", "Work.txt"))
	touch(t, filepath.Join(root, ".trash", "Old.txt"))
	touch(t, filepath.Join(out, "stray.txt"))

	files, err := ScanRoot(root, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3: %+v", len(files), files)
	}
	if files[0].ChatName != "Family" || files[0].ChatID != ChatID("Family") {
		t.Errorf("first = %+v", files[0])
	}
	if files[1].ChatName != "Family" || files[1].ChatID == files[0].ChatID {
		t.Errorf("duplicate chat name shares an id: %+v", files[1])
	}
	if files[2].ChatName != "Work" || files[2].Size != 1 || files[2].Mtime == 0 {
		t.Errorf("third = %+v", files[2])
	}
}

func TestScanRootMissing(t *testing.T) {
	if _, err := ScanRoot(filepath.Join(t.TempDir(), "nope"), ""); err == nil {
		t.Error("ScanRoot on a missing root succeeded")
	}
}

func TestChatIDStable(t *testing.T) {
	if ChatID("Family") != ChatID("Family") || ChatID("Family") == ChatID("Work") {
		t.Error("ChatID is not a stable function of the name")
	}
}
