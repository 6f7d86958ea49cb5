package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Level
		wantErr bool
	}{
		{"", log.InfoLevel, false},
		{"DEBUG", log.DebugLevel, false},
		{"warning", log.WarnLevel, false},
		{"error", log.ErrorLevel, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestSetupWriter(t *testing.T) {
	prev := log.Default()
	defer log.SetDefault(prev)

	var buf bytes.Buffer
	if err := SetupWriter(&buf, "warn", false); err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "chat", "Family")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "chat=Family") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	if err := SetupWriter(&buf, "error", true); err != nil {
		t.Fatal(err)
	}
	log.Debug("verbose")
	if !strings.Contains(buf.String(), "verbose") {
		t.Errorf("verbose did not enable debug: %q", buf.String())
	}
}
