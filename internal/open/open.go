package open

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/Zuo-Peng/chat-archive/internal/index"
)

// Location is where a message came from.
type Location struct {
	Path string
	Line int
}

func (l Location) String() string {
	return l.Path + ":" + strconv.Itoa(l.Line)
}

// Locate finds the transcript line a message was read from.
func Locate(ctx context.Context, db *index.DB, messageID string) (Location, error) {
	m, err := db.GetMessage(ctx, messageID)
	if err != nil {
		return Location{}, fmt.Errorf("get message: %w", err)
	}
	if m == nil {
		return Location{}, fmt.Errorf("message not found: %s", messageID)
	}
	if _, err := os.Stat(m.SourcePath); err != nil {
		return Location{}, fmt.Errorf("transcript not found: %s", m.SourcePath)
	}
	return Location{Path: m.SourcePath, Line: max(m.LineNumber, 1)}, nil
}

// OpenMessage opens the message's transcript in $EDITOR at its line.
func OpenMessage(ctx context.Context, db *index.DB, messageID string) error {
	loc, err := Locate(ctx, db, messageID)
	if err != nil {
		return err
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "less"
	}
	cmd := editorCommand(editor, loc)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// CopyLocation puts "path:line" on the clipboard, falling back to printing
// it when no clipboard is available.
func CopyLocation(ctx context.Context, db *index.DB, messageID string) error {
	loc, err := Locate(ctx, db, messageID)
	if err != nil {
		return err
	}
	if err := clipboard.WriteAll(loc.String()); err != nil {
		fmt.Println(loc)
		return nil
	}
	fmt.Printf("Copied to clipboard: %s\n", loc)
	return nil
}

func editorCommand(editor string, loc Location) *exec.Cmd {
	line := strconv.Itoa(loc.Line)
	switch {
	case strings.Contains(editor, "vim") || strings.Contains(editor, "nvim"):
		return exec.Command(editor, "+"+line, loc.Path)
	case strings.Contains(editor, "code"):
		return exec.Command(editor, "--goto", loc.String())
	case strings.Contains(editor, "less"):
		return exec.Command(editor, "+"+line, loc.Path)
	default:
		return exec.Command(editor, loc.Path)
	}
}
