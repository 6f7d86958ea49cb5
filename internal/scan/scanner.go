package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// chatSpace derives chat ids from chat names, so a re-exported transcript
// replaces the chat it was first ingested as.
var chatSpace = uuid.MustParse("9d3c4c52-7a0e-4f43-8a38-6f1b7d2e5a11")

var exportName = regexp.MustCompile(`^WhatsApp Chat with (.+)\.txt$`)

type FileInfo struct {
	Path     string
	ChatName string
	ChatID   string
	Mtime    int64
	Size     int64
}

// ChatID returns the id a chat with this name is stored under.
func ChatID(name string) string {
	return uuid.NewSHA1(chatSpace, []byte(name)).String()
}

// ChatName derives a chat's name from its transcript file name.
func ChatName(path string) string {
	base := filepath.Base(path)
	if m := exportName.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ScanRoot finds transcripts (*.txt) under root, ordered by path. Hidden
// directories and skip (the archive itself, when nested) are not entered.
// Two transcripts naming the same chat keep distinct ids: the later one is
// keyed by its path as well.
func ScanRoot(root, skip string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if path != root && (strings.HasPrefix(info.Name(), ".") || path == skip) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".txt" {
			return nil
		}
		files = append(files, FileInfo{
			Path:     path,
			ChatName: ChatName(path),
			Mtime:    info.ModTime().UnixNano(),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	seen := make(map[string]string)
	for i := range files {
		f := &files[i]
		f.ChatID = ChatID(f.ChatName)
		if first, dup := seen[f.ChatID]; dup {
			rel, _ := filepath.Rel(root, f.Path)
			f.ChatID = ChatID(f.ChatName + "\x00" + rel)
			log.Warn("chat name used by two transcripts", "chat", f.ChatName, "first", first, "also", f.Path)
			continue
		}
		seen[f.ChatID] = f.Path
	}
	return files, nil
}
