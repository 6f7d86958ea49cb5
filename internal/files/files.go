// Package files lays out the archive directory: the manifest, relocated
// attachments and avatars.
package files

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/chat-archive/internal/parse"
)

//go:embed default.svg
var defaultAvatar []byte

//go:embed icon.svg
var icon []byte

const (
	AttachmentsDir = "attachments"
	AvatarsDir     = "avatars"
	DefaultAvatar  = "default.svg"
	ManifestName   = "info.json"
	IconName       = "icon.svg"
)

// avatarSpace derives stable avatar file names from user ids, which may be
// phone numbers or other strings unfit for a path.
var avatarSpace = uuid.MustParse("5b0f1e7c-3c1e-4c56-9a55-8f4a2c1d7e60")

type Manifest struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
}

var DefaultManifest = Manifest{
	Type:    "generic",
	Version: "0.1.0",
	ID:      "whatsapp",
	Name:    "WhatsApp chats",
	Icon:    IconName,
}

// AttachmentNotFoundError is returned when a file named by a transcript is
// not next to it.
type AttachmentNotFoundError struct {
	Path string
	Err  error
}

func (e *AttachmentNotFoundError) Error() string {
	return fmt.Sprintf("attachment not found: %s", e.Path)
}

func (e *AttachmentNotFoundError) Unwrap() error {
	return e.Err
}

type Archive struct {
	Root string
}

// Init creates the archive layout. An existing manifest is left alone.
func (a Archive) Init() error {
	for _, dir := range []string{a.Root, filepath.Join(a.Root, AttachmentsDir), filepath.Join(a.Root, AvatarsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	manifest := filepath.Join(a.Root, ManifestName)
	if _, err := os.Stat(manifest); errors.Is(err, fs.ErrNotExist) {
		data, err := json.MarshalIndent(DefaultManifest, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(manifest, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(a.Root, IconName), icon, 0o644); err != nil {
		return fmt.Errorf("write icon: %w", err)
	}
	fallback := filepath.Join(a.Root, AvatarsDir, DefaultAvatar)
	if err := os.WriteFile(fallback, defaultAvatar, 0o644); err != nil {
		return fmt.Errorf("write default avatar: %w", err)
	}
	return nil
}

// CopyAttachment copies att.Source to attachments/<StoredName>.
func (a Archive) CopyAttachment(att parse.Attachment) error {
	dst := filepath.Join(a.Root, AttachmentsDir, filepath.FromSlash(att.StoredName))
	return copyFile(att.Source, dst)
}

// CopyAvatar copies src into avatars/ under a name derived from id and
// returns that name. An empty src yields the default avatar.
func (a Archive) CopyAvatar(id, src string) (string, error) {
	if src == "" {
		return DefaultAvatar, nil
	}
	name := uuid.NewSHA1(avatarSpace, []byte(id)).String() + strings.ToLower(filepath.Ext(src))
	if err := copyFile(src, filepath.Join(a.Root, AvatarsDir, name)); err != nil {
		return "", err
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return &AttachmentNotFoundError{Path: src, Err: err}
	}
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
