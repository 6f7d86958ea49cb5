// Package sidecar reads the optional metadata document that sits next to
// the transcripts: chat avatars and topics, and per-name external keys,
// avatars and colors. The document may be JSON or YAML.
package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/Zuo-Peng/chat-archive/internal/identity"
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}){1,2}$`)

type User struct {
	UserID string `yaml:"user_id"`
	Avatar string `yaml:"avatar"`
	Color  string `yaml:"color"`
}

type Chat struct {
	Avatar string          `yaml:"avatar"`
	Topic  string          `yaml:"topic"`
	Users  map[string]User `yaml:"users"`
}

type Document struct {
	Chats map[string]Chat `yaml:"chats"`
	Users map[string]User `yaml:"users"`

	path string
}

// Load reads the document at path. A missing file yields an empty document.
func Load(path string) (*Document, error) {
	doc := &Document{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	doc.clean()
	return doc, nil
}

// Found reports whether the document has any entries.
func (d *Document) Found() bool {
	return len(d.Chats) > 0 || len(d.Users) > 0
}

func (d *Document) clean() {
	for name, u := range d.Users {
		d.Users[name] = d.cleanUser("users."+name, u)
	}
	for chat, c := range d.Chats {
		c.Avatar = d.resolve(c.Avatar)
		for name, u := range c.Users {
			c.Users[name] = d.cleanUser("chats."+chat+".users."+name, u)
		}
		d.Chats[chat] = c
	}
}

func (d *Document) cleanUser(where string, u User) User {
	u.UserID = strings.TrimSpace(u.UserID)
	u.Avatar = d.resolve(u.Avatar)
	u.Color = strings.ToLower(strings.TrimSpace(u.Color))
	if u.Color != "" && !colorPattern.MatchString(u.Color) {
		log.Warn("ignoring invalid color", "entry", where, "color", u.Color)
		u.Color = ""
	}
	return u
}

// resolve makes p relative to the document's directory.
func (d *Document) resolve(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(d.path), p)
}

func (d *Document) Chat(name string) Chat {
	return d.Chats[name]
}

// Hints returns the document-wide users as identity hints, ordered by name.
func (d *Document) Hints() []identity.Profile {
	return profiles(d.Users)
}

// ChatProfiles returns the users listed under one chat, ordered by name.
func (d *Document) ChatProfiles(chat string) []identity.Profile {
	return profiles(d.Chats[chat].Users)
}

func profiles(users map[string]User) []identity.Profile {
	out := make([]identity.Profile, 0, len(users))
	for name, u := range users {
		out = append(out, identity.Profile{Name: name, Key: u.UserID, Avatar: u.Avatar, Color: u.Color})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
