// Package identity maps display names seen in transcripts to archive-wide
// user ids.
//
// A display name is only unique within one chat, so every binding is scoped
// by chat. Two chats share a user only when both name it with the same
// external key (a phone number, say), supplied through a hint or an explicit
// registration. Names without a key get a fresh internal id.
package identity

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

type Profile struct {
	Name   string
	Key    string // stable external key; empty when unknown
	Avatar string
	Color  string
}

type User struct {
	ID     string
	Name   string
	Avatar string
	Color  string
}

// Binding records that Name denotes user ID within chat Scope.
type Binding struct {
	Scope string
	Name  string
	ID    string
}

// Registry is safe for concurrent use; every call runs in one critical
// section.
type Registry struct {
	mu      sync.Mutex
	policy  ConflictPolicy
	users   map[string]*User
	scopes  map[string]map[string]string // scope -> name -> id
	hints   map[string]Profile           // name -> profile, for every scope
	created map[string][]string          // scope -> ids first created there
	seeded  map[string]map[string]bool   // scope -> names bound by Seed, not yet checked against hints
	newID   func() string
}

func NewRegistry(policy ConflictPolicy) *Registry {
	if policy == nil {
		policy = RejectAll
	}
	return &Registry{
		policy:  policy,
		users:   make(map[string]*User),
		scopes:  make(map[string]map[string]string),
		hints:   make(map[string]Profile),
		created: make(map[string][]string),
		seeded:  make(map[string]map[string]bool),
		newID:   uuid.NewString,
	}
}

func normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Seed loads users and chat bindings persisted by an earlier run. A later
// key equal to a seeded id refers to that user.
func (r *Registry) Seed(users []User, bindings []Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		u := u
		u.Name = normalize(u.Name)
		r.users[u.ID] = &u
	}
	for _, b := range bindings {
		if _, ok := r.users[b.ID]; ok {
			name := normalize(b.Name)
			r.bind(b.Scope, name, b.ID)
			if r.seeded[b.Scope] == nil {
				r.seeded[b.Scope] = make(map[string]bool)
			}
			r.seeded[b.Scope][name] = true
		}
	}
}

// Hint supplies an external key (and profile) for a display name in every
// chat. It is consulted when Resolve meets an unbound name, or a seeded
// binding the hint's key contradicts.
func (r *Registry) Hint(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Name = normalize(p.Name)
	r.hints[p.Name] = p
}

// Register binds p.Name in scope. With a key, the user id is the key itself
// and registering it again under the same name returns the same id. A key
// seen under another name, or a name already bound to another key, is
// handed to the conflict policy; a rejection returns a *ConflictError and
// leaves the registry unchanged.
func (r *Registry) Register(scope string, p Profile) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(scope, p)
}

// Resolve returns the user bound to name in scope, registering it on first
// sight from the name's hint or with a fresh internal id. A binding seeded
// from an earlier run is checked against the hint once; a hinted key that
// differs from the bound id goes to the conflict policy.
func (r *Registry) Resolve(scope, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = normalize(name)
	if id, ok := r.scopes[scope][name]; ok {
		h, hinted := r.hints[name]
		if !r.seeded[scope][name] || !hinted || h.Key == "" || h.Key == id {
			return id, nil
		}
		return r.register(scope, h)
	}
	p, ok := r.hints[name]
	if !ok {
		p = Profile{Name: name}
	}
	return r.register(scope, p)
}

func (r *Registry) register(scope string, p Profile) (string, error) {
	p.Name = normalize(p.Name)
	delete(r.seeded[scope], p.Name)
	boundID, bound := r.scopes[scope][p.Name]

	if p.Key == "" {
		if bound {
			r.fill(boundID, p)
			return boundID, nil
		}
		id := r.newID()
		r.create(scope, id, p)
		return id, nil
	}

	if bound && boundID != p.Key {
		c := Conflict{Kind: NameRekeyed, Scope: scope, Existing: *r.users[boundID], Incoming: p}
		switch r.policy.ResolveConflict(c) {
		case Keep:
			return boundID, nil
		case Reject:
			return "", &ConflictError{c}
		}
		// Replace: rebind the name to the incoming key below.
	}

	if u, ok := r.users[p.Key]; ok {
		if u.Name != p.Name {
			c := Conflict{Kind: KeyRenamed, Scope: scope, Existing: *u, Incoming: p}
			switch r.policy.ResolveConflict(c) {
			case Keep:
			case Replace:
				u.Name = p.Name
				u.Avatar, u.Color = p.Avatar, p.Color
			default:
				return "", &ConflictError{c}
			}
		}
		r.fill(u.ID, p)
		r.bind(scope, p.Name, u.ID)
		return u.ID, nil
	}

	r.create(scope, p.Key, p)
	return p.Key, nil
}

func (r *Registry) create(scope, id string, p Profile) {
	r.users[id] = &User{ID: id, Name: p.Name, Avatar: p.Avatar, Color: p.Color}
	r.created[scope] = append(r.created[scope], id)
	r.bind(scope, p.Name, id)
}

func (r *Registry) bind(scope, name, id string) {
	m := r.scopes[scope]
	if m == nil {
		m = make(map[string]string)
		r.scopes[scope] = m
	}
	m[name] = id
}

// fill sets profile fields the user does not have yet.
func (r *Registry) fill(id string, p Profile) {
	u := r.users[id]
	if u.Avatar == "" {
		u.Avatar = p.Avatar
	}
	if u.Color == "" {
		u.Color = p.Color
	}
}

// DropScope forgets the scope's bindings and the users it created that no
// other scope refers to. It undoes a chat whose ingestion failed.
func (r *Registry) DropScope(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scopes, scope)
	delete(r.seeded, scope)
	for _, id := range r.created[scope] {
		if !r.referenced(id) {
			delete(r.users, id)
		}
	}
	delete(r.created, scope)
}

func (r *Registry) referenced(id string) bool {
	for _, names := range r.scopes {
		for _, bound := range names {
			if bound == id {
				return true
			}
		}
	}
	return false
}

// Lookup returns the users with the given ids, ordered by id. Unknown ids
// are skipped.
func (r *Registry) Lookup(ids ...string) []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []User
	for _, id := range ids {
		if u, ok := r.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Users returns every known user, ordered by id.
func (r *Registry) Users() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
