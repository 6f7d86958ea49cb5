package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Decision is the outcome of a conflict-resolution policy.
type Decision int

const (
	// Keep binds the incoming name to the existing user and leaves its
	// profile as it is.
	Keep Decision = iota
	// Replace binds the incoming name and overwrites the existing profile.
	Replace
	// Reject refuses the registration; the caller gets a ConflictError.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Replace:
		return "replace"
	default:
		return "reject"
	}
}

// ConflictPolicy decides what happens when a registration disagrees with
// what the registry already holds. Implementations are called with the
// registry locked and must not call back into it.
type ConflictPolicy interface {
	ResolveConflict(c Conflict) Decision
}

type PolicyFunc func(c Conflict) Decision

func (f PolicyFunc) ResolveConflict(c Conflict) Decision { return f(c) }

var (
	RejectAll       = PolicyFunc(func(Conflict) Decision { return Reject })
	KeepExisting    = PolicyFunc(func(Conflict) Decision { return Keep })
	ReplaceExisting = PolicyFunc(func(Conflict) Decision { return Replace })
)

// PolicyByName maps a configuration value to one of the non-interactive
// policies.
func PolicyByName(name string) (ConflictPolicy, error) {
	switch strings.ToLower(name) {
	case "", "reject":
		return RejectAll, nil
	case "keep":
		return KeepExisting, nil
	case "replace":
		return ReplaceExisting, nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q (want reject, keep or replace)", name)
	}
}

type ConflictKind int

const (
	// KeyRenamed: an external key already registered under another name.
	KeyRenamed ConflictKind = iota
	// NameRekeyed: a name already bound in the chat to a different key.
	NameRekeyed
)

func (k ConflictKind) String() string {
	if k == NameRekeyed {
		return "name already bound to another key in this chat"
	}
	return "key already registered under another name"
}

type Conflict struct {
	Kind     ConflictKind
	Scope    string
	Existing User
	Incoming Profile
}

var ErrConflict = errors.New("identity conflict")

type ConflictError struct {
	Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict in %s: %s (existing %q as %s, incoming %q as %s)",
		e.Scope, e.Kind, e.Existing.Name, e.Existing.ID, e.Incoming.Name, e.Incoming.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
