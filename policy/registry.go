package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Built-in package names.
const (
	Open           = "OPEN"
	AdminRequired  = "ADMIN_REQUIRED"
	StaffRequired  = "STAFF_REQUIRED"
	AuthorOrStaff  = "AUTHOR_OR_STAFF"
	maxPackageName = 64
)

var (
	ErrUnknownPackage = errors.New("unknown auth package")
	ErrFrozen         = errors.New("policy registry frozen")
	ErrDuplicate      = errors.New("auth package already registered")
	ErrInvalidPackage = errors.New("invalid auth package")
)

// Subject is the identity view a predicate sees.
type Subject struct {
	ID      string
	IsAdmin bool
	IsStaff bool
}

// Target is the resource a predicate is evaluated against. OwnerID is the
// author of the post or thread when one is involved.
type Target struct {
	ForumID  string
	ThreadID string
	PostID   string
	OwnerID  string
}

// Predicate decides a single named package. It must be pure.
type Predicate func(Subject, Target) bool

// Registry maps auth package names to predicates. Registration happens
// during start-up; Freeze closes the set before the registry is shared.
type Registry struct {
	mu     sync.RWMutex
	preds  map[string]Predicate
	frozen bool
}

// NewRegistry returns a registry holding the built-in packages.
func NewRegistry() *Registry {
	r := &Registry{preds: make(map[string]Predicate, 8)}
	r.preds[Open] = func(Subject, Target) bool { return true }
	r.preds[AdminRequired] = func(s Subject, _ Target) bool { return s.IsAdmin }
	r.preds[StaffRequired] = func(s Subject, _ Target) bool { return s.IsStaff || s.IsAdmin }
	r.preds[AuthorOrStaff] = func(s Subject, t Target) bool {
		if s.IsStaff || s.IsAdmin {
			return true
		}
		return s.ID != "" && s.ID == t.OwnerID
	}
	return r
}

// Register adds a named predicate. It fails once the registry is frozen.
func (r *Registry) Register(name string, pred Predicate) error {
	if name == "" || len(name) > maxPackageName {
		return fmt.Errorf("%w: name %q", ErrInvalidPackage, name)
	}
	if pred == nil {
		return fmt.Errorf("%w: nil predicate for %q", ErrInvalidPackage, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.preds[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}

	r.preds[name] = pred
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Validate returns ErrUnknownPackage for names that would fail closed at
// evaluation time. The empty name is the open default and always valid.
func (r *Registry) Validate(name string) error {
	if name == "" {
		return nil
	}

	r.mu.RLock()
	_, ok := r.preds[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPackage, name)
	}
	return nil
}

// Evaluate applies the named package. An empty name is OPEN. Unregistered
// names deny.
func (r *Registry) Evaluate(name string, s Subject, t Target) bool {
	if name == "" {
		name = Open
	}

	r.mu.RLock()
	pred, ok := r.preds[name]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return pred(s, t)
}

// Names lists every registered package in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.preds))
	for name := range r.preds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
