package roles

import (
	"sort"
	"strings"
)

// Role is a single access tag. The value is either a staff role identifier or
// the sentinel Public granted to anonymous callers.
type Role string

// Public marks an entity as visible on the open disclosure sites. Anonymous
// callers carry exactly {Public}.
const Public Role = "public"

// Well-known staff roles. The vocabulary is fixed and enumerable; this is not
// a policy language.
const (
	Sysadmin Role = "sysadmin"
	Admin    Role = "admin"
	Editor   Role = "editor"
	Viewer   Role = "viewer"
)

// Set is an unordered collection of roles. The zero value is the empty set,
// which intersects nothing: an entity whose read set is empty is visible to
// nobody, sysadmin included. That fail-closed behavior is a contract, not an
// accident of representation.
type Set struct {
	members map[Role]struct{}
}

// NewSet builds a set from the given roles, discarding duplicates and blanks.
func NewSet(rs ...Role) Set {
	s := Set{members: make(map[Role]struct{}, len(rs))}
	for _, r := range rs {
		if r != "" {
			s.members[r] = struct{}{}
		}
	}
	return s
}

// FromStrings builds a set from raw strings, e.g. a JWT roles claim.
func FromStrings(ss []string) Set {
	rs := make([]Role, 0, len(ss))
	for _, s := range ss {
		rs = append(rs, Role(strings.TrimSpace(s)))
	}
	return NewSet(rs...)
}

// Anonymous is the role set of an unauthenticated caller.
func Anonymous() Set {
	return NewSet(Public)
}

// Intersects reports whether the two sets share at least one role. Either set
// being empty yields false.
func (s Set) Intersects(other Set) bool {
	if len(s.members) == 0 || len(other.members) == 0 {
		return false
	}
	a, b := s.members, other.members
	if len(b) < len(a) {
		a, b = b, a
	}
	for r := range a {
		if _, ok := b[r]; ok {
			return true
		}
	}
	return false
}

// Contains reports whether r is a member.
func (s Set) Contains(r Role) bool {
	_, ok := s.members[r]
	return ok
}

// Add returns a new set with r included. The receiver is not modified.
func (s Set) Add(r Role) Set {
	out := NewSet(s.Slice()...)
	if r != "" {
		out.members[r] = struct{}{}
	}
	return out
}

// Remove returns a new set with every occurrence of r removed.
func (s Set) Remove(r Role) Set {
	out := NewSet()
	for m := range s.members {
		if m != r {
			out.members[m] = struct{}{}
		}
	}
	return out
}

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool { return len(s.members) == 0 }

// Len returns the number of members.
func (s Set) Len() int { return len(s.members) }

// Slice returns the members in sorted order for stable persistence.
func (s Set) Slice() []Role {
	out := make([]Role, 0, len(s.members))
	for r := range s.members {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members as sorted strings, the shape stores persist.
func (s Set) Strings() []string {
	rs := s.Slice()
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
