package library

import (
	"fmt"
	"sort"
	"sync"
)

// Role is authorization metadata kept outside the lending core. The core
// never consults it; callers decide what each role may do.
type Role int

const (
	RoleMember Role = iota
	RoleLibrarian
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleLibrarian:
		return "librarian"
	case RoleAdmin:
		return "admin"
	default:
		return "member"
	}
}

// ParseRole accepts the names printed by Role.String and the legacy
// numeric codes 0, 1 and 2.
func ParseRole(s string) (Role, error) {
	switch s {
	case "member", "0":
		return RoleMember, nil
	case "librarian", "1":
		return RoleLibrarian, nil
	case "admin", "2":
		return RoleAdmin, nil
	}
	return RoleMember, fmt.Errorf("unknown role %q", s)
}

// Roles maps member emails to roles. Emails without an entry are members.
type Roles struct {
	mu     sync.RWMutex
	byMail map[string]Role
}

// NewRoles returns an empty role map.
func NewRoles() *Roles {
	return &Roles{byMail: make(map[string]Role)}
}

// Set assigns role to email.
func (r *Roles) Set(email string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMail[email] = role
}

// Get returns the role of email, defaulting to RoleMember.
func (r *Roles) Get(email string) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMail[email]
}

// Delete drops the entry for email.
func (r *Roles) Delete(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byMail, email)
}

// HasAdmin reports whether any email holds RoleAdmin.
func (r *Roles) HasAdmin() bool { return r.HasAdminOtherThan("") }

// HasAdminOtherThan reports whether an email other than email holds
// RoleAdmin.
func (r *Roles) HasAdminOtherThan(email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for mail, role := range r.byMail {
		if role == RoleAdmin && mail != email {
			return true
		}
	}
	return false
}

// RoleEntry is one persisted email/role pair.
type RoleEntry struct {
	Email string `db:"email" json:"email"`
	Role  Role   `db:"role" json:"role"`
}

// Entries lists the map sorted by email.
func (r *Roles) Entries() []RoleEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoleEntry, 0, len(r.byMail))
	for email, role := range r.byMail {
		out = append(out, RoleEntry{Email: email, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (r *Roles) restore(entries []RoleEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMail = make(map[string]Role, len(entries))
	for _, e := range entries {
		r.byMail[e.Email] = e.Role
	}
}
