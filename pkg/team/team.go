// Package team tracks the roles currently active in the organization.
package team

import (
	"sort"
	"strings"
	"sync"

	"github.com/jllopis/agis/pkg/core"
)

// Team is the active membership set. Members are stored by role alias.
type Team struct {
	mu      sync.RWMutex
	members map[string]core.Role
	initial []core.Role
}

// New creates a team with the given initial members.
func New(initial ...core.Role) *Team {
	t := &Team{initial: initial}
	t.Reset()
	return t
}

// Add inserts role and reports whether it was newly added.
func (t *Team) Add(role core.Role) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToLower(role.Alias)
	if _, ok := t.members[key]; ok {
		return false
	}
	t.members[key] = role
	return true
}

// Replace sets the membership to exactly roles.
func (t *Team) Replace(roles []core.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = make(map[string]core.Role, len(roles))
	for _, r := range roles {
		t.members[strings.ToLower(r.Alias)] = r
	}
}

// Has reports whether alias is a member.
func (t *Team) Has(alias string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.members[strings.ToLower(alias)]
	return ok
}

// Members returns the members sorted by alias.
func (t *Team) Members() []core.Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.Role, 0, len(t.members))
	for _, r := range t.members {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Aliases returns member aliases sorted.
func (t *Team) Aliases() []string {
	members := t.Members()
	out := make([]string, len(members))
	for i, r := range members {
		out[i] = r.Alias
	}
	return out
}

// Roster renders one line per member for inclusion in a prompt.
func (t *Team) Roster() string {
	var b strings.Builder
	for _, r := range t.Members() {
		b.WriteString("- ")
		b.WriteString(r.Alias)
		if r.Team != "" {
			b.WriteString(" (")
			b.WriteString(r.Team)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Reset restores the initial membership.
func (t *Team) Reset() {
	t.Replace(t.initial)
}
