package core

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExternalActor is the actor name used for the human user in graph events.
const ExternalActor = "User"

// Capability is an optional service-side tool a role may use.
type Capability string

const (
	CapabilityWebSearch     Capability = "web_search"
	CapabilityCodeExecution Capability = "code_execution"
)

// Role is a named participant with a fixed instruction and team grouping.
type Role struct {
	ID           string       `yaml:"id" json:"id"`
	Alias        string       `yaml:"alias" json:"alias"`
	Team         string       `yaml:"team" json:"team"`
	Instruction  string       `yaml:"instruction" json:"instruction"`
	Capabilities []Capability `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// HasCapability reports whether the role declares c.
func (r Role) HasCapability(c Capability) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// EnablesCapabilities reports whether calls for this role should turn on the
// service-side web search and code execution tools.
func (r Role) EnablesCapabilities() bool {
	return r.HasCapability(CapabilityWebSearch) || r.HasCapability(CapabilityCodeExecution)
}

//go:embed roles.yaml
var defaultRolesYAML []byte

type directoryFile struct {
	Roles []Role `yaml:"roles"`
}

// Directory is the immutable set of roles loaded at startup.
type Directory struct {
	roles   []Role
	byAlias map[string]int
	byID    map[string]int
}

// NewDirectory validates roles and builds the lookup indexes.
func NewDirectory(roles []Role) (*Directory, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("role directory is empty")
	}
	d := &Directory{
		roles:   make([]Role, 0, len(roles)),
		byAlias: make(map[string]int, len(roles)),
		byID:    make(map[string]int, len(roles)),
	}
	for i, r := range roles {
		r.ID = strings.TrimSpace(r.ID)
		r.Alias = strings.TrimSpace(r.Alias)
		if r.ID == "" || r.Alias == "" {
			return nil, fmt.Errorf("role %d: id and alias are required", i)
		}
		if strings.EqualFold(r.Alias, ExternalActor) {
			return nil, fmt.Errorf("role %q: alias %q is reserved", r.ID, ExternalActor)
		}
		key := strings.ToLower(r.Alias)
		if _, dup := d.byAlias[key]; dup {
			return nil, fmt.Errorf("duplicate role alias %q", r.Alias)
		}
		if _, dup := d.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate role id %q", r.ID)
		}
		d.byAlias[key] = len(d.roles)
		d.byID[r.ID] = len(d.roles)
		d.roles = append(d.roles, r)
	}
	return d, nil
}

// ParseDirectory parses a YAML role directory document.
func ParseDirectory(data []byte) (*Directory, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse role directory: %w", err)
	}
	return NewDirectory(file.Roles)
}

// LoadDirectory reads a YAML role directory from path.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role directory: %w", err)
	}
	return ParseDirectory(data)
}

// DefaultDirectory returns the built-in role directory.
func DefaultDirectory() *Directory {
	d, err := ParseDirectory(defaultRolesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded role directory is invalid: %v", err))
	}
	return d
}

// Lookup finds a role by alias (case-insensitive) or by id.
func (d *Directory) Lookup(aliasOrID string) (Role, bool) {
	key := strings.TrimSpace(aliasOrID)
	if i, ok := d.byAlias[strings.ToLower(key)]; ok {
		return d.roles[i], true
	}
	if i, ok := d.byID[key]; ok {
		return d.roles[i], true
	}
	return Role{}, false
}

// IsKnownActor reports whether name is a role alias or the external user.
func (d *Directory) IsKnownActor(name string) bool {
	if name == ExternalActor {
		return true
	}
	_, ok := d.Lookup(name)
	return ok
}

// Roles returns a copy of all roles in declaration order.
func (d *Directory) Roles() []Role {
	out := make([]Role, len(d.roles))
	copy(out, d.roles)
	return out
}

// Aliases returns all aliases, sorted.
func (d *Directory) Aliases() []string {
	out := make([]string, 0, len(d.roles))
	for _, r := range d.roles {
		out = append(out, r.Alias)
	}
	sort.Strings(out)
	return out
}
