package topology

import (
	"regexp"
	"strings"
)

// Role is the architectural function of a device inside a fabric, derived from its name.
type Role string

const (
	RoleUnknown    Role = "unknown"
	RoleLeaf       Role = "leaf"
	RoleSpine      Role = "spine"
	RoleBorderLeaf Role = "border-leaf"
	RoleFirewall   Role = "firewall"

	// Backbone router families.
	RoleArcturus Role = "ARCTURUS"
	RoleOrion    Role = "ORION"
	RoleBBNG     Role = "BBNG"
	RoleSirius   Role = "SIRIUS"
)

var allRoles = []Role{
	RoleLeaf,
	RoleSpine,
	RoleBorderLeaf,
	RoleFirewall,
	RoleArcturus,
	RoleOrion,
	RoleBBNG,
	RoleSirius,
}

// ParseRole accepts the canonical spelling of a role, case-insensitively.
func ParseRole(value string) (Role, bool) {
	value = strings.TrimSpace(value)
	for _, r := range allRoles {
		if strings.EqualFold(string(r), value) {
			return r, true
		}
	}
	return RoleUnknown, false
}

func (r Role) IsBackbone() bool {
	switch r {
	case RoleArcturus, RoleOrion, RoleBBNG, RoleSirius:
		return true
	default:
		return false
	}
}

// IconCategory groups roles that share the same map icon.
type IconCategory string

const (
	IconSwitch   IconCategory = "switch"
	IconRouter   IconCategory = "router"
	IconFirewall IconCategory = "firewall"
)

func (r Role) IconCategory() (IconCategory, bool) {
	switch {
	case r == RoleLeaf || r == RoleSpine || r == RoleBorderLeaf:
		return IconSwitch, true
	case r.IsBackbone():
		return IconRouter, true
	case r == RoleFirewall:
		return IconFirewall, true
	default:
		return "", false
	}
}

// DefaultPrefixes is the naming convention used by the production fabric.
func DefaultPrefixes() map[string]Role {
	return map[string]Role{
		"TOR": RoleLeaf,
		"SPN": RoleSpine,
		"BLF": RoleBorderLeaf,
		"ESR": RoleArcturus,
		"OER": RoleOrion,
		"MBR": RoleBBNG,
		"BTR": RoleSirius,
		"BSR": RoleSirius,
	}
}

// Two shapes are recognized: PREFIX<digits>-<anything>, and the firewall
// naming F<digit><3-letter site><tag>-<anything>.
var namePattern = regexp.MustCompile(`^(?:(?P<prefix>\D+)\d+-.*|(?P<firewall>F)\d\D{3}\w*-.*)$`)

var (
	prefixGroup   = namePattern.SubexpIndex("prefix")
	firewallGroup = namePattern.SubexpIndex("firewall")
)

// Classifier maps device names to roles using a prefix table.
// It is immutable once built and safe for concurrent use.
type Classifier struct {
	prefixes map[string]Role
}

// NewClassifier copies prefixes; a nil or empty table selects DefaultPrefixes.
func NewClassifier(prefixes map[string]Role) *Classifier {
	if len(prefixes) == 0 {
		return &Classifier{prefixes: DefaultPrefixes()}
	}
	table := make(map[string]Role, len(prefixes))
	for prefix, role := range prefixes {
		table[prefix] = role
	}
	return &Classifier{prefixes: table}
}

var defaultClassifier = NewClassifier(nil)

// Classify never fails: names that match no shape, or whose prefix is not in
// the table, are RoleUnknown.
func (c *Classifier) Classify(name string) Role {
	if c == nil {
		c = defaultClassifier
	}
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return RoleUnknown
	}
	if m[firewallGroup] != "" {
		return RoleFirewall
	}
	if role, ok := c.prefixes[m[prefixGroup]]; ok {
		return role
	}
	return RoleUnknown
}
