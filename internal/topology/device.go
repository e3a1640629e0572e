package topology

// SubRole distinguishes devices in the main pod from those racked in a satellite pod.
type SubRole string

const (
	SubRoleMain      SubRole = "main"
	SubRoleSatellite SubRole = "satellite"
)

// ParseSubRole returns false for anything other than main or satellite.
func ParseSubRole(value string) (SubRole, bool) {
	switch SubRole(value) {
	case SubRoleMain, SubRoleSatellite:
		return SubRole(value), true
	default:
		return "", false
	}
}

// Canvas rows below these Y coordinates hold the main pod.
const (
	spineSatelliteY = 600
	leafSatelliteY  = 900
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// LinkAttrs describes one adjacency as seen from the device that holds it.
type LinkAttrs struct {
	// Interface is the local port used in telemetry label expressions. It is
	// empty when the port of this side is unknown.
	Interface string
	// Declared is set once the document declared the adjacency from this side.
	Declared bool

	// The fields below are set when the adjacency was read from an existing
	// map. LabelHost and Recorded are the host and port named by its label.
	ElementID1 string
	ElementID2 string
	LabelHost  string
	Recorded   string
}

// Retrieved reports whether the adjacency came from a map already stored remotely.
func (a LinkAttrs) Retrieved() bool {
	return a.ElementID1 != "" && a.ElementID2 != ""
}

type Link struct {
	Peer  string
	Attrs LinkAttrs
}

// Device is one network device of the topology.
type Device struct {
	Name    string
	HostID  string
	Role    Role
	SubRole SubRole
	// Position is nil until the device has been placed on the canvas.
	Position *Position
	IconID   string
	// ElementID identifies the device's element on the map, not the device itself.
	ElementID string

	links     []Link
	linkIndex map[string]int
}

func newDevice(name, hostID string, role Role) *Device {
	return &Device{
		Name:      name,
		HostID:    hostID,
		Role:      role,
		SubRole:   SubRoleMain,
		linkIndex: make(map[string]int),
	}
}

// SetPosition places the device and re-derives its sub-role from the row it sits on.
func (d *Device) SetPosition(x, y int) {
	d.Position = &Position{X: x, Y: y}
	switch {
	case d.Role == RoleSpine && y > spineSatelliteY:
		d.SubRole = SubRoleSatellite
	case d.Role == RoleLeaf && y > leafSatelliteY:
		d.SubRole = SubRoleSatellite
	default:
		d.SubRole = SubRoleMain
	}
}

func (d *Device) SetSubRole(s SubRole) {
	d.SubRole = s
}

// AddLink records an adjacency towards peer. The first declaration wins: later
// ones for the same peer are ignored, as are links to the device itself.
func (d *Device) AddLink(peer string, attrs LinkAttrs) bool {
	if peer == "" || peer == d.Name {
		return false
	}
	if d.linkIndex == nil {
		d.linkIndex = make(map[string]int)
	}
	if _, exists := d.linkIndex[peer]; exists {
		return false
	}
	d.linkIndex[peer] = len(d.links)
	d.links = append(d.links, Link{Peer: peer, Attrs: attrs})
	return true
}

// MergeDeclared applies a document declaration to an adjacency read from the
// map: a declared interface replaces the recovered one. It returns false when
// there is no such adjacency or the document already declared it.
func (d *Device) MergeDeclared(peer, iface string) bool {
	i, ok := d.linkIndex[peer]
	if !ok {
		return false
	}
	a := &d.links[i].Attrs
	if !a.Retrieved() || a.Declared {
		return false
	}
	a.Declared = true
	if iface != "" {
		a.Interface = iface
	}
	return true
}

// Links returns adjacencies in the order they were first declared.
func (d *Device) Links() []Link {
	out := make([]Link, len(d.links))
	copy(out, d.links)
	return out
}

func (d *Device) Link(peer string) (LinkAttrs, bool) {
	i, ok := d.linkIndex[peer]
	if !ok {
		return LinkAttrs{}, false
	}
	return d.links[i].Attrs, true
}
