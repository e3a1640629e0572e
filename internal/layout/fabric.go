package layout

import (
	"fabricmap/core-go/internal/topology"
)

const (
	fabricLayers = 5
	firstRowY    = 50
	rowPitch     = 250
)

// Fabric lays out spine/leaf fabrics on five rows:
//
//	1 backbone routers
//	2 border-leafs and the firewalls hanging off them
//	3 main spines
//	4 satellite spines and main leafs
//	5 satellite leafs
type Fabric struct {
	opts Options
}

// Layers groups devices per row. Devices matching no row are left out.
func (f Fabric) Layers(t *topology.Topology) [fabricLayers][]*topology.Device {
	var layers [fabricLayers]layer
	swapped := false

	for _, d := range t.Devices() {
		switch {
		case d.Role.IsBackbone():
			layers[0].add(d)

		case d.Role == topology.RoleBorderLeaf:
			group := []*topology.Device{d}
			for _, l := range d.Links() {
				peer, ok := t.Device(l.Peer)
				if ok && peer.Role == topology.RoleFirewall {
					group = append(group, peer)
				}
			}
			// The first border-leaf with a firewall is drawn to the right of it.
			if !swapped && len(group) > 1 {
				group[0], group[1] = group[1], group[0]
				swapped = true
			}
			for _, member := range group {
				layers[1].add(member)
			}

		case d.Role == topology.RoleSpine && d.SubRole == topology.SubRoleMain:
			layers[2].add(d)

		case d.Role == topology.RoleSpine && d.SubRole == topology.SubRoleSatellite,
			d.Role == topology.RoleLeaf && d.SubRole == topology.SubRoleMain:
			layers[3].add(d)

		case d.Role == topology.RoleLeaf && d.SubRole == topology.SubRoleSatellite:
			layers[4].add(d)
		}
	}

	var out [fabricLayers][]*topology.Device
	for i := range layers {
		out[i] = layers[i].devices
	}
	return out
}

// Place assigns coordinates row by row. Y advances by one pitch per row even
// when a row is empty, so a row keeps its height whatever the inventory.
func (f Fabric) Place(t *topology.Topology) {
	layers := f.Layers(t)
	y := firstRowY
	for _, row := range layers {
		xs := CalculateXPositions(t.Width, t.IconWidth, len(row))
		for i, d := range row {
			d.SetPosition(xs[i], y)
		}
		y += rowPitch
	}
}

// DeriveLinks walks adjacencies top-down:
//
//	backbone    -> border-leaf
//	border-leaf -> spine, firewall, border-leaf
//	spine       -> spine, leaf
//
// The iterating device is the label host of every declared link it emits.
// Links read back from the map keep the host of their stored label, so a map
// re-synced from an unchanged document keeps its labels.
func (f Fabric) DeriveLinks(t *topology.Topology) []DerivedLink {
	var out []DerivedLink
	seen := make(map[[2]string]struct{})

	for _, d := range t.Devices() {
		for _, l := range d.Links() {
			peer, ok := t.Device(l.Peer)
			if !ok || !emits(d.Role, peer.Role) {
				continue
			}
			if d.ElementID == "" || peer.ElementID == "" {
				continue
			}
			link := DerivedLink{
				ElementID1: d.ElementID,
				ElementID2: peer.ElementID,
				LabelHost:  d.Name,
				Interface:  l.Attrs.Interface,
			}
			// Links read back from a map are stored on both endpoints and keep
			// their direction.
			if l.Attrs.Retrieved() {
				key := pairKey(l.Attrs.ElementID1, l.Attrs.ElementID2)
				if _, dup := seen[key]; dup {
					continue
				}
				host, iface, ok := retrievedLabel(d, peer, l.Attrs)
				if !ok {
					continue
				}
				seen[key] = struct{}{}
				link.ElementID1 = l.Attrs.ElementID1
				link.ElementID2 = l.Attrs.ElementID2
				link.LabelHost = host
				link.Interface = iface
				link.retrieved = true
			}
			out = append(out, link)
		}
	}

	if t.Configured() && !f.opts.KeepBorderLeafPair {
		out = dropBorderLeafPair(t, out)
	}
	return out
}

// emits reports whether a device of role from draws its links towards role to.
func emits(from, to topology.Role) bool {
	switch {
	case from.IsBackbone():
		return to == topology.RoleBorderLeaf
	case from == topology.RoleBorderLeaf:
		return to == topology.RoleSpine || to == topology.RoleFirewall || to == topology.RoleBorderLeaf
	case from == topology.RoleSpine:
		return to == topology.RoleSpine || to == topology.RoleLeaf
	}
	return false
}

// retrievedLabel picks the host and port labelling a link read back from the
// map, seen from d. The host named by the stored label keeps the label; ok is
// false when that host is peer and peer emits the link itself.
func retrievedLabel(d, peer *topology.Device, a topology.LinkAttrs) (host, iface string, ok bool) {
	switch a.LabelHost {
	case "", d.Name:
		return d.Name, a.Interface, true
	case peer.Name:
		if emits(peer.Role, d.Role) {
			return "", "", false
		}
		if a.Interface != "" {
			return d.Name, a.Interface, true
		}
		pa, _ := peer.Link(d.Name)
		return peer.Name, pa.Interface, true
	default:
		if a.Interface != "" {
			return d.Name, a.Interface, true
		}
		return a.LabelHost, a.Recorded, true
	}
}

// dropBorderLeafPair removes declared links from the first border-leaf to the
// second one. Border-leaf pairs usually declare each other, and the remaining
// reverse link is enough to draw them.
//
// TODO: confirm with the map owners whether this should become a general
// de-duplication of reciprocal declarations.
func dropBorderLeafPair(t *topology.Topology, links []DerivedLink) []DerivedLink {
	var borderLeafs []string
	for _, d := range t.Devices() {
		if d.Role == topology.RoleBorderLeaf {
			borderLeafs = append(borderLeafs, d.ElementID)
		}
	}
	if len(borderLeafs) < 2 {
		return links
	}

	out := links[:0]
	for _, l := range links {
		if !l.retrieved && l.ElementID1 == borderLeafs[0] && l.ElementID2 == borderLeafs[1] {
			continue
		}
		out = append(out, l)
	}
	return out
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// layer keeps devices in insertion order, each at most once.
type layer struct {
	devices []*topology.Device
	members map[string]struct{}
}

func (l *layer) add(d *topology.Device) {
	if l.members == nil {
		l.members = make(map[string]struct{})
	}
	if _, ok := l.members[d.Name]; ok {
		return
	}
	l.members[d.Name] = struct{}{}
	l.devices = append(l.devices, d)
}
