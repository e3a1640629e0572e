package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DeviceDecl is one device as declared by the topology document.
type DeviceDecl struct {
	Name string
	// SubRole overrides the default sub-role when set.
	SubRole SubRole
	Links   []LinkDecl
}

type LinkDecl struct {
	Peer        string
	PeerSubRole SubRole
	Interface   string
}

// RemoteMap is a map already stored on the monitoring server.
type RemoteMap struct {
	ID       string
	Name     string
	Width    int
	Height   int
	Elements []MapElement
	Links    []MapLink
}

// ElementTypeHost is the map element type of a monitored host.
const ElementTypeHost = 0

// ElementRef is the object a map element points at. One id is set, matching
// the element type; image elements have no reference.
type ElementRef struct {
	HostID    string `json:"hostid,omitempty"`
	SysmapID  string `json:"sysmapid,omitempty"`
	TriggerID string `json:"triggerid,omitempty"`
	GroupID   string `json:"groupid,omitempty"`
}

type MapElement struct {
	ElementID   string
	ElementType int
	// HostID is set for host elements only.
	HostID string
	X      int
	Y      int
	// Refs, Label and IconID are kept for elements that are not hosts, which
	// are written back unchanged.
	Refs   []ElementRef
	Label  string
	IconID string
}

type MapLink struct {
	ElementID1 string
	ElementID2 string
	// LabelHost and Interface are recovered from the link's existing label,
	// when it has the traffic template.
	LabelHost string
	Interface string
}

// Builder ingests devices and adjacencies into a Topology.
type Builder struct {
	log     zerolog.Logger
	reg     Registry
	topo    *Topology
	missing map[string]struct{}
	skipped []string
}

func NewBuilder(log zerolog.Logger, reg Registry, topo *Topology) *Builder {
	return &Builder{
		log:     log,
		reg:     reg,
		topo:    topo,
		missing: make(map[string]struct{}),
	}
}

func (b *Builder) Topology() *Topology {
	return b.topo
}

// Skipped lists names that could not be resolved, in the order they were first seen.
func (b *Builder) Skipped() []string {
	out := make([]string, len(b.skipped))
	copy(out, b.skipped)
	return out
}

// IngestMap rebuilds devices, positions and adjacencies from an existing map.
// Adjacencies are recorded on both endpoints.
func (b *Builder) IngestMap(ctx context.Context, m RemoteMap) error {
	if m.Width > 0 {
		b.topo.Width = m.Width
	}
	if m.Height > 0 {
		b.topo.Height = m.Height
	}

	for _, el := range m.Elements {
		b.topo.reserveElementID(el.ElementID)
		if el.ElementType != ElementTypeHost {
			b.topo.keepElement(el)
			continue
		}
		if el.HostID == "" {
			b.log.Debug().Str("selementid", el.ElementID).Msg("host element without host, dropped")
			continue
		}
		host, err := b.reg.HostByID(ctx, el.HostID)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				b.skip("hostid:"+el.HostID, err)
				continue
			}
			return fmt.Errorf("resolve map element %s: %w", el.ElementID, err)
		}
		d, err := b.topo.add(ctx, b.reg, host.Name, host)
		if err != nil {
			return err
		}
		b.topo.assignElementID(d, el.ElementID)
		d.SetPosition(el.X, el.Y)
	}

	for _, l := range m.Links {
		a, okA := b.topo.DeviceByElement(l.ElementID1)
		z, okZ := b.topo.DeviceByElement(l.ElementID2)
		if !okA || !okZ {
			b.log.Debug().Str("selementid1", l.ElementID1).Str("selementid2", l.ElementID2).Msg("map link endpoint not resolved")
			continue
		}
		aAttrs := LinkAttrs{
			Interface:  l.Interface,
			LabelHost:  l.LabelHost,
			Recorded:   l.Interface,
			ElementID1: l.ElementID1,
			ElementID2: l.ElementID2,
		}
		zAttrs := aAttrs
		// The recovered port belongs to the label host only.
		switch l.LabelHost {
		case "":
		case a.Name:
			zAttrs.Interface = ""
		case z.Name:
			aAttrs.Interface = ""
		default:
			aAttrs.Interface = ""
			zAttrs.Interface = ""
		}
		a.AddLink(z.Name, aAttrs)
		z.AddLink(a.Name, zAttrs)
	}

	b.log.Info().Str("map", m.Name).Int("devices", b.topo.Len()).Msg("map analyzed")
	return nil
}

// IngestConfig adds declared devices and their link peers in declaration order.
// Links are directional: only the declaring device records the adjacency.
func (b *Builder) IngestConfig(ctx context.Context, decls []DeviceDecl) error {
	b.topo.configured = true

	for _, decl := range decls {
		d, err := b.introduce(ctx, decl.Name)
		if err != nil {
			return err
		}
		if d == nil {
			continue
		}
		if decl.SubRole != "" {
			d.SetSubRole(decl.SubRole)
		}

		for _, l := range decl.Links {
			peer, err := b.introduce(ctx, l.Peer)
			if err != nil {
				return err
			}
			if peer == nil {
				continue
			}
			if l.PeerSubRole != "" {
				peer.SetSubRole(l.PeerSubRole)
			}
			if d.AddLink(peer.Name, LinkAttrs{Interface: l.Interface, Declared: true}) {
				continue
			}
			if d.MergeDeclared(peer.Name, l.Interface) {
				b.log.Debug().Str("device", d.Name).Str("peer", peer.Name).Str("interface", l.Interface).Msg("map link updated from document")
				continue
			}
			b.log.Debug().Str("device", d.Name).Str("peer", peer.Name).Msg("link already declared, ignored")
		}
	}
	return nil
}

// introduce resolves name and gives it a map element id if it has none yet.
// A nil device with a nil error means the name is unknown to the registry.
func (b *Builder) introduce(ctx context.Context, name string) (*Device, error) {
	if _, gone := b.missing[name]; gone {
		return nil, nil
	}
	d, err := b.topo.ResolveOrCreate(ctx, b.reg, name)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			b.skip(name, err)
			return nil, nil
		}
		return nil, fmt.Errorf("resolve device %s: %w", name, err)
	}
	if d.ElementID == "" {
		b.topo.allocateElementID(d)
		b.log.Info().Str("device", d.Name).Str("hostid", d.HostID).Str("role", string(d.Role)).Msg("device added")
	}
	return d, nil
}

func (b *Builder) skip(name string, err error) {
	if _, seen := b.missing[name]; seen {
		return
	}
	b.missing[name] = struct{}{}
	b.skipped = append(b.skipped, name)
	b.log.Warn().Err(err).Str("device", name).Msg("device not found, skipped")
}
