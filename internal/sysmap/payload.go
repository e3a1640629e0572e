package sysmap

import (
	"regexp"
	"strings"

	"fabricmap/core-go/internal/layout"
	"fabricmap/core-go/internal/topology"
)

const (
	// ElementLabel shows host name, address and CPU load under each icon.
	ElementLabel = "{HOSTNAME} ({HOST.IP})\nCPU: {{HOST.HOST}:CPU.last(0)}"
	LinkColor    = "00CC00"
)

type ElementRef = topology.ElementRef

type Element struct {
	SelementID  string       `json:"selementid"`
	X           int          `json:"x"`
	Y           int          `json:"y"`
	Elements    []ElementRef `json:"elements"`
	Label       string       `json:"label"`
	ElementType int          `json:"elementtype"`
	IconIDOff   string       `json:"iconid_off,omitempty"`
}

type Link struct {
	Label       string `json:"label"`
	Color       string `json:"color"`
	SelementID1 string `json:"selementid1"`
	SelementID2 string `json:"selementid2"`
}

// Payload is the body of a map.create or map.update request. SysmapID is set
// for updates; Name, Width and Height for creation.
type Payload struct {
	SysmapID  string    `json:"sysmapid,omitempty"`
	Name      string    `json:"name,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Selements []Element `json:"selements"`
	Links     []Link    `json:"links"`
}

// Target identifies the map a payload is meant for.
type Target struct {
	SysmapID string
	Name     string
	Width    int
	Height   int
}

func (p Payload) IsUpdate() bool {
	return p.SysmapID != ""
}

// Assemble serializes every device of t and the derived links.
func Assemble(t *topology.Topology, links []layout.DerivedLink, target Target) Payload {
	p := Payload{
		Selements: make([]Element, 0, t.Len()),
		Links:     make([]Link, 0, len(links)),
	}
	if target.SysmapID != "" {
		p.SysmapID = target.SysmapID
	} else {
		p.Name = target.Name
		p.Width = target.Width
		p.Height = target.Height
	}

	for _, d := range t.Devices() {
		el := Element{
			SelementID:  d.ElementID,
			Elements:    []ElementRef{{HostID: d.HostID}},
			Label:       ElementLabel,
			ElementType: topology.ElementTypeHost,
			IconIDOff:   d.IconID,
		}
		if d.Position != nil {
			el.X = d.Position.X
			el.Y = d.Position.Y
		}
		p.Selements = append(p.Selements, el)
	}
	// Zabbix replaces the whole element set on update.
	for _, o := range t.OtherElements() {
		refs := o.Refs
		if refs == nil {
			refs = []ElementRef{}
		}
		p.Selements = append(p.Selements, Element{
			SelementID:  o.ElementID,
			X:           o.X,
			Y:           o.Y,
			Elements:    refs,
			Label:       o.Label,
			ElementType: o.ElementType,
			IconIDOff:   o.IconID,
		})
	}

	for _, l := range links {
		p.Links = append(p.Links, Link{
			Label:       LinkLabel(l.LabelHost, l.Interface),
			Color:       LinkColor,
			SelementID1: l.ElementID1,
			SelementID2: l.ElementID2,
		})
	}
	return p
}

// LinkLabel renders traffic counters and link speed of port on host.
func LinkLabel(host, port string) string {
	var b strings.Builder
	b.WriteString("In:{" + host + ":ifHCInOctets[" + port + "].last()}\n")
	b.WriteString("Out:{" + host + ":ifHCOutOctets[" + port + "].last()}\n")
	b.WriteString("[MAX-BW: {" + host + ":ifHighSpeed[" + port + "].last()}]")
	return b.String()
}

var inOctetsPattern = regexp.MustCompile(`\{([^:}]+):ifHCInOctets\[([^\]]*)\]`)

// ParseLinkLabel recovers the host and port from a label written by LinkLabel.
func ParseLinkLabel(label string) (host, port string, ok bool) {
	m := inOctetsPattern.FindStringSubmatch(label)
	if m == nil || m[2] == "" {
		return "", "", false
	}
	return m[1], m[2], true
}
