// Package config reads the topology document describing a fabric.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fabricmap/core-go/internal/topology"
)

// ErrMalformed reports a document that cannot describe a topology.
var ErrMalformed = errors.New("malformed topology document")

var validate = validator.New()

type Document struct {
	Context  string            `yaml:"context"`
	Map      MapSettings       `yaml:"map"`
	Icons    IconSettings      `yaml:"icons"`
	Prefixes map[string]string `yaml:"prefixes" validate:"omitempty,dive,keys,required,endkeys,required"`
	Devices  Devices           `yaml:"devices" validate:"required,dive"`
}

type MapSettings struct {
	Name      string `yaml:"name"`
	Width     int    `yaml:"width" validate:"gte=0"`
	Height    int    `yaml:"height" validate:"gte=0"`
	IconWidth int    `yaml:"icon_width" validate:"gte=0"`
}

// IconSettings names the images used per icon category. Empty names fall back
// to the registry defaults.
type IconSettings struct {
	Switch   string `yaml:"switch"`
	Router   string `yaml:"router"`
	Firewall string `yaml:"firewall"`
}

type Device struct {
	Name  string `yaml:"name" validate:"required"`
	Role  string `yaml:"role" validate:"omitempty,oneof=main satellite"`
	Links []Link `yaml:"links" validate:"dive"`
}

type Link struct {
	PeerName  string `yaml:"peer_name" validate:"required"`
	PeerRole  string `yaml:"peer_role" validate:"omitempty,oneof=main satellite"`
	Interface string `yaml:"interface"`
}

// Devices keeps declaration order. It decodes from either a mapping of
// name to attributes or a sequence of entries carrying their own name.
type Devices []Device

func (d *Devices) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Devices, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var name string
			if err := node.Content[i].Decode(&name); err != nil {
				return fmt.Errorf("device name at line %d: %w", node.Content[i].Line, err)
			}
			var attrs struct {
				Role  string `yaml:"role"`
				Links []Link `yaml:"links"`
			}
			if err := node.Content[i+1].Decode(&attrs); err != nil {
				return fmt.Errorf("device %s: %w", name, err)
			}
			out = append(out, Device{Name: name, Role: attrs.Role, Links: attrs.Links})
		}
		*d = out
		return nil

	case yaml.SequenceNode:
		out := make(Devices, 0, len(node.Content))
		for _, item := range node.Content {
			var dev Device
			if err := item.Decode(&dev); err != nil {
				return fmt.Errorf("device at line %d: %w", item.Line, err)
			}
			out = append(out, dev)
		}
		*d = out
		return nil

	default:
		return fmt.Errorf("devices at line %d: expected a mapping or a sequence", node.Line)
	}
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func Parse(b []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, describe(err))
	}
	if _, err := doc.prefixTable(); err != nil {
		return nil, err
	}
	doc.applyDefaults()
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.Context == "" {
		d.Context = topology.ContextFabric
	}
	if d.Map.Width == 0 {
		d.Map.Width = topology.DefaultWidth
	}
	if d.Map.Height == 0 {
		d.Map.Height = topology.DefaultHeight
	}
	if d.Map.IconWidth == 0 {
		d.Map.IconWidth = topology.DefaultIconWidth
	}
}

// Classifier returns the naming table of the document, or the default table
// when the document declares none.
func (d *Document) Classifier() *topology.Classifier {
	table, _ := d.prefixTable()
	return topology.NewClassifier(table)
}

func (d *Document) prefixTable() (map[string]topology.Role, error) {
	if len(d.Prefixes) == 0 {
		return nil, nil
	}
	table := make(map[string]topology.Role, len(d.Prefixes))
	for prefix, value := range d.Prefixes {
		role, ok := topology.ParseRole(value)
		if !ok {
			return nil, fmt.Errorf("%w: prefix %s: unknown role %q", ErrMalformed, prefix, value)
		}
		table[prefix] = role
	}
	return table, nil
}

// Declarations converts devices into builder input, in declaration order.
func (d *Document) Declarations() []topology.DeviceDecl {
	out := make([]topology.DeviceDecl, 0, len(d.Devices))
	for _, dev := range d.Devices {
		decl := topology.DeviceDecl{Name: dev.Name}
		decl.SubRole, _ = topology.ParseSubRole(dev.Role)
		for _, l := range dev.Links {
			ld := topology.LinkDecl{Peer: l.PeerName, Interface: l.Interface}
			ld.PeerSubRole, _ = topology.ParseSubRole(l.PeerRole)
			decl.Links = append(decl.Links, ld)
		}
		out = append(out, decl)
	}
	return out
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s is required", e.Namespace())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", e.Namespace(), e.Param(), e.Value())
	default:
		return fmt.Errorf("%s failed %s validation", e.Namespace(), e.Tag())
	}
}
