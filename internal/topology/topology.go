package topology

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

const (
	ContextFabric = "fabric"

	DefaultWidth     = 1600
	DefaultHeight    = 1200
	DefaultIconWidth = 128
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrIconNotFound   = errors.New("icon not found")
	ErrMapNotFound    = errors.New("map not found")
)

// Host is a device as known by the remote registry.
type Host struct {
	ID   string
	Name string
}

// Registry is the remote device and icon registry.
//
// Lookups that match nothing must return an error wrapping ErrDeviceNotFound
// (or ErrIconNotFound); any other error is treated as a failure of the run.
type Registry interface {
	HostByName(ctx context.Context, name string) (Host, error)
	HostByID(ctx context.Context, id string) (Host, error)
	IconByCategory(ctx context.Context, category IconCategory) (string, error)
}

// Topology owns every Device of one synchronization run.
type Topology struct {
	Context   string
	Width     int
	Height    int
	IconWidth int

	classifier    *Classifier
	devices       map[string]*Device
	order         []string
	elements      map[string]string
	lastElementID int
	configured    bool
	icons         map[IconCategory]string
	others        []MapElement
}

func New(context string, classifier *Classifier) *Topology {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Topology{
		Context:    context,
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		IconWidth:  DefaultIconWidth,
		classifier: classifier,
		devices:    make(map[string]*Device),
		elements:   make(map[string]string),
		icons:      make(map[IconCategory]string),
	}
}

func (t *Topology) Classifier() *Classifier {
	return t.classifier
}

func (t *Topology) Len() int {
	return len(t.order)
}

func (t *Topology) Device(name string) (*Device, bool) {
	d, ok := t.devices[name]
	return d, ok
}

// Devices returns devices in the order they were introduced.
func (t *Topology) Devices() []*Device {
	out := make([]*Device, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.devices[name])
	}
	return out
}

func (t *Topology) DeviceByElement(elementID string) (*Device, bool) {
	name, ok := t.elements[elementID]
	if !ok {
		return nil, false
	}
	return t.Device(name)
}

// OtherElements returns the retrieved map elements that are not hosts
// (sub-maps, triggers, host groups, images), in map order.
func (t *Topology) OtherElements() []MapElement {
	out := make([]MapElement, len(t.others))
	copy(out, t.others)
	return out
}

func (t *Topology) keepElement(el MapElement) {
	t.others = append(t.others, el)
}

// Configured reports whether devices were ingested from a declarative document.
func (t *Topology) Configured() bool {
	return t.configured
}

// ResolveOrCreate returns the device called name, looking it up in the registry
// the first time it is seen.
func (t *Topology) ResolveOrCreate(ctx context.Context, reg Registry, name string) (*Device, error) {
	if d, ok := t.devices[name]; ok {
		return d, nil
	}
	host, err := reg.HostByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.add(ctx, reg, name, host)
}

func (t *Topology) add(ctx context.Context, reg Registry, name string, host Host) (*Device, error) {
	if d, ok := t.devices[name]; ok {
		return d, nil
	}
	d := newDevice(name, host.ID, t.classifier.Classify(name))

	icon, err := t.icon(ctx, reg, d.Role)
	if err != nil && !errors.Is(err, ErrIconNotFound) {
		return nil, fmt.Errorf("resolve icon for %s: %w", name, err)
	}
	d.IconID = icon

	t.devices[name] = d
	t.order = append(t.order, name)
	return d, nil
}

// icon resolves each category at most once per topology.
func (t *Topology) icon(ctx context.Context, reg Registry, role Role) (string, error) {
	category, ok := role.IconCategory()
	if !ok {
		return "", nil
	}
	if id, cached := t.icons[category]; cached {
		if id == "" {
			return "", ErrIconNotFound
		}
		return id, nil
	}
	id, err := reg.IconByCategory(ctx, category)
	if err != nil {
		if errors.Is(err, ErrIconNotFound) {
			t.icons[category] = ""
		}
		return "", err
	}
	t.icons[category] = id
	return id, nil
}

func (t *Topology) assignElementID(d *Device, elementID string) {
	d.ElementID = elementID
	t.elements[elementID] = d.Name
	t.reserveElementID(elementID)
}

// reserveElementID keeps the counter above ids already used on the map.
func (t *Topology) reserveElementID(elementID string) {
	if n, err := strconv.Atoi(elementID); err == nil && n > t.lastElementID {
		t.lastElementID = n
	}
}

// allocateElementID hands out the next id from the topology-wide counter.
func (t *Topology) allocateElementID(d *Device) {
	for {
		t.lastElementID++
		id := strconv.Itoa(t.lastElementID)
		if _, taken := t.elements[id]; taken {
			continue
		}
		t.assignElementID(d, id)
		return
	}
}
