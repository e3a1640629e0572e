package zabbix

import (
	"context"
	"errors"
	"fmt"

	"fabricmap/core-go/internal/sysmap"
	"fabricmap/core-go/internal/topology"
)

// Icon image names used when none are configured.
const (
	DefaultSwitchIcon   = "9k_bleu"
	DefaultRouterIcon   = "Router_Symbol_(128)"
	DefaultFirewallIcon = "Firewall_(128)"
)

type IconNames struct {
	Switch   string
	Router   string
	Firewall string
}

func DefaultIconNames() IconNames {
	return IconNames{
		Switch:   DefaultSwitchIcon,
		Router:   DefaultRouterIcon,
		Firewall: DefaultFirewallIcon,
	}
}

// Registry exposes the client as the device, icon and map store of a sync run.
type Registry struct {
	client *Client
	icons  IconNames
}

func NewRegistry(client *Client, icons IconNames) *Registry {
	def := DefaultIconNames()
	if icons.Switch == "" {
		icons.Switch = def.Switch
	}
	if icons.Router == "" {
		icons.Router = def.Router
	}
	if icons.Firewall == "" {
		icons.Firewall = def.Firewall
	}
	return &Registry{client: client, icons: icons}
}

func (r *Registry) HostByName(ctx context.Context, name string) (topology.Host, error) {
	h, err := r.client.HostByName(ctx, name)
	if err != nil {
		return topology.Host{}, translate(err, topology.ErrDeviceNotFound)
	}
	return topology.Host{ID: h.HostID, Name: h.Host}, nil
}

func (r *Registry) HostByID(ctx context.Context, id string) (topology.Host, error) {
	h, err := r.client.HostByID(ctx, id)
	if err != nil {
		return topology.Host{}, translate(err, topology.ErrDeviceNotFound)
	}
	return topology.Host{ID: h.HostID, Name: h.Host}, nil
}

func (r *Registry) IconByCategory(ctx context.Context, category topology.IconCategory) (string, error) {
	var name string
	switch category {
	case topology.IconSwitch:
		name = r.icons.Switch
	case topology.IconRouter:
		name = r.icons.Router
	case topology.IconFirewall:
		name = r.icons.Firewall
	default:
		return "", fmt.Errorf("icon category %q: %w", category, topology.ErrIconNotFound)
	}
	img, err := r.client.ImageByName(ctx, name)
	if err != nil {
		return "", translate(err, topology.ErrIconNotFound)
	}
	return img.ImageID, nil
}

// MapByName returns the stored map called name. Link label hosts and
// interfaces are recovered from labels the sync wrote earlier.
func (r *Registry) MapByName(ctx context.Context, name string) (topology.RemoteMap, error) {
	m, err := r.client.MapByName(ctx, name)
	if err != nil {
		return topology.RemoteMap{}, translate(err, topology.ErrMapNotFound)
	}

	out := topology.RemoteMap{
		ID:     m.SysmapID,
		Name:   m.Name,
		Width:  int(m.Width),
		Height: int(m.Height),
	}
	for _, s := range m.Selements {
		el := topology.MapElement{
			ElementID:   s.SelementID,
			ElementType: int(s.ElementType),
			X:           int(s.X),
			Y:           int(s.Y),
		}
		if el.ElementType == topology.ElementTypeHost {
			if len(s.Elements) > 0 {
				el.HostID = s.Elements[0].HostID
			}
		} else {
			el.Label = s.Label
			el.IconID = s.IconIDOff
			for _, ref := range s.Elements {
				el.Refs = append(el.Refs, topology.ElementRef(ref))
			}
		}
		out.Elements = append(out.Elements, el)
	}
	for _, l := range m.Links {
		host, port, _ := sysmap.ParseLinkLabel(l.Label)
		out.Links = append(out.Links, topology.MapLink{
			ElementID1: l.SelementID1,
			ElementID2: l.SelementID2,
			LabelHost:  host,
			Interface:  port,
		})
	}
	return out, nil
}

// SaveMap creates or updates the map described by p and returns its id.
func (r *Registry) SaveMap(ctx context.Context, p sysmap.Payload) (string, error) {
	if p.IsUpdate() {
		return r.client.UpdateMap(ctx, p)
	}
	return r.client.CreateMap(ctx, p)
}

func translate(err, notFound error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", notFound, err)
	}
	return err
}
