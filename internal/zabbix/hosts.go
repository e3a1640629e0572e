package zabbix

import (
	"context"
	"fmt"
)

type Host struct {
	HostID string `json:"hostid"`
	Host   string `json:"host"`
}

// HostByName returns the host whose technical name is exactly name.
func (c *Client) HostByName(ctx context.Context, name string) (Host, error) {
	return c.firstHost(ctx, "name "+name, map[string]any{
		"output": []string{"hostid", "host"},
		"filter": map[string]any{"host": []string{name}},
	})
}

func (c *Client) HostByID(ctx context.Context, id string) (Host, error) {
	return c.firstHost(ctx, "id "+id, map[string]any{
		"output":  []string{"hostid", "host"},
		"hostids": []string{id},
	})
}

func (c *Client) firstHost(ctx context.Context, what string, params map[string]any) (Host, error) {
	var hosts []Host
	if err := c.Call(ctx, "host.get", params, &hosts); err != nil {
		return Host{}, fmt.Errorf("host %s: %w", what, err)
	}
	if len(hosts) == 0 {
		return Host{}, fmt.Errorf("host %s: %w", what, ErrNotFound)
	}
	return hosts[0], nil
}

type Image struct {
	ImageID string `json:"imageid"`
	Name    string `json:"name"`
}

// ImageByName returns the icon image called name.
func (c *Client) ImageByName(ctx context.Context, name string) (Image, error) {
	var images []Image
	err := c.Call(ctx, "image.get", map[string]any{
		"output": []string{"imageid", "name"},
		"filter": map[string]any{"name": []string{name}},
	}, &images)
	if err != nil {
		return Image{}, fmt.Errorf("image %s: %w", name, err)
	}
	if len(images) == 0 {
		return Image{}, fmt.Errorf("image %s: %w", name, ErrNotFound)
	}
	return images[0], nil
}
