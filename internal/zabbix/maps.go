package zabbix

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexInt accepts both JSON numbers and the numeric strings the API returns.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*f = flexInt(n)
	return nil
}

type SelementRef struct {
	HostID    string `json:"hostid,omitempty"`
	SysmapID  string `json:"sysmapid,omitempty"`
	TriggerID string `json:"triggerid,omitempty"`
	GroupID   string `json:"groupid,omitempty"`
}

type Selement struct {
	SelementID  string        `json:"selementid"`
	ElementType flexInt       `json:"elementtype"`
	Elements    []SelementRef `json:"elements"`
	X           flexInt       `json:"x"`
	Y           flexInt       `json:"y"`
	Label       string        `json:"label"`
	IconIDOff   string        `json:"iconid_off"`
}

type MapLink struct {
	LinkID      string `json:"linkid"`
	SelementID1 string `json:"selementid1"`
	SelementID2 string `json:"selementid2"`
	Label       string `json:"label"`
	Color       string `json:"color"`
}

type Map struct {
	SysmapID  string     `json:"sysmapid"`
	Name      string     `json:"name"`
	Width     flexInt    `json:"width"`
	Height    flexInt    `json:"height"`
	Selements []Selement `json:"selements"`
	Links     []MapLink  `json:"links"`
}

// MapByName fetches the map called exactly name with its elements and links.
func (c *Client) MapByName(ctx context.Context, name string) (Map, error) {
	var maps []Map
	err := c.Call(ctx, "map.get", map[string]any{
		"output":          "extend",
		"selectSelements": "extend",
		"selectLinks":     "extend",
		"filter":          map[string]any{"name": []string{name}},
	}, &maps)
	if err != nil {
		return Map{}, fmt.Errorf("map %s: %w", name, err)
	}
	if len(maps) == 0 {
		return Map{}, fmt.Errorf("map %s: %w", name, ErrNotFound)
	}
	return maps[0], nil
}

type sysmapIDs struct {
	SysmapIDs []string `json:"sysmapids"`
}

// CreateMap sends a map.create request and returns the new map id.
func (c *Client) CreateMap(ctx context.Context, params any) (string, error) {
	return c.saveMap(ctx, "map.create", params)
}

// UpdateMap sends a map.update request. params must carry the sysmapid.
func (c *Client) UpdateMap(ctx context.Context, params any) (string, error) {
	return c.saveMap(ctx, "map.update", params)
}

func (c *Client) saveMap(ctx context.Context, method string, params any) (string, error) {
	var out sysmapIDs
	if err := c.Call(ctx, method, params, &out); err != nil {
		return "", err
	}
	if len(out.SysmapIDs) == 0 {
		return "", fmt.Errorf("%s: empty sysmapids in result", method)
	}
	return out.SysmapIDs[0], nil
}

var _ json.Unmarshaler = (*flexInt)(nil)
