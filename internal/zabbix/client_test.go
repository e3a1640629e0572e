package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"fabricmap/core-go/internal/sysmap"
	"fabricmap/core-go/internal/topology"
)

const (
	testServer   = "http://zabbix.test/zabbix"
	testEndpoint = "/zabbix/api_jsonrpc.php"
)

type rpcBody struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Auth    string          `json:"auth"`
}

// rpc matches JSON-RPC requests for method and hands the decoded body to check.
func rpc(method string, check func(rpcBody)) gock.MatchFunc {
	return func(req *http.Request, _ *gock.Request) (bool, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return false, err
		}
		req.Body = io.NopCloser(bytes.NewReader(raw))
		var body rpcBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return false, err
		}
		if body.Method != method {
			return false, nil
		}
		if check != nil {
			check(body)
		}
		return true, nil
	}
}

func mock(method string, check func(rpcBody)) *gock.Request {
	return gock.New("http://zabbix.test").
		Post(testEndpoint).
		AddMatcher(rpc(method, check))
}

func TestLoginAttachesToken(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("user.login", func(b rpcBody) {
		assert.Equal("2.0", b.JSONRPC)
		assert.Empty(b.Auth)
		assert.JSONEq(`{"username":"Admin","password":"zabbix"}`, string(b.Params))
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": "0424bd59b807674191e7d77572075f33", "id": 1})

	mock("host.get", func(b rpcBody) {
		assert.Equal("0424bd59b807674191e7d77572075f33", b.Auth)
		assert.JSONEq(`{"output":["hostid","host"],"filter":{"host":["SPN01-a"]}}`, string(b.Params))
	}).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"result":  []map[string]any{{"hostid": "10105", "host": "SPN01-a"}},
		"id":      2,
	})

	mock("user.logout", func(b rpcBody) {
		assert.Equal("0424bd59b807674191e7d77572075f33", b.Auth)
		assert.JSONEq(`[]`, string(b.Params))
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": true, "id": 3})

	c := New(testServer, Options{})
	ctx := context.Background()
	assert.NoError(c.Login(ctx, "Admin", "zabbix"))

	h, err := c.HostByName(ctx, "SPN01-a")
	assert.NoError(err)
	assert.Equal(Host{HostID: "10105", Host: "SPN01-a"}, h)

	assert.NoError(c.Logout(ctx))
	assert.Empty(c.Token())
	assert.True(gock.IsDone())
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	defer gock.Off()
	c := New(testServer, Options{})
	require.NoError(t, c.Logout(context.Background()))
}

func TestHostByNameNotFound(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("host.get", nil).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": []any{}, "id": 1})

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	_, err := reg.HostByName(context.Background(), "GHOST01-a")
	assert.ErrorIs(err, topology.ErrDeviceNotFound)
	assert.ErrorIs(err, ErrNotFound)
}

func TestCallReturnsAPIError(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("host.get", nil).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": -32602, "message": "Invalid params.", "data": "Not authorised."},
		"id":      1,
	})

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	_, err := reg.HostByName(context.Background(), "SPN01-a")

	var apiErr *APIError
	assert.True(errors.As(err, &apiErr))
	assert.Equal(-32602, apiErr.Code)
	assert.Equal("host.get", apiErr.Method)
	assert.False(errors.Is(err, topology.ErrDeviceNotFound))
}

func TestCallLogsInAgainWhenSessionExpires(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("user.login", nil).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": "first", "id": 1})
	mock("host.get", nil).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": -32602, "message": "Invalid params.", "data": "Session terminated, re-login, please."},
		"id":      2,
	})
	mock("user.login", func(b rpcBody) {
		assert.JSONEq(`{"username":"Admin","password":"zabbix"}`, string(b.Params))
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": "second", "id": 3})
	mock("host.get", func(b rpcBody) {
		assert.Equal("second", b.Auth)
	}).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"result":  []map[string]any{{"hostid": "10105", "host": "SPN01-a"}},
		"id":      4,
	})

	c := New(testServer, Options{})
	ctx := context.Background()
	assert.NoError(c.Login(ctx, "Admin", "zabbix"))

	h, err := c.HostByName(ctx, "SPN01-a")
	assert.NoError(err)
	assert.Equal("10105", h.HostID)
	assert.Equal("second", c.Token())
	assert.True(gock.IsDone())
}

func TestCallRejectsHTTPFailure(t *testing.T) {
	defer gock.Off()

	mock("image.get", nil).Reply(502)

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	_, err := reg.IconByCategory(context.Background(), topology.IconSwitch)
	require.Error(t, err)
	require.False(t, errors.Is(err, topology.ErrIconNotFound))
}

func TestIconByCategoryUsesConfiguredNames(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("image.get", func(b rpcBody) {
		assert.JSONEq(`{"output":["imageid","name"],"filter":{"name":["Router_Symbol_(128)"]}}`, string(b.Params))
	}).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"result":  []map[string]any{{"imageid": "23", "name": "Router_Symbol_(128)"}},
		"id":      1,
	})
	mock("image.get", func(b rpcBody) {
		assert.JSONEq(`{"output":["imageid","name"],"filter":{"name":["asa"]}}`, string(b.Params))
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": []any{}, "id": 2})

	reg := NewRegistry(New(testServer, Options{}), IconNames{Firewall: "asa"})
	ctx := context.Background()

	id, err := reg.IconByCategory(ctx, topology.IconRouter)
	assert.NoError(err)
	assert.Equal("23", id)

	_, err = reg.IconByCategory(ctx, topology.IconFirewall)
	assert.ErrorIs(err, topology.ErrIconNotFound)
	assert.True(gock.IsDone())
}

func TestRegistryMapByName(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("map.get", func(b rpcBody) {
		var params map[string]any
		assert.NoError(json.Unmarshal(b.Params, &params))
		assert.Equal("extend", params["selectSelements"])
		assert.Equal("extend", params["selectLinks"])
		assert.Equal(map[string]any{"name": []any{"FABRIC"}}, params["filter"])
	}).Reply(200).JSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result": []map[string]any{{
			"sysmapid": "7",
			"name":     "FABRIC",
			"width":    "1600",
			"height":   "1200",
			"selements": []map[string]any{
				{"selementid": "3", "elementtype": "0", "x": "736", "y": "300", "elements": []map[string]any{{"hostid": "10101"}}},
				{"selementid": "8", "elementtype": "4", "x": "10", "y": "10", "elements": []any{}, "label": "DC1", "iconid_off": "7"},
				{"selementid": "9", "elementtype": "1", "x": "1400", "y": "10", "elements": []map[string]any{{"sysmapid": "2"}}, "label": "WAN"},
			},
			"links": []map[string]any{
				{"linkid": "1", "selementid1": "3", "selementid2": "5", "label": sysmap.LinkLabel("BLF01-a", "Ethernet1/49")},
				{"linkid": "2", "selementid1": "3", "selementid2": "6", "label": ""},
			},
		}},
	})

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	m, err := reg.MapByName(context.Background(), "FABRIC")
	assert.NoError(err)

	assert.Equal("7", m.ID)
	assert.Equal(1600, m.Width)
	assert.Equal(1200, m.Height)
	assert.Equal([]topology.MapElement{
		{ElementID: "3", HostID: "10101", X: 736, Y: 300},
		{ElementID: "8", ElementType: 4, X: 10, Y: 10, Label: "DC1", IconID: "7"},
		{ElementID: "9", ElementType: 1, X: 1400, Y: 10, Refs: []topology.ElementRef{{SysmapID: "2"}}, Label: "WAN"},
	}, m.Elements)
	assert.Equal([]topology.MapLink{
		{ElementID1: "3", ElementID2: "5", LabelHost: "BLF01-a", Interface: "Ethernet1/49"},
		{ElementID1: "3", ElementID2: "6"},
	}, m.Links)
}

func TestRegistryMapByNameMissing(t *testing.T) {
	defer gock.Off()

	mock("map.get", nil).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": []any{}, "id": 1})

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	_, err := reg.MapByName(context.Background(), "FABRIC")
	require.ErrorIs(t, err, topology.ErrMapNotFound)
}

func TestRegistrySaveMap(t *testing.T) {
	defer gock.Off()
	assert := require.New(t)

	mock("map.create", func(b rpcBody) {
		var params map[string]any
		assert.NoError(json.Unmarshal(b.Params, &params))
		assert.Equal("FABRIC", params["name"])
		assert.NotContains(params, "sysmapid")
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": map[string]any{"sysmapids": []string{"9"}}, "id": 1})

	mock("map.update", func(b rpcBody) {
		var params map[string]any
		assert.NoError(json.Unmarshal(b.Params, &params))
		assert.Equal("9", params["sysmapid"])
		assert.NotContains(params, "name")
	}).Reply(200).JSON(map[string]any{"jsonrpc": "2.0", "result": map[string]any{"sysmapids": []string{"9"}}, "id": 2})

	reg := NewRegistry(New(testServer, Options{}), IconNames{})
	ctx := context.Background()

	id, err := reg.SaveMap(ctx, sysmap.Payload{Name: "FABRIC", Width: 1600, Height: 1200})
	assert.NoError(err)
	assert.Equal("9", id)

	id, err = reg.SaveMap(ctx, sysmap.Payload{SysmapID: "9"})
	assert.NoError(err)
	assert.Equal("9", id)
	assert.True(gock.IsDone())
}
