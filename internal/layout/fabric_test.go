package layout

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"fabricmap/core-go/internal/topology"
)

type stubRegistry struct {
	ids map[string]string
}

func (r *stubRegistry) HostByName(_ context.Context, name string) (topology.Host, error) {
	if r.ids == nil {
		r.ids = make(map[string]string)
	}
	if name == "GONE01-a" {
		return topology.Host{}, fmt.Errorf("%w: %s", topology.ErrDeviceNotFound, name)
	}
	id, ok := r.ids[name]
	if !ok {
		id = fmt.Sprintf("%d", 10001+len(r.ids))
		r.ids[name] = id
	}
	return topology.Host{ID: id, Name: name}, nil
}

func (r *stubRegistry) HostByID(ctx context.Context, id string) (topology.Host, error) {
	for name, hostID := range r.ids {
		if hostID == id {
			return topology.Host{ID: id, Name: name}, nil
		}
	}
	return topology.Host{}, topology.ErrDeviceNotFound
}

func (r *stubRegistry) IconByCategory(_ context.Context, category topology.IconCategory) (string, error) {
	return string(category), nil
}

func link(peer, iface string) topology.LinkDecl {
	return topology.LinkDecl{Peer: peer, Interface: iface}
}

// fabricDecls is a small fabric: one backbone router, two border-leafs (the
// first with a firewall), two spines and four leafs, two of them satellites.
func fabricDecls() []topology.DeviceDecl {
	return []topology.DeviceDecl{
		{Name: "ESR01-wan", Links: []topology.LinkDecl{link("BLF01-a", "Gi0/1"), link("BLF02-a", "Gi0/2")}},
		{Name: "BLF01-a", Links: []topology.LinkDecl{
			link("F1abc-fw", "Ethernet1/1"),
			link("SPN01-a", "Ethernet1/49"),
			link("SPN02-a", "Ethernet1/50"),
			link("BLF02-a", "Ethernet1/53"),
		}},
		{Name: "BLF02-a", Links: []topology.LinkDecl{
			link("SPN01-a", "Ethernet1/49"),
			link("SPN02-a", "Ethernet1/50"),
			link("BLF01-a", "Ethernet1/53"),
		}},
		{Name: "SPN01-a", Links: []topology.LinkDecl{
			link("TOR01-a", "Ethernet1/1"),
			link("TOR02-a", "Ethernet1/2"),
			{Peer: "TOR03-a", PeerSubRole: topology.SubRoleSatellite, Interface: "Ethernet1/3"},
			{Peer: "TOR04-a", PeerSubRole: topology.SubRoleSatellite, Interface: "Ethernet1/4"},
		}},
		{Name: "SPN02-a", Links: []topology.LinkDecl{
			link("TOR01-a", "Ethernet1/1"),
			link("TOR02-a", "Ethernet1/2"),
			link("GONE01-a", "Ethernet1/9"),
		}},
		{Name: "TOR01-a", Links: []topology.LinkDecl{link("TOR02-a", "Ethernet1/54")}},
	}
}

func buildFabric(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), &stubRegistry{}, topo)
	if err := b.IngestConfig(context.Background(), fabricDecls()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return topo
}

func names(devices []*topology.Device) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Name)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCalculateXPositions(t *testing.T) {
	cases := []struct {
		width, icon, k int
		want           []int
	}{
		{1600, 128, 3, []int{304, 736, 1168}},
		{1600, 128, 1, []int{736}},
		{1600, 128, 2, []int{448, 1024}},
		{1600, 128, 0, nil},
		{300, 128, 3, []int{-21, 86, 193}},
	}
	for _, tc := range cases {
		got := CalculateXPositions(tc.width, tc.icon, tc.k)
		if len(got) != len(tc.want) {
			t.Fatalf("CalculateXPositions(%d, %d, %d): expected %v, got %v", tc.width, tc.icon, tc.k, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("CalculateXPositions(%d, %d, %d): expected %v, got %v", tc.width, tc.icon, tc.k, tc.want, got)
			}
		}
	}
}

func TestFabricLayers(t *testing.T) {
	topo := buildFabric(t)
	layers := Fabric{}.Layers(topo)

	want := [][]string{
		{"ESR01-wan"},
		{"F1abc-fw", "BLF01-a", "BLF02-a"},
		{"SPN01-a", "SPN02-a"},
		{"TOR01-a", "TOR02-a"},
		{"TOR03-a", "TOR04-a"},
	}
	for i := range want {
		if got := names(layers[i]); !equalStrings(got, want[i]) {
			t.Fatalf("layer %d: expected %v, got %v", i+1, want[i], got)
		}
	}
}

func TestFabricLayers_firewallOnSecondBorderLeaf(t *testing.T) {
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), &stubRegistry{}, topo)
	err := b.IngestConfig(context.Background(), []topology.DeviceDecl{
		{Name: "BLF01-a", Links: []topology.LinkDecl{link("SPN01-a", "Ethernet1/49")}},
		{Name: "BLF02-a", Links: []topology.LinkDecl{link("F1abc-fw", "Ethernet1/1")}},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	layers := Fabric{}.Layers(topo)
	want := []string{"BLF01-a", "F1abc-fw", "BLF02-a"}
	if got := names(layers[1]); !equalStrings(got, want) {
		t.Fatalf("layer 2: expected %v, got %v", want, got)
	}

	Fabric{}.Place(topo)
	fw, _ := topo.Device("F1abc-fw")
	if fw.Position == nil || fw.Position.X != 736 || fw.Position.Y != 300 {
		t.Fatalf("expected firewall in the middle of row 2, got %+v", fw.Position)
	}
}

func TestFabricLayers_unknownRoleExcluded(t *testing.T) {
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), &stubRegistry{}, topo)
	err := b.IngestConfig(context.Background(), []topology.DeviceDecl{
		{Name: "SPN01-a", Links: []topology.LinkDecl{link("srv-backup", "Ethernet1/1"), link("F9xyz-lonely", "Ethernet1/2")}},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	Fabric{}.Place(topo)

	placed := 0
	for _, row := range (Fabric{}).Layers(topo) {
		placed += len(row)
	}
	if placed != 1 {
		t.Fatalf("expected only the spine to be layered, got %d devices", placed)
	}
	srv, _ := topo.Device("srv-backup")
	if srv.Position != nil {
		t.Fatalf("expected unknown device to keep no position, got %+v", srv.Position)
	}
	fw, _ := topo.Device("F9xyz-lonely")
	if fw.Position != nil {
		t.Fatalf("expected firewall without border-leaf peer to stay unplaced")
	}
}

func TestFabricPlace(t *testing.T) {
	topo := buildFabric(t)
	Fabric{}.Place(topo)

	want := map[string]topology.Position{
		"ESR01-wan": {X: 736, Y: 50},
		"F1abc-fw":  {X: 304, Y: 300},
		"BLF01-a":   {X: 736, Y: 300},
		"BLF02-a":   {X: 1168, Y: 300},
		"SPN01-a":   {X: 448, Y: 550},
		"SPN02-a":   {X: 1024, Y: 550},
		"TOR01-a":   {X: 448, Y: 800},
		"TOR02-a":   {X: 1024, Y: 800},
		"TOR03-a":   {X: 448, Y: 1050},
		"TOR04-a":   {X: 1024, Y: 1050},
	}
	for name, pos := range want {
		d, ok := topo.Device(name)
		if !ok {
			t.Fatalf("device %s missing", name)
		}
		if d.Position == nil || *d.Position != pos {
			t.Fatalf("%s: expected %+v, got %+v", name, pos, d.Position)
		}
	}

	tor3, _ := topo.Device("TOR03-a")
	if tor3.SubRole != topology.SubRoleSatellite {
		t.Fatalf("expected satellite leaf to stay satellite, got %q", tor3.SubRole)
	}
	spn, _ := topo.Device("SPN01-a")
	if spn.SubRole != topology.SubRoleMain {
		t.Fatalf("expected main spine to stay main, got %q", spn.SubRole)
	}
}

func TestFabricPlace_emptyRowsStillAdvance(t *testing.T) {
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), &stubRegistry{}, topo)
	if err := b.IngestConfig(context.Background(), []topology.DeviceDecl{
		{Name: "SPN01-a", Links: []topology.LinkDecl{link("TOR01-a", "Ethernet1/1")}},
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	Fabric{}.Place(topo)

	spn, _ := topo.Device("SPN01-a")
	tor, _ := topo.Device("TOR01-a")
	if spn.Position.Y != 550 || tor.Position.Y != 800 {
		t.Fatalf("expected rows 3 and 4 at 550/800, got %d/%d", spn.Position.Y, tor.Position.Y)
	}
}

type pair struct{ a, b, host string }

func linkSet(links []DerivedLink) map[pair]int {
	out := make(map[pair]int)
	for _, l := range links {
		out[pair{l.ElementID1, l.ElementID2, l.LabelHost}]++
	}
	return out
}

func TestFabricDeriveLinks(t *testing.T) {
	topo := buildFabric(t)
	s := ForContext(topology.ContextFabric, Options{})
	s.Place(topo)
	links := s.DeriveLinks(topo)

	id := func(name string) string {
		d, ok := topo.Device(name)
		if !ok {
			t.Fatalf("device %s missing", name)
		}
		return d.ElementID
	}
	want := []pair{
		{id("ESR01-wan"), id("BLF01-a"), "ESR01-wan"},
		{id("ESR01-wan"), id("BLF02-a"), "ESR01-wan"},
		{id("BLF01-a"), id("F1abc-fw"), "BLF01-a"},
		{id("BLF01-a"), id("SPN01-a"), "BLF01-a"},
		{id("BLF01-a"), id("SPN02-a"), "BLF01-a"},
		{id("BLF02-a"), id("SPN01-a"), "BLF02-a"},
		{id("BLF02-a"), id("SPN02-a"), "BLF02-a"},
		{id("BLF02-a"), id("BLF01-a"), "BLF02-a"},
		{id("SPN01-a"), id("TOR01-a"), "SPN01-a"},
		{id("SPN01-a"), id("TOR02-a"), "SPN01-a"},
		{id("SPN01-a"), id("TOR03-a"), "SPN01-a"},
		{id("SPN01-a"), id("TOR04-a"), "SPN01-a"},
		{id("SPN02-a"), id("TOR01-a"), "SPN02-a"},
		{id("SPN02-a"), id("TOR02-a"), "SPN02-a"},
	}

	got := linkSet(links)
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %+v", len(want), len(links), links)
	}
	for _, w := range want {
		if got[w] != 1 {
			t.Fatalf("expected exactly one link %+v, got %d", w, got[w])
		}
	}

	// TOR01-a -> TOR02-a is declared but leaf-to-leaf links are never drawn.
	if got[pair{id("TOR01-a"), id("TOR02-a"), "TOR01-a"}] != 0 {
		t.Fatalf("unexpected leaf-to-leaf link")
	}
	for _, l := range links {
		if l.LabelHost == "SPN01-a" && l.ElementID2 == id("TOR03-a") && l.Interface != "Ethernet1/3" {
			t.Fatalf("expected interface to follow the declaring side, got %q", l.Interface)
		}
	}
}

func TestFabricDeriveLinks_keepBorderLeafPair(t *testing.T) {
	topo := buildFabric(t)
	links := ForContext(topology.ContextFabric, Options{KeepBorderLeafPair: true}).DeriveLinks(topo)
	if len(links) != 15 {
		t.Fatalf("expected both border-leaf declarations to be kept, got %d links", len(links))
	}
}

func TestFabricDeriveLinks_retrievedMapDeduplicates(t *testing.T) {
	reg := &stubRegistry{}
	for _, name := range []string{"BLF01-a", "BLF02-a", "SPN01-a", "SPN02-a"} {
		if _, err := reg.HostByName(context.Background(), name); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), reg, topo)
	err := b.IngestMap(context.Background(), topology.RemoteMap{
		Name: "FABRIC",
		Elements: []topology.MapElement{
			{ElementID: "1", HostID: reg.ids["BLF01-a"], X: 100, Y: 300},
			{ElementID: "2", HostID: reg.ids["BLF02-a"], X: 500, Y: 300},
			{ElementID: "3", HostID: reg.ids["SPN01-a"], X: 100, Y: 550},
			{ElementID: "4", HostID: reg.ids["SPN02-a"], X: 500, Y: 550},
		},
		Links: []topology.MapLink{
			{ElementID1: "1", ElementID2: "2", Interface: "Ethernet1/53"},
			{ElementID1: "3", ElementID2: "4", Interface: "Ethernet1/54"},
			{ElementID1: "1", ElementID2: "3", Interface: "Ethernet1/49"},
		},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	links := Fabric{}.DeriveLinks(topo)
	got := linkSet(links)
	want := []pair{
		{"1", "2", "BLF01-a"},
		{"1", "3", "BLF01-a"},
		{"3", "4", "SPN01-a"},
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %d: %+v", len(want), len(links), links)
	}
	for _, w := range want {
		if got[w] != 1 {
			t.Fatalf("expected link %+v, got %v", w, got)
		}
	}
}

func TestFabricDeriveLinks_retrievedLabelHost(t *testing.T) {
	reg := &stubRegistry{}
	for _, name := range []string{"BLF01-a", "BLF02-a", "SPN01-a", "SPN02-a"} {
		if _, err := reg.HostByName(context.Background(), name); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	topo := topology.New(topology.ContextFabric, nil)
	b := topology.NewBuilder(zerolog.New(io.Discard), reg, topo)
	err := b.IngestMap(context.Background(), topology.RemoteMap{
		Name: "FABRIC",
		Elements: []topology.MapElement{
			{ElementID: "1", HostID: reg.ids["BLF01-a"], Y: 300},
			{ElementID: "2", HostID: reg.ids["BLF02-a"], Y: 300},
			{ElementID: "3", HostID: reg.ids["SPN01-a"], Y: 550},
			{ElementID: "4", HostID: reg.ids["SPN02-a"], Y: 550},
		},
		Links: []topology.MapLink{
			{ElementID1: "2", ElementID2: "1", LabelHost: "BLF02-a", Interface: "Ethernet1/54"},
			{ElementID1: "1", ElementID2: "3", LabelHost: "CORE01-x", Interface: "Ethernet1/49"},
			{ElementID1: "4", ElementID2: "1", LabelHost: "SPN02-a", Interface: "Ethernet1/2"},
		},
	})
	if err != nil {
		t.Fatalf("ingest map: %v", err)
	}
	// BLF01-a declares its side of the pair; BLF02-a keeps the label.
	if err := b.IngestConfig(context.Background(), []topology.DeviceDecl{
		{Name: "BLF01-a", Links: []topology.LinkDecl{link("BLF02-a", "Ethernet1/53")}},
	}); err != nil {
		t.Fatalf("ingest config: %v", err)
	}

	links := Fabric{}.DeriveLinks(topo)
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %+v", links)
	}
	want := map[[2]string][2]string{
		{"2", "1"}: {"BLF02-a", "Ethernet1/54"},
		{"1", "3"}: {"CORE01-x", "Ethernet1/49"},
		{"4", "1"}: {"SPN02-a", "Ethernet1/2"},
	}
	for _, l := range links {
		w, ok := want[[2]string{l.ElementID1, l.ElementID2}]
		if !ok {
			t.Fatalf("unexpected link %+v", l)
		}
		if l.LabelHost != w[0] || l.Interface != w[1] {
			t.Fatalf("link %s-%s: expected %s %s, got %s %s", l.ElementID1, l.ElementID2, w[0], w[1], l.LabelHost, l.Interface)
		}
	}
}

func TestForContext_unknownContextIsNoop(t *testing.T) {
	topo := buildFabric(t)
	topo.Context = "campus"
	s := ForContext(topo.Context, Options{})
	s.Place(topo)
	if links := s.DeriveLinks(topo); len(links) != 0 {
		t.Fatalf("expected no links, got %d", len(links))
	}
	for _, d := range topo.Devices() {
		if d.Position != nil {
			t.Fatalf("expected %s to stay unplaced", d.Name)
		}
	}
}
