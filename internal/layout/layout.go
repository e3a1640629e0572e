package layout

import (
	"fabricmap/core-go/internal/topology"
)

// DerivedLink is one link to draw on the map. It is recomputed on every run.
type DerivedLink struct {
	ElementID1 string
	ElementID2 string
	// LabelHost is the device whose counters feed the link label.
	LabelHost string
	Interface string

	retrieved bool
}

// Strategy lays out a topology for one kind of context. Both methods must only
// run once ingestion has finished.
type Strategy interface {
	Place(t *topology.Topology)
	DeriveLinks(t *topology.Topology) []DerivedLink
}

type Options struct {
	// KeepBorderLeafPair disables dropping the declared link between the first
	// two border-leaf devices.
	KeepBorderLeafPair bool
}

// ForContext returns the strategy for context. Contexts without a layout yet
// get a strategy that leaves the topology untouched.
func ForContext(context string, opts Options) Strategy {
	switch context {
	case topology.ContextFabric:
		return Fabric{opts: opts}
	default:
		return passthrough{}
	}
}

type passthrough struct{}

func (passthrough) Place(*topology.Topology) {}

func (passthrough) DeriveLinks(*topology.Topology) []DerivedLink { return nil }

// CalculateXPositions spreads k icons evenly over width, with margins equal to
// the gaps between icons.
func CalculateXPositions(width, iconWidth, k int) []int {
	if k <= 0 {
		return nil
	}
	spacing := floorDiv(width-iconWidth*k, k+1)
	out := make([]int, k)
	for i := range out {
		out[i] = spacing + i*(iconWidth+spacing)
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
