package doctree

import (
	"fmt"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// Label is the semantic role of a chunk in a route report.
type Label int

const (
	Start Label = iota
	RouteNumber
	RouteDescription
	TargetTask
	MapSheetNumber
	GeoPointNumber
	InterPointRouteDescription
	SegmentBoundaryDescription
	BoundaryDescription // SegmentBoundaryDescription after its marker is rewritten
	RouteSummary
	RouteSelfCheck
)

var labelNames = [...]string{
	Start:                      "START",
	RouteNumber:                "RouteNumber",
	RouteDescription:           "RouteDescription",
	TargetTask:                 "TargetTask",
	MapSheetNumber:             "MapSheetNumber",
	GeoPointNumber:             "GeoPointNumber",
	InterPointRouteDescription: "InterPointRouteDescription",
	SegmentBoundaryDescription: "SegmentBoundaryDescription",
	BoundaryDescription:        "BoundaryDescription",
	RouteSummary:               "RouteSummary",
	RouteSelfCheck:             "RouteSelfCheck",
}

func (l Label) String() string {
	if l >= 0 && int(l) < len(labelNames) {
		return labelNames[l]
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Chunk is a contiguous, non-empty run of body blocks sharing one label.
type Chunk struct {
	Label  Label
	Blocks []docmodel.Block
}

// FirstText returns the visible text of the chunk's first block.
func (c Chunk) FirstText() string {
	if len(c.Blocks) == 0 {
		return ""
	}
	return docmodel.BlockText(c.Blocks[0])
}

// RouteHeaderInfo identifies a route and the geological points it visits.
type RouteHeaderInfo struct {
	RouteNumber string
	Points      []string // One per GeoPointNumber chunk, duplicates kept.
}

// Title returns the route header text, e.g. "L0459 (D001-D003)".
// It reports false when no point was found.
func (h RouteHeaderInfo) Title() (string, bool) {
	if len(h.Points) == 0 {
		return "", false
	}
	return fmt.Sprintf("%s (%s-%s)", h.RouteNumber, h.Points[0], h.Points[len(h.Points)-1]), true
}
