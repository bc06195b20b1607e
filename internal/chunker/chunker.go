package chunker

import (
	"regexp"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/doctree"
)

// DefaultRouteNumber is used when no RouteNumber chunk carries an L-code.
const DefaultRouteNumber = "Unknown"

type marker struct {
	keyword string
	label   doctree.Label
}

// Marker keywords in match priority. Longer keywords that contain a shorter
// one come first so 点间路线描述 never opens a RouteDescription chunk.
var markers = []marker{
	{"点间路线描述", doctree.InterPointRouteDescription},
	{"分段路线上界线描述", doctree.SegmentBoundaryDescription},
	{"路线编号", doctree.RouteNumber},
	{"路线描述", doctree.RouteDescription},
	{"目标任务", doctree.TargetTask},
	{"图幅编号", doctree.MapSheetNumber},
	{"地质点号", doctree.GeoPointNumber},
	{"路线小结", doctree.RouteSummary},
	{"路线自检", doctree.RouteSelfCheck},
}

var (
	routeRe = regexp.MustCompile(`[Ll]\d+`)
	pointRe = regexp.MustCompile(`[Dd]\d+`)
)

// Classify returns the label of the first marker keyword contained anywhere
// in text. Matching is unanchored: "前言：路线编号说明" opens a RouteNumber chunk.
func Classify(text string) (doctree.Label, bool) {
	for _, m := range markers {
		if strings.Contains(text, m.keyword) {
			return m.label, true
		}
	}
	return doctree.Start, false
}

// Parse segments body blocks into labeled chunks. Blocks before the first
// marker form a START chunk. Empty paragraphs are dropped unless they carry
// a picture or close a section.
func Parse(blocks []docmodel.Block) []doctree.Chunk {
	var chunks []doctree.Chunk
	current := doctree.Start
	var buf []docmodel.Block

	flush := func() {
		if len(buf) > 0 {
			chunks = append(chunks, doctree.Chunk{Label: current, Blocks: buf})
			buf = nil
		}
	}

	for _, b := range blocks {
		text := strings.TrimSpace(docmodel.BlockText(b))
		if text == "" && skippable(b) {
			continue
		}
		if label, ok := Classify(text); ok {
			flush()
			current = label
		}
		buf = append(buf, b)
	}
	flush()
	return chunks
}

func skippable(b docmodel.Block) bool {
	p, ok := b.(*docmodel.Paragraph)
	if !ok {
		return false
	}
	return p.Section == nil && !p.HasImage()
}

// ExtractHeaderInfo pulls the route number and point ids out of the chunks.
// The last RouteNumber chunk with an L-code wins; point ids keep duplicates.
func ExtractHeaderInfo(chunks []doctree.Chunk) doctree.RouteHeaderInfo {
	info := doctree.RouteHeaderInfo{RouteNumber: DefaultRouteNumber}
	for _, c := range chunks {
		switch c.Label {
		case doctree.RouteNumber:
			if m := routeRe.FindString(c.FirstText()); m != "" {
				info.RouteNumber = m
			}
		case doctree.GeoPointNumber:
			if m := pointRe.FindString(c.FirstText()); m != "" {
				info.Points = append(info.Points, m)
			}
		}
	}
	return info
}

// Reorder moves every segment-boundary chunk in front of the inter-point
// chunk that immediately precedes it. Each chunk takes part in at most one swap.
func Reorder(chunks []doctree.Chunk) []doctree.Chunk {
	out := make([]doctree.Chunk, 0, len(chunks))
	for i := 0; i < len(chunks); {
		if i+1 < len(chunks) &&
			chunks[i].Label == doctree.InterPointRouteDescription &&
			chunks[i+1].Label == doctree.SegmentBoundaryDescription {
			out = append(out, chunks[i+1], chunks[i])
			i += 2
			continue
		}
		out = append(out, chunks[i])
		i++
	}
	return out
}
