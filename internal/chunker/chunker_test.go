package chunker

import (
	"reflect"
	"testing"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/doctree"
)

func paras(texts ...string) []docmodel.Block {
	out := make([]docmodel.Block, 0, len(texts))
	for _, t := range texts {
		out = append(out, docmodel.NewParagraph(t))
	}
	return out
}

func labels(chunks []doctree.Chunk) []doctree.Label {
	out := make([]doctree.Label, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Label)
	}
	return out
}

func TestParse_SegmentsByMarker(t *testing.T) {
	blocks := paras(
		"野外路线记录",
		"路线编号：L0459",
		"图幅编号：I49E008011",
		"地质点号：D001",
		"岩性描述",
		"点间路线描述：沿沟谷前行",
		"分段路线上界线描述：",
		"地质点号：D002",
		"路线小结：完成",
	)
	chunks := Parse(blocks)

	want := []doctree.Label{
		doctree.Start, doctree.RouteNumber, doctree.MapSheetNumber, doctree.GeoPointNumber,
		doctree.InterPointRouteDescription, doctree.SegmentBoundaryDescription,
		doctree.GeoPointNumber, doctree.RouteSummary,
	}
	if got := labels(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected labels %v, got %v", want, got)
	}
	if len(chunks[3].Blocks) != 2 {
		t.Errorf("expected the first point chunk to hold 2 blocks, got %d", len(chunks[3].Blocks))
	}
}

func TestParse_SkipsEmptyParagraphs(t *testing.T) {
	img := &docmodel.Paragraph{Runs: []*docmodel.Run{{Image: &docmodel.Image{Name: "a.png"}}}}
	marker := &docmodel.Paragraph{Section: &docmodel.SectionProps{Columns: 2}}
	blocks := []docmodel.Block{
		docmodel.NewParagraph("地质点号：D001"),
		docmodel.NewParagraph("   "),
		img,
		&docmodel.Table{XML: []byte("<w:tbl/>")},
		docmodel.NewParagraph(""),
		marker,
		&docmodel.SectionBreak{},
	}
	chunks := Parse(blocks)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0].Blocks
	want := []docmodel.Block{blocks[0], img, blocks[3], marker, blocks[6]}
	if len(got) != len(want) {
		t.Fatalf("expected %d retained blocks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block[%d]: expected %T %p, got %T %p", i, want[i], want[i], got[i], got[i])
		}
	}
}

func TestParse_UnanchoredMarker(t *testing.T) {
	chunks := Parse(paras("说明", "前言：路线编号说明"))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Label != doctree.RouteNumber {
		t.Errorf("expected a RouteNumber chunk, got %v", chunks[1].Label)
	}
}

func TestParse_NoEmptyChunks(t *testing.T) {
	chunks := Parse(paras("路线编号：L1", "路线描述：", "目标任务："))
	for i, c := range chunks {
		if len(c.Blocks) == 0 {
			t.Errorf("chunk[%d] is empty", i)
		}
	}
	if chunks[0].Label != doctree.RouteNumber {
		t.Errorf("expected no START chunk before the first marker, got %v", chunks[0].Label)
	}
}

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		text string
		want doctree.Label
		ok   bool
	}{
		{"点间路线描述：", doctree.InterPointRouteDescription, true},
		{"路线描述：", doctree.RouteDescription, true},
		{"分段路线上界线描述", doctree.SegmentBoundaryDescription, true},
		{"路线自检：合格", doctree.RouteSelfCheck, true},
		{"岩性为灰岩", doctree.Start, false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%q): expected (%v, %v), got (%v, %v)", tt.text, tt.want, tt.ok, got, ok)
		}
	}
}

func TestExtractHeaderInfo(t *testing.T) {
	chunks := Parse(paras(
		"路线编号：l0100",
		"路线编号：L0459",
		"地质点号：D001",
		"地质点号：d002",
		"地质点号：D002",
		"地质点号：未编号",
	))
	info := ExtractHeaderInfo(chunks)

	if info.RouteNumber != "L0459" {
		t.Errorf("expected route %q, got %q", "L0459", info.RouteNumber)
	}
	want := []string{"D001", "d002", "D002"}
	if !reflect.DeepEqual(info.Points, want) {
		t.Errorf("expected points %v, got %v", want, info.Points)
	}
}

func TestExtractHeaderInfo_Defaults(t *testing.T) {
	info := ExtractHeaderInfo(Parse(paras("正文")))
	if info.RouteNumber != DefaultRouteNumber {
		t.Errorf("expected %q, got %q", DefaultRouteNumber, info.RouteNumber)
	}
	if _, ok := info.Title(); ok {
		t.Error("expected no header title without points")
	}
}

func TestRouteHeaderInfo_Title(t *testing.T) {
	info := doctree.RouteHeaderInfo{RouteNumber: "L0459", Points: []string{"D001", "D002", "D003"}}
	got, ok := info.Title()
	if !ok || got != "L0459 (D001-D003)" {
		t.Errorf("expected %q, got %q (ok=%v)", "L0459 (D001-D003)", got, ok)
	}
}

func TestReorder_SwapsBoundaryPairs(t *testing.T) {
	in := []doctree.Chunk{
		{Label: doctree.GeoPointNumber},
		{Label: doctree.InterPointRouteDescription},
		{Label: doctree.SegmentBoundaryDescription},
		{Label: doctree.GeoPointNumber},
		{Label: doctree.SegmentBoundaryDescription},
		{Label: doctree.InterPointRouteDescription},
	}
	got := labels(Reorder(in))
	want := []doctree.Label{
		doctree.GeoPointNumber,
		doctree.SegmentBoundaryDescription,
		doctree.InterPointRouteDescription,
		doctree.GeoPointNumber,
		doctree.SegmentBoundaryDescription,
		doctree.InterPointRouteDescription,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	again := labels(Reorder(Reorder(in)))
	if !reflect.DeepEqual(again, want) {
		t.Errorf("expected reorder to be stable on its output, got %v", again)
	}
}

func TestReorder_KeepsBlocks(t *testing.T) {
	ip := doctree.Chunk{Label: doctree.InterPointRouteDescription, Blocks: paras("点间路线描述：")}
	sb := doctree.Chunk{Label: doctree.SegmentBoundaryDescription, Blocks: paras("分段路线上界线描述：")}
	out := Reorder([]doctree.Chunk{ip, sb})
	if out[0].FirstText() != "分段路线上界线描述：" || out[1].FirstText() != "点间路线描述：" {
		t.Errorf("unexpected order: %q, %q", out[0].FirstText(), out[1].FirstText())
	}
}
