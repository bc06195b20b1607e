package volume

import (
	"bytes"
	"encoding/xml"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/docxio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func routes(n int) []Route {
	out := make([]Route, n)
	for i := range out {
		out[i] = Route{Number: i + 1, Name: "L" + string(rune('A'+i))}
	}
	return out
}

func sizes(vols []Volume) []int {
	var out []int
	for _, v := range vols {
		out = append(out, len(v.Routes))
	}
	return out
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 3))))
	return buf.Bytes()
}

// routeDoc builds a report with a two-column body section and a one-column
// sketch section, the shape the insert stage produces.
func routeDoc(route string, img []byte) *docmodel.Document {
	styles := docmodel.NewStyleCatalog()
	styles.Add(&docmodel.Style{ID: "Heading1", Name: "heading 1", Type: docmodel.StyleParagraph, Run: docmodel.RunProps{Color: "FF0000"}})

	header := docmodel.NewParagraph(route + " (D001-D002)")
	header.Props.StyleID = "Heading1"
	header.Runs[0].Props.Color = "1F4E79"

	body := &docmodel.Paragraph{
		Runs: []*docmodel.Run{{Text: "地质点号：D001"}},
		Section: &docmodel.SectionProps{
			Columns: 2,
			Footer:  docmodel.PageNumberFooter(docmodel.RunProps{Size: 18}),
			Extra:   []docmodel.Fragment{{Name: "pgSz", XML: []byte(`<w:pgSz w:w="11906" w:h="16838"/>`)}},
		},
	}
	title := docmodel.NewParagraph(route + "素描图")
	pic := &docmodel.Paragraph{Runs: []*docmodel.Run{{Image: &docmodel.Image{Name: "image1.png", Data: img, Width: 914400, Height: 685800}}}}

	return &docmodel.Document{
		Styles: styles,
		Blocks: []docmodel.Block{
			header,
			body,
			title,
			pic,
			&docmodel.SectionBreak{Props: docmodel.SectionProps{Type: "nextPage", Columns: 1}},
		},
	}
}

func TestRouteKey(t *testing.T) {
	tests := []struct {
		name string
		num  int
		code string
		ok   bool
	}{
		{"L0459_完整版.docx", 459, "L0459", true},
		{"/a/b/L12_formatted.docx", 12, "L12", true},
		{"report.docx", 0, "", false},
		{"l0459.docx", 0, "", false},
	}
	for _, tt := range tests {
		num, code, ok := RouteKey(tt.name)
		if ok != tt.ok || num != tt.num || code != tt.code {
			t.Errorf("RouteKey(%q) = %d, %q, %v; expected %d, %q, %v", tt.name, num, code, ok, tt.num, tt.code, tt.ok)
		}
	}
}

func TestSelect_PrefersComplete(t *testing.T) {
	for _, paths := range [][]string{
		{"in/L0459_formatted.docx", "in/L0459_完整版.docx"},
		{"in/L0459_完整版.docx", "in/L0459_formatted.docx"},
	} {
		got := Select(paths)
		require.Len(t, got, 1)
		assert.Equal(t, "in/L0459_完整版.docx", got[0].Path)
		assert.True(t, got[0].Complete)
	}
}

func TestSelect_SortsByNumber(t *testing.T) {
	got := Select([]string{"L10_formatted.docx", "L9_完整版.docx", "~$L1_formatted.docx", "notes.docx", "L0100_formatted.docx"})
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"L9", "L10", "L0100"}, names)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"L0002_formatted.docx", "L0001_formatted.docx", "L0001_完整版.docx", "L0003.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	got, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(dir, "L0001_完整版.docx"), got[0].Path)
	assert.Equal(t, filepath.Join(dir, "L0002_formatted.docx"), got[1].Path)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name   string
		routes int
		policy Policy
		want   []int
	}{
		{"routes per volume", 25, Policy{RoutesPerVolume: 12}, []int{12, 12, 1}},
		{"total volumes", 25, Policy{TotalVolumes: 4}, []int{7, 7, 7, 4}},
		{"default", 25, Policy{}, []int{12, 12, 1}},
		{"empty trailing volumes dropped", 5, Policy{TotalVolumes: 4}, []int{2, 2, 1}},
		{"more volumes than routes", 2, Policy{TotalVolumes: 5}, []int{1, 1}},
		{"no routes", 0, Policy{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vols, err := Partition(routes(tt.routes), tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sizes(vols))
			for i, v := range vols {
				assert.Equal(t, i+1, v.Number)
			}
		})
	}
}

func TestPartition_ConflictingPolicy(t *testing.T) {
	_, err := Partition(routes(3), Policy{RoutesPerVolume: 2, TotalVolumes: 2})
	assert.ErrorIs(t, err, ErrConflictingPolicy)

	_, err = Partition(routes(3), Policy{RoutesPerVolume: -1})
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	v := Volume{Number: 2, Routes: []Route{{Name: "L0013"}, {Name: "L0014"}, {Name: "L0024"}}}
	assert.Equal(t, "野外手图_第2册_L0013-L0024.docx", v.OutputName())
}

func TestMerge_Structure(t *testing.T) {
	out, st, err := Merge([]*docmodel.Document{routeDoc("L0001", nil), routeDoc("L0002", nil)}, DefaultOptions(), discardLogger())
	require.NoError(t, err)

	cover := out.Blocks[0].(*docmodel.Paragraph)
	assert.Equal(t, "封面", cover.Text())
	assert.Equal(t, "center", cover.Props.Align)
	assert.Equal(t, 56, cover.Runs[0].Props.Size)
	assert.True(t, cover.Runs[0].Props.Bold)
	assert.Equal(t, 4000, *cover.Props.Spacing.Before)
	for i := 1; i <= 3; i++ {
		assert.True(t, out.Blocks[i].(*docmodel.Paragraph).Props.PageBreakBefore)
	}

	sections := out.Sections()
	require.Len(t, sections, 5)
	assert.Equal(t, 5, st.Sections)

	// cover: unlinked, empty footer, no numbering, page size of the first route
	require.NotNil(t, sections[0].Footer)
	assert.Empty(t, sections[0].Footer.Paragraphs)
	assert.Nil(t, sections[0].PageStart)
	require.Len(t, sections[0].Extra, 1)
	assert.Equal(t, "pgSz", sections[0].Extra[0].Name)

	// first content section restarts at 1 with its own page-number footer
	require.NotNil(t, sections[1].PageStart)
	assert.Equal(t, 1, *sections[1].PageStart)
	require.NotNil(t, sections[1].Footer)
	fp := sections[1].Footer.Paragraphs[0]
	assert.Equal(t, "center", fp.Props.Align)
	assert.Equal(t, "PAGE", fp.Runs[0].Field)
	assert.Equal(t, "宋体", fp.Runs[0].Props.Fonts.EastAsia)
	assert.Equal(t, 18, fp.Runs[0].Props.Size)

	// everything after links to it
	for _, s := range sections[2:] {
		assert.Nil(t, s.Footer)
		assert.Nil(t, s.PageStart)
	}
	assert.Equal(t, "nextPage", sections[3].Type, "second route starts on a new page")

	_, ok := out.Blocks[len(out.Blocks)-1].(*docmodel.SectionBreak)
	assert.True(t, ok, "the last route's final section closes the volume")
}

func TestMerge_ColumnRepair(t *testing.T) {
	out, st, err := Merge([]*docmodel.Document{routeDoc("L0001", nil), routeDoc("L0002", nil)}, DefaultOptions(), discardLogger())
	require.NoError(t, err)

	var cols []int
	for _, s := range out.Sections() {
		cols = append(cols, s.Columns)
	}
	assert.Equal(t, []int{2, 2, 1, 2, 1}, cols)
	assert.Equal(t, 2, st.SketchSections)
}

func TestRepairColumns_SketchInThirdSection(t *testing.T) {
	doc := &docmodel.Document{Blocks: []docmodel.Block{
		docmodel.NewParagraph("a"),
		&docmodel.Paragraph{Section: &docmodel.SectionProps{Columns: 1}},
		docmodel.NewParagraph("b"),
		&docmodel.Paragraph{Section: &docmodel.SectionProps{}},
		docmodel.NewParagraph(" L0459素描图 "),
		&docmodel.SectionBreak{Props: docmodel.SectionProps{Columns: 2}},
	}}
	n := repairColumns(doc, discardLogger())
	assert.Equal(t, 1, n)

	var cols []int
	for _, s := range doc.Sections() {
		cols = append(cols, s.Columns)
	}
	assert.Equal(t, []int{2, 2, 1}, cols)
}

func TestMerge_HeaderColors(t *testing.T) {
	out, st, err := Merge([]*docmodel.Document{routeDoc("L0001", nil)}, DefaultOptions(), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "000000", out.Styles.ByID("Heading1").Run.Color)
	assert.Equal(t, 1, st.HeaderParas)
	for _, p := range out.Paragraphs() {
		if p.Props.StyleID == "Heading1" {
			assert.Equal(t, "000000", p.Runs[0].Props.Color)
		}
	}
}

func TestMerge_SketchTitles(t *testing.T) {
	out, st, err := Merge([]*docmodel.Document{routeDoc("L0001", nil)}, DefaultOptions(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, st.SketchTitles)

	for _, p := range out.Paragraphs() {
		if p.Text() != "L0001素描图" {
			continue
		}
		assert.Equal(t, "left", p.Props.Align)
		r := p.Runs[0].Props
		assert.Equal(t, "宋体", r.Fonts.ASCII)
		assert.Equal(t, "宋体", r.Fonts.EastAsia)
		assert.Equal(t, 21, r.Size)
		assert.True(t, r.Bold)
		assert.Equal(t, "000000", r.Color)
	}
}

func TestMerge_StylesAndNamespaces(t *testing.T) {
	a, b := routeDoc("L0001", nil), routeDoc("L0002", nil)
	b.Styles.Add(&docmodel.Style{ID: "Only2", Name: "Only in two", Type: docmodel.StyleParagraph})
	a.Namespaces = []xml.Attr{{Name: xml.Name{Space: "xmlns", Local: "w14"}, Value: "x"}}
	b.Namespaces = []xml.Attr{{Name: xml.Name{Space: "xmlns", Local: "w14"}, Value: "x"}, {Name: xml.Name{Space: "xmlns", Local: "wp14"}, Value: "y"}}

	out, _, err := Merge([]*docmodel.Document{a, b}, DefaultOptions(), discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, out.Styles.ByID("Only2"))
	assert.Len(t, out.Styles.Styles, 3)
	assert.Len(t, out.Namespaces, 2)
}

func TestMerge_DPI(t *testing.T) {
	good := routeDoc("L0001", tinyPNG(t))
	bad := routeDoc("L0002", []byte("not an image"))

	out, st, err := Merge([]*docmodel.Document{good, bad}, DefaultOptions(), discardLogger())
	require.NoError(t, err, "an image that cannot be rewritten never fails the volume")
	assert.Equal(t, 1, st.Images)
	assert.Equal(t, 1, st.ImageFailures)

	media := out.Media()
	require.Len(t, media, 2)
	assert.True(t, bytes.Contains(media[0].Data, []byte("pHYs")))
	assert.Equal(t, []byte("not an image"), media[1].Data)
}

func TestMerge_Empty(t *testing.T) {
	_, _, err := Merge(nil, DefaultOptions(), discardLogger())
	assert.ErrorIs(t, err, ErrEmptyVolume)
}

func TestBuild(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	for _, name := range []string{"L0001_完整版.docx", "L0002_formatted.docx"} {
		code := name[:5]
		require.NoError(t, docxio.WriteFile(filepath.Join(in, name), routeDoc(code, tinyPNG(t))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(in, "L0003_formatted.docx"), []byte("broken"), 0o644))

	found, err := Scan(in)
	require.NoError(t, err)
	vols, err := Partition(found, Policy{})
	require.NoError(t, err)
	require.Len(t, vols, 1)

	res, err := Build(vols[0], out, DefaultOptions(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "野外手图_第1册_L0001-L0002.docx"), res.Path,
		"the name covers only the routes merged")
	assert.Equal(t, "L0003", res.Volume.Last())
	assert.Equal(t, []string{"L0003"}, res.Skipped)
	assert.Equal(t, 2, res.Stats.Routes)

	doc, err := docxio.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "封面", docmodel.BlockText(doc.Blocks[0]))

	var cols []int
	for _, s := range doc.Sections() {
		cols = append(cols, s.Columns)
	}
	assert.Equal(t, []int{2, 2, 1, 2, 1}, cols)

	sections := doc.Sections()
	require.NotNil(t, sections[1].PageStart)
	assert.Equal(t, 1, *sections[1].PageStart)
	require.NotNil(t, sections[1].Footer)
	assert.Nil(t, sections[2].Footer)
}
