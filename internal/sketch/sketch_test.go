package sketch

import (
	"bytes"
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
	"github.com/dgallion1/routebook/internal/imaging"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func report() *docmodel.Document {
	return &docmodel.Document{
		Styles: docmodel.NewStyleCatalog(),
		Blocks: []docmodel.Block{
			docmodel.NewParagraph("L0459 (D001-D002)"),
			&docmodel.SectionBreak{Props: docmodel.SectionProps{
				Columns: 2,
				Footer:  docmodel.PageNumberFooter(docmodel.RunProps{Size: 18}),
			}},
		},
	}
}

func TestRouteFolders(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"L0010", "L0009-东沟", "Lake", "X0001", "L0100"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	writeFile(t, filepath.Join(root, "L0001.txt"), nil)

	got, err := RouteFolders(root)
	require.NoError(t, err)
	var names []string
	for _, f := range got {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"L0009-东沟", "L0010", "L0100"}, names)
}

func TestPoolNames(t *testing.T) {
	assert.Equal(t, []string{"L0459.png"}, PoolNames("L0459", []string{"a/x.PNG"}))
	assert.Equal(t, []string{"L0459_1.png", "L0459_2.png"}, PoolNames("L0459", []string{"a.png", "b.Png"}))
}

func TestExtract(t *testing.T) {
	root, pool := t.TempDir(), t.TempDir()
	folder := filepath.Join(root, "L0459")
	writeFile(t, filepath.Join(folder, FolderName, "b.png"), []byte("b"))
	writeFile(t, filepath.Join(folder, FolderName, "A.PNG"), []byte("a"))
	writeFile(t, filepath.Join(folder, FolderName, "notes.txt"), []byte("n"))

	written, err := Extract(Folder{Number: 459, Name: "L0459", Path: folder}, pool)
	require.NoError(t, err)
	require.Len(t, written, 2)

	first, err := os.ReadFile(filepath.Join(pool, "L0459_1.png"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(first), "files are numbered in name order")

	empty := filepath.Join(root, "L0460")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	written, err = Extract(Folder{Name: "L0460", Path: empty}, pool)
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestFindImages(t *testing.T) {
	pool := t.TempDir()
	for _, n := range []string{"L0459_2.png", "L0459_1.png", "L04590.png", "L0460.png", "L0459.jpg"} {
		writeFile(t, filepath.Join(pool, n), nil)
	}
	got, err := FindImages(pool, "L0459")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(pool, "L0459_1.png"), filepath.Join(pool, "L0459_2.png")}, got)
}

func TestInsert(t *testing.T) {
	src := report()
	out := Insert(src, "L0459", []Picture{
		{Name: "L0459_1.png", Width: 100, Height: 50},
		{Name: "L0459_2.png", Width: 100, Height: 80},
	})

	require.Len(t, src.Blocks, 2, "source is not modified")

	sections := out.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, 2, sections[0].Columns)
	assert.NotNil(t, sections[0].Footer, "report section keeps its footer")
	assert.Equal(t, 1, sections[1].Columns)
	assert.Equal(t, "nextPage", sections[1].Type)
	assert.Nil(t, sections[1].Footer, "sketch section links to the previous footer")

	// header, marker, title, (blank, picture) x2, final section
	require.Len(t, out.Blocks, 8)
	title := out.Blocks[2].(*docmodel.Paragraph)
	assert.Equal(t, "L0459素描图", title.Text())
	assert.Equal(t, "left", title.Props.Align)
	assert.True(t, title.Runs[0].Props.Bold)
	assert.Equal(t, 21, title.Runs[0].Props.Size)
	assert.Equal(t, "宋体", title.Runs[0].Props.Fonts.HAnsi)

	blank := out.Blocks[3].(*docmodel.Paragraph)
	assert.Empty(t, blank.Runs)
	pic := out.Blocks[4].(*docmodel.Paragraph)
	assert.Equal(t, "center", pic.Props.Align)
	require.Len(t, pic.Images(), 1)
	assert.Equal(t, int64(50), pic.Images()[0].Height)
}

func TestInsertFile(t *testing.T) {
	dir := t.TempDir()
	reports, pool, out := filepath.Join(dir, "reports"), filepath.Join(dir, "pool"), filepath.Join(dir, "out")
	for _, d := range []string{reports, pool, out} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	withSketch := filepath.Join(reports, "L0459_formatted.docx")
	without := filepath.Join(reports, "L0460_formatted.docx")
	require.NoError(t, docxio.WriteFile(withSketch, report()))
	require.NoError(t, docxio.WriteFile(without, report()))
	writeFile(t, filepath.Join(pool, "L0459.png"), pngBytes(t, 400, 300))
	writeFile(t, filepath.Join(pool, "L0459_x.png"), []byte("broken"))

	res, err := InsertFile(withSketch, pool, out, DefaultWidth, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "L0459_完整版.docx"), res.Path)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)

	doc, err := docxio.ReadFile(res.Path)
	require.NoError(t, err)
	var imgs []*docmodel.Image
	for _, p := range doc.Paragraphs() {
		imgs = append(imgs, p.Images()...)
	}
	require.Len(t, imgs, 1)
	assert.Equal(t, int64(6*imaging.EMUPerInch), imgs[0].Width)
	assert.Equal(t, int64(6*imaging.EMUPerInch*3/4), imgs[0].Height)

	res, err = InsertFile(without, pool, out, DefaultWidth, discardLogger())
	require.NoError(t, err)
	assert.True(t, res.Copied)
	want, _ := os.ReadFile(without)
	got, err := os.ReadFile(filepath.Join(out, "L0460_完整版.docx"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInsertFile_OnlyBrokenSketches(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "L0461_formatted.docx")
	pool, out := filepath.Join(dir, "pool"), filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, docxio.WriteFile(src, report()))
	writeFile(t, filepath.Join(pool, "L0461.png"), []byte("not a png"))

	res, err := InsertFile(src, pool, out, DefaultWidth, discardLogger())
	require.NoError(t, err)
	assert.True(t, res.Copied)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Failed)

	want, _ := os.ReadFile(src)
	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, want, got, "no empty sketch section is appended")
}
