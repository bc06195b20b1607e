package sketch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/doctree"
	"github.com/dgallion1/routebook/internal/docxio"
	"github.com/dgallion1/routebook/internal/imaging"
)

// DefaultWidth is the laid-out width of an inserted sketch.
const DefaultWidth = 6 * imaging.EMUPerInch

// CompleteSuffix names a report after sketches were inserted (or found missing).
const CompleteSuffix = "_完整版.docx"

const (
	titleFont = "宋体"
	titleSize = 21 // 10.5pt
)

// Picture is a sketch ready for insertion, with its extent in EMU.
type Picture struct {
	Name   string
	Data   []byte
	Width  int64
	Height int64
}

// Title returns the sketch section title of a route.
func Title(route string) string {
	return route + "素描图"
}

// FindImages returns the pooled sketches of route in dir, sorted by name.
// A file belongs to a route when the first route code in its name is route.
func FindImages(dir, route string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("list sketches: %w", err)
	}
	var out []string
	for _, m := range matches {
		if _, code, ok := doctree.RouteCode(m); ok && code == route {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Insert returns doc with a new single-column section appended: a title
// paragraph, then a blank paragraph and a centered picture per sketch. The
// old final section is closed by a marker and keeps its footer; the sketch
// section links to it. doc is not modified.
func Insert(doc *docmodel.Document, route string, pics []Picture) *docmodel.Document {
	blocks := append([]docmodel.Block(nil), doc.Blocks...)
	prev := docmodel.SectionProps{}
	if s := doc.FinalSection(); s != nil {
		prev = *s
		blocks = blocks[:len(blocks)-1]
	}
	marker := prev.Clone()
	blocks = append(blocks, &docmodel.Paragraph{Section: &marker})

	title := docmodel.NewParagraph(Title(route))
	title.Props.Align = "left"
	title.Runs[0].Props = docmodel.RunProps{
		Fonts: docmodel.Fonts{ASCII: titleFont, HAnsi: titleFont, EastAsia: titleFont},
		Bold:  true,
		Size:  titleSize,
	}
	blocks = append(blocks, title)

	for _, pic := range pics {
		img := &docmodel.Paragraph{Props: docmodel.ParaProps{Align: "center"}}
		img.Runs = []*docmodel.Run{{Image: &docmodel.Image{
			Name:   pic.Name,
			Data:   pic.Data,
			Width:  pic.Width,
			Height: pic.Height,
			Descr:  pic.Name,
		}}}
		blocks = append(blocks, &docmodel.Paragraph{}, img)
	}

	sketch := prev.Clone()
	sketch.Type = "nextPage"
	sketch.Columns = 1
	sketch.PageStart = nil
	sketch.Footer = nil
	blocks = append(blocks, &docmodel.SectionBreak{Props: sketch})

	return &docmodel.Document{
		Blocks:     blocks,
		Styles:     doc.Styles,
		Parts:      doc.Parts,
		Namespaces: doc.Namespaces,
	}
}

// LoadPicture reads an image file and sizes it to width EMU.
func LoadPicture(path string, width int64) (Picture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Picture{}, fmt.Errorf("read %s: %w", path, err)
	}
	w, h, err := imaging.Extent(data, width)
	if err != nil {
		return Picture{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return Picture{Name: filepath.Base(path), Data: data, Width: w, Height: h}, nil
}

// InsertResult describes one processed report.
type InsertResult struct {
	Route    string
	Path     string
	Inserted int
	Failed   int  // sketches that could not be loaded
	Copied   bool // no loadable sketch; the report was copied unchanged
}

// InsertFile writes the complete variant of a formatted report into outDir,
// with the route's sketches from pool appended. A report without a loadable
// sketch is copied as it is.
func InsertFile(report, pool, outDir string, width int64, log *slog.Logger) (InsertResult, error) {
	_, route, ok := doctree.RouteCode(report)
	if !ok {
		return InsertResult{}, fmt.Errorf("%s: no route code in file name", filepath.Base(report))
	}
	res := InsertResult{Route: route, Path: filepath.Join(outDir, route+CompleteSuffix)}

	paths, err := FindImages(pool, route)
	if err != nil {
		return res, err
	}
	var pics []Picture
	for _, p := range paths {
		pic, err := LoadPicture(p, width)
		if err != nil {
			log.Warn("sketch skipped", "route", route, "error", err)
			res.Failed++
			continue
		}
		pics = append(pics, pic)
	}
	if len(pics) == 0 {
		res.Copied = true
		if err := CopyFile(report, res.Path); err != nil {
			return res, err
		}
		log.Info("no usable sketches, report copied", "route", route, "failed", res.Failed)
		return res, nil
	}
	res.Inserted = len(pics)

	doc, err := docxio.ReadFile(report)
	if err != nil {
		return res, err
	}

	if err := docxio.WriteFile(res.Path, Insert(doc, route, pics)); err != nil {
		return res, err
	}
	log.Info("sketches inserted", "route", route, "count", res.Inserted)
	return res, nil
}
