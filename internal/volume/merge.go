package volume

import (
	"encoding/xml"
	"errors"
	"log/slog"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// ErrEmptyVolume is returned when a volume has no readable route.
var ErrEmptyVolume = errors.New("volume has no routes")

const (
	coverTitleSize   = 56   // 28pt
	coverSpaceBefore = 4000 // 200pt in twips
	coverBreaks      = 3

	songFont   = "宋体"
	footerSize = 18 // 9pt
	titleSize  = 21 // 10.5pt
	black      = "000000"
)

// Page geometry carried from the first route onto the cover section.
var coverGeometry = map[string]bool{"pgSz": true, "pgMar": true}

// Options tune a merge.
type Options struct {
	CoverTitle string
	DPI        int // target image resolution; 0 leaves images untouched
}

// DefaultOptions are the values of the volume template.
func DefaultOptions() Options {
	return Options{CoverTitle: "封面", DPI: 330}
}

// Stats describes what Merge did.
type Stats struct {
	Routes         int
	Sections       int
	SketchSections int // sections set to a single column
	HeaderParas    int // heading paragraphs recoloured
	SketchTitles   int
	Images         int // images whose resolution was rewritten
	ImageFailures  int
}

// Merge assembles route documents into one volume: a cover section without
// page numbers, then every route in order, each starting on a new page, with
// numbering restarting at 1 on the first route. Merge takes ownership of docs;
// their blocks are reused in the result.
func Merge(docs []*docmodel.Document, opts Options, log *slog.Logger) (*docmodel.Document, Stats, error) {
	if len(docs) == 0 {
		return nil, Stats{}, ErrEmptyVolume
	}

	out := &docmodel.Document{
		Styles: docs[0].Styles.Clone(),
		Parts:  docs[0].Parts,
	}
	if out.Styles == nil {
		out.Styles = docmodel.NewStyleCatalog()
	}
	for i, d := range docs {
		out.Namespaces = unionNamespaces(out.Namespaces, d.Namespaces)
		if i > 0 {
			out.Styles.Merge(d.Styles)
		}
	}

	out.Blocks = coverBlocks(opts.CoverTitle, firstSection(docs[0]))
	for i, d := range docs {
		out.Blocks = append(out.Blocks, routeBlocks(d, i == 0, i == len(docs)-1)...)
	}

	st := Stats{Routes: len(docs)}
	st.SketchSections = repairColumns(out, log)
	st.HeaderParas = enforceHeaderColors(out)
	st.SketchTitles = formatSketchTitles(out)
	st.Images, st.ImageFailures = normalizeDPI(out, opts.DPI, log)
	st.Sections = len(out.Sections())
	return out, st, nil
}

// coverBlocks builds the cover section: a title page followed by three
// blank pages, closed by a section whose footer is unlinked and empty.
func coverBlocks(title string, geometry docmodel.SectionProps) []docmodel.Block {
	head := &docmodel.Paragraph{Props: docmodel.ParaProps{
		Align:   "center",
		Spacing: docmodel.Spacing{Before: docmodel.Int(coverSpaceBefore)},
	}}
	head.Runs = []*docmodel.Run{{Text: title, Props: docmodel.RunProps{Bold: true, Size: coverTitleSize}}}

	blocks := []docmodel.Block{head}
	for range coverBreaks {
		blocks = append(blocks, &docmodel.Paragraph{Props: docmodel.ParaProps{PageBreakBefore: true}})
	}

	cover := docmodel.SectionProps{Type: "nextPage", Footer: &docmodel.Footer{}}
	for _, f := range geometry.Extra {
		if coverGeometry[f.Name] {
			cover.Extra = append(cover.Extra, f)
		}
	}
	return append(blocks, &docmodel.Paragraph{Section: &cover})
}

// firstSection returns the properties of the section that opens doc.
func firstSection(doc *docmodel.Document) docmodel.SectionProps {
	if s := doc.Sections(); len(s) > 0 {
		return *s[0]
	}
	return docmodel.SectionProps{}
}

// routeBlocks returns the blocks of one route ready for concatenation. The
// route's final section becomes a marker unless the route closes the volume.
// Every section loses its own footer and numbering restart so the volume
// numbers continuously; the first section of the first route carries the
// restart and the page-number footer for all that follow.
func routeBlocks(doc *docmodel.Document, first, last bool) []docmodel.Block {
	body := doc.Blocks
	final := docmodel.SectionProps{}
	if s := doc.FinalSection(); s != nil {
		final = s.Clone()
		body = body[:len(body)-1]
	}

	opened := false
	adjust := func(props *docmodel.SectionProps) {
		props.PageStart = nil
		props.Footer = nil
		if opened {
			return
		}
		opened = true
		props.Type = "nextPage"
		if first {
			props.PageStart = docmodel.Int(1)
			props.Footer = pageNumberFooter()
		}
	}

	out := make([]docmodel.Block, 0, len(body)+1)
	for _, b := range body {
		switch v := b.(type) {
		case *docmodel.SectionBreak:
			props := v.Props.Clone()
			adjust(&props)
			out = append(out, &docmodel.Paragraph{Section: &props})
		case *docmodel.Paragraph:
			if v.Section == nil {
				out = append(out, v)
				continue
			}
			p := v.Clone()
			adjust(p.Section)
			out = append(out, p)
		default:
			out = append(out, b)
		}
	}

	adjust(&final)
	if last {
		return append(out, &docmodel.SectionBreak{Props: final})
	}
	return append(out, &docmodel.Paragraph{Section: &final})
}

func pageNumberFooter() *docmodel.Footer {
	return docmodel.PageNumberFooter(docmodel.RunProps{
		Fonts: docmodel.Fonts{ASCII: songFont, HAnsi: songFont, EastAsia: songFont},
		Size:  footerSize,
	})
}

// unionNamespaces appends the declarations of add that base lacks.
func unionNamespaces(base, add []xml.Attr) []xml.Attr {
	seen := make(map[xml.Name]bool, len(base))
	for _, a := range base {
		seen[a.Name] = true
	}
	for _, a := range add {
		if !seen[a.Name] {
			seen[a.Name] = true
			base = append(base, a)
		}
	}
	return base
}
