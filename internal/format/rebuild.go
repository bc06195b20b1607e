package format

import (
	"regexp"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/doctree"
)

const (
	// BoundaryMarker is the canonical opening of a boundary description.
	BoundaryMarker = "点上界线描述："

	photoCoordinates = "照片点坐标"

	bodyFont   = "Times New Roman"
	songFont   = "宋体"
	headerFont = "黑体"

	bodySize   = 21 // 10.5pt
	headerSize = 32 // 16pt
	footerSize = 18 // 9pt

	// EMU per centimetre.
	emuPerCM = 360000
)

// Boundary marker spellings accepted in source reports, replaced in this order.
var boundaryVariants = []string{"分段路线上界线描述：", "分段路线上界线描述:", "分段路线上界线描述"}

// Paragraphs containing one of these are promoted to section headers.
var sectionHeaderKeywords = []string{BoundaryMarker, "点间路线描述：", "路线小结：", "路线自检："}

// A colon of either width and the spaces after it.
var colonRun = regexp.MustCompile(`[:：] *`)

// NormalizeColons turns every colon into a bare full-width colon, dropping
// the spaces that follow it.
func NormalizeColons(s string) string {
	return colonRun.ReplaceAllLiteralString(s, "：")
}

// Styles are the resolved heading style ids used by Rebuild.
type Styles struct {
	RouteHeader   string
	SectionHeader string
}

// Options tune the rebuild.
type Options struct {
	Columns       int   // column count of the document section
	MaxImageWidth int64 // EMU; wider inline pictures shrink proportionally
}

// DefaultOptions are the layout values of the report template.
func DefaultOptions() Options {
	return Options{Columns: 2, MaxImageWidth: 6.5 * emuPerCM}
}

// Rebuild assembles reordered chunks into a new block sequence. Paragraphs
// are cloned before they are changed, so the chunks' blocks stay untouched.
// The last section break, wherever chunking left it, closes the result.
func Rebuild(chunks []doctree.Chunk, info doctree.RouteHeaderInfo, styles Styles, opts Options) []docmodel.Block {
	var out []docmodel.Block
	var final *docmodel.SectionBreak
	firstPoint := true

	for _, c := range chunks {
		label := c.Label
		switch label {
		case doctree.SegmentBoundaryDescription:
			out = append(out, blankParagraph())
			label = doctree.BoundaryDescription
		case doctree.GeoPointNumber:
			if !firstPoint {
				out = append(out, blankParagraph())
			}
			firstPoint = false
		case doctree.InterPointRouteDescription:
			out = append(out, blankParagraph())
		}

		for i, b := range c.Blocks {
			switch v := b.(type) {
			case *docmodel.SectionBreak:
				final = &docmodel.SectionBreak{Props: v.Props.Clone()}
				continue
			case *docmodel.Paragraph:
				p := v.Clone()
				if label == doctree.BoundaryDescription && i == 0 {
					p.MapText(rewriteBoundary)
				}
				p.MapText(NormalizeColons)
				if strings.Contains(p.Text(), photoCoordinates) {
					out = append(out, blankParagraph())
				}
				setSingleSpacing(&p.Props)
				out = append(out, p)
			default:
				out = append(out, b)
			}
		}
	}

	for _, b := range out {
		if p, ok := b.(*docmodel.Paragraph); ok {
			// Runs of a raw paragraph are a read-only shadow; the encoder
			// writes RawContent, so fonts set here do not reach it.
			formatParagraph(p, styles.SectionHeader)
		}
	}

	if title, ok := info.Title(); ok {
		out = append([]docmodel.Block{routeHeader(title, styles.RouteHeader)}, out...)
	}

	for _, b := range out {
		if p, ok := b.(*docmodel.Paragraph); ok {
			shrinkImages(p, opts.MaxImageWidth)
		}
	}

	if final == nil {
		final = &docmodel.SectionBreak{}
	}
	if opts.Columns > 0 {
		final.Props.Columns = opts.Columns
	}
	final.Props.Footer = pageFooter(final.Props.Footer)
	return append(out, final)
}

func rewriteBoundary(s string) string {
	for _, v := range boundaryVariants {
		s = strings.ReplaceAll(s, v, BoundaryMarker)
	}
	return s
}

func blankParagraph() *docmodel.Paragraph {
	p := &docmodel.Paragraph{}
	setSingleSpacing(&p.Props)
	return p
}

func setSingleSpacing(props *docmodel.ParaProps) {
	props.Spacing.Line = docmodel.Int(240)
	props.Spacing.LineRule = "auto"
	props.Spacing.After = docmodel.Int(0)
}

// IsSectionHeader reports whether text names one of the report's sections.
func IsSectionHeader(text string) bool {
	text = strings.TrimSpace(text)
	for _, k := range sectionHeaderKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// formatParagraph promotes section headers and gives every other paragraph
// the body fonts.
func formatParagraph(p *docmodel.Paragraph, sectionStyle string) {
	text := strings.TrimSpace(p.Text())
	if !IsSectionHeader(text) {
		for _, r := range p.Runs {
			r.Props.Fonts.ASCII = bodyFont
			r.Props.Fonts.HAnsi = bodyFont
			r.Props.Fonts.EastAsia = songFont
			r.Props.Size = bodySize
		}
		return
	}

	if sectionStyle != "" {
		p.Props.StyleID = sectionStyle
	}
	p.Props.OutlineLevel = docmodel.Int(1)
	if len(p.Runs) == 0 && p.RawContent == nil {
		p.Runs = append(p.Runs, &docmodel.Run{Text: text})
	}
	for _, r := range p.Runs {
		r.Props.Fonts.ASCII = songFont
		r.Props.Fonts.HAnsi = songFont
		r.Props.Fonts.EastAsia = songFont
		r.Props.Bold = true
		r.Props.Size = bodySize
		r.Props.Color = "000000"
	}
}

func routeHeader(title, styleID string) *docmodel.Paragraph {
	p := docmodel.NewParagraph(title)
	p.Props = docmodel.ParaProps{
		StyleID:      styleID,
		OutlineLevel: docmodel.Int(0),
		Spacing: docmodel.Spacing{
			Before:   docmodel.Int(0),
			After:    docmodel.Int(0),
			Line:     docmodel.Int(240),
			LineRule: "auto",
		},
	}
	p.Runs[0].Props = docmodel.RunProps{
		Fonts: docmodel.Fonts{ASCII: headerFont, HAnsi: headerFont, EastAsia: headerFont},
		Bold:  true,
		Size:  headerSize,
		Color: "000000",
	}
	return p
}

func shrinkImages(p *docmodel.Paragraph, max int64) {
	if max <= 0 {
		return
	}
	for _, img := range p.Images() {
		if img.Width > max {
			img.Height = img.Height * max / img.Width
			img.Width = max
		}
	}
}

// pageFooter adds a centered page-number field to the section footer. An
// existing footer keeps its text and gains the field in its first paragraph.
func pageFooter(existing *docmodel.Footer) *docmodel.Footer {
	props := docmodel.RunProps{
		Fonts: docmodel.Fonts{ASCII: bodyFont, HAnsi: bodyFont, EastAsia: songFont},
		Size:  footerSize,
	}
	if existing == nil || len(existing.Paragraphs) == 0 {
		return docmodel.PageNumberFooter(props)
	}
	f := &docmodel.Footer{}
	for _, p := range existing.Paragraphs {
		f.Paragraphs = append(f.Paragraphs, p.Clone())
	}
	first := f.Paragraphs[0]
	first.Props.Align = "center"
	for _, r := range first.Runs {
		if r.Field == "PAGE" {
			return f
		}
	}
	first.Runs = append(first.Runs, &docmodel.Run{Field: "PAGE", Props: props})
	return f
}
