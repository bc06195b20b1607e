package docxio

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// Package parts carried through unchanged, by relationship type suffix.
var carriedRelTypes = []string{
	"/settings", "/fontTable", "/webSettings", "/theme", "/numbering",
	"/footnotes", "/endnotes",
}

// ReadFile loads a .docx file from disk.
func ReadFile(name string) (*docmodel.Document, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	doc, err := Decode(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return doc, nil
}

// Decode reads a .docx package. go-docx supplies the body runs, drawings,
// relationships and media; a sidecar scan of the same part supplies the
// attributes go-docx does not model.
func Decode(r io.ReaderAt, size int64) (*docmodel.Document, error) {
	f, err := docx.Parse(r, size)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	pkg := &pkgReader{zr: zr, f: f}
	if err := pkg.loadRels(); err != nil {
		return nil, err
	}
	pkg.loadContentTypes()

	docXML, err := pkg.file("word/document.xml")
	if err != nil {
		return nil, err
	}
	scan, err := scanBody(docXML)
	if err != nil {
		return nil, err
	}

	doc := &docmodel.Document{Namespaces: scan.namespaces}
	if err := pkg.buildBlocks(doc, scan); err != nil {
		return nil, err
	}

	if target := pkg.targetOfType(relStyles); target != "" {
		data, err := pkg.file(path.Join("word", target))
		if err != nil {
			return nil, err
		}
		if doc.Styles, err = parseStyles(data); err != nil {
			return nil, err
		}
	} else {
		doc.Styles = docmodel.NewStyleCatalog()
	}

	doc.Parts = pkg.carriedParts()
	return doc, nil
}

type pkgReader struct {
	zr           *zip.Reader
	f            *docx.Docx
	rels         map[string]docx.Relationship
	relOrder     []string
	contentTypes map[string]string // part name or ".ext" -> content type
	images       map[string]*docmodel.Image
}

func (p *pkgReader) file(name string) ([]byte, error) {
	for _, zf := range p.zr.File {
		if zf.Name == name {
			rc, err := zf.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("missing part %s", name)
}

func (p *pkgReader) has(name string) bool {
	for _, zf := range p.zr.File {
		if zf.Name == name {
			return true
		}
	}
	return false
}

func (p *pkgReader) loadRels() error {
	p.rels = make(map[string]docx.Relationship)
	p.images = make(map[string]*docmodel.Image)
	return p.f.RangeRelationships(func(rel *docx.Relationship) error {
		p.rels[rel.ID] = *rel
		p.relOrder = append(p.relOrder, rel.ID)
		return nil
	})
}

func (p *pkgReader) targetOfType(relType string) string {
	for _, id := range p.relOrder {
		if rel := p.rels[id]; rel.Type == relType {
			return rel.Target
		}
	}
	return ""
}

func (p *pkgReader) loadContentTypes() {
	p.contentTypes = make(map[string]string)
	data, err := p.file("[Content_Types].xml")
	if err != nil {
		return
	}
	var ct struct {
		Defaults []struct {
			Extension   string `xml:"Extension,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Default"`
		Overrides []struct {
			PartName    string `xml:"PartName,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Override"`
	}
	if xml.Unmarshal(data, &ct) != nil {
		return
	}
	for _, d := range ct.Defaults {
		p.contentTypes["."+strings.ToLower(d.Extension)] = d.ContentType
	}
	for _, o := range ct.Overrides {
		p.contentTypes[strings.TrimPrefix(o.PartName, "/")] = o.ContentType
	}
}

func (p *pkgReader) contentTypeOf(name string) string {
	if ct, ok := p.contentTypes[name]; ok {
		return ct
	}
	return p.contentTypes[strings.ToLower(path.Ext(name))]
}

// image returns the shared image for a relationship id, loading it once.
func (p *pkgReader) image(rid string) *docmodel.Image {
	if img, ok := p.images[rid]; ok {
		return img
	}
	target, err := p.f.ReferTarget(rid)
	if err != nil {
		return nil
	}
	name := path.Base(target)
	m := p.f.Media(name)
	if m == nil {
		return nil
	}
	img := &docmodel.Image{Name: m.Name, Data: m.Data}
	p.images[rid] = img
	return img
}

// refs resolves relationship ids found in opaque XML.
func (p *pkgReader) refs(ids []string) []docmodel.Ref {
	var out []docmodel.Ref
	seen := make(map[string]bool)
	for _, id := range ids {
		rel, ok := p.rels[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ref := docmodel.Ref{
			ID:       id,
			Type:     rel.Type,
			Target:   rel.Target,
			External: rel.TargetMode == docx.REL_TARGETMODE,
		}
		switch {
		case ref.External:
		case rel.Type == docx.REL_IMAGE:
			if img := p.image(id); img != nil {
				ref.Image = img
			}
		default:
			name := path.Join("word", rel.Target)
			if data, err := p.file(name); err == nil {
				ref.Data = data
				ref.ContentType = p.contentTypeOf(name)
			}
		}
		out = append(out, ref)
	}
	return out
}

func (p *pkgReader) buildBlocks(doc *docmodel.Document, scan *bodyScan) error {
	items := p.f.Document.Body.Items
	if len(items) != len(scan.items) {
		return fmt.Errorf("body scan found %d elements, parser found %d", len(scan.items), len(items))
	}
	for i, item := range items {
		si := scan.items[i]
		switch v := item.(type) {
		case *docx.Paragraph:
			if si.kind != itemParagraph {
				return fmt.Errorf("body element %d: expected paragraph", i)
			}
			para, err := p.paragraph(v, si.para)
			if err != nil {
				return fmt.Errorf("body element %d: %w", i, err)
			}
			doc.Blocks = append(doc.Blocks, para)
		case *docx.Table:
			if si.kind != itemTable {
				return fmt.Errorf("body element %d: expected table", i)
			}
			doc.Blocks = append(doc.Blocks, &docmodel.Table{XML: si.table.raw, Refs: p.refs(si.table.ids)})
		case *docx.SectPr:
			if si.kind != itemSection {
				return fmt.Errorf("body element %d: expected section properties", i)
			}
			props, err := p.section(si.sect)
			if err != nil {
				return err
			}
			doc.Blocks = append(doc.Blocks, &docmodel.SectionBreak{Props: props})
		}
	}
	return nil
}

func (p *pkgReader) paragraph(src *docx.Paragraph, ps *paraScan) (*docmodel.Paragraph, error) {
	para := &docmodel.Paragraph{
		Props: docmodel.ParaProps{
			OutlineLevel:    ps.outline,
			KeepNext:        ps.keepNext,
			PageBreakBefore: ps.pageBreakBefore,
			Spacing:         ps.spacing,
			Extra:           ps.extra,
		},
		HasPicture: ps.picture,
	}
	if pp := src.Properties; pp != nil {
		if pp.Style != nil {
			para.Props.StyleID = pp.Style.Val
		}
		if pp.Justification != nil {
			para.Props.Align = pp.Justification.Val
		}
	}
	if ps.section != nil {
		props, err := p.section(ps.section)
		if err != nil {
			return nil, err
		}
		para.Section = &props
	}

	runIdx := 0
	for _, child := range src.Children {
		switch c := child.(type) {
		case *docx.Run:
			var rs runScan
			if runIdx < len(ps.runs) {
				rs = ps.runs[runIdx]
			}
			runIdx++
			para.Runs = append(para.Runs, p.runs(c, rs)...)
		case *docx.Hyperlink:
			// Hyperlinks force raw mode; the run only feeds text matching.
			para.Runs = append(para.Runs, p.runs(&c.Run, runScan{})...)
		}
	}

	if ps.raw {
		para.RawContent = ps.content
		para.Refs = p.refs(ps.ids)
	}
	return para, nil
}

// runs converts one go-docx run into model runs: text, tabs and breaks
// accumulate into a text run, each drawing becomes its own image run.
func (p *pkgReader) runs(src *docx.Run, rs runScan) []*docmodel.Run {
	props := runProps(src.RunProperties, rs)
	var out []*docmodel.Run
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, &docmodel.Run{Text: text.String(), Props: props})
			text.Reset()
		}
	}
	for _, child := range src.Children {
		switch c := child.(type) {
		case *docx.Text:
			text.WriteString(c.Text)
		case *docx.Tab:
			text.WriteByte('\t')
		case *docx.BarterRabbet:
			switch c.Type {
			case "page":
				text.WriteByte('\f')
			case "column":
				text.WriteByte('\v')
			default:
				text.WriteByte('\n')
			}
		case *docx.Drawing:
			img := p.drawingImage(c)
			if img == nil {
				continue
			}
			flush()
			out = append(out, &docmodel.Run{Props: props, Image: img})
		}
	}
	flush()
	if len(out) == 0 && len(src.Children) == 0 {
		// An empty run still carries formatting that later passes may rely on.
		out = append(out, &docmodel.Run{Props: props})
	}
	return out
}

// drawingImage resolves an inline picture to its media payload and extent.
func (p *pkgReader) drawingImage(d *docx.Drawing) *docmodel.Image {
	in := d.Inline
	if in == nil || in.Graphic == nil || in.Graphic.GraphicData == nil {
		return nil
	}
	pic := in.Graphic.GraphicData.Pic
	if pic == nil || pic.BlipFill == nil {
		return nil
	}
	shared := p.image(pic.BlipFill.Blip.Embed)
	if shared == nil {
		return nil
	}
	// Extents are per placement; the payload is shared.
	img := &docmodel.Image{Name: shared.Name, Data: shared.Data}
	if in.Extent != nil {
		img.Width, img.Height = in.Extent.CX, in.Extent.CY
	}
	if in.DocPr != nil {
		img.Descr = in.DocPr.Name
	}
	return img
}

func runProps(rp *docx.RunProperties, rs runScan) docmodel.RunProps {
	out := docmodel.RunProps{
		FontAttrs: rs.themes,
		Extra:     rs.extra,
	}
	out.Fonts.CS = rs.cs
	if rp == nil {
		return out
	}
	if rp.Fonts != nil {
		out.Fonts.ASCII = rp.Fonts.ASCII
		out.Fonts.HAnsi = rp.Fonts.HAnsi
		out.Fonts.EastAsia = rp.Fonts.EastAsia
		if rp.Fonts.Hint != "" {
			out.FontAttrs = append(out.FontAttrs, xml.Attr{Name: xml.Name{Space: nsW, Local: "hint"}, Value: rp.Fonts.Hint})
		}
	}
	out.Bold = rp.Bold != nil
	out.Italic = rp.Italic != nil
	if rp.Strike != nil {
		out.Strike = rp.Strike.Val == "" || rp.Strike.Val == "1" || rp.Strike.Val == "true"
	}
	if rp.Color != nil {
		out.Color = rp.Color.Val
	}
	if rp.Size != nil {
		if n, err := strconv.Atoi(rp.Size.Val); err == nil {
			out.Size = n
		}
	}
	if rp.Highlight != nil {
		out.Highlight = rp.Highlight.Val
	}
	if rp.Underline != nil {
		out.Underline = rp.Underline.Val
	}
	if rp.VertAlign != nil {
		out.VertAlign = rp.VertAlign.Val
	}
	if rp.RunStyle != nil {
		out.StyleID = rp.RunStyle.Val
	}
	return out
}

func (p *pkgReader) section(ss *sectScan) (docmodel.SectionProps, error) {
	props := ss.props
	if ss.footerRID == "" {
		return props, nil
	}
	rel, ok := p.rels[ss.footerRID]
	if !ok {
		return props, nil
	}
	data, err := p.file(path.Join("word", rel.Target))
	if err != nil {
		return props, err
	}
	footer, err := parseFooter(data)
	if err != nil {
		return props, fmt.Errorf("footer %s: %w", rel.Target, err)
	}
	props.Footer = footer
	return props, nil
}

func (p *pkgReader) carriedParts() []docmodel.Part {
	var out []docmodel.Part
	for _, id := range p.relOrder {
		rel := p.rels[id]
		if rel.TargetMode == docx.REL_TARGETMODE || !carried(rel.Type) {
			continue
		}
		name := path.Join("word", rel.Target)
		data, err := p.file(name)
		if err != nil {
			continue
		}
		part := docmodel.Part{
			Name:        name,
			RelType:     rel.Type,
			ContentType: p.contentTypeOf(name),
			Data:        data,
		}
		relsName := path.Join(path.Dir(name), "_rels", path.Base(name)+".rels")
		if p.has(relsName) {
			if data, err := p.file(relsName); err == nil && externalOnly(data) {
				part.Rels = data
			}
		}
		out = append(out, part)
	}
	return out
}

func carried(relType string) bool {
	for _, suffix := range carriedRelTypes {
		if strings.HasSuffix(relType, suffix) {
			return true
		}
	}
	return false
}

// externalOnly reports whether a relationships file points only outside the
// package. Internal targets of carried parts are not copied, so their
// relationship files would dangle.
func externalOnly(data []byte) bool {
	var rels struct {
		Items []struct {
			TargetMode string `xml:"TargetMode,attr"`
		} `xml:"Relationship"`
	}
	if xml.Unmarshal(data, &rels) != nil {
		return false
	}
	for _, r := range rels.Items {
		if r.TargetMode != "External" {
			return false
		}
	}
	return true
}
