package docxio

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
)

const (
	ctMain     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	ctStyles   = "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"
	ctFooter   = "application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"
	ctRels     = "application/vnd.openxmlformats-package.relationships+xml"
	ctBinary   = "application/octet-stream"
	nsPkgRels  = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsPkgTypes = "http://schemas.openxmlformats.org/package/2006/content-types"
)

var imageContentTypes = map[string]string{
	".png":  "image/png",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".emf":  "image/x-emf",
	".wmf":  "image/x-wmf",
	".svg":  "image/svg+xml",
}

// WriteFile encodes doc to name. The package is written to a temporary file
// in the same directory and renamed into place, so a failed write never
// leaves a partial document behind.
func WriteFile(name string, doc *docmodel.Document) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, ".routebook-*.docx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Encode(tmp, doc); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("rename to %s: %w", name, err)
	}
	return nil
}

// Encode writes doc as a .docx package.
func Encode(w io.Writer, doc *docmodel.Document) error {
	pw := &pkgWriter{
		zw:        zip.NewWriter(w),
		media:     make(map[*docmodel.Image]string),
		defaults:  map[string]string{"rels": ctRels, "xml": "application/xml"},
		overrides: make(map[string]string),
	}
	if err := pw.writeDocument(doc); err != nil {
		pw.zw.Close()
		return err
	}
	if err := pw.writeContentTypes(); err != nil {
		pw.zw.Close()
		return err
	}
	return pw.zw.Close()
}

type relation struct {
	ID       string
	Type     string
	Target   string
	External bool
}

// relSet is the relationships file of one part.
type relSet struct {
	items  []relation
	images map[*docmodel.Image]string
}

func newRelSet() *relSet {
	return &relSet{images: make(map[*docmodel.Image]string)}
}

func (rs *relSet) add(typ, target string, external bool) string {
	id := fmt.Sprintf("rId%d", len(rs.items)+1)
	rs.items = append(rs.items, relation{ID: id, Type: typ, Target: target, External: external})
	return id
}

func (rs *relSet) encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<Relationships xmlns="%s">`, nsPkgRels)
	for _, r := range rs.items {
		fmt.Fprintf(&buf, `<Relationship Id="%s" Type="%s" Target="%s"`, r.ID, escape(r.Type), escape(r.Target))
		if r.External {
			buf.WriteString(` TargetMode="External"`)
		}
		buf.WriteString("/>")
	}
	buf.WriteString("</Relationships>")
	return buf.Bytes()
}

type pkgWriter struct {
	zw        *zip.Writer
	media     map[*docmodel.Image]string // image -> target under word/
	defaults  map[string]string          // extension -> content type
	overrides map[string]string          // part name -> content type
	footers   int
	objects   int
	drawingID int
	rPrefixes map[string]bool
}

func (pw *pkgWriter) put(name string, data []byte) error {
	f, err := pw.zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (pw *pkgWriter) writeDocument(doc *docmodel.Document) error {
	ns := unionNamespaces(doc.Namespaces, defaultNamespaces)
	pw.rPrefixes = map[string]bool{}
	for _, a := range ns {
		if a.Name.Space == "xmlns" && a.Value == nsR {
			pw.rPrefixes[a.Name.Local] = true
		}
	}

	rels := newRelSet()
	styles := doc.Styles
	if styles == nil {
		styles = docmodel.NewStyleCatalog()
	}
	rels.add(relStyles, "styles.xml", false)
	if err := pw.put("word/styles.xml", encodeStyles(styles)); err != nil {
		return err
	}
	pw.overrides["/word/styles.xml"] = ctStyles

	for _, part := range doc.Parts {
		if err := pw.put(part.Name, part.Data); err != nil {
			return err
		}
		if len(part.Rels) > 0 {
			relsName := path.Join(path.Dir(part.Name), "_rels", path.Base(part.Name)+".rels")
			if err := pw.put(relsName, part.Rels); err != nil {
				return err
			}
		}
		if part.ContentType != "" {
			pw.overrides["/"+part.Name] = part.ContentType
		}
		rels.add(part.RelType, strings.TrimPrefix(part.Name, "word/"), false)
	}

	var body bytes.Buffer
	body.WriteString(xml.Header)
	fmt.Fprintf(&body, "<w:document%s><w:body>", renderNamespaces(ns))
	for i, b := range doc.Blocks {
		var err error
		switch v := b.(type) {
		case *docmodel.Paragraph:
			err = pw.writeParagraph(&body, v, rels)
		case *docmodel.Table:
			var data []byte
			data, err = pw.remap(v.XML, v.Refs, rels)
			body.Write(data)
		case *docmodel.SectionBreak:
			var sect []byte
			sect, err = pw.encodeSectPr(v.Props, rels)
			if err != nil {
				break
			}
			if i == len(doc.Blocks)-1 {
				body.Write(sect)
			} else {
				fmt.Fprintf(&body, "<w:p><w:pPr>%s</w:pPr></w:p>", sect)
			}
		}
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	body.WriteString("</w:body></w:document>")

	if err := pw.put("word/document.xml", body.Bytes()); err != nil {
		return err
	}
	pw.overrides["/word/document.xml"] = ctMain
	if err := pw.put("word/_rels/document.xml.rels", rels.encode()); err != nil {
		return err
	}

	root := newRelSet()
	root.add(relOfficeDoc, "word/document.xml", false)
	return pw.put("_rels/.rels", root.encode())
}

func (pw *pkgWriter) writeParagraph(buf *bytes.Buffer, p *docmodel.Paragraph, rels *relSet) error {
	var sect []byte
	if p.Section != nil {
		var err error
		if sect, err = pw.encodeSectPr(*p.Section, rels); err != nil {
			return err
		}
	}
	buf.WriteString("<w:p>")
	buf.Write(encodePPr(p.Props, sect))
	if p.RawContent != nil {
		data, err := pw.remap(p.RawContent, p.Refs, rels)
		if err != nil {
			return err
		}
		buf.Write(data)
	} else {
		for _, r := range p.Runs {
			if err := pw.writeRun(buf, r, rels); err != nil {
				return err
			}
		}
	}
	buf.WriteString("</w:p>")
	return nil
}

func (pw *pkgWriter) writeRun(buf *bytes.Buffer, r *docmodel.Run, rels *relSet) error {
	rpr := encodeRPr(r.Props)
	switch {
	case r.Field != "":
		for _, inner := range []string{
			`<w:fldChar w:fldCharType="begin"/>`,
			fmt.Sprintf(`<w:instrText xml:space="preserve"> %s </w:instrText>`, escape(r.Field)),
			`<w:fldChar w:fldCharType="separate"/>`,
			`<w:t>1</w:t>`,
			`<w:fldChar w:fldCharType="end"/>`,
		} {
			fmt.Fprintf(buf, "<w:r>%s%s</w:r>", rpr, inner)
		}
		return nil
	case r.Image != nil:
		if rels == nil {
			return nil
		}
		rid, err := pw.imageRel(r.Image, rels)
		if err != nil {
			return err
		}
		pw.drawingID++
		fmt.Fprintf(buf, "<w:r>%s%s</w:r>", rpr, inlineDrawing(r.Image, rid, pw.drawingID))
		return nil
	}
	buf.WriteString("<w:r>")
	buf.Write(rpr)
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			fmt.Fprintf(buf, `<w:t xml:space="preserve">%s</w:t>`, escape(text.String()))
			text.Reset()
		}
	}
	for _, c := range r.Text {
		switch c {
		case '\t':
			flush()
			buf.WriteString("<w:tab/>")
		case '\n':
			flush()
			buf.WriteString("<w:br/>")
		case '\f':
			flush()
			buf.WriteString(`<w:br w:type="page"/>`)
		case '\v':
			flush()
			buf.WriteString(`<w:br w:type="column"/>`)
		default:
			text.WriteRune(c)
		}
	}
	flush()
	buf.WriteString("</w:r>")
	return nil
}

func inlineDrawing(img *docmodel.Image, rid string, id int) string {
	name := img.Descr
	if name == "" {
		name = fmt.Sprintf("Picture %d", id)
	}
	name = escape(name)
	return fmt.Sprintf(`<w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:effectExtent l="0" t="0" r="0" b="0"/>`+
		`<wp:docPr id="%d" name="%s"/>`+
		`<wp:cNvGraphicFramePr><a:graphicFrameLocks noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
		`<a:graphic><a:graphicData uri="%s"><pic:pic>`+
		`<pic:nvPicPr><pic:cNvPr id="0" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing>`,
		img.Width, img.Height, id, name, nsPic, name, rid, img.Width, img.Height)
}

// imageRel returns the relationship id of img in rels, writing the media
// payload the first time the image is seen anywhere in the package.
func (pw *pkgWriter) imageRel(img *docmodel.Image, rels *relSet) (string, error) {
	if id, ok := rels.images[img]; ok {
		return id, nil
	}
	target, ok := pw.media[img]
	if !ok {
		ext := strings.ToLower(path.Ext(img.Name))
		if _, known := imageContentTypes[ext]; !known {
			ext = sniffImageExt(img.Data)
		}
		target = fmt.Sprintf("media/image%d%s", len(pw.media)+1, ext)
		if err := pw.put("word/"+target, img.Data); err != nil {
			return "", err
		}
		pw.media[img] = target
		pw.defaults[strings.TrimPrefix(ext, ".")] = imageContentTypes[ext]
	}
	id := rels.add(relImage, target, false)
	rels.images[img] = id
	return id, nil
}

func sniffImageExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpeg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return ".gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return ".bmp"
	}
	return ".png"
}

var prefixedAttr = regexp.MustCompile(`\s([A-Za-z_][\w.-]*):([A-Za-z]+)="([^"]*)"`)

// remap re-homes the relationships of an opaque fragment into rels and
// rewrites the ids it uses. Only attributes in the relationships namespace
// whose value is a known id are touched.
func (pw *pkgWriter) remap(data []byte, refs []docmodel.Ref, rels *relSet) ([]byte, error) {
	if len(refs) == 0 {
		return data, nil
	}
	ids := make(map[string]string, len(refs))
	for _, ref := range refs {
		id, err := pw.rehome(ref, rels)
		if err != nil {
			return nil, err
		}
		ids[ref.ID] = id
	}
	var out bytes.Buffer
	last := 0
	for _, m := range prefixedAttr.FindAllSubmatchIndex(data, -1) {
		prefix := string(data[m[2]:m[3]])
		value := string(data[m[6]:m[7]])
		newID, ok := ids[value]
		if !pw.rPrefixes[prefix] || !ok {
			continue
		}
		out.Write(data[last:m[6]])
		out.WriteString(newID)
		last = m[7]
	}
	out.Write(data[last:])
	return out.Bytes(), nil
}

func (pw *pkgWriter) rehome(ref docmodel.Ref, rels *relSet) (string, error) {
	switch {
	case ref.External:
		return rels.add(ref.Type, ref.Target, true), nil
	case ref.Image != nil:
		return pw.imageRel(ref.Image, rels)
	case ref.Data != nil:
		pw.objects++
		dir := path.Dir(ref.Target)
		if dir == "." {
			dir = "embeddings"
		}
		target := fmt.Sprintf("%s/object%d%s", dir, pw.objects, path.Ext(ref.Target))
		if err := pw.put("word/"+target, ref.Data); err != nil {
			return "", err
		}
		ct := ref.ContentType
		if ct == "" {
			ct = ctBinary
		}
		pw.overrides["/word/"+target] = ct
		return rels.add(ref.Type, target, false), nil
	}
	return rels.add(ref.Type, ref.Target, false), nil
}

func (pw *pkgWriter) encodeSectPr(props docmodel.SectionProps, rels *relSet) ([]byte, error) {
	var frags []docmodel.Fragment
	if props.Footer != nil {
		id, err := pw.writeFooter(props.Footer, rels)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag("footerReference", `<w:footerReference w:type="default" r:id="%s"/>`, id))
	}
	if props.Type != "" {
		frags = append(frags, frag("type", `<w:type w:val="%s"/>`, escape(props.Type)))
	}
	if props.PageStart != nil {
		frags = append(frags, frag("pgNumType", `<w:pgNumType w:start="%d"/>`, *props.PageStart))
	}
	if props.Columns > 0 || props.ColumnSpace > 0 {
		var attrs string
		if props.ColumnSpace > 0 {
			attrs += fmt.Sprintf(` w:space="%d"`, props.ColumnSpace)
		}
		if props.Columns > 0 {
			attrs += fmt.Sprintf(` w:num="%d"`, props.Columns)
		}
		frags = append(frags, frag("cols", `<w:cols%s/>`, attrs))
	}
	frags = mergeExtras(frags, props.Extra)
	var buf bytes.Buffer
	buf.WriteString("<w:sectPr>")
	buf.Write(joinFragments(orderFragments(frags, sectPrOrder)))
	buf.WriteString("</w:sectPr>")
	return buf.Bytes(), nil
}

func (pw *pkgWriter) writeFooter(f *docmodel.Footer, rels *relSet) (string, error) {
	pw.footers++
	name := fmt.Sprintf("footer%d.xml", pw.footers)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, "<w:ftr%s>", renderNamespaces(defaultNamespaces))
	if len(f.Paragraphs) == 0 {
		buf.WriteString("<w:p/>")
	}
	for _, p := range f.Paragraphs {
		buf.WriteString("<w:p>")
		buf.Write(encodePPr(p.Props, nil))
		for _, r := range p.Runs {
			// Footer pictures are not carried.
			if err := pw.writeRun(&buf, r, nil); err != nil {
				return "", err
			}
		}
		buf.WriteString("</w:p>")
	}
	buf.WriteString("</w:ftr>")

	if err := pw.put("word/"+name, buf.Bytes()); err != nil {
		return "", err
	}
	pw.overrides["/word/"+name] = ctFooter
	return rels.add(relFooter, name, false), nil
}

func (pw *pkgWriter) writeContentTypes() error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<Types xmlns="%s">`, nsPkgTypes)
	for _, ext := range sortedKeys(pw.defaults) {
		fmt.Fprintf(&buf, `<Default Extension="%s" ContentType="%s"/>`, escape(ext), escape(pw.defaults[ext]))
	}
	for _, name := range sortedKeys(pw.overrides) {
		fmt.Fprintf(&buf, `<Override PartName="%s" ContentType="%s"/>`, escape(name), escape(pw.overrides[name]))
	}
	buf.WriteString("</Types>")
	return pw.put("[Content_Types].xml", buf.Bytes())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodePPr serializes paragraph properties, with sect as the paragraph's
// section properties if it closes a section. It returns nil when empty.
func encodePPr(p docmodel.ParaProps, sect []byte) []byte {
	var frags []docmodel.Fragment
	if p.StyleID != "" {
		frags = append(frags, frag("pStyle", `<w:pStyle w:val="%s"/>`, escape(p.StyleID)))
	}
	if p.KeepNext {
		frags = append(frags, frag("keepNext", `<w:keepNext/>`))
	}
	if p.PageBreakBefore {
		frags = append(frags, frag("pageBreakBefore", `<w:pageBreakBefore/>`))
	}
	if sp := encodeSpacing(p.Spacing); sp != "" {
		frags = append(frags, frag("spacing", "%s", sp))
	}
	if p.Align != "" {
		frags = append(frags, frag("jc", `<w:jc w:val="%s"/>`, escape(p.Align)))
	}
	if p.OutlineLevel != nil {
		frags = append(frags, frag("outlineLvl", `<w:outlineLvl w:val="%d"/>`, *p.OutlineLevel))
	}
	if len(sect) > 0 {
		frags = append(frags, docmodel.Fragment{Name: "sectPr", XML: sect})
	}
	frags = mergeExtras(frags, p.Extra)
	if len(frags) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString("<w:pPr>")
	buf.Write(joinFragments(orderFragments(frags, pPrOrder)))
	buf.WriteString("</w:pPr>")
	return buf.Bytes()
}

func encodeSpacing(s docmodel.Spacing) string {
	var attrs string
	if s.Before != nil {
		attrs += fmt.Sprintf(` w:before="%d"`, *s.Before)
	}
	if s.After != nil {
		attrs += fmt.Sprintf(` w:after="%d"`, *s.After)
	}
	if s.Line != nil {
		attrs += fmt.Sprintf(` w:line="%d"`, *s.Line)
	}
	if s.LineRule != "" {
		attrs += fmt.Sprintf(` w:lineRule="%s"`, escape(s.LineRule))
	}
	if attrs == "" {
		return ""
	}
	return "<w:spacing" + attrs + "/>"
}

// Theme attribute that an explicit font in the same slot overrides.
var themeSlot = map[string]func(docmodel.Fonts) string{
	"asciiTheme":    func(f docmodel.Fonts) string { return f.ASCII },
	"hAnsiTheme":    func(f docmodel.Fonts) string { return f.HAnsi },
	"eastAsiaTheme": func(f docmodel.Fonts) string { return f.EastAsia },
	"cstheme":       func(f docmodel.Fonts) string { return f.CS },
}

// encodeRPr serializes run properties; it returns nil when empty.
func encodeRPr(r docmodel.RunProps) []byte {
	var frags []docmodel.Fragment
	if r.StyleID != "" {
		frags = append(frags, frag("rStyle", `<w:rStyle w:val="%s"/>`, escape(r.StyleID)))
	}
	if fonts := encodeFonts(r.Fonts, r.FontAttrs); fonts != "" {
		frags = append(frags, frag("rFonts", "%s", fonts))
	}
	if r.Bold {
		frags = append(frags, frag("b", `<w:b/>`))
	}
	if r.Italic {
		frags = append(frags, frag("i", `<w:i/>`))
	}
	if r.Strike {
		frags = append(frags, frag("strike", `<w:strike/>`))
	}
	if r.Color != "" {
		frags = append(frags, frag("color", `<w:color w:val="%s"/>`, escape(r.Color)))
	}
	if r.Size > 0 {
		frags = append(frags,
			frag("sz", `<w:sz w:val="%d"/>`, r.Size),
			frag("szCs", `<w:szCs w:val="%d"/>`, r.Size))
	}
	if r.Highlight != "" {
		frags = append(frags, frag("highlight", `<w:highlight w:val="%s"/>`, escape(r.Highlight)))
	}
	if r.Underline != "" {
		frags = append(frags, frag("u", `<w:u w:val="%s"/>`, escape(r.Underline)))
	}
	if r.VertAlign != "" {
		frags = append(frags, frag("vertAlign", `<w:vertAlign w:val="%s"/>`, escape(r.VertAlign)))
	}
	frags = mergeExtras(frags, r.Extra)
	if len(frags) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString("<w:rPr>")
	buf.Write(joinFragments(orderFragments(frags, rPrOrder)))
	buf.WriteString("</w:rPr>")
	return buf.Bytes()
}

func encodeFonts(f docmodel.Fonts, extra []xml.Attr) string {
	var attrs string
	for _, slot := range []struct{ name, val string }{
		{"ascii", f.ASCII}, {"hAnsi", f.HAnsi}, {"eastAsia", f.EastAsia}, {"cs", f.CS},
	} {
		if slot.val != "" {
			attrs += fmt.Sprintf(` w:%s="%s"`, slot.name, escape(slot.val))
		}
	}
	for _, a := range extra {
		if explicit, ok := themeSlot[a.Name.Local]; ok && explicit(f) != "" {
			continue
		}
		attrs += fmt.Sprintf(` w:%s="%s"`, a.Name.Local, escape(a.Value))
	}
	if attrs == "" {
		return ""
	}
	return "<w:rFonts" + attrs + "/>"
}
