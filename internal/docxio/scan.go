package docxio

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// The sidecar scan walks word/document.xml alongside go-docx and recovers
// what its body model drops: section properties attached to paragraphs,
// outline levels, keep/page-break flags, the complex-script font slot and
// the raw XML of tables and of paragraphs the run model cannot express.

type itemKind int

const (
	itemParagraph itemKind = iota
	itemTable
	itemSection
)

type bodyScan struct {
	namespaces []xml.Attr
	items      []itemScan
}

type itemScan struct {
	kind  itemKind
	para  *paraScan
	table *tableScan
	sect  *sectScan
}

type tableScan struct {
	raw []byte
	ids []string
}

type sectScan struct {
	props     docmodel.SectionProps
	footerRID string
}

type runScan struct {
	cs     string
	themes []xml.Attr
	extra  []docmodel.Fragment
}

type paraScan struct {
	outline         *int
	keepNext        bool
	pageBreakBefore bool
	spacing         docmodel.Spacing
	extra           []docmodel.Fragment
	section         *sectScan
	runs            []runScan

	raw bool // content cannot be expressed as plain runs
	// content is the paragraph's children other than w:pPr, kept for raw paragraphs.
	content []byte
	ids     []string
	picture bool
}

// Paragraph children the run model represents (or may drop) without loss.
var plainParaChildren = map[string]bool{
	"pPr": true, "r": true, "bookmarkStart": true, "bookmarkEnd": true,
	"proofErr": true, "permStart": true, "permEnd": true,
}

// Run children the run model represents.
var plainRunChildren = map[string]bool{
	"rPr": true, "t": true, "tab": true, "br": true, "cr": true, "drawing": true,
	"lastRenderedPageBreak": true, "softHyphen": true, "noBreakHyphen": true,
}

// rPr children mapped onto RunProps fields by the reader.
var modeledRPr = map[string]bool{
	"rStyle": true, "rFonts": true, "b": true, "i": true, "color": true, "sz": true,
	"highlight": true, "u": true, "vertAlign": true, "strike": true,
}

// spacingOf reads the line and paragraph spacing attributes the model keeps.
func spacingOf(t xml.StartElement) docmodel.Spacing {
	return docmodel.Spacing{
		Before:   atoiPtr(attr(t, "before")),
		After:    atoiPtr(attr(t, "after")),
		Line:     atoiPtr(attr(t, "line")),
		LineRule: attr(t, "lineRule"),
	}
}

// pPr children taken from go-docx or from the sidecar flags.
var modeledPPr = map[string]bool{
	"pStyle": true, "spacing": true, "jc": true, "keepNext": true,
	"pageBreakBefore": true, "outlineLvl": true, "sectPr": true,
}

// scanBody walks the document part and returns one entry per top-level
// p, tbl and sectPr in body order, the same elements go-docx keeps.
func scanBody(data []byte) (*bodyScan, error) {
	c := newRawCapture(data)
	out := &bodyScan{}
	inBody := false
	for {
		tok, off, err := c.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "document":
				out.namespaces = append([]xml.Attr(nil), t.Attr...)
			case t.Name.Local == "body":
				inBody = true
			case !inBody:
				if err := c.skip(); err != nil {
					return nil, err
				}
			case t.Name.Local == "p":
				raw, ids, err := c.element(t, off)
				if err != nil {
					return nil, err
				}
				ps, err := analyzeParagraph(raw, ids, out.namespaces)
				if err != nil {
					return nil, err
				}
				out.items = append(out.items, itemScan{kind: itemParagraph, para: ps})
			case t.Name.Local == "tbl":
				raw, ids, err := c.element(t, off)
				if err != nil {
					return nil, err
				}
				out.items = append(out.items, itemScan{kind: itemTable, table: &tableScan{raw: raw, ids: ids}})
			case t.Name.Local == "sectPr":
				ss, err := parseSectPr(c, t)
				if err != nil {
					return nil, err
				}
				out.items = append(out.items, itemScan{kind: itemSection, sect: ss})
			default:
				if err := c.skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "body" {
				inBody = false
			}
		}
	}
	return out, nil
}

// wrap re-opens a captured fragment under the root namespace declarations so
// prefixes resolve the same way they did in the whole part.
func wrap(raw []byte, namespaces []xml.Attr) ([]byte, int) {
	head := "<wrap" + renderNamespaces(namespaces) + ">"
	buf := make([]byte, 0, len(head)+len(raw)+7)
	buf = append(buf, head...)
	buf = append(buf, raw...)
	buf = append(buf, "</wrap>"...)
	return buf, len(head)
}

func analyzeParagraph(raw []byte, ids []string, namespaces []xml.Attr) (*paraScan, error) {
	data, _ := wrap(raw, namespaces)
	c := newRawCapture(data)
	ps := &paraScan{ids: ids}
	var contentStart, contentEnd int64 = -1, -1
	depth := 0
	for {
		tok, off, err := c.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 3 {
				// depth 1 is the wrapper, depth 2 the w:p itself.
				continue
			}
			name := t.Name.Local
			if name == "pPr" {
				if err := ps.readPPr(c); err != nil {
					return nil, err
				}
				depth--
				continue
			}
			if contentStart < 0 {
				contentStart = off
			}
			if !plainParaChildren[name] {
				ps.raw = true
				if name == "pict" || name == "object" {
					ps.picture = true
				}
			}
			if name == "r" {
				rs, err := ps.readRun(c)
				if err != nil {
					return nil, err
				}
				ps.runs = append(ps.runs, rs)
			} else if err := c.skip(); err != nil {
				return nil, err
			}
			depth--
			contentEnd = c.dec.InputOffset()
		case xml.EndElement:
			depth--
		}
	}
	if ps.raw && contentStart >= 0 {
		ps.content = append([]byte(nil), data[contentStart:contentEnd]...)
	}
	return ps, nil
}

func (ps *paraScan) readPPr(c *rawCapture) error {
	for {
		tok, off, err := c.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "keepNext":
				ps.keepNext = onOff(t)
				err = c.skip()
			case "pageBreakBefore":
				ps.pageBreakBefore = onOff(t)
				err = c.skip()
			case "outlineLvl":
				ps.outline = atoiPtr(attr(t, "val"))
				err = c.skip()
			case "spacing":
				ps.spacing = spacingOf(t)
				err = c.skip()
			case "sectPr":
				ps.section, err = parseSectPr(c, t)
			default:
				if modeledPPr[t.Name.Local] {
					err = c.skip()
					break
				}
				var raw []byte
				raw, _, err = c.element(t, off)
				ps.extra = append(ps.extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
			}
			if err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (ps *paraScan) readRun(c *rawCapture) (runScan, error) {
	var rs runScan
	for {
		tok, _, err := c.next()
		if err != nil {
			return rs, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "rPr":
				err = readRPrExtras(c, &rs)
			case name == "drawing":
				ok, err2 := plainDrawing(c)
				if !ok {
					ps.raw = true
				}
				err = err2
			case name == "fldChar" || name == "instrText":
				ps.raw = true
				err = c.skip()
			default:
				if !plainRunChildren[name] {
					ps.raw = true
					if name == "pict" || name == "object" {
						ps.picture = true
					}
				}
				err = c.skip()
			}
			if err != nil {
				return rs, err
			}
		case xml.EndElement:
			return rs, nil
		}
	}
}

func readRPrExtras(c *rawCapture, rs *runScan) error {
	for {
		tok, off, err := c.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "rFonts" {
				rs.cs = attr(t, "cs")
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "asciiTheme", "hAnsiTheme", "eastAsiaTheme", "cstheme":
						rs.themes = append(rs.themes, a)
					}
				}
				err = c.skip()
			} else if modeledRPr[t.Name.Local] {
				err = c.skip()
			} else {
				var raw []byte
				raw, _, err = c.element(t, off)
				rs.extra = append(rs.extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
			}
			if err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// plainDrawing reports whether a w:drawing is an inline picture.
func plainDrawing(c *rawCapture) (bool, error) {
	inline, picture := false, false
	depth := 1
	for depth > 0 {
		tok, err := c.dec.Token()
		if err != nil {
			return false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "inline":
				inline = true
			case "graphicData":
				picture = attr(t, "uri") == nsPic
			}
		case xml.EndElement:
			depth--
		}
	}
	return inline && picture, nil
}

// parseSectPr reads the children of a w:sectPr whose start tag was just consumed.
func parseSectPr(c *rawCapture, start xml.StartElement) (*sectScan, error) {
	ss := &sectScan{}
	for {
		tok, off, err := c.next()
		if err != nil {
			return nil, fmt.Errorf("scan sectPr: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "footerReference":
				if typ := attr(t, "type"); typ == "" || typ == "default" {
					ss.footerRID = attrNS(t, nsR, "id")
				}
				err = c.skip()
			case "headerReference", "titlePg":
				err = c.skip()
			case "type":
				ss.props.Type = attr(t, "val")
				err = c.skip()
			case "pgNumType":
				ss.props.PageStart = atoiPtr(attr(t, "start"))
				err = c.skip()
			case "cols":
				if n := atoiPtr(attr(t, "num")); n != nil {
					ss.props.Columns = *n
				}
				if sp := atoiPtr(attr(t, "space")); sp != nil {
					ss.props.ColumnSpace = *sp
				}
				err = c.skip()
			default:
				var raw []byte
				raw, _, err = c.element(t, off)
				ss.props.Extra = append(ss.props.Extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
			}
			if err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return ss, nil
			}
		}
	}
}
