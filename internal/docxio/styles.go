package docxio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// parseStyles reads word/styles.xml into a catalog. Children the catalog does
// not model are kept as fragments and written back unchanged.
func parseStyles(data []byte) (*docmodel.StyleCatalog, error) {
	c := newRawCapture(data)
	cat := &docmodel.StyleCatalog{}
	for {
		tok, off, err := c.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse styles: %w", err)
		}
		t, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch t.Name.Local {
		case "styles":
			cat.Namespaces = append([]xml.Attr(nil), t.Attr...)
		case "docDefaults":
			raw, _, err := c.element(t, off)
			if err != nil {
				return nil, err
			}
			cat.DocDefaults = raw
		case "latentStyles":
			raw, _, err := c.element(t, off)
			if err != nil {
				return nil, err
			}
			cat.LatentStyles = raw
		case "style":
			s, err := parseStyle(c, t)
			if err != nil {
				return nil, err
			}
			cat.Styles = append(cat.Styles, s)
		default:
			if err := c.skip(); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

func parseStyle(c *rawCapture, start xml.StartElement) (*docmodel.Style, error) {
	s := &docmodel.Style{
		ID:      attr(start, "styleId"),
		Type:    attr(start, "type"),
		Default: attr(start, "default") == "1" || attr(start, "default") == "true",
		Custom:  attr(start, "customStyle") == "1" || attr(start, "customStyle") == "true",
	}
	for {
		tok, off, err := c.next()
		if err != nil {
			return nil, fmt.Errorf("parse style %s: %w", s.ID, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				s.Name = attr(t, "val")
				err = c.skip()
			case "basedOn":
				s.BasedOn = attr(t, "val")
				err = c.skip()
			case "next":
				s.Next = attr(t, "val")
				err = c.skip()
			case "pPr":
				err = readStylePPr(c, &s.Para)
			case "rPr":
				err = readStyleRPr(c, &s.Run)
			default:
				var raw []byte
				raw, _, err = c.element(t, off)
				s.Extra = append(s.Extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
			}
			if err != nil {
				return nil, err
			}
		case xml.EndElement:
			return s, nil
		}
	}
}

func readStylePPr(c *rawCapture, p *docmodel.ParaProps) error {
	for {
		tok, off, err := c.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "keepNext":
				p.KeepNext = onOff(t)
			case "pageBreakBefore":
				p.PageBreakBefore = onOff(t)
			case "outlineLvl":
				p.OutlineLevel = atoiPtr(attr(t, "val"))
			case "jc":
				p.Align = attr(t, "val")
			case "spacing":
				p.Spacing = spacingOf(t)
			default:
				raw, _, err := c.element(t, off)
				if err != nil {
					return err
				}
				p.Extra = append(p.Extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
				continue
			}
			if err := c.skip(); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func readStyleRPr(c *rawCapture, r *docmodel.RunProps) error {
	for {
		tok, off, err := c.next()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "rFonts":
				r.Fonts = docmodel.Fonts{
					ASCII:    attr(t, "ascii"),
					HAnsi:    attr(t, "hAnsi"),
					EastAsia: attr(t, "eastAsia"),
					CS:       attr(t, "cs"),
				}
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "asciiTheme", "hAnsiTheme", "eastAsiaTheme", "cstheme", "hint":
						r.FontAttrs = append(r.FontAttrs, a)
					}
				}
			case "b":
				r.Bold = onOff(t)
			case "i":
				r.Italic = onOff(t)
			case "strike":
				r.Strike = onOff(t)
			case "color":
				r.Color = attr(t, "val")
			case "sz":
				if n := atoiPtr(attr(t, "val")); n != nil {
					r.Size = *n
				}
			case "highlight":
				r.Highlight = attr(t, "val")
			case "u":
				r.Underline = attr(t, "val")
			case "vertAlign":
				r.VertAlign = attr(t, "val")
			case "rStyle":
				r.StyleID = attr(t, "val")
			default:
				raw, _, err := c.element(t, off)
				if err != nil {
					return err
				}
				r.Extra = append(r.Extra, docmodel.Fragment{Name: t.Name.Local, XML: raw})
				continue
			}
			if err := c.skip(); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// encodeStyles writes the catalog as a complete styles part.
func encodeStyles(cat *docmodel.StyleCatalog) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	ns := unionNamespaces(cat.Namespaces, defaultNamespaces[:2])
	fmt.Fprintf(&buf, "<w:styles%s>", renderNamespaces(ns))
	buf.Write(cat.DocDefaults)
	buf.Write(cat.LatentStyles)
	for _, s := range cat.Styles {
		writeStyle(&buf, s)
	}
	buf.WriteString("</w:styles>")
	return buf.Bytes()
}

func writeStyle(buf *bytes.Buffer, s *docmodel.Style) {
	fmt.Fprintf(buf, `<w:style w:type="%s"`, escape(s.Type))
	if s.Default {
		buf.WriteString(` w:default="1"`)
	}
	if s.Custom {
		buf.WriteString(` w:customStyle="1"`)
	}
	fmt.Fprintf(buf, ` w:styleId="%s">`, escape(s.ID))

	var frags []docmodel.Fragment
	if s.Name != "" {
		frags = append(frags, frag("name", `<w:name w:val="%s"/>`, escape(s.Name)))
	}
	if s.BasedOn != "" {
		frags = append(frags, frag("basedOn", `<w:basedOn w:val="%s"/>`, escape(s.BasedOn)))
	}
	if s.Next != "" {
		frags = append(frags, frag("next", `<w:next w:val="%s"/>`, escape(s.Next)))
	}
	if ppr := encodePPr(s.Para, nil); len(ppr) > 0 {
		frags = append(frags, docmodel.Fragment{Name: "pPr", XML: ppr})
	}
	if rpr := encodeRPr(s.Run); len(rpr) > 0 {
		frags = append(frags, docmodel.Fragment{Name: "rPr", XML: rpr})
	}
	frags = mergeExtras(frags, s.Extra)
	buf.Write(joinFragments(orderFragments(frags, styleOrder)))
	buf.WriteString("</w:style>")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
