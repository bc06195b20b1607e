package docxio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dgallion1/routebook/internal/docmodel"
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	nsMC  = "http://schemas.openxmlformats.org/markup-compatibility/2006"
	nsXML = "http://www.w3.org/XML/1998/namespace"

	relImage     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	relHyperlink = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	relStyles    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	relFooter    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer"
	relOfficeDoc = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
)

// Schema order of CT_PPr children.
var pPrOrder = rankOf(
	"pStyle", "keepNext", "keepLines", "pageBreakBefore", "framePr", "widowControl",
	"numPr", "suppressLineNumbers", "pBdr", "shd", "tabs", "suppressAutoHyphens",
	"kinsoku", "wordWrap", "overflowPunct", "topLinePunct", "autoSpaceDE", "autoSpaceDN",
	"bidi", "adjustRightInd", "snapToGrid", "spacing", "ind", "contextualSpacing",
	"mirrorIndents", "suppressOverlap", "jc", "textDirection", "textAlignment",
	"textboxTightWrap", "outlineLvl", "divId", "cnfStyle", "rPr", "sectPr", "pPrChange",
)

// Schema order of CT_RPr children.
var rPrOrder = rankOf(
	"rStyle", "rFonts", "b", "bCs", "i", "iCs", "caps", "smallCaps", "strike", "dstrike",
	"outline", "shadow", "emboss", "imprint", "noProof", "snapToGrid", "vanish",
	"webHidden", "color", "spacing", "w", "kern", "position", "sz", "szCs", "highlight",
	"u", "effect", "bdr", "shd", "fitText", "vertAlign", "rtl", "cs", "em", "lang",
	"eastAsianLayout", "specVanish", "oMath",
)

// Schema order of CT_SectPr children.
var sectPrOrder = rankOf(
	"headerReference", "footerReference", "footnotePr", "endnotePr", "type", "pgSz",
	"pgMar", "paperSrc", "pgBorders", "lnNumType", "pgNumType", "cols", "formProt",
	"vAlign", "noEndnote", "titlePg", "textDirection", "bidi", "rtlGutter", "docGrid",
	"printerSettings", "sectPrChange",
)

// Schema order of CT_Style children.
var styleOrder = rankOf(
	"name", "aliases", "basedOn", "next", "link", "autoRedefine", "hidden", "uiPriority",
	"semiHidden", "unhideWhenUsed", "qFormat", "locked", "personal", "personalCompose",
	"personalReply", "rsid", "pPr", "rPr", "tblPr", "trPr", "tcPr", "tblStylePr",
)

func rankOf(names ...string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// orderFragments sorts fragments into schema order; unknown names go last,
// keeping their relative order.
func orderFragments(frags []docmodel.Fragment, order map[string]int) []docmodel.Fragment {
	out := append([]docmodel.Fragment(nil), frags...)
	rank := func(name string) int {
		if r, ok := order[name]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Name) < rank(out[j].Name)
	})
	return out
}

// mergeExtras appends the extra fragments whose names are not already produced.
func mergeExtras(frags, extra []docmodel.Fragment) []docmodel.Fragment {
	have := make(map[string]bool, len(frags))
	for _, f := range frags {
		have[f.Name] = true
	}
	for _, f := range extra {
		if !have[f.Name] {
			frags = append(frags, f)
		}
	}
	return frags
}

func frag(name string, format string, args ...any) docmodel.Fragment {
	return docmodel.Fragment{Name: name, XML: []byte(fmt.Sprintf(format, args...))}
}

func joinFragments(frags []docmodel.Fragment) []byte {
	var buf bytes.Buffer
	for _, f := range frags {
		buf.Write(f.XML)
	}
	return buf.Bytes()
}

// escape returns s escaped for use in XML text or attribute values.
func escape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func attrNS(start xml.StartElement, space, local string) string {
	for _, a := range start.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// onOff reads an ST_OnOff element: present without a val, or with a true value.
func onOff(start xml.StartElement) bool {
	v := attr(start, "val")
	return v == "" || v == "1" || v == "true" || v == "on"
}

func atoiPtr(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return docmodel.Int(n)
}

// rawCapture records the bytes of whole elements while walking a decoder.
type rawCapture struct {
	data []byte
	dec  *xml.Decoder
}

func newRawCapture(data []byte) *rawCapture {
	return &rawCapture{data: data, dec: xml.NewDecoder(bytes.NewReader(data))}
}

// next returns the next token and the input offset at which it starts.
func (c *rawCapture) next() (xml.Token, int64, error) {
	off := c.dec.InputOffset()
	tok, err := c.dec.Token()
	return tok, off, err
}

// element consumes the rest of the element opened at off and returns its raw
// bytes plus the values of every relationship-namespace attribute inside it.
func (c *rawCapture) element(start xml.StartElement, off int64) ([]byte, []string, error) {
	var ids []string
	collect := func(se xml.StartElement) {
		for _, a := range se.Attr {
			if a.Name.Space == nsR && a.Value != "" {
				ids = append(ids, a.Value)
			}
		}
	}
	collect(start)
	depth := 1
	for depth > 0 {
		tok, err := c.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, nil, fmt.Errorf("unterminated element %s", start.Name.Local)
			}
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			collect(t)
		case xml.EndElement:
			depth--
		}
	}
	end := c.dec.InputOffset()
	raw := make([]byte, end-off)
	copy(raw, c.data[off:end])
	return raw, ids, nil
}

// skip consumes the rest of the current element.
func (c *rawCapture) skip() error {
	return c.dec.Skip()
}

// renderNamespaces writes root attributes (namespace declarations and
// mc:Ignorable) back out with their original prefixes.
func renderNamespaces(attrs []xml.Attr) string {
	prefixOf := make(map[string]string)
	for _, a := range attrs {
		if a.Name.Space == "xmlns" {
			prefixOf[a.Value] = a.Name.Local
		}
	}
	var buf bytes.Buffer
	for _, a := range attrs {
		var name string
		switch {
		case a.Name.Space == "xmlns":
			name = "xmlns:" + a.Name.Local
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			name = "xmlns"
		case a.Name.Space == "":
			name = a.Name.Local
		default:
			p, ok := prefixOf[a.Name.Space]
			if !ok {
				continue
			}
			name = p + ":" + a.Name.Local
		}
		fmt.Fprintf(&buf, ` %s="%s"`, name, escape(a.Value))
	}
	return buf.String()
}

// defaultNamespaces are always declared on written parts.
var defaultNamespaces = []xml.Attr{
	{Name: xml.Name{Space: "xmlns", Local: "w"}, Value: nsW},
	{Name: xml.Name{Space: "xmlns", Local: "r"}, Value: nsR},
	{Name: xml.Name{Space: "xmlns", Local: "wp"}, Value: nsWP},
	{Name: xml.Name{Space: "xmlns", Local: "a"}, Value: nsA},
	{Name: xml.Name{Space: "xmlns", Local: "pic"}, Value: nsPic},
	{Name: xml.Name{Space: "xmlns", Local: "mc"}, Value: nsMC},
}

// unionNamespaces merges declaration sets; the first binding of a prefix wins
// and non-declaration attributes are kept from the first set that has them.
func unionNamespaces(sets ...[]xml.Attr) []xml.Attr {
	var out []xml.Attr
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, a := range set {
			key := a.Name.Space + ":" + a.Name.Local
			if a.Name.Space != "xmlns" {
				key = "attr:" + a.Name.Local
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}
