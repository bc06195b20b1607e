// Package style finds or creates the two heading styles a route report needs.
package style

import (
	"encoding/xml"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// Kind selects which heading style to resolve.
type Kind int

const (
	RouteHeader Kind = iota
	SectionHeader
)

func (k Kind) String() string {
	if k == RouteHeader {
		return "RouteHeader"
	}
	return "SectionHeader"
}

// Candidate names per kind, in lookup priority. The custom names written by
// create are part of each list, so a second Resolve finds what the first made.
var candidates = map[Kind][]string{
	RouteHeader: {
		"Heading 1", "标题 1", "自定义标题 1", "标题11", "Heading 11", "标题1", "Heading1",
		"標題 1", "Titre 1", "Überschrift 1", "Título 1", "Заголовок 1",
	},
	SectionHeader: {
		"Heading 2", "标题 2", "自定义标题 2", "标题21", "Heading 21", "标题2", "Heading2",
		"標題 2", "Titre 2", "Überschrift 2", "Título 2", "Заголовок 2",
	},
}

var customNames = map[Kind]string{
	RouteHeader:   "自定义标题 1",
	SectionHeader: "自定义标题 2",
}

// Base styles for created headings, first match wins.
var baseNames = []string{"Normal", "正文", "Body Text", "Body"}

// Resolution is the outcome of Resolve.
type Resolution struct {
	StyleID  string
	Created  bool // a new style was added to the catalog
	Fallback bool // no heading style could be found or made; StyleID is any paragraph style
}

// Resolve finds the heading style for kind in a copy of cat, stamping the
// kind's fixed attributes on it, or creates one. The input catalog is not
// modified. Resolve never fails: when nothing suitable exists it returns the
// first paragraph style of the catalog as a fallback.
func Resolve(kind Kind, cat *docmodel.StyleCatalog) (Resolution, *docmodel.StyleCatalog) {
	out := cat.Clone()
	if out == nil {
		out = docmodel.NewStyleCatalog()
	}
	if s := find(kind, out); s != nil {
		apply(kind, s)
		return Resolution{StyleID: s.ID}, out
	}
	if s := create(kind, out); s != nil {
		apply(kind, s)
		return Resolution{StyleID: s.ID, Created: true}, out
	}
	for _, s := range out.Styles {
		if s.Type == docmodel.StyleParagraph {
			return Resolution{StyleID: s.ID, Fallback: true}, out
		}
	}
	// A catalog without any paragraph style: make an unbased heading.
	s := newStyle(kind, out, "")
	apply(kind, s)
	return Resolution{StyleID: s.ID, Created: true}, out
}

// Candidates returns the lookup names for kind.
func Candidates(kind Kind) []string {
	return append([]string(nil), candidates[kind]...)
}

func find(kind Kind, cat *docmodel.StyleCatalog) *docmodel.Style {
	for _, name := range candidates[kind] {
		if s := cat.ByName(name); s != nil && s.Type == docmodel.StyleParagraph {
			return s
		}
	}
	return nil
}

// create adds the custom heading style for kind, based on the first base
// style present. It returns nil when the catalog has no base style.
func create(kind Kind, cat *docmodel.StyleCatalog) *docmodel.Style {
	for _, name := range baseNames {
		if base := cat.ByName(name); base != nil && base.Type == docmodel.StyleParagraph {
			return newStyle(kind, cat, base.ID)
		}
	}
	return nil
}

func newStyle(kind Kind, cat *docmodel.StyleCatalog, basedOn string) *docmodel.Style {
	name := customNames[kind]
	s := &docmodel.Style{
		ID:      cat.UniqueID(name),
		Name:    name,
		Type:    docmodel.StyleParagraph,
		BasedOn: basedOn,
		Next:    basedOn,
		Custom:  true,
		Extra: []docmodel.Fragment{
			{Name: "qFormat", XML: []byte("<w:qFormat/>")},
		},
	}
	cat.Add(s)
	return s
}

// apply stamps the fixed attributes of kind onto s.
func apply(kind Kind, s *docmodel.Style) {
	font, size, level := "宋体", 21, 1
	if kind == RouteHeader {
		font, size, level = "黑体", 32, 0
		s.Para.KeepNext = true
	}
	s.Run.Fonts = docmodel.Fonts{ASCII: font, HAnsi: font, EastAsia: font, CS: font}
	s.Run.FontAttrs = []xml.Attr{{Name: xml.Name{Local: "hint"}, Value: "eastAsia"}}
	s.Run.Bold = true
	s.Run.Size = size
	s.Run.Color = "000000"
	s.Para.OutlineLevel = docmodel.Int(level)
	s.Para.Spacing = docmodel.Spacing{
		Before:   docmodel.Int(0),
		After:    docmodel.Int(0),
		Line:     docmodel.Int(240),
		LineRule: "auto",
	}
	s.Para.Align = "left"
	s.Para.Extra = setFragment(s.Para.Extra, docmodel.Fragment{Name: "ind", XML: []byte(zeroIndent)})
}

const zeroIndent = `<w:ind w:left="0" w:right="0" w:firstLine="0"/>`

// setFragment replaces the fragment named like f, or appends it.
func setFragment(frags []docmodel.Fragment, f docmodel.Fragment) []docmodel.Fragment {
	for i := range frags {
		if frags[i].Name == f.Name {
			frags[i] = f
			return frags
		}
	}
	return append(frags, f)
}

// HeaderStyleIDs returns the ids of every heading style of either kind
// present in cat, plus any extra ids given. Names match case-insensitively
// and every style carrying a matching name counts, so catalogs merged from
// several documents yield all of their heading ids.
func HeaderStyleIDs(cat *docmodel.StyleCatalog, extra ...string) map[string]bool {
	ids := make(map[string]bool)
	for _, id := range extra {
		if id != "" {
			ids[id] = true
		}
	}
	if cat == nil {
		return ids
	}
	names := make(map[string]bool)
	for _, kind := range []Kind{RouteHeader, SectionHeader} {
		for _, name := range append(Candidates(kind), kind.String()) {
			names[strings.ToLower(name)] = true
		}
	}
	for _, s := range cat.Styles {
		if names[strings.ToLower(s.Name)] {
			ids[s.ID] = true
		}
	}
	return ids
}
