package docmodel

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Style types as they appear in w:style/@w:type.
const (
	StyleParagraph = "paragraph"
	StyleCharacter = "character"
	StyleTable     = "table"
	StyleNumbering = "numbering"
)

// Style is one entry of the style catalog.
type Style struct {
	ID      string
	Name    string
	Type    string
	BasedOn string
	Next    string
	Default bool
	Custom  bool
	Run     RunProps
	Para    ParaProps
	Extra   []Fragment // uiPriority, qFormat, tblPr and other unmodeled children.
}

// StyleCatalog is the ordered style table of a document.
type StyleCatalog struct {
	Styles       []*Style
	DocDefaults  []byte
	LatentStyles []byte
	Namespaces   []xml.Attr
}

// NewStyleCatalog returns a catalog holding a plain Normal paragraph style.
func NewStyleCatalog() *StyleCatalog {
	return &StyleCatalog{
		Styles: []*Style{{ID: "Normal", Name: "Normal", Type: StyleParagraph, Default: true}},
	}
}

// ByName finds a style by display name. An exact match wins over a
// case-insensitive one, since built-in names are stored lower-cased.
func (c *StyleCatalog) ByName(name string) *Style {
	if c == nil {
		return nil
	}
	for _, s := range c.Styles {
		if s.Name == name {
			return s
		}
	}
	for _, s := range c.Styles {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

// ByID finds a style by its identifier.
func (c *StyleCatalog) ByID(id string) *Style {
	if c == nil {
		return nil
	}
	for _, s := range c.Styles {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Add appends a style to the catalog.
func (c *StyleCatalog) Add(s *Style) {
	c.Styles = append(c.Styles, s)
}

// UniqueID derives an identifier from base that no style in the catalog uses.
func (c *StyleCatalog) UniqueID(base string) string {
	id := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, base)
	if id == "" {
		id = "Style"
	}
	if c.ByID(id) == nil {
		return id
	}
	for i := 2; ; i++ {
		cand := id + strconv.Itoa(i)
		if c.ByID(cand) == nil {
			return cand
		}
	}
}

// Clone returns an independent copy; styles are copied, opaque bytes are shared.
func (c *StyleCatalog) Clone() *StyleCatalog {
	if c == nil {
		return nil
	}
	out := &StyleCatalog{
		Styles:       make([]*Style, len(c.Styles)),
		DocDefaults:  c.DocDefaults,
		LatentStyles: c.LatentStyles,
		Namespaces:   append([]xml.Attr(nil), c.Namespaces...),
	}
	for i, s := range c.Styles {
		cp := *s
		cp.Run.FontAttrs = append([]xml.Attr(nil), s.Run.FontAttrs...)
		cp.Run.Extra = append([]Fragment(nil), s.Run.Extra...)
		cp.Para.Extra = append([]Fragment(nil), s.Para.Extra...)
		cp.Extra = append([]Fragment(nil), s.Extra...)
		if s.Para.OutlineLevel != nil {
			cp.Para.OutlineLevel = Int(*s.Para.OutlineLevel)
		}
		out.Styles[i] = &cp
	}
	return out
}

// Merge adds every style of other whose id is not yet present.
func (c *StyleCatalog) Merge(other *StyleCatalog) {
	if other == nil {
		return
	}
	for _, s := range other.Styles {
		if c.ByID(s.ID) == nil {
			cp := *s
			c.Styles = append(c.Styles, &cp)
		}
	}
}

// NameOf returns the display name for a style id, or "" if unknown.
func (c *StyleCatalog) NameOf(id string) string {
	if s := c.ByID(id); s != nil {
		return s.Name
	}
	return ""
}
