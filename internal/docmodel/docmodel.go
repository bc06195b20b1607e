package docmodel

import (
	"encoding/xml"
	"regexp"
	"strings"
)

// Document is the in-memory form of one word-processing file.
// A stage takes ownership of a Document and hands a new one to the next stage.
type Document struct {
	Blocks     []Block
	Styles     *StyleCatalog
	Parts      []Part
	Namespaces []xml.Attr // Root namespace declarations carried from the source.
}

// Block is a top-level body element: *Paragraph, *Table or *SectionBreak.
type Block interface {
	block()
}

// Fragment is an opaque, already serialized XML element kept verbatim.
type Fragment struct {
	Name string // Local element name, used for schema ordering on write.
	XML  []byte
}

// Fonts holds the four independent font slots of a run.
type Fonts struct {
	ASCII    string
	HAnsi    string
	EastAsia string
	CS       string
}

// IsZero reports whether no slot is set.
func (f Fonts) IsZero() bool {
	return f == Fonts{}
}

// RunProps are run-level formatting attributes. Size is in half-points.
type RunProps struct {
	StyleID   string
	Fonts     Fonts
	FontAttrs []xml.Attr // Theme font slots and hint; a slot with an explicit font wins.
	Bold      bool
	Italic    bool
	Strike    bool
	Color     string // RRGGBB or "auto"; empty inherits.
	Size      int
	Highlight string
	Underline string
	VertAlign string
	Extra     []Fragment
}

// Image is an embedded picture. Extents are in EMU.
type Image struct {
	Name   string // File name under word/media.
	Data   []byte
	Width  int64
	Height int64
	Descr  string
}

// Run is a stretch of text sharing one set of run properties.
// Tabs and line breaks are carried in Text as '\t' and '\n'.
type Run struct {
	Text  string
	Props RunProps
	Image *Image
	Field string // Simple field instruction, e.g. "PAGE".
}

// Spacing is paragraph spacing in twips; Line is in 240ths of a line under the auto rule.
type Spacing struct {
	Before   *int
	After    *int
	Line     *int
	LineRule string
}

// ParaProps are paragraph-level formatting attributes.
type ParaProps struct {
	StyleID         string
	Spacing         Spacing
	Align           string
	OutlineLevel    *int
	KeepNext        bool
	PageBreakBefore bool
	Extra           []Fragment
}

// Ref is a relationship referenced from opaque XML (tables, raw paragraph content).
type Ref struct {
	ID          string // Relationship id as written in the fragment.
	Type        string
	Target      string
	External    bool
	Image       *Image // Set for image relationships.
	Data        []byte // Payload of other internal parts (embedded objects).
	ContentType string
}

// Part is a package part carried verbatim (theme, numbering, settings, ...).
type Part struct {
	Name        string // Path inside the package, e.g. word/numbering.xml.
	RelType     string
	ContentType string
	Data        []byte
	Rels        []byte // The part's own relationships file, if any.
}

// Paragraph is a body paragraph. A non-nil Section marks the paragraph as the
// last one of a section; the section's properties travel with it.
type Paragraph struct {
	Props   ParaProps
	Runs    []*Run
	Section *SectionProps

	// RawContent replaces Runs on write when the paragraph holds content the
	// run model cannot express (VML pictures, complex fields). Runs still
	// carry its text for matching.
	RawContent []byte
	Refs       []Ref
	HasPicture bool
}

// Table is kept as serialized XML.
type Table struct {
	XML  []byte
	Refs []Ref
}

// SectionBreak carries section properties. As the last block of a document
// it describes the final section; elsewhere it is written as a section marker.
type SectionBreak struct {
	Props SectionProps
}

// Footer is the default footer of a section.
type Footer struct {
	Paragraphs []*Paragraph
}

// SectionProps describe one layout section.
type SectionProps struct {
	Type        string // nextPage, continuous, ...
	Columns     int    // 0 leaves the column setting unspecified.
	ColumnSpace int    // Twips between columns.
	PageStart   *int   // Page numbering restart value.
	Footer      *Footer
	Extra       []Fragment // pgSz, pgMar, docGrid and the like.
}

func (*Paragraph) block()    {}
func (*Table) block()        {}
func (*SectionBreak) block() {}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Text returns the visible text of the paragraph: run text without tabs or breaks.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		if r.Field != "" {
			continue
		}
		for _, c := range r.Text {
			switch c {
			case '\t', '\n', '\f', '\v':
				continue
			}
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// HasImage reports whether the paragraph carries an embedded picture.
func (p *Paragraph) HasImage() bool {
	if p.HasPicture {
		return true
	}
	for _, r := range p.Runs {
		if r.Image != nil {
			return true
		}
	}
	return false
}

// Images returns the embedded images of the paragraph's runs.
func (p *Paragraph) Images() []*Image {
	var out []*Image
	for _, r := range p.Runs {
		if r.Image != nil {
			out = append(out, r.Image)
		}
	}
	return out
}

// BlockText returns the visible text of a block; tables and section breaks have none.
func BlockText(b Block) string {
	if p, ok := b.(*Paragraph); ok {
		return p.Text()
	}
	return ""
}

// NewParagraph returns a paragraph with a single run of text.
func NewParagraph(text string) *Paragraph {
	p := &Paragraph{}
	if text != "" {
		p.Runs = append(p.Runs, &Run{Text: text})
	}
	return p
}

// Paragraphs returns the top-level paragraphs in body order.
func (d *Document) Paragraphs() []*Paragraph {
	var out []*Paragraph
	for _, b := range d.Blocks {
		if p, ok := b.(*Paragraph); ok {
			out = append(out, p)
		}
	}
	return out
}

// FinalSection returns the properties of the trailing section break, or nil.
func (d *Document) FinalSection() *SectionProps {
	if len(d.Blocks) == 0 {
		return nil
	}
	if sb, ok := d.Blocks[len(d.Blocks)-1].(*SectionBreak); ok {
		return &sb.Props
	}
	return nil
}

// EnsureFinalSection returns the final section, appending an empty one if missing.
func (d *Document) EnsureFinalSection() *SectionProps {
	if s := d.FinalSection(); s != nil {
		return s
	}
	sb := &SectionBreak{}
	d.Blocks = append(d.Blocks, sb)
	return &sb.Props
}

// Sections returns the properties of every section in order: each marker
// paragraph closes one, and the final section comes last.
func (d *Document) Sections() []*SectionProps {
	var out []*SectionProps
	for _, b := range d.Blocks {
		if p, ok := b.(*Paragraph); ok && p.Section != nil {
			out = append(out, p.Section)
		}
	}
	if s := d.FinalSection(); s != nil {
		out = append(out, s)
	}
	return out
}

// Clone returns a deep copy of the section properties.
func (s SectionProps) Clone() SectionProps {
	out := s
	if s.PageStart != nil {
		out.PageStart = Int(*s.PageStart)
	}
	if s.Footer != nil {
		f := &Footer{Paragraphs: make([]*Paragraph, len(s.Footer.Paragraphs))}
		copy(f.Paragraphs, s.Footer.Paragraphs)
		out.Footer = f
	}
	out.Extra = append([]Fragment(nil), s.Extra...)
	return out
}

// Media collects every image referenced from the document body.
func (d *Document) Media() []*Image {
	var out []*Image
	seen := make(map[*Image]bool)
	add := func(img *Image) {
		if img != nil && !seen[img] {
			seen[img] = true
			out = append(out, img)
		}
	}
	walkPara := func(p *Paragraph) {
		for _, r := range p.Runs {
			add(r.Image)
		}
		for _, ref := range p.Refs {
			add(ref.Image)
		}
	}
	for _, b := range d.Blocks {
		switch v := b.(type) {
		case *Paragraph:
			walkPara(v)
		case *Table:
			for _, ref := range v.Refs {
				add(ref.Image)
			}
		}
	}
	return out
}

// PageNumberFooter returns a footer holding one centered PAGE field.
func PageNumberFooter(props RunProps) *Footer {
	p := &Paragraph{Props: ParaProps{Align: "center"}}
	p.Runs = append(p.Runs, &Run{Field: "PAGE", Props: props})
	return &Footer{Paragraphs: []*Paragraph{p}}
}

// Clone returns a deep copy of the paragraph. Image payloads and raw content
// bytes are shared; they are never modified in place.
func (p *Paragraph) Clone() *Paragraph {
	out := &Paragraph{
		Props:      p.Props.Clone(),
		RawContent: p.RawContent,
		Refs:       append([]Ref(nil), p.Refs...),
		HasPicture: p.HasPicture,
	}
	if p.Section != nil {
		s := p.Section.Clone()
		out.Section = &s
	}
	for _, r := range p.Runs {
		out.Runs = append(out.Runs, r.Clone())
	}
	return out
}

// Clone returns a deep copy of the run; the image payload is shared.
func (r *Run) Clone() *Run {
	out := *r
	out.Props = r.Props.Clone()
	if r.Image != nil {
		img := *r.Image
		out.Image = &img
	}
	return &out
}

// Clone returns a copy that shares no slices with p.
func (p RunProps) Clone() RunProps {
	out := p
	out.FontAttrs = append([]xml.Attr(nil), p.FontAttrs...)
	out.Extra = append([]Fragment(nil), p.Extra...)
	return out
}

// Clone returns a copy that shares no pointers with p.
func (p ParaProps) Clone() ParaProps {
	out := p
	out.Spacing = Spacing{
		Before:   clonePtr(p.Spacing.Before),
		After:    clonePtr(p.Spacing.After),
		Line:     clonePtr(p.Spacing.Line),
		LineRule: p.Spacing.LineRule,
	}
	out.OutlineLevel = clonePtr(p.OutlineLevel)
	out.Extra = append([]Fragment(nil), p.Extra...)
	return out
}

func clonePtr(v *int) *int {
	if v == nil {
		return nil
	}
	return Int(*v)
}

var rawText = regexp.MustCompile(`(<w:t(?:\s[^>]*)?>)([^<]*)(</w:t>)`)

// MapText rewrites the text of every run with fn. For raw paragraphs the
// w:t nodes of the raw content are rewritten as well, one node at a time.
func (p *Paragraph) MapText(fn func(string) string) {
	for _, r := range p.Runs {
		if r.Field == "" && r.Image == nil {
			r.Text = fn(r.Text)
		}
	}
	if p.RawContent != nil {
		p.RawContent = rawText.ReplaceAllFunc(p.RawContent, func(m []byte) []byte {
			sub := rawText.FindSubmatch(m)
			out := append([]byte(nil), sub[1]...)
			out = append(out, fn(string(sub[2]))...)
			return append(out, sub[3]...)
		})
	}
}
