package volume

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/imaging"
	"github.com/dgallion1/routebook/internal/section"
	"github.com/dgallion1/routebook/internal/style"
)

const (
	defaultColumns = 2
	sketchColumns  = 1
)

var sketchTitle = regexp.MustCompile(`^L\d+素描图$`)

// IsSketchTitle reports whether text is the title of a sketch section.
func IsSketchTitle(text string) bool {
	return sketchTitle.MatchString(strings.TrimSpace(text))
}

// repairColumns sets every section to two columns, then every section that
// holds a sketch title back to one. It returns the number of sketch sections.
func repairColumns(doc *docmodel.Document, log *slog.Logger) int {
	sections := doc.Sections()
	for _, s := range sections {
		s.Columns = defaultColumns
	}

	ix := section.NewIndex(doc)
	single := make(map[int]bool)
	for i, p := range doc.Paragraphs() {
		if !IsSketchTitle(p.Text()) {
			continue
		}
		k, ok := ix.SectionOf(i)
		if !ok || k >= len(sections) {
			log.Warn("sketch title has no section", "paragraph", i, "text", p.Text())
			continue
		}
		single[k] = true
	}
	for k := range single {
		sections[k].Columns = sketchColumns
	}
	return len(single)
}

// enforceHeaderColors makes the heading styles and every run of a heading
// paragraph black, undoing run-level colours that survived the merge.
func enforceHeaderColors(doc *docmodel.Document) int {
	ids := style.HeaderStyleIDs(doc.Styles)
	for _, s := range doc.Styles.Styles {
		if ids[s.ID] {
			s.Run.Color = black
		}
	}
	n := 0
	for _, p := range doc.Paragraphs() {
		if !ids[p.Props.StyleID] {
			continue
		}
		for _, r := range p.Runs {
			r.Props.Color = black
		}
		n++
	}
	return n
}

func formatSketchTitles(doc *docmodel.Document) int {
	n := 0
	for _, p := range doc.Paragraphs() {
		if !IsSketchTitle(p.Text()) {
			continue
		}
		p.Props.Align = "left"
		for _, r := range p.Runs {
			if r.Image != nil || r.Field != "" {
				continue
			}
			r.Props.Fonts.ASCII = songFont
			r.Props.Fonts.HAnsi = songFont
			r.Props.Fonts.EastAsia = songFont
			r.Props.Size = titleSize
			r.Props.Bold = true
			r.Props.Color = black
		}
		n++
	}
	return n
}

// normalizeDPI rewrites the resolution of every embedded image. Images that
// cannot be rewritten are left as they are.
func normalizeDPI(doc *docmodel.Document, dpi int, log *slog.Logger) (done, failed int) {
	if dpi <= 0 {
		return 0, 0
	}
	for _, img := range doc.Media() {
		data, err := imaging.SetDPI(img.Data, dpi)
		if err != nil {
			log.Debug("image resolution unchanged", "image", img.Name, "error", err)
			failed++
			continue
		}
		img.Data = data
		done++
	}
	return done, failed
}
