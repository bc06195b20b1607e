// Package section maps body paragraphs to the layout section that owns them.
package section

import (
	"sort"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// Index locates the owning section of a paragraph. Paragraph positions count
// top-level paragraphs only; tables are not numbered.
type Index struct {
	markers    []int // positions of paragraphs that close a section, ascending
	paragraphs int
}

// NewIndex scans doc once.
func NewIndex(doc *docmodel.Document) *Index {
	ix := &Index{}
	for _, p := range doc.Paragraphs() {
		if p.Section != nil {
			ix.markers = append(ix.markers, ix.paragraphs)
		}
		ix.paragraphs++
	}
	return ix
}

// Count returns the number of sections: one per marker plus the final one.
func (ix *Index) Count() int {
	return len(ix.markers) + 1
}

// SectionOf returns the section owning paragraph i. Section k runs from just
// after marker k-1 through marker k; paragraphs past the last marker belong
// to the final section. It reports false for an out-of-range position.
func (ix *Index) SectionOf(i int) (int, bool) {
	if i < 0 || i >= ix.paragraphs {
		return 0, false
	}
	return sort.SearchInts(ix.markers, i), true
}
