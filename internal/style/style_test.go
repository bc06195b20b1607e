package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/routebook/internal/docmodel"
)

func catalog(styles ...*docmodel.Style) *docmodel.StyleCatalog {
	return &docmodel.StyleCatalog{Styles: styles}
}

func para(id, name string) *docmodel.Style {
	return &docmodel.Style{ID: id, Name: name, Type: docmodel.StyleParagraph}
}

func TestResolve_FindsExistingCandidate(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		styles []*docmodel.Style
		want   string
	}{
		{"english built-in", RouteHeader, []*docmodel.Style{para("Normal", "Normal"), para("Heading1", "heading 1")}, "Heading1"},
		{"chinese name", SectionHeader, []*docmodel.Style{para("a1", "正文"), para("2", "标题 2")}, "2"},
		{"priority order", RouteHeader, []*docmodel.Style{para("x", "Heading1"), para("y", "标题 1")}, "y"},
		{"locale variant", SectionHeader, []*docmodel.Style{para("Normal", "Normal"), para("berschrift2", "Überschrift 2")}, "berschrift2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out := Resolve(tt.kind, catalog(tt.styles...))
			assert.Equal(t, tt.want, res.StyleID)
			assert.False(t, res.Created)
			assert.False(t, res.Fallback)
			assert.Len(t, out.Styles, len(tt.styles))
		})
	}
}

func TestResolve_IgnoresNonParagraphCandidates(t *testing.T) {
	char := &docmodel.Style{ID: "Heading1Char", Name: "Heading 1", Type: docmodel.StyleCharacter}
	res, out := Resolve(RouteHeader, catalog(para("Normal", "Normal"), char))
	assert.True(t, res.Created)
	assert.NotEqual(t, "Heading1Char", res.StyleID)
	assert.Len(t, out.Styles, 3)
}

func TestResolve_AppliesAttributes(t *testing.T) {
	res, out := Resolve(RouteHeader, catalog(para("Normal", "Normal"), para("1", "标题 1")))
	s := out.ByID(res.StyleID)
	require.NotNil(t, s)

	assert.True(t, s.Run.Bold)
	assert.Equal(t, 32, s.Run.Size)
	assert.Equal(t, "黑体", s.Run.Fonts.EastAsia)
	assert.Equal(t, "黑体", s.Run.Fonts.ASCII)
	assert.Equal(t, "000000", s.Run.Color)
	require.NotNil(t, s.Para.OutlineLevel)
	assert.Equal(t, 0, *s.Para.OutlineLevel)
	assert.True(t, s.Para.KeepNext)

	res, out = Resolve(SectionHeader, out)
	s = out.ByID(res.StyleID)
	require.NotNil(t, s)
	assert.Equal(t, 21, s.Run.Size)
	assert.Equal(t, "宋体", s.Run.Fonts.EastAsia)
	require.NotNil(t, s.Para.OutlineLevel)
	assert.Equal(t, 1, *s.Para.OutlineLevel)
}

func TestResolve_AppliesParagraphLayout(t *testing.T) {
	h2 := para("2", "标题 2")
	h2.Para.Align = "center"
	h2.Para.Extra = []docmodel.Fragment{{Name: "ind", XML: []byte(`<w:ind w:firstLine="420"/>`)}}

	for _, kind := range []Kind{RouteHeader, SectionHeader} {
		res, out := Resolve(kind, catalog(para("1", "标题 1"), h2))
		s := out.ByID(res.StyleID)
		require.NotNil(t, s, kind.String())

		sp := s.Para.Spacing
		require.NotNil(t, sp.Before)
		require.NotNil(t, sp.After)
		require.NotNil(t, sp.Line)
		assert.Equal(t, 0, *sp.Before)
		assert.Equal(t, 0, *sp.After)
		assert.Equal(t, 240, *sp.Line)
		assert.Equal(t, "auto", sp.LineRule)
		assert.Equal(t, "left", s.Para.Align)

		var ind []string
		for _, f := range s.Para.Extra {
			if f.Name == "ind" {
				ind = append(ind, string(f.XML))
			}
		}
		assert.Equal(t, []string{`<w:ind w:left="0" w:right="0" w:firstLine="0"/>`}, ind, kind.String())
	}
}

func TestResolve_DoesNotModifyInput(t *testing.T) {
	in := catalog(para("Normal", "Normal"), para("1", "标题 1"))
	Resolve(RouteHeader, in)
	assert.False(t, in.ByID("1").Run.Bold)

	Resolve(SectionHeader, in)
	assert.Len(t, in.Styles, 2)
}

func TestResolve_CreatesOnceAndIsIdempotent(t *testing.T) {
	in := catalog(para("a", "正文"))

	first, cat := Resolve(SectionHeader, in)
	require.True(t, first.Created)
	created := cat.ByID(first.StyleID)
	require.NotNil(t, created)
	assert.Equal(t, "自定义标题 2", created.Name)
	assert.Equal(t, "a", created.BasedOn)

	second, cat := Resolve(SectionHeader, cat)
	assert.False(t, second.Created)
	assert.Equal(t, first.StyleID, second.StyleID)
	assert.Len(t, cat.Styles, 2)
}

func TestResolve_CreatedIDAvoidsCollision(t *testing.T) {
	taken := &docmodel.Style{ID: "自定义标题1", Name: "Other", Type: docmodel.StyleTable}
	res, out := Resolve(RouteHeader, catalog(para("Normal", "Normal"), taken))
	require.True(t, res.Created)
	assert.Equal(t, "自定义标题12", res.StyleID)
	assert.Len(t, out.Styles, 3)
}

func TestResolve_FallbackWithoutBase(t *testing.T) {
	res, out := Resolve(RouteHeader, catalog(para("Quote", "Quote"), para("Caption", "caption")))
	assert.True(t, res.Fallback)
	assert.Equal(t, "Quote", res.StyleID)
	assert.False(t, out.ByID("Quote").Run.Bold, "fallback style must not be restyled")
}

func TestResolve_EmptyCatalog(t *testing.T) {
	res, out := Resolve(SectionHeader, catalog())
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.StyleID)
	assert.NotNil(t, out.ByID(res.StyleID))
}

func TestHeaderStyleIDs(t *testing.T) {
	cat := catalog(para("Normal", "Normal"), para("Heading1", "heading 1"), para("RH", "RouteHeader"), para("x", "标题 2"))
	ids := HeaderStyleIDs(cat, "custom")
	for _, id := range []string{"Heading1", "RH", "x", "custom"} {
		assert.True(t, ids[id], "expected %s in header ids", id)
	}
	assert.False(t, ids["Normal"])
}

func TestHeaderStyleIDs_MergedCatalog(t *testing.T) {
	cat := catalog(para("Heading1", "heading 1"), para("自定义标题1", "自定义标题 1"), para("自定义标题12", "自定义标题 1"))
	ids := HeaderStyleIDs(cat)
	assert.Len(t, ids, 3)
	assert.Empty(t, HeaderStyleIDs(nil))
}
