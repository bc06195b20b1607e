// Package format restructures one exported route report into the standard layout.
package format

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/routebook/internal/chunker"
	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/doctree"
	"github.com/dgallion1/routebook/internal/docxio"
	"github.com/dgallion1/routebook/internal/style"
)

// Result describes what Format did to one document.
type Result struct {
	Info         doctree.RouteHeaderInfo
	Chunks       int
	RouteStyle   style.Resolution
	SectionStyle style.Resolution
}

// Format runs parse, reorder, style resolution and rebuild over doc and
// returns the new document. doc is not modified.
func Format(doc *docmodel.Document, opts Options) (*docmodel.Document, Result) {
	chunks := chunker.Parse(doc.Blocks)
	info := chunker.ExtractHeaderInfo(chunks)
	chunks = chunker.Reorder(chunks)

	routeRes, cat := style.Resolve(style.RouteHeader, doc.Styles)
	sectionRes, cat := style.Resolve(style.SectionHeader, cat)

	blocks := Rebuild(chunks, info, Styles{
		RouteHeader:   routeRes.StyleID,
		SectionHeader: sectionRes.StyleID,
	}, opts)

	out := &docmodel.Document{
		Blocks:     blocks,
		Styles:     cat,
		Parts:      doc.Parts,
		Namespaces: doc.Namespaces,
	}
	return out, Result{
		Info:         info,
		Chunks:       len(chunks),
		RouteStyle:   routeRes,
		SectionStyle: sectionRes,
	}
}

// FormatFile reads src, formats it and writes the result to dst.
func FormatFile(src, dst string, opts Options, log *slog.Logger) (Result, error) {
	if src == dst {
		return Result{}, fmt.Errorf("format %s: output would overwrite the source", src)
	}
	doc, err := docxio.ReadFile(src)
	if err != nil {
		return Result{}, err
	}
	out, res := Format(doc, opts)

	for _, r := range []style.Resolution{res.RouteStyle, res.SectionStyle} {
		if r.Fallback {
			log.Warn("heading style unavailable, using fallback", "style", r.StyleID)
		}
	}
	if _, ok := res.Info.Title(); !ok {
		log.Warn("no geological points found, route header skipped", "route", res.Info.RouteNumber)
	}

	if err := docxio.WriteFile(dst, out); err != nil {
		return res, err
	}
	log.Info("formatted report",
		"route", res.Info.RouteNumber,
		"points", len(res.Info.Points),
		"chunks", res.Chunks,
	)
	return res, nil
}
