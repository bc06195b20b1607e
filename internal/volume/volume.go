package volume

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/routebook/internal/docmodel"
	"github.com/dgallion1/routebook/internal/docxio"
)

// Result describes one written volume.
type Result struct {
	Volume  Volume
	Path    string
	Stats   Stats
	Skipped []string // routes that could not be read
}

// Build reads the routes of v, merges them and writes the volume into outDir.
// A route that cannot be read is logged and left out; the volume fails only
// when none can be read. The file is named after the first and last routes
// actually merged.
func Build(v Volume, outDir string, opts Options, log *slog.Logger) (Result, error) {
	log = log.With("volume", v.Number)
	res := Result{Volume: v}

	var (
		docs   []*docmodel.Document
		merged []Route
	)
	for _, r := range v.Routes {
		doc, err := docxio.ReadFile(r.Path)
		if err != nil {
			log.Warn("route left out of volume", "route", r.Name, "error", err)
			res.Skipped = append(res.Skipped, r.Name)
			continue
		}
		docs = append(docs, doc)
		merged = append(merged, r)
	}

	out, st, err := Merge(docs, opts, log)
	if err != nil {
		return res, fmt.Errorf("merge volume %d: %w", v.Number, err)
	}
	res.Stats = st
	res.Path = filepath.Join(outDir, Volume{Number: v.Number, Routes: merged}.OutputName())
	if err := docxio.WriteFile(res.Path, out); err != nil {
		return res, fmt.Errorf("write volume %d: %w", v.Number, err)
	}

	log.Info("merged volume",
		"file", filepath.Base(res.Path),
		"routes", st.Routes,
		"sections", st.Sections,
		"sketch_sections", st.SketchSections,
		"images", st.Images,
	)
	if st.ImageFailures > 0 {
		log.Warn("some image resolutions left unchanged", "count", st.ImageFailures)
	}
	return res, nil
}
