// Package volume groups finished route reports into volumes and merges each
// volume into one page-numbered document.
package volume

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/routebook/internal/doctree"
)

// File name patterns of the two report variants a volume draws from.
const (
	CompletePattern  = "L*完整版.docx"
	FormattedPattern = "L*_formatted.docx"

	completeMark = "完整版"
)

// Route is one report chosen for a volume.
type Route struct {
	Number   int    // numeric route key, used for ordering
	Name     string // route code as written in the file name, e.g. L0459
	Path     string
	Complete bool // the report carries inserted sketches
}

// RouteKey parses the first route code of a file name.
func RouteKey(name string) (int, string, bool) {
	return doctree.RouteCode(name)
}

// Select keeps one report per route number, preferring the complete variant
// over the formatted one, and returns them sorted by route number. Between
// two reports of the same variant the first one listed wins.
func Select(paths []string) []Route {
	chosen := make(map[int]Route)
	for _, p := range paths {
		base := filepath.Base(p)
		if strings.HasPrefix(base, "~$") {
			continue
		}
		n, name, ok := RouteKey(base)
		if !ok {
			continue
		}
		r := Route{Number: n, Name: name, Path: p, Complete: strings.Contains(base, completeMark)}
		if prev, seen := chosen[n]; !seen || (r.Complete && !prev.Complete) {
			chosen[n] = r
		}
	}

	out := make([]Route, 0, len(chosen))
	for _, r := range chosen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Scan lists both report variants in dir and selects among them.
func Scan(dir string) ([]Route, error) {
	var paths []string
	for _, pattern := range []string{CompletePattern, FormattedPattern} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return Select(paths), nil
}
