package doctree

import (
	"path/filepath"
	"regexp"
	"strconv"
)

var routeCode = regexp.MustCompile(`L(\d+)`)

// RouteCode finds the first route code in a file or folder name and returns
// its number and its text as written, e.g. 459 and "L0459".
func RouteCode(name string) (int, string, bool) {
	m := routeCode.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, m[0], true
}
