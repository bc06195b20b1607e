// Package sketch collects route sketch images and appends them to formatted
// route reports.
package sketch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/routebook/internal/doctree"
)

// FolderName is the subfolder of a route folder holding its sketches.
const FolderName = "素描图"

// Folder is one route folder of a survey export.
type Folder struct {
	Number int
	Name   string
	Path   string
}

// RouteFolders lists the folders directly under root whose names start with
// a route code, ordered by route number.
func RouteFolders(root string) ([]Folder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read route root: %w", err)
	}
	var out []Folder
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || len(name) < 2 || name[0] != 'L' || name[1] < '0' || name[1] > '9' {
			continue
		}
		n, _, ok := doctree.RouteCode(name)
		if !ok {
			continue
		}
		out = append(out, Folder{Number: n, Name: name, Path: filepath.Join(root, name)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Images returns the PNG files of a route folder's sketch subfolder, matched
// case-insensitively and sorted by name. A missing subfolder yields none.
func Images(folder string) ([]string, error) {
	dir := filepath.Join(folder, FolderName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sketch folder: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// PoolNames returns the pool file names for a route's images: the route name
// alone for a single image, numbered from 1 otherwise. Extensions are lower-cased.
func PoolNames(route string, images []string) []string {
	out := make([]string, len(images))
	for i, img := range images {
		ext := strings.ToLower(filepath.Ext(img))
		if len(images) == 1 {
			out[i] = route + ext
		} else {
			out[i] = fmt.Sprintf("%s_%d%s", route, i+1, ext)
		}
	}
	return out
}

// Extract copies the sketches of one route folder into pool and returns the
// written paths. A folder without sketches returns none and no error.
func Extract(f Folder, pool string) ([]string, error) {
	images, err := Images(f.Path)
	if err != nil || len(images) == 0 {
		return nil, err
	}
	var written []string
	for i, name := range PoolNames(f.Name, images) {
		dst := filepath.Join(pool, name)
		if err := CopyFile(images[i], dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// CopyFile copies src to dst through a temporary file in dst's directory,
// keeping the source modification time.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".routebook-*"+filepath.Ext(dst))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("set times: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename to %s: %w", dst, err)
	}
	return nil
}
