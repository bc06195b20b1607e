package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/routebook/internal/report"
)

const docxType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type volumeEntry struct {
	File   string   `json:"file"`
	Bytes  int64    `json:"bytes"`
	SHA256 string   `json:"sha256,omitempty"`
	Routes []string `json:"routes,omitempty"`
}

// handleListVolumes lists the volume files, with checksums and routes from
// the manifest when one was written.
func (s *Server) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.volumeDir)
	if err != nil && !os.IsNotExist(err) {
		jsonError(w, "failed to list volumes: "+err.Error(), http.StatusInternalServerError)
		return
	}

	byFile := map[string]report.ManifestVolume{}
	if m, err := report.ReadManifest(s.volumeDir); err == nil {
		for _, v := range m.Volumes {
			byFile[v.File] = v
		}
	}

	vols := []volumeEntry{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ".docx") || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		v := volumeEntry{File: e.Name(), Bytes: info.Size()}
		if mv, ok := byFile[e.Name()]; ok && int64(mv.Bytes) == info.Size() {
			v.SHA256 = mv.SHA256
			v.Routes = mv.Routes
		}
		vols = append(vols, v)
	}
	sort.Slice(vols, func(a, b int) bool { return vols[a].File < vols[b].File })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"volumes": vols})
}

func (s *Server) handleDownloadVolume(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		jsonError(w, "invalid volume name", http.StatusBadRequest)
		return
	}
	name = sanitizeFilename(name)
	if !strings.HasSuffix(name, ".docx") {
		jsonError(w, "not a volume file", http.StatusBadRequest)
		return
	}
	path := filepath.Join(s.volumeDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		jsonError(w, "volume not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", docxType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
