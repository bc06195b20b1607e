package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/volume"
)

// ManifestFile is written next to the volumes.
const ManifestFile = "manifest.yaml"

// Manifest lists the volumes written by a merge run.
type Manifest struct {
	Generated time.Time        `json:"generated" yaml:"generated"`
	Volumes   []ManifestVolume `json:"volumes" yaml:"volumes"`
}

// ManifestVolume describes one volume file.
type ManifestVolume struct {
	Number  int      `json:"number" yaml:"number"`
	File    string   `json:"file" yaml:"file"`
	SHA256  string   `json:"sha256" yaml:"sha256"`
	Bytes   int      `json:"bytes" yaml:"bytes"`
	Routes  []string `json:"routes" yaml:"routes"`
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Images  int      `json:"images" yaml:"images"`
}

// NewManifest reads every written volume to record its size and checksum.
func NewManifest(vols []volume.Result) (Manifest, error) {
	m := Manifest{Generated: time.Now().UTC().Truncate(time.Second)}
	for _, v := range vols {
		data, err := os.ReadFile(v.Path)
		if err != nil {
			return m, fmt.Errorf("reading volume: %w", err)
		}
		skipped := make(map[string]bool, len(v.Skipped))
		for _, s := range v.Skipped {
			skipped[s] = true
		}
		var routes []string
		for _, r := range v.Volume.Routes {
			if !skipped[r.Name] {
				routes = append(routes, r.Name)
			}
		}
		m.Volumes = append(m.Volumes, ManifestVolume{
			Number:  v.Volume.Number,
			File:    filepath.Base(v.Path),
			SHA256:  pipeline.ContentHashHex(data),
			Bytes:   len(data),
			Routes:  routes,
			Skipped: v.Skipped,
			Images:  v.Stats.Images,
		})
	}
	return m, nil
}

// WriteManifest writes m as YAML into dir.
func WriteManifest(dir string, m Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing manifest: %w", err)
	}
	return m, nil
}

// ManifestHook returns a stage callback that rewrites the manifest in dir
// after every merge stage.
func ManifestHook(dir string, log *slog.Logger) func(pipeline.BatchResult) {
	return func(res pipeline.BatchResult) {
		if res.Stage != pipeline.StageMerge || len(res.Volumes) == 0 {
			return
		}
		m, err := NewManifest(res.Volumes)
		if err != nil {
			log.Error("manifest not written", "error", err)
			return
		}
		path, err := WriteManifest(dir, m)
		if err != nil {
			log.Error("manifest not written", "error", err)
			return
		}
		log.Info("manifest written", "path", path, "volumes", len(m.Volumes))
	}
}
