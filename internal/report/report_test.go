package report

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/volume"
)

func sampleRun() Run {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return Run{
		ID:       "01TEST",
		Stage:    pipeline.StageAll,
		Status:   "partial",
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Results: []pipeline.BatchResult{
			{
				Stage: pipeline.StageFormat, Succeeded: 1, Failed: 1,
				Files: []pipeline.FileResult{
					{Name: "L0001.docx", Output: "L0001_formatted.docx", Status: pipeline.FileOK},
					{Name: "L0002.docx", Status: pipeline.FileFailed, Detail: "zip: not a valid zip file"},
				},
			},
			{Stage: pipeline.StageExtract, Skipped: 1, Files: []pipeline.FileResult{
				{Name: "L0001", Status: pipeline.FileSkipped, Detail: "a|b"},
			}},
			{Stage: pipeline.StageInsert, Err: "input directory missing: x"},
		},
		Errors: []string{"L0002.docx: zip: not a valid zip file"},
	}
}

func TestMarkdown(t *testing.T) {
	out := string(Markdown(sampleRun()))

	assert.Contains(t, out, "# Run report 01TEST")
	assert.Contains(t, out, "- Files: 1 ok, 1 skipped, 1 failed")
	assert.Contains(t, out, "- Duration: 1.5s")
	assert.Contains(t, out, "## format")
	assert.Contains(t, out, "| L0002.docx | failed |  | zip: not a valid zip file |")
	assert.Contains(t, out, `a\|b`, "pipes in cells are escaped")
	assert.Contains(t, out, "Stage stopped: input directory missing: x")
	assert.Contains(t, out, "No input files.")
}

func TestHTML_StatusCells(t *testing.T) {
	page, err := HTML(sampleRun())
	require.NoError(t, err)

	doc, err := html.Parse(bytes.NewReader(page))
	require.NoError(t, err)

	classes := map[string]string{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Td {
			for _, a := range n.Attr {
				if a.Key == "class" {
					classes[strings.TrimSpace(textOf(n))] = a.Val
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	assert.Equal(t, map[string]string{
		"ok":      "status-ok",
		"failed":  "status-failed",
		"skipped": "status-skipped",
	}, classes)
	assert.Contains(t, string(page), "<title>Run report 01TEST</title>")
}

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "野外手图_第1册_L0001-L0002.docx")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	res := volume.Result{
		Volume: volume.Volume{Number: 1, Routes: []volume.Route{
			{Number: 1, Name: "L0001"}, {Number: 2, Name: "L0002"},
		}},
		Path:    path,
		Stats:   volume.Stats{Routes: 1, Images: 3},
		Skipped: []string{"L0002"},
	}
	m, err := NewManifest([]volume.Result{res})
	require.NoError(t, err)
	require.Len(t, m.Volumes, 1)
	assert.Equal(t, []string{"L0001"}, m.Volumes[0].Routes)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", m.Volumes[0].SHA256)
	assert.Equal(t, 11, m.Volumes[0].Bytes)

	written, err := WriteManifest(dir, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ManifestFile), written)

	back, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Volumes, back.Volumes)
	assert.True(t, m.Generated.Equal(back.Generated))
}

func TestManifest_MissingVolume(t *testing.T) {
	_, err := NewManifest([]volume.Result{{Path: filepath.Join(t.TempDir(), "gone.docx")}})
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	Console(&buf, sampleRun().Results)
	out := buf.String()
	assert.Contains(t, out, "FORMAT")
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "L0002.docx")
	assert.Contains(t, out, "STOPPED")
	assert.NotContains(t, out, "L0001.docx", "successful files are not listed")
}

func TestFromSnapshot(t *testing.T) {
	job := pipeline.NewJob(pipeline.StageMerge)
	job.AddResult(pipeline.BatchResult{Stage: pipeline.StageMerge, Succeeded: 2})
	job.AddError("boom")

	r := FromSnapshot(job.Snapshot())
	assert.Equal(t, job.ID, r.ID)
	assert.Equal(t, "queued", r.Status)
	ok, _, _ := r.Totals()
	assert.Equal(t, 2, ok)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestManifestHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "野外手图_第1册_L0001-L0001.docx")
	require.NoError(t, os.WriteFile(path, []byte("v"), 0o644))
	hook := ManifestHook(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	hook(pipeline.BatchResult{Stage: pipeline.StageFormat})
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	assert.True(t, os.IsNotExist(err), "only merge stages write a manifest")

	hook(pipeline.BatchResult{Stage: pipeline.StageMerge, Volumes: []volume.Result{
		{Volume: volume.Volume{Number: 1, Routes: []volume.Route{{Name: "L0001"}}}, Path: path},
	}})
	m, err := ReadManifest(dir)
	require.NoError(t, err)
	require.Len(t, m.Volumes, 1)
	assert.Equal(t, filepath.Base(path), m.Volumes[0].File)
}
