package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/report"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer returns a server whose orchestrator is never started, so
// submitted runs stay queued.
func newTestServer(t *testing.T, apiKey string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	runner := pipeline.NewRunner(pipeline.Dirs{Volumes: dir}, pipeline.Options{}, discardLogger())
	orch := pipeline.NewOrchestrator(runner, 4, time.Hour, discardLogger())
	return NewServer(orch, dir, apiKey, discardLogger()), dir
}

func do(s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRuns_CreateAndPoll(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := do(s, http.MethodPost, "/api/v1/runs", `{"stage":"merge"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["job_id"].(string)
	assert.Equal(t, "merge", created["stage"])
	assert.Equal(t, "/api/v1/runs/"+id, created["poll_url"])

	rec = do(s, http.MethodGet, "/api/v1/runs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap pipeline.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, pipeline.StatusQueued, snap.Status)
	assert.Equal(t, 1, snap.Progress.StagesTotal)

	rec = do(s, http.MethodGet, "/api/v1/runs", "")
	assert.Contains(t, rec.Body.String(), id)
}

func TestRuns_DefaultsToAll(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/api/v1/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stage":"all"`)
}

func TestRuns_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, "")
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/v1/runs", `{"stage":"print"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/api/v1/runs", `{`).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/runs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/runs/nope/report", "").Code)
}

func TestRuns_Report(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/api/v1/runs", `{"stage":"format"}`)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	base := "/api/v1/runs/" + created["job_id"].(string) + "/report"

	rec = do(s, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "# Run report")

	rec = do(s, http.MethodGet, base+"?format=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>")

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, base+"?format=pdf", "").Code)
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/stats", "", "Authorization", "Bearer wrong").Code)

	rec := do(s, http.MethodGet, "/api/v1/stats", "", "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue_depth":0,"jobs":{},"timings":{}}`, rec.Body.String())
}

func TestVolumes(t *testing.T) {
	s, dir := newTestServer(t, "")
	name := "野外手图_第1册_L0001-L0002.docx"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$lock.docx"), []byte("x"), 0o644))
	_, err := report.WriteManifest(dir, report.Manifest{Volumes: []report.ManifestVolume{
		{Number: 1, File: name, SHA256: "abc", Bytes: 11, Routes: []string{"L0001", "L0002"}},
	}})
	require.NoError(t, err)

	rec := do(s, http.MethodGet, "/api/v1/volumes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Volumes []volumeEntry `json:"volumes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Volumes, 1)
	assert.Equal(t, name, body.Volumes[0].File)
	assert.Equal(t, "abc", body.Volumes[0].SHA256)
	assert.Equal(t, []string{"L0001", "L0002"}, body.Volumes[0].Routes)

	rec = do(s, http.MethodGet, "/api/v1/volumes/"+url.PathEscape(name), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, docxType, rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/volumes/missing.docx", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/api/v1/volumes/manifest.yaml", "").Code)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"a.docx":           "a.docx",
		"../../etc/passwd": "passwd",
		`dir\..\x.docx`:    "dir___x.docx",
		"":                 "unnamed",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
