package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/routebook/internal/format"
	"github.com/dgallion1/routebook/internal/sketch"
	"github.com/dgallion1/routebook/internal/volume"
)

var (
	// ErrInputDirMissing stops a stage whose input directory does not exist.
	ErrInputDirMissing = errors.New("input directory missing")
	// ErrNoRoutes stops the merge stage when no report can be found.
	ErrNoRoutes = errors.New("no route reports found")
)

// Stage names one step of the batch pipeline.
type Stage string

const (
	StageFormat  Stage = "format"
	StageExtract Stage = "extract"
	StageInsert  Stage = "insert"
	StageMerge   Stage = "merge"
	StageAll     Stage = "all"
)

// Stages lists the single stages in run order.
var Stages = []Stage{StageFormat, StageExtract, StageInsert, StageMerge}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if st == StageAll || st == "" {
		return StageAll, nil
	}
	for _, known := range Stages {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Source reports accepted by the format stage.
var sourceName = regexp.MustCompile(`^L\d+\.docx$`)

// Dirs are the directories the stages read and write.
type Dirs struct {
	Source    string // exported reports
	RouteRoot string // route folders holding sketch subfolders
	Formatted string
	Sketches  string
	Complete  string
	Volumes   string
}

// Options tune the stages.
type Options struct {
	Format      format.Options
	Merge       volume.Options
	Policy      volume.Policy
	SketchWidth int64 // EMU
}

// FileStatus is the outcome for one input of a stage.
type FileStatus string

const (
	FileOK      FileStatus = "ok"
	FileSkipped FileStatus = "skipped"
	FileFailed  FileStatus = "failed"
)

// FileResult records what a stage did with one input.
type FileResult struct {
	Name   string     `json:"name" yaml:"name"`
	Output string     `json:"output,omitempty" yaml:"output,omitempty"`
	Status FileStatus `json:"status" yaml:"status"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// BatchResult holds the outcome of one stage run.
type BatchResult struct {
	Stage     Stage           `json:"stage"`
	Succeeded int             `json:"succeeded"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Files     []FileResult    `json:"files"`
	Volumes   []volume.Result `json:"-"`
	Err       string          `json:"error,omitempty"` // set when the stage could not run
}

// Total returns the number of inputs the stage looked at.
func (r BatchResult) Total() int {
	return r.Succeeded + r.Skipped + r.Failed
}

// HasFailures reports whether any input failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0 || r.Err != ""
}

func (r *BatchResult) add(f FileResult) {
	switch f.Status {
	case FileOK:
		r.Succeeded++
	case FileSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Files = append(r.Files, f)
}

// Runner executes stages over a working tree, one file at a time.
type Runner struct {
	dirs Dirs
	opts Options
	log  *slog.Logger

	onDone  []func(BatchResult)
	timings *Timings
}

func NewRunner(dirs Dirs, opts Options, log *slog.Logger) *Runner {
	return &Runner{dirs: dirs, opts: opts, log: log, timings: NewTimings(time.Hour)}
}

// Timings returns the per-file durations recorded by the runner.
func (r *Runner) Timings() *Timings {
	return r.timings
}

// OnStageDone registers fn to be called after every stage that ran to the end.
func (r *Runner) OnStageDone(fn func(BatchResult)) {
	r.onDone = append(r.onDone, fn)
}

// Run executes stage, or every stage in order for StageAll. A stage that
// cannot start ends the chain; its error is returned with the results of the
// stages that ran. Cancelling ctx stops between files.
func (r *Runner) Run(ctx context.Context, stage Stage, progress func(Stage)) ([]BatchResult, error) {
	stages := []Stage{stage}
	if stage == StageAll {
		stages = Stages
	}
	var out []BatchResult
	for _, st := range stages {
		if progress != nil {
			progress(st)
		}
		res, err := r.RunStage(ctx, st)
		if err != nil {
			res.Err = err.Error()
			out = append(out, res)
			return out, fmt.Errorf("%s: %w", st, err)
		}
		for _, fn := range r.onDone {
			fn(res)
		}
		out = append(out, res)
	}
	return out, nil
}

// RunStage executes a single stage.
func (r *Runner) RunStage(ctx context.Context, stage Stage) (BatchResult, error) {
	switch stage {
	case StageFormat:
		return r.Format(ctx)
	case StageExtract:
		return r.Extract(ctx)
	case StageInsert:
		return r.Insert(ctx)
	case StageMerge:
		return r.Merge(ctx)
	}
	return BatchResult{Stage: stage}, fmt.Errorf("unknown stage %q", stage)
}

// Format rewrites every exported report into the standard layout.
func (r *Runner) Format(ctx context.Context) (BatchResult, error) {
	res := BatchResult{Stage: StageFormat}
	if err := requireDirs(r.dirs.Source); err != nil {
		return res, err
	}
	if err := os.MkdirAll(r.dirs.Formatted, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	names, err := listFiles(r.dirs.Source, func(name string) bool {
		return !strings.HasPrefix(name, "~$") && sourceName.MatchString(name)
	})
	if err != nil {
		return res, err
	}
	r.log.Info("format stage", "reports", len(names), "input", r.dirs.Source)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		src := filepath.Join(r.dirs.Source, name)
		dst := filepath.Join(r.dirs.Formatted, strings.TrimSuffix(name, ".docx")+"_formatted.docx")
		log := r.log.With("file", name)
		start := time.Now()
		_, err := format.FormatFile(src, dst, r.opts.Format, log)
		r.timings.Record(StageFormat, time.Since(start))
		if err != nil {
			log.Error("format failed", "error", err)
			res.add(FileResult{Name: name, Status: FileFailed, Detail: err.Error()})
			continue
		}
		res.add(FileResult{Name: name, Output: filepath.Base(dst), Status: FileOK})
	}
	r.logResult(res)
	return res, nil
}

// Extract gathers the sketches of every route folder into the sketch pool.
func (r *Runner) Extract(ctx context.Context) (BatchResult, error) {
	res := BatchResult{Stage: StageExtract}
	if err := requireDirs(r.dirs.RouteRoot); err != nil {
		return res, err
	}
	if err := os.MkdirAll(r.dirs.Sketches, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	folders, err := sketch.RouteFolders(r.dirs.RouteRoot)
	if err != nil {
		return res, err
	}
	r.log.Info("extract stage", "folders", len(folders), "input", r.dirs.RouteRoot)

	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		written, err := sketch.Extract(f, r.dirs.Sketches)
		r.timings.Record(StageExtract, time.Since(start))
		switch {
		case err != nil:
			r.log.Error("extract failed", "route", f.Name, "error", err)
			res.add(FileResult{Name: f.Name, Status: FileFailed, Detail: err.Error()})
		case len(written) == 0:
			res.add(FileResult{Name: f.Name, Status: FileSkipped, Detail: "no sketches"})
		default:
			res.add(FileResult{Name: f.Name, Status: FileOK, Detail: fmt.Sprintf("%d sketches", len(written))})
		}
	}
	r.logResult(res)
	return res, nil
}

// Insert appends pooled sketches to every formatted report.
func (r *Runner) Insert(ctx context.Context) (BatchResult, error) {
	res := BatchResult{Stage: StageInsert}
	if err := requireDirs(r.dirs.Formatted, r.dirs.Sketches); err != nil {
		return res, err
	}
	if err := os.MkdirAll(r.dirs.Complete, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	names, err := listFiles(r.dirs.Formatted, func(name string) bool {
		return !strings.HasPrefix(name, "~$") && strings.HasSuffix(name, "_formatted.docx")
	})
	if err != nil {
		return res, err
	}
	r.log.Info("insert stage", "reports", len(names), "input", r.dirs.Formatted)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := r.log.With("file", name)
		start := time.Now()
		ir, err := sketch.InsertFile(filepath.Join(r.dirs.Formatted, name), r.dirs.Sketches, r.dirs.Complete, r.opts.SketchWidth, log)
		r.timings.Record(StageInsert, time.Since(start))
		if err != nil {
			log.Error("insert failed", "error", err)
			res.add(FileResult{Name: name, Status: FileFailed, Detail: err.Error()})
			continue
		}
		detail := fmt.Sprintf("%d sketches", ir.Inserted)
		if ir.Copied {
			detail = "no sketches, copied"
		}
		res.add(FileResult{Name: name, Output: filepath.Base(ir.Path), Status: FileOK, Detail: detail})
	}
	r.logResult(res)
	return res, nil
}

// Merge groups the complete reports into volumes and writes one file per volume.
func (r *Runner) Merge(ctx context.Context) (BatchResult, error) {
	res := BatchResult{Stage: StageMerge}
	if err := requireDirs(r.dirs.Complete); err != nil {
		return res, err
	}
	routes, err := volume.Scan(r.dirs.Complete)
	if err != nil {
		return res, err
	}
	if len(routes) == 0 {
		return res, ErrNoRoutes
	}
	vols, err := volume.Partition(routes, r.opts.Policy)
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(r.dirs.Volumes, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	r.log.Info("merge stage", "routes", len(routes), "volumes", len(vols))

	for _, v := range vols {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := fmt.Sprintf("volume %d (%s-%s)", v.Number, v.First(), v.Last())
		start := time.Now()
		vr, err := volume.Build(v, r.dirs.Volumes, r.opts.Merge, r.log)
		r.timings.Record(StageMerge, time.Since(start))
		if err != nil {
			r.log.Error("merge failed", "volume", v.Number, "error", err)
			res.add(FileResult{Name: name, Status: FileFailed, Detail: err.Error()})
			continue
		}
		res.Volumes = append(res.Volumes, vr)
		detail := fmt.Sprintf("%d routes", vr.Stats.Routes)
		if len(vr.Skipped) > 0 {
			detail += fmt.Sprintf(", left out %s", strings.Join(vr.Skipped, " "))
		}
		res.add(FileResult{Name: name, Output: filepath.Base(vr.Path), Status: FileOK, Detail: detail})
	}
	r.logResult(res)
	return res, nil
}

func (r *Runner) logResult(res BatchResult) {
	r.log.Info("stage complete",
		"stage", res.Stage,
		"succeeded", res.Succeeded,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
}

func requireDirs(dirs ...string) error {
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrInputDirMissing, d)
		}
	}
	return nil
}

func listFiles(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && keep(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
