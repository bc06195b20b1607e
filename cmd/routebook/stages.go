package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/routebook/internal/config"
	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/report"
)

var (
	formatCmd = stageCommand(pipeline.StageFormat, "Rewrite exported reports into the standard layout",
		`Format reads every L<digits>.docx from the source folder, regroups it into
point, segment and summary blocks, and writes <name>_formatted.docx into the
formatted folder. Lock files (~$*) are ignored.`)

	extractCmd = stageCommand(pipeline.StageExtract, "Gather route sketches into the sketch pool",
		`Extract copies the PNG files of every L<digits> route folder's 素描图
subfolder into the sketch pool, named after the route.`)

	insertCmd = stageCommand(pipeline.StageInsert, "Append sketches to formatted reports",
		`Insert adds a single-column sketch section to every formatted report and
writes <route>_完整版.docx. Reports without sketches are copied unchanged.`)

	mergeCmd = stageCommand(pipeline.StageMerge, "Bind complete reports into volumes",
		`Merge sorts the complete reports by route number, splits them into volumes
and writes one 野外手图_第N册_<first>-<last>.docx per volume, preceded by a
cover page. A manifest.yaml with checksums is written next to the volumes.`)

	allCmd = stageCommand(pipeline.StageAll, "Run format, extract, insert and merge in order",
		`All runs every stage in order. A stage that cannot start, for example
because its input folder is missing, stops the chain.`)
)

func init() {
	for _, cmd := range []*cobra.Command{extractCmd, allCmd} {
		cmd.Flags().String("route-root", "..", "folder holding the L* route folders")
	}
	for _, cmd := range []*cobra.Command{mergeCmd, allCmd} {
		cmd.Flags().Int("routes-per-volume", 0, "routes per volume (default 12)")
		cmd.Flags().Int("total-volumes", 0, "number of volumes to split into")
		cmd.Flags().Int("dpi", 330, "resolution written into volume images")
	}
	for _, cmd := range []*cobra.Command{formatCmd, extractCmd, insertCmd, mergeCmd, allCmd} {
		cmd.Flags().String("report", "", "write a run report to this file (.md or .html)")
		rootCmd.AddCommand(cmd)
	}
}

func stageCommand(stage pipeline.Stage, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   string(stage),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			keys := map[string]string{}
			for flag, key := range map[string]string{
				"route-root":        config.KeyRouteRoot,
				"routes-per-volume": config.KeyRoutesPerVolume,
				"total-volumes":     config.KeyTotalVolumes,
				"dpi":               config.KeyImageDPI,
			} {
				if cmd.Flags().Lookup(flag) != nil {
					keys[flag] = key
				}
			}
			return bindFlags(cmd.Flags(), keys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, stage)
		},
	}
}

func runStage(cmd *cobra.Command, stage pipeline.Stage) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	results, runErr := newRunner(cfg, log).Run(ctx, stage, func(s pipeline.Stage) {
		log.Info("stage started", "stage", s)
	})
	report.Console(cmd.OutOrStdout(), results)

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		run := report.Run{Stage: stage, Started: started, Finished: time.Now(), Results: results}
		if runErr != nil {
			run.Status = string(pipeline.StatusFailed)
			run.Errors = []string{runErr.Error()}
		}
		if err := writeReport(path, run); err != nil {
			log.Error("report not written", "path", path, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	failed := 0
	for _, r := range results {
		failed += r.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func writeReport(path string, run report.Run) error {
	data := report.Markdown(run)
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
		page, err := report.HTML(run)
		if err != nil {
			return err
		}
		data = page
	}
	return os.WriteFile(path, data, 0o644)
}
