// Package main is the entry point for the routebook CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dgallion1/routebook/internal/config"
	"github.com/dgallion1/routebook/internal/format"
	"github.com/dgallion1/routebook/internal/imaging"
	"github.com/dgallion1/routebook/internal/pipeline"
	"github.com/dgallion1/routebook/internal/report"
	"github.com/dgallion1/routebook/internal/volume"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the routebook CLI.
var rootCmd = &cobra.Command{
	Use:   "routebook",
	Short: "Format DGSS route reports and bind them into field volumes",
	Long: `routebook turns DGSS route reports into field handbooks. Each stage is a
subcommand working on a directory tree:

  format   rewrite exported L*.docx reports into the standard layout
  extract  gather the sketches of every route folder into one pool
  insert   append each route's sketches to its formatted report
  merge    bind the complete reports into numbered volumes
  all      run the four stages in order

serve exposes the same stages over HTTP.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./routebook.yaml or ~/.config/routebook/routebook.yaml)")
	pf.String("base-dir", ".", "working directory holding the stage folders")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")

	for flag, key := range map[string]string{
		"base-dir":   config.KeyBaseDir,
		"log-level":  config.KeyLogLevel,
		"log-format": config.KeyLogFormat,
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("routebook")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "routebook"))
		}
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds command-local flags to config keys. It runs when the
// command is selected, so several commands may share a key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// loadConfig reads and validates the merged configuration.
func loadConfig() (config.Config, error) {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newRunner wires the stage runner from the configuration. Merge stages
// refresh the volume manifest.
func newRunner(cfg config.Config, log *slog.Logger) *pipeline.Runner {
	dirs := pipeline.Dirs{
		Source:    cfg.Path(cfg.SourceDir),
		RouteRoot: cfg.Path(cfg.RouteRoot),
		Formatted: cfg.Path(cfg.FormattedDir),
		Sketches:  cfg.Path(cfg.SketchDir),
		Complete:  cfg.Path(cfg.CompleteDir),
		Volumes:   cfg.Path(cfg.VolumeDir),
	}
	merge := volume.DefaultOptions()
	merge.DPI = cfg.ImageDPI
	opts := pipeline.Options{
		Format: format.Options{
			Columns:       cfg.Columns,
			MaxImageWidth: int64(cfg.MaxImageWidthCM / 2.54 * imaging.EMUPerInch),
		},
		Merge:       merge,
		Policy:      volume.Policy{RoutesPerVolume: cfg.RoutesPerVolume, TotalVolumes: cfg.TotalVolumes},
		SketchWidth: int64(cfg.SketchWidthIn * imaging.EMUPerInch),
	}
	r := pipeline.NewRunner(dirs, opts, log)
	r.OnStageDone(report.ManifestHook(dirs.Volumes, log))
	return r
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
