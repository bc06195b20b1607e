package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys as they appear in routebook.yaml; env vars use the ROUTEBOOK_ prefix
// with dots replaced by underscores (ROUTEBOOK_MERGE_ROUTES_PER_VOLUME).
const (
	KeyBaseDir         = "base_dir"
	KeyRouteRoot       = "route_root"
	KeySourceDir       = "dirs.source"
	KeyFormattedDir    = "dirs.formatted"
	KeySketchDir       = "dirs.sketches"
	KeyCompleteDir     = "dirs.complete"
	KeyVolumeDir       = "dirs.volumes"
	KeyRoutesPerVolume = "merge.routes_per_volume"
	KeyTotalVolumes    = "merge.total_volumes"
	KeyImageDPI        = "merge.image_dpi"
	KeyColumns         = "format.columns"
	KeyMaxImageWidthCM = "format.max_image_width_cm"
	KeySketchWidthIn   = "insert.sketch_width_in"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyListenAddr      = "server.addr"
	KeyAPIKey          = "server.api_key"
	KeyJobTTL          = "server.job_ttl"
	KeyQueueSize       = "server.queue_size"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ROUTEBOOK"

type Config struct {
	// Working tree
	BaseDir   string
	RouteRoot string // holds the L* route folders read by extract

	// Stage directories, relative to BaseDir unless absolute
	SourceDir    string
	FormattedDir string
	SketchDir    string
	CompleteDir  string
	VolumeDir    string

	// Merge
	RoutesPerVolume int
	TotalVolumes    int
	ImageDPI        int

	// Format
	Columns         int
	MaxImageWidthCM float64

	// Insert
	SketchWidthIn float64

	// Logging
	LogLevel  string
	LogFormat string // json or text

	// Server
	ListenAddr string
	APIKey     string
	JobTTL     time.Duration
	QueueSize  int
}

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseDir, ".")
	v.SetDefault(KeyRouteRoot, "..")
	v.SetDefault(KeySourceDir, "DGSS导出报告")
	v.SetDefault(KeyFormattedDir, "重新排版的报告")
	v.SetDefault(KeySketchDir, "素描图汇总")
	v.SetDefault(KeyCompleteDir, "报告-已插入素描图")
	v.SetDefault(KeyVolumeDir, "分册")
	v.SetDefault(KeyRoutesPerVolume, 0)
	v.SetDefault(KeyTotalVolumes, 0)
	v.SetDefault(KeyImageDPI, 330)
	v.SetDefault(KeyColumns, 2)
	v.SetDefault(KeyMaxImageWidthCM, 6.5)
	v.SetDefault(KeySketchWidthIn, 6.0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyListenAddr, ":8090")
	v.SetDefault(KeyAPIKey, "")
	v.SetDefault(KeyJobTTL, time.Hour)
	v.SetDefault(KeyQueueSize, 16)
}

// BindEnv makes every key overridable from ROUTEBOOK_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v. Defaults are registered first, so a
// bare viper instance yields the built-in values.
func Load(v *viper.Viper) Config {
	SetDefaults(v)
	cfg := Config{
		BaseDir:   v.GetString(KeyBaseDir),
		RouteRoot: v.GetString(KeyRouteRoot),

		SourceDir:    v.GetString(KeySourceDir),
		FormattedDir: v.GetString(KeyFormattedDir),
		SketchDir:    v.GetString(KeySketchDir),
		CompleteDir:  v.GetString(KeyCompleteDir),
		VolumeDir:    v.GetString(KeyVolumeDir),

		RoutesPerVolume: v.GetInt(KeyRoutesPerVolume),
		TotalVolumes:    v.GetInt(KeyTotalVolumes),
		ImageDPI:        v.GetInt(KeyImageDPI),

		Columns:         v.GetInt(KeyColumns),
		MaxImageWidthCM: v.GetFloat64(KeyMaxImageWidthCM),

		SketchWidthIn: v.GetFloat64(KeySketchWidthIn),

		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),

		ListenAddr: v.GetString(KeyListenAddr),
		APIKey:     v.GetString(KeyAPIKey),
		JobTTL:     v.GetDuration(KeyJobTTL),
		QueueSize:  v.GetInt(KeyQueueSize),
	}

	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return cfg
}

func (c Config) Validate() error {
	if c.RoutesPerVolume < 0 || c.TotalVolumes < 0 {
		return fmt.Errorf("%s and %s must not be negative", KeyRoutesPerVolume, KeyTotalVolumes)
	}
	if c.RoutesPerVolume > 0 && c.TotalVolumes > 0 {
		return fmt.Errorf("%s and %s are mutually exclusive", KeyRoutesPerVolume, KeyTotalVolumes)
	}
	if c.Columns < 1 {
		return fmt.Errorf("%s must be at least 1", KeyColumns)
	}
	if c.ImageDPI < 0 || c.ImageDPI > 0xffff {
		return fmt.Errorf("%s out of range: %d", KeyImageDPI, c.ImageDPI)
	}
	if c.MaxImageWidthCM <= 0 || c.SketchWidthIn <= 0 {
		return fmt.Errorf("image widths must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%s must be json or text, got %q", KeyLogFormat, c.LogFormat)
	}
	for key, dir := range map[string]string{
		KeySourceDir: c.SourceDir, KeyFormattedDir: c.FormattedDir, KeySketchDir: c.SketchDir,
		KeyCompleteDir: c.CompleteDir, KeyVolumeDir: c.VolumeDir,
	} {
		if dir == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

// Path resolves a stage directory against BaseDir.
func (c Config) Path(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.BaseDir, dir)
}
