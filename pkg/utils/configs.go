package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrSnapshotNotFound is returned by Validate when the payload file is missing.
var ErrSnapshotNotFound = errors.New("snapshot file not found")

type Config struct {
	SnapshotFile   string `yaml:"snapshot_file"`
	MonitorSeconds int    `yaml:"pre_post_monitor_duration"`

	ChartsDir    string `yaml:"charts_dir"`
	ChartFormat  string `yaml:"chart_format"`
	RenderDuring bool   `yaml:"render_during"`
	ExportFormat string `yaml:"export_format"`
	MetricsFile  string `yaml:"metrics_file"`

	BaseURL       string `yaml:"base_url"`
	Collection    string `yaml:"collection"`
	ContainerName string `yaml:"container_name"`
	Image         string `yaml:"image"`
	Port          int    `yaml:"port"`
	StorageDir    string `yaml:"storage_dir"`

	Probe         string        `yaml:"probe"`
	Interval      time.Duration `yaml:"interval"`
	DiskPath      string        `yaml:"disk_path"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxWait       time.Duration `yaml:"max_wait"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	SessionID string `yaml:"-"`
	Hostname  string `yaml:"-"`
}

func NewConfig() *Config {
	return &Config{
		MonitorSeconds: DefaultMonitorSeconds,
		ChartsDir:      DefaultChartsDir,
		ChartFormat:    DefaultChartFormat,
		ExportFormat:   DefaultExportFormat,
		BaseURL:        DefaultBaseURL,
		Collection:     DefaultCollection,
		ContainerName:  DefaultContainerName,
		Image:          DefaultImage,
		Port:           DefaultPort,
		StorageDir:     DefaultStorageDir,
		Probe:          ProbeHost,
		Interval:       DefaultInterval,
		DiskPath:       "/",
		SettleDelay:    DefaultSettleDelay,
		PollInterval:   DefaultPollInterval,
		LogLevel:       DefaultLogLevel,
		LogPretty:      true,
		SessionID:      uuid.NewString(),
		Hostname:       GetHostname(),
	}
}

// BindFlags registers every option on fs, writing into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.SnapshotFile, "snapshot-file", cfg.SnapshotFile, "Path to the snapshot file to upload (required)")
	fs.IntVar(&cfg.MonitorSeconds, "pre-post-monitor-duration", cfg.MonitorSeconds, "Duration in seconds of pre and post monitoring")

	fs.StringVar(&cfg.ChartsDir, "charts-dir", cfg.ChartsDir, "Directory charts and sample exports are written to")
	fs.StringVar(&cfg.ChartFormat, "chart-format", cfg.ChartFormat, "Chart format: png, html or both")
	fs.BoolVar(&cfg.RenderDuring, "render-during", cfg.RenderDuring, "Also render the chart of the upload and load phase")
	fs.StringVar(&cfg.ExportFormat, "export-format", cfg.ExportFormat, "Sample export format: jsonl, csv, parquet or none")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write a Prometheus textfile with run metrics to this path")

	fs.StringVar(&cfg.BaseURL, "endpoint", cfg.BaseURL, "Base URL of the vector database")
	fs.StringVar(&cfg.Collection, "collection", cfg.Collection, "Collection the snapshot is restored into")
	fs.StringVar(&cfg.ContainerName, "container-name", cfg.ContainerName, "Name of the database container")
	fs.StringVar(&cfg.Image, "image", cfg.Image, "Image used when the container has to be created")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port published by the container")
	fs.StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "Host directory mounted as container storage")

	fs.StringVar(&cfg.Probe, "probe", cfg.Probe, "Metric source: host (gopsutil) or proc (procfs and statfs)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Sampling interval and CPU measurement window")
	fs.StringVar(&cfg.DiskPath, "disk-path", cfg.DiskPath, "Path whose filesystem usage is sampled")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "Wait after provisioning before uploading")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Wait between readiness checks")
	fs.DurationVar(&cfg.MaxWait, "max-wait", cfg.MaxWait, "Give up waiting for readiness after this long (0 waits forever)")
	fs.DurationVar(&cfg.UploadTimeout, "upload-timeout", cfg.UploadTimeout, "Upload request timeout (0 disables)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human readable console logs")
}

// ApplyFile overlays a YAML config file onto cfg. Flags explicitly set on
// the command line keep precedence over the file.
func ApplyFile(fs *pflag.FlagSet, path string, cfg *Config) error {
	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("failed to reapply --%s: %w", name, err)
		}
	}
	return nil
}

// LoadFile decodes a YAML file into cfg, leaving absent keys untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks option ranges and that the snapshot file exists.
func (c *Config) Validate() error {
	if c.SnapshotFile == "" {
		return fmt.Errorf("--snapshot-file is required")
	}
	st, err := os.Stat(c.SnapshotFile)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, c.SnapshotFile)
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrSnapshotNotFound, c.SnapshotFile)
	}

	if c.MonitorSeconds < 0 {
		return fmt.Errorf("pre-post-monitor-duration must not be negative, got %d", c.MonitorSeconds)
	}
	if c.Probe != ProbeHost && c.Probe != ProbeProc {
		return fmt.Errorf("unsupported probe: %s", c.Probe)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWait < 0 || c.SettleDelay < 0 || c.UploadTimeout < 0 {
		return fmt.Errorf("max-wait, settle-delay and upload-timeout must not be negative")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.BaseURL, err)
	}
	if c.Collection == "" {
		return fmt.Errorf("collection must not be empty")
	}
	return nil
}

func (c *Config) MonitorDuration() time.Duration {
	return time.Duration(c.MonitorSeconds) * time.Second
}

// UploadURL is the snapshot upload endpoint of the collection.
func (c *Config) UploadURL() string {
	return c.collectionURL() + "/snapshots/upload"
}

// StatusURL answers 200 once the collection is queryable.
func (c *Config) StatusURL() string {
	return c.collectionURL()
}

func (c *Config) collectionURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/collections/" + url.PathEscape(c.Collection)
}

// StoragePath resolves StorageDir against the working directory.
func (c *Config) StoragePath() string {
	if filepath.IsAbs(c.StorageDir) {
		return c.StorageDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return c.StorageDir
	}
	return filepath.Join(wd, c.StorageDir)
}

func GetHostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
