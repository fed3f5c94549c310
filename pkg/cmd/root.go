// Package cmd provides the loadmon command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"LoadMonitor/pkg/exporting"
	"LoadMonitor/pkg/graphing"
	"LoadMonitor/pkg/logging"
	"LoadMonitor/pkg/orchestrating"
	"LoadMonitor/pkg/polling"
	"LoadMonitor/pkg/probing"
	"LoadMonitor/pkg/provisioning"
	"LoadMonitor/pkg/sampling"
	"LoadMonitor/pkg/telemetry"
	"LoadMonitor/pkg/uploading"
	"LoadMonitor/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// newProvisioner builds the container provisioner. Tests replace it.
var newProvisioner = func(cfg *utils.Config, logger zerolog.Logger) (provisioning.Provisioner, func() error, error) {
	p, err := provisioning.NewDockerProvisioner(provisioning.DockerConfig{
		Image:      cfg.Image,
		Port:       cfg.Port,
		StorageDir: cfg.StoragePath(),
		Pull:       true,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func newProbe(cfg *utils.Config) sampling.Probe {
	if cfg.Probe == utils.ProbeProc {
		return probing.NewProcProbe(probing.DefaultProcRoot, cfg.Interval, cfg.DiskPath)
	}
	return sampling.NewHostProbe(cfg.Interval, cfg.DiskPath)
}

// NewRootCmd creates the loadmon command. It has no subcommands.
func NewRootCmd() *cobra.Command {
	cfg := utils.NewConfig()
	var configFile string

	root := &cobra.Command{
		Use:   "loadmon --snapshot-file PATH",
		Short: "Monitor host resources around a vector database snapshot load",
		Long: `loadmon samples CPU, memory and disk usage before, during and after
uploading a snapshot into a Qdrant container.

Phases:
  pre-monitor   fixed-duration sampling of the idle host
  provision     start the database container if it is not running
  upload        upload the snapshot while a background sampler records
  await-ready   poll the collection until it answers, still sampling
  post-monitor  fixed-duration sampling after the load
  render        write pre and post upload charts`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			if configFile != "" {
				if err := utils.ApplyFile(c.Flags(), configFile, cfg); err != nil {
					return err
				}
			}
			return run(c.Context(), cfg)
		},
	}

	utils.BindFlags(root.Flags(), cfg)
	root.Flags().StringVar(&configFile, "config", "", "YAML config file; explicit flags override it")

	return root
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func run(ctx context.Context, cfg *utils.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sink, err := graphing.NewSink(cfg.ChartFormat)
	if err != nil {
		return err
	}
	if cfg.ExportFormat != utils.ExportNone {
		if _, ok := exporting.Get(cfg.ExportFormat); !ok {
			return fmt.Errorf("unsupported export format: %s (available: %s, none)",
				cfg.ExportFormat, strings.Join(exporting.Names(), ", "))
		}
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}).With().Str("host", cfg.Hostname).Logger()

	recorder := telemetry.NewRecorder()
	engine := sampling.NewEngine(
		newProbe(cfg),
		sampling.WithInterval(cfg.Interval),
		sampling.WithObserver(recorder.Observe),
		sampling.WithLogger(logger),
	)

	prov, closeProv, err := newProvisioner(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeProv(); err != nil {
			logger.Debug().Err(err).Msg("Provisioner close failed")
		}
	}()

	prober := polling.NewHTTPProber(0, logger)
	orch, err := orchestrating.New(orchestrating.Config{
		SessionID:       cfg.SessionID,
		ContainerName:   cfg.ContainerName,
		SnapshotFile:    cfg.SnapshotFile,
		UploadURL:       cfg.UploadURL(),
		MonitorDuration: cfg.MonitorDuration(),
		SettleDelay:     cfg.SettleDelay,
		ChartsDir:       cfg.ChartsDir,
		RenderDuring:    cfg.RenderDuring,
		ExportFormat:    cfg.ExportFormat,
		MetricsFile:     cfg.MetricsFile,
	}, orchestrating.Deps{
		Engine:      engine,
		Provisioner: prov,
		Uploader:    uploading.NewHTTPUploader(cfg.UploadTimeout, logger),
		Poller: polling.NewPoller(
			polling.WithInterval(cfg.PollInterval),
			polling.WithMaxWait(cfg.MaxWait),
			polling.WithLogger(logger),
		),
		Check:    polling.Check(prober, cfg.StatusURL()),
		Sink:     sink,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	_, err = orch.Run(ctx)
	return err
}
