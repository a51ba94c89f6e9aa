// Command idrac2ntfy receives SNMP traps from a Dell iDRAC and publishes
// them as ntfy notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geekxflood/idrac2ntfy/alert"
	"github.com/geekxflood/idrac2ntfy/config"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/geekxflood/idrac2ntfy/metrics"
	"github.com/geekxflood/idrac2ntfy/notify"
	"github.com/geekxflood/idrac2ntfy/snmptrap"
	"github.com/geekxflood/idrac2ntfy/trapprocessor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds Stop beyond the worker pool drain timeout.
const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "idrac2ntfy:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "idrac2ntfy",
		Short: "Forward Dell iDRAC SNMP traps to ntfy",
		Long: `idrac2ntfy listens for SNMP v1/v2c traps sent by a Dell iDRAC, classifies
them by severity and publishes each one as an ntfy notification.

Without --config, settings are read from the environment (NTFY_URL,
NTFY_TOKEN, NTFY_PRIORITY, NTFY_TAGS, SNMP_LISTEN_ADDRESS, SNMP_LISTEN_PORT,
SNMP_COMMUNITY, IDRAC_LABEL, LOG_LEVEL, LOG_FORMAT, METRICS_LISTEN_ADDRESS).`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON configuration file")

	cmd.AddCommand(newValidateCommand())
	return cmd
}

func newValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is valid: listening on %s:%d, delivering to %s\n",
				settings.Source(), settings.GetSNMPBindAddress(), settings.GetSNMPPort(), settings.Ntfy.URL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON configuration file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.Init(settings.LoggingConfig()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Shutdown() }()

	log := logging.NewComponentLogger("main", "bootstrap")

	recorder := metrics.NewRecorder()

	dispatcherConfig := settings.DispatcherConfig()
	dispatcherConfig.Logger = logging.NewComponentLogger("dispatcher", "ntfy")
	dispatcherConfig.Recorder = recorder
	dispatcher, err := notify.NewDispatcher(dispatcherConfig)
	if err != nil {
		return err
	}

	processor, err := trapprocessor.New(settings, trapprocessor.Pipeline{
		Decoder: snmptrap.NewDecoder(snmptrap.DecoderConfig{
			Community: settings.SNMP.Community,
			Logger:    logging.SNMPLogger(logging.NewComponentLogger("decoder", "gosnmp")),
		}),
		Classifier: alert.NewClassifier(alert.Config{
			Source: settings.Device.Label,
			Logger: logging.NewComponentLogger("classifier", "idrac"),
		}),
		Builder:    notify.NewBuilder(settings.BuilderConfig()),
		Dispatcher: dispatcher,
		Metrics:    recorder,
		Logger:     logging.NewComponentLogger("processor", "pipeline"),
	})
	if err != nil {
		return err
	}

	if err := processor.Start(ctx); err != nil {
		return err
	}
	log.Info("idrac2ntfy started",
		"version", version,
		"config", settings.Source(),
		"address", processor.Addr().String(),
		"ntfy_url", settings.Ntfy.URL,
		"community_check", settings.SNMP.Community != "")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), settings.GetDrainTimeout()+shutdownTimeout)
		defer cancel()
		if err := processor.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to stop trap processor: %w", err)
		}
		return nil
	})

	if addr := settings.Metrics.ListenAddress; addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr, recorder, logging.NewComponentLogger("metrics", "http"))
		})
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, 0)
		if err != nil {
			log.Warn("configuration hot reload disabled", "error", err)
		} else {
			watcher.OnChange(reloadHandler(settings, log))
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	err = g.Wait()
	log.Info("idrac2ntfy stopped")
	return err
}

// reloadHandler applies the log level of a reloaded configuration and warns
// about changes that only take effect after a restart. running is the
// configuration the process started with. Callbacks run on the watcher
// goroutine, one at a time.
func reloadHandler(running *config.Settings, log logging.Logger) func(*config.Settings, error) {
	level := running.LoggingConfig().Level

	return func(next *config.Settings, err error) {
		if err != nil {
			log.Error("keeping previous configuration", "error", err)
			return
		}

		if nextLevel := next.LoggingConfig().Level; nextLevel != level {
			if err := logging.SetLevel(nextLevel); err != nil {
				log.Error("failed to apply log level", "level", nextLevel, "error", err)
			} else {
				level = nextLevel
				log.Info("log level changed", "level", level)
			}
		}

		if changed := running.RestartRequired(next); len(changed) > 0 {
			log.Warn("configuration changed, restart required to apply", "sections", changed)
		}
	}
}
