package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/service/server"
	"github.com/oshokin/alarm-subsystem/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd runs the alarm subsystem engine.
	rootCmd = &cobra.Command{
		Use:   "alarm-subsystem [listen-address]",
		Short: "Run the alarm subsystem engine.",
		Long: `Runs the alarm subsystem of a smart-home platform.

Device events arrive over MQTT or the ReportDevice RPC, each place is handled
by its own executor, and actors arm, disarm, verify and cancel alarms over gRPC.
Settings come from the YAML file and ALARM_* environment variables.
The listen address argument overrides listen_addr from settings.
The arm, disarm, panic, verify, cancel and incidents subcommands act on a
running service.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
			})
		},
	}
)

// Execute runs the alarm-subsystem CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	attachControlCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
