package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	"github.com/oshokin/alarm-subsystem/internal/service/client"
)

// controlOptions are shared by every control subcommand.
var controlOptions client.Options

// newControlCommand builds a subcommand running action against the service.
func newControlCommand(action client.Action, short string, configure func(cmd *cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := controlOptions
			opts.Action = action

			return client.Run(cmd.Context(), &opts, cmd.OutOrStdout())
		},
	}

	if configure != nil {
		configure(cmd)
	}

	return cmd
}

func attachControlCommands(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&controlOptions.ServerAddress, "server", client.DefaultServerAddress, "alarm subsystem gRPC address")
	flags.DurationVar(&controlOptions.Timeout, "timeout", config.DefaultTimeout, "timeout of each call")
	flags.StringVarP(&controlOptions.PlaceID, "place", "p", "", "place to act on")
	flags.StringVarP(&controlOptions.Actor, "actor", "a", "", "acting person address, the OS user when empty")

	withIncident := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&controlOptions.Incident, "incident", "i", "", "incident address")
	}

	withMethod := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&controlOptions.Method, "method", "m", incident.MethodApp, "how the request was made")
	}

	root.AddCommand(
		newControlCommand(client.ActionArm, "Arm the security alarm.", func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&controlOptions.Mode, "mode", string(alarm.SecurityModeOn), "arming mode, ON or PARTIAL")
			cmd.Flags().BoolVar(&controlOptions.Bypass, "bypass", false, "exclude triggered or offline devices")
		}),
		newControlCommand(client.ActionDisarm, "Disarm the security alarm.", withMethod),
		newControlCommand(client.ActionPanic, "Raise the panic alarm.", nil),
		newControlCommand(client.ActionVerify, "Confirm an incident.", withIncident),
		newControlCommand(client.ActionCancel, "Cancel the current incident.", func(cmd *cobra.Command) {
			withIncident(cmd)
			withMethod(cmd)
		}),
		newControlCommand(client.ActionIncidents, "List the incidents of a place.", nil),
	)
}
