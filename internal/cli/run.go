package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yoockh/livevoice/internal/app"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the voice node and its control bridge",
		Long:  "Run the voice node until SIGINT or SIGTERM. A capture in progress is stopped and its recording published before exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				deps.Config.Port = port
			}
			if err := deps.Config.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			node, err := app.New(ctx, deps.Config, deps.Logger, app.Overrides{})
			if err != nil {
				return err
			}
			defer node.Close()

			deps.Logger.WithField("participant", node.Identity.Participant()).Info("voice node starting")
			return node.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Control bridge port (overrides PORT)")
	return cmd
}
