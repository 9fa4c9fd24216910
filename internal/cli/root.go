package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/version"
)

type Dependencies struct {
	Config *config.Config
	Logger *logrus.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "livevoice",
		Short:         "Push-to-talk voice chat over a shared pub/sub store",
		Long:          "livevoice captures the microphone, streams it as short audio fragments over Redis and plays the live audio of other participants.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewRenameCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
