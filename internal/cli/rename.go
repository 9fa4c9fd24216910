package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoockh/livevoice/internal/identity"
)

func NewRenameCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name>",
		Short: "Change the display name shown to other participants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := identity.LoadOrCreate(deps.Config.IdentityFile)
			if err != nil {
				return err
			}
			if err := ident.Rename(strings.Join(args, " ")); err != nil {
				return err
			}
			p := ident.Participant()
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %q (id %s)\n", p.Name, p.ID)
			return nil
		},
	}
}
