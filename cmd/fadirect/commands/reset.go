package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/domain"
)

// reset <peer>: drop all sessions with <peer>. The pinned identity is kept.
func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Drop the sessions with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.Sessions.Reset(cmd.Context(), domain.UserID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sessions with %s removed\n", args[0])
			return nil
		},
	}
}
