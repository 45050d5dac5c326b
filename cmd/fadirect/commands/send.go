package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/domain"
)

// send <arrangement> <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <arrangement> <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := appCtx.Send(cmd.Context(), args[0], domain.UserID(args[1]), args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ID)
			return nil
		},
	}
}
