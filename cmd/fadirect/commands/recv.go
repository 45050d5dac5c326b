package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/domain"
)

// recv <arrangement>: list and decrypt the messages of an arrangement.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv <arrangement>",
		Short: "List and decrypt the messages of an arrangement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := appCtx.Receive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func printMessage(w io.Writer, m domain.DecryptedMessage) {
	fmt.Fprintf(w, "%s [%s] %s\n", m.Timestamp.Local().Format(time.DateTime), m.SenderID, m.Content)
}
