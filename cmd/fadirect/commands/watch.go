package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/domain"
)

// watch <arrangement>: print new messages until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <arrangement>",
		Short: "Stream new messages of an arrangement until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := appCtx.Watch(cmd.Context(), args[0], func(m domain.DecryptedMessage) {
				printMessage(cmd.OutOrStdout(), m)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
