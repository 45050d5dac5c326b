package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func prekeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prekeys",
		Short: "Inspect or replenish one-time prekeys",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show local and published prekey counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := appCtx.PreKeyStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "One-time prekeys: %d local, %d published\n", st.LocalPreKeys, st.PublishedPreKeys)
			fmt.Fprintf(out, "Signed prekey: %d (created %s)\n",
				st.SignedPreKeyID, st.SignedPreKeyCreated.Local().Format(time.DateTime))
			return nil
		},
	}

	var count int
	replenish := &cobra.Command{
		Use:   "replenish",
		Short: "Generate and publish more one-time prekeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := appCtx.Replenish(cmd.Context(), count)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d one-time prekeys\n", n)
			return nil
		},
	}
	replenish.Flags().IntVarP(&count, "count", "n", 0, "number of keys (default prekeys.batch)")

	cmd.AddCommand(status, replenish)
	return cmd
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Replace the signed prekey and prune old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := appCtx.Rotate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed prekey %d published\n", id)
			return nil
		},
	}
}
