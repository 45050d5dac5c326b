package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity and prekeys, store them securely and publish the bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := appCtx.Init(cmd.Context(), force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Identity created for %s.\n", profile.UserID)
			fmt.Fprintf(out, "Registration ID: %d\n", profile.RegistrationID)
			fmt.Fprintf(out, "Fingerprint: %s\n", profile.Fingerprint)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity (re-registration)")
	return cmd
}
