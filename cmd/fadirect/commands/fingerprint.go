package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint and public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := appCtx.Keys.IdentityKeyPair()
			if err != nil {
				return err
			}
			pub := id.Public()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprint: %s\n", crypto.IdentityFingerprint(pub))
			fmt.Fprintf(out, "Identity key: %s\n", crypto.B64(pub.Bytes()))
			return nil
		},
	}
}
