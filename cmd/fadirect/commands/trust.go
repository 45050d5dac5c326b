package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcrx/FADirect/internal/crypto"
	"github.com/madcrx/FADirect/internal/domain"
)

// trust <peer> [--key <base64>]: show the pinned identity of <peer>, or
// replace it after out-of-band verification.
func trustCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "trust <peer>",
		Short: "Show or re-pin a peer's identity key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.UserID(args[0])
			out := cmd.OutOrStdout()
			if key == "" {
				pinned, ok, err := appCtx.Sessions.PeerIdentity(cmd.Context(), peer)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "no identity pinned for %s\n", peer)
					return nil
				}
				fmt.Fprintf(out, "Fingerprint: %s\n", crypto.IdentityFingerprint(pinned))
				return nil
			}

			raw, err := crypto.FromB64Fixed(key, domain.IdentityPublicKeySize)
			if err != nil {
				return fmt.Errorf("invalid identity key: %w", err)
			}
			pub, err := domain.ParseIdentityPublicKey(raw)
			if err != nil {
				return err
			}
			if err := appCtx.Sessions.TrustIdentity(cmd.Context(), peer, pub); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s pinned to %s\n", peer, crypto.IdentityFingerprint(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "verified identity key (base64, as printed by fingerprint)")
	return cmd
}
