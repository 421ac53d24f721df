package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// verify <peer> <fingerprint>: mark a peer's key verified after comparing
// fingerprints over a channel the relay cannot touch.
func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <peer> <fingerprint>",
		Short: "Confirm a peer's fingerprint after out-of-band comparison",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, fp := args[0], args[1]
			if appCtx.Engine.Trust().VerifyFingerprint(peer, fp) {
				fmt.Printf("%s verified\n", peer)
				return nil
			}
			return fmt.Errorf("fingerprint mismatch for %q: do NOT trust this key until it matches", peer)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <peer>",
		Short: "Show what is known about a peer's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := appCtx.Engine.Trust().Status(args[0])
			if !st.HasKey {
				fmt.Printf("%s: no key on file\n", args[0])
				return nil
			}
			verified := "UNVERIFIED"
			if st.Verified {
				verified = "verified"
			}
			fmt.Printf("%s: %s\n  fingerprint: %s\n  key age: %.1f days\n",
				args[0], verified, st.Fingerprint, st.AgeDays)
			return nil
		},
	}
}
