package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// export <file>: write the password-protected identity blob to a file for
// backup or transfer to another device.
func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the identity as a password-protected blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			blob, err := appCtx.Engine.Keys().Export(passphrase)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], blob, 0o600); err != nil {
				return err
			}
			fmt.Printf("Identity exported to %s\n", args[0])
			return nil
		},
	}
}

// import <file>: replace the local identity with one from an exported blob.
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an identity from an exported blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := appCtx.Engine.Keys().Import(blob, passphrase); err != nil {
				return err
			}
			if err := appCtx.SaveIdentity(passphrase); err != nil {
				return err
			}
			fp, err := appCtx.Engine.Keys().Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Identity imported.\nFingerprint: %s\n", fp)
			return nil
		},
	}
}
