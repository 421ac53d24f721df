package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if appCtx.HasIdentity() {
				return fmt.Errorf("identity already exists in %s; remove it first to start over", home)
			}
			if _, err := appCtx.Engine.Keys().GenerateIdentity(); err != nil {
				return err
			}
			if err := appCtx.SaveIdentity(passphrase); err != nil {
				return err
			}
			fp, err := appCtx.Engine.Keys().Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Identity created.\nFingerprint: %s\n", fp)
			return nil
		},
	}
}
