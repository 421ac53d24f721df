package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	var (
		password    string
		displayName string
	)
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account on the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("account password required (--password)")
			}
			if err := appCtx.Connect(); err != nil {
				return err
			}
			defer appCtx.Engine.Close()

			if err := appCtx.Engine.Register(args[0], displayName, password); err != nil {
				return err
			}
			if err := appCtx.SaveSession(); err != nil {
				return err
			}
			fmt.Printf("Registered %s with relay\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (min 8 characters)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name shown to other users")
	return cmd
}
