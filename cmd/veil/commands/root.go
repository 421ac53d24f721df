package commands

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"veil/internal/app"
	"veil/internal/client"
	"veil/internal/domain"
	"veil/internal/protocol"
)

var (
	home       string
	passphrase string
	relayAddr  string
	tier       int
	insecure   bool

	appCtx *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:   "veil",
		Short: "End-to-end encrypted chat CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".veil")
			}

			log := logrus.New()
			log.SetLevel(logrus.WarnLevel)

			var tlsCfg *tls.Config
			if insecure {
				tlsCfg = &tls.Config{InsecureSkipVerify: true}
			}

			var err error
			appCtx, err = app.New(app.Config{
				Home:      home,
				RelayAddr: relayAddr,
				Tier:      domain.SecurityTier(tier),
				TLS:       tlsCfg,
				Log:       log,
			}, chatHandlers())
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.veil)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity")
	root.PersistentFlags().StringVar(&relayAddr, "relay", "", "relay address (e.g. 127.0.0.1:8888)")
	root.PersistentFlags().IntVar(&tier, "tier", int(domain.TierStandard), "security tier (1=basic 2=standard 3=maximum)")
	root.PersistentFlags().BoolVar(&insecure, "insecure-tls", false, "use TLS but skip certificate verification")

	root.AddCommand(initCmd(), fingerprintCmd(), exportCmd(), importCmd(),
		verifyCmd(), statusCmd(), registerCmd(), chatCmd())
	return root.Execute()
}

// chatHandlers prints pushed relay traffic for the interactive commands.
func chatHandlers() client.Handlers {
	return client.Handlers{
		OnMessage: func(from, text, _ string) {
			fmt.Printf("[%s] %s\n", from, text)
		},
		OnKeyExchange: func(from string, rec domain.TrustedKeyRecord) {
			fmt.Printf("* key received from %s\n  fingerprint: %s\n  verify it out of band, then run: veil verify %s <fingerprint>\n",
				from, rec.Fingerprint, from)
		},
		OnPresence: func(users []domain.OnlineUser) {
			// Quiet by default; `/users` prints on demand.
		},
		OnSecurityAlert: func(from string, alert protocol.SecurityAlert) {
			fmt.Printf("! security alert from %s [%s]: %s\n", from, alert.Severity, alert.Description)
		},
		OnDecryptError: func(from string, err error) {
			fmt.Printf("! rejected message from %s: %v\n", from, err)
		},
	}
}

// requirePassphrase loads the on-disk identity, failing early when -p is
// missing.
func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return appCtx.LoadIdentity(passphrase)
}
