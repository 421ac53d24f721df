package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"veil/internal/domain"
	"veil/internal/relay"
	"veil/internal/store"
)

func main() {
	var (
		addr     string
		dataDir  string
		mem      bool
		certFile string
		keyFile  string
		tokenTTL time.Duration
		debug    bool
	)

	root := &cobra.Command{
		Use:   "relay",
		Short: "Untrusted relay for veil clients, forwarding between online users only",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}

			var (
				accounts domain.AccountStore
				err      error
			)
			if mem {
				accounts = store.NewMemory()
				log.Warn("using in-memory store; accounts and sessions are lost on exit")
			} else {
				accounts, err = store.OpenBadger(dataDir, log)
				if err != nil {
					return err
				}
			}
			defer accounts.Close()

			srv := relay.NewServer(relay.Config{
				Addr:        addr,
				TLSCertFile: certFile,
				TLSKeyFile:  keyFile,
				TokenTTL:    tokenTTL,
			}, accounts, store.HashPassword, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	root.Flags().StringVar(&addr, "addr", ":8888", "listen address")
	root.Flags().StringVar(&dataDir, "data", "veil-relay-data", "BadgerDB directory")
	root.Flags().BoolVar(&mem, "mem", false, "use the in-memory store (state lost on exit)")
	root.Flags().StringVar(&certFile, "tls-cert", "", "TLS certificate file")
	root.Flags().StringVar(&keyFile, "tls-key", "", "TLS key file")
	root.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "session token lifetime")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
