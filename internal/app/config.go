package app

import (
	"crypto/tls"

	"github.com/sirupsen/logrus"

	"veil/internal/domain"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home      string              // config directory, e.g. $HOME/.veil
	RelayAddr string              // relay host:port, e.g. 127.0.0.1:8888
	Tier      domain.SecurityTier // security tier for new identities
	TLS       *tls.Config         // nil means plain TCP
	Log       *logrus.Logger      // optional; defaults to logrus.New()
}
