package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"veil/internal/client"
	"veil/internal/trust"
)

const (
	identityFile = "identity.veil"
	sessionFile  = "session.token"
)

// App bundles the client engine and its persistence paths for the CLI.
type App struct {
	Engine *client.Engine
	Config Config
}

// New constructs the dependency graph from cfg. The config directory is
// created if missing; any identity on disk is NOT loaded here, since that
// needs the passphrase (see LoadIdentity).
func New(cfg Config, handlers client.Handlers) (*App, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	trustStore := trust.NewFileStore(cfg.Home)
	engine, err := client.New(cfg.Tier, trustStore, handlers, cfg.Log)
	if err != nil {
		return nil, err
	}

	app := &App{Engine: engine, Config: cfg}
	if tok, err := os.ReadFile(app.sessionPath()); err == nil && len(tok) > 0 {
		engine.ResumeToken(string(tok))
	}
	return app, nil
}

// HasIdentity reports whether an identity blob exists on disk.
func (a *App) HasIdentity() bool {
	_, err := os.Stat(a.identityPath())
	return err == nil
}

// LoadIdentity decrypts the on-disk identity with the passphrase.
func (a *App) LoadIdentity(passphrase string) error {
	blob, err := os.ReadFile(a.identityPath())
	if err != nil {
		return fmt.Errorf("read identity: %w (run init first?)", err)
	}
	return a.Engine.Keys().Import(blob, passphrase)
}

// SaveIdentity writes the current identity to disk encrypted under the
// passphrase.
func (a *App) SaveIdentity(passphrase string) error {
	blob, err := a.Engine.Keys().Export(passphrase)
	if err != nil {
		return err
	}
	return writeFileAtomic(a.identityPath(), blob, 0o600)
}

// SaveSession persists the engine's relay session token so a later run
// can resume without a password. An empty token clears the file.
func (a *App) SaveSession() error {
	tok := a.Engine.SessionToken()
	if tok == "" {
		err := os.Remove(a.sessionPath())
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return writeFileAtomic(a.sessionPath(), []byte(tok), 0o600)
}

// Connect dials the configured relay.
func (a *App) Connect() error {
	if a.Config.RelayAddr == "" {
		return fmt.Errorf("no relay configured. use --relay")
	}
	return a.Engine.Connect(a.Config.RelayAddr, a.Config.TLS)
}

func (a *App) identityPath() string { return filepath.Join(a.Config.Home, identityFile) }
func (a *App) sessionPath() string  { return filepath.Join(a.Config.Home, sessionFile) }

// writeFileAtomic writes via a temp file then rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
