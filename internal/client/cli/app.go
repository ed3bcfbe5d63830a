// Package cli is the interactive shell of the sync engine: a small REPL that
// logs a device in, records local changes, and drives sync cycles against
// the server.
package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nimbusbrowser/nimbus/internal/client/config"
	"github.com/nimbusbrowser/nimbus/internal/cryptox"
	"github.com/nimbusbrowser/nimbus/internal/filex"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/sync/account"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/sync/conflict"
	"github.com/nimbusbrowser/nimbus/internal/sync/manager"
	"github.com/nimbusbrowser/nimbus/internal/sync/queue"
	"github.com/nimbusbrowser/nimbus/internal/sync/source"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	deviceID string
	dataDir  string

	queue     queue.Queue
	transport transport.Transport

	// set on login
	account *account.Account
	manager *manager.Manager
	sources map[change.DataType]*source.Memory

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	handler := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger := logging.NewSlogLogger(handler)

	deviceID := c.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	dataDir, err := filex.EnsureSubDir(c.DataDir)
	if err != nil {
		return nil, err
	}

	q, err := queue.NewSQLite(ctx, filepath.Join(dataDir, "queue.db"))
	if err != nil {
		return nil, fmt.Errorf("queue init error: %w", err)
	}

	app := &App{
		config:   c,
		logger:   logger,
		deviceID: deviceID,
		dataDir:  dataDir,
		queue:    q,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}

	tr, err := transport.NewGRPCClient(c.ServerEndpointAddr, app.accessToken, logger)
	if err != nil {
		return nil, err
	}
	app.transport = tr

	return app, nil
}

// accessToken supplies the current token for outbound calls; empty when
// logged out.
func (a *App) accessToken() string {
	if a.account == nil || a.account.Credentials() == nil {
		return ""
	}
	return a.account.Credentials().AuthToken
}

func (a *App) isLoggedIn() bool {
	return a.account != nil && a.account.IsLoggedIn()
}

func (a *App) showLogin() string {
	if a.isLoggedIn() {
		return a.account.Email
	}
	return "(logged out)"
}

// Login binds an authenticated session and builds the sync manager. The
// passphrase never leaves the process; only the key derived from it is kept.
func (a *App) Login() {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	token, err := GetSimpleText(a.reader, "Paste access token", a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	passphrase, err := GetPassphrase(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	key := cryptox.DeriveKey(string(passphrase), email)
	for i := range passphrase {
		passphrase[i] = 0
	}
	if err := a.checkPassphrase(key); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	acc := account.New(email, a.deviceID)
	acc.SetCredentials(account.Credentials{Email: email, AuthToken: token})

	m, err := manager.New(manager.Config{
		DeviceID: a.deviceID,
		Strategy: conflict.Strategy(a.config.Strategy),
	}, acc, a.transport, a.queue, cipher, a.logger)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}

	sources := make(map[change.DataType]*source.Memory)
	for _, dt := range change.AllDataTypes() {
		s := source.NewMemory(dt, string(dt))
		sources[dt] = s
		m.RegisterSource(s)
	}

	a.account = acc
	a.manager = m
	a.sources = sources

	if acc.Credentials().IsExpired() {
		fmt.Fprintln(a.out, "Warning: the pasted token is already expired.")
	}
	fmt.Fprintf(a.out, "Logged in as %s (device %s)\n", email, a.deviceID)
}

// checkPassphrase compares the derived key's verifier against the one stored
// in the data dir. A wrong passphrase would silently produce undecryptable
// data, so it is rejected before any sync state is touched. First login on a
// device records the verifier; the verifier is a hash of the key and reveals
// neither the key nor the passphrase.
func (a *App) checkPassphrase(key cryptox.Key) error {
	path := filepath.Join(a.dataDir, "key.check")

	verifier := hex.EncodeToString(key.Verifier())
	stored, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, []byte(verifier), 0o600)
	}
	if err != nil {
		return err
	}
	if string(stored) != verifier {
		return fmt.Errorf("passphrase does not match the one previously used on this device")
	}
	return nil
}

func (a *App) Logout() {
	if a.account != nil {
		a.account.ClearCredentials()
	}
	a.account = nil
	a.manager = nil
	a.sources = nil
	fmt.Fprintln(a.out, "Logged out.")
}

func (a *App) Close() error {
	return a.transport.Close()
}
