// Command authcli restores or establishes a storefront session from the
// terminal: it loads configuration, opens the credential store, exchanges
// credentials when provided, and then holds the session until interrupted so
// proactive expiry logout and unauthorized-response handling stay live.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fxsociety/go-session-client/internal/config"
	"github.com/fxsociety/go-session-client/session"
	"github.com/fxsociety/go-session-client/store"
	"github.com/fxsociety/go-session-client/transport"
)

func main() {
	_ = godotenv.Load()

	username := flag.String("username", "", "email address to log in with")
	password := flag.String("password", "", "password for -username")
	flag.Parse()

	if err := run(*username, *password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(username, password string) error {
	c := config.New()
	displayAppName(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	credentialStore, err := store.NewSQLite(filepath.Join(c.GetDataFolder(), "session.db"))
	if err != nil {
		return errors.Wrap(err, "open credential store")
	}
	defer credentialStore.Close()

	client := transport.NewClient(
		c.GetAPIBaseURL(),
		transport.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
		transport.WithTokenReader(credentialStore),
		transport.WithLogger(logger),
	)

	manager, err := session.New(credentialStore, client, session.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}
	defer manager.Close()

	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		return errors.Wrap(err, "restore session")
	}

	if username != "" {
		token, err := client.ExchangeCredentials(ctx, username, password)
		if err != nil {
			return errors.Wrap(err, "exchange credentials")
		}
		if err := manager.Login(ctx, token, username); err != nil {
			return errors.Wrap(err, "login")
		}
	}

	if !manager.IsAuthenticated() {
		logger.Info().Msg("No active session; run with -username and -password to log in")
		return nil
	}

	if user := manager.User(); user != nil {
		logger.Info().Str("email", user.Email).Int64("id", user.ID).Msg("Session active")
	} else {
		logger.Info().Msg("Session active (profile unavailable)")
	}

	logger.Info().Msg("Holding session until interrupted")
	waitForStopSignal()
	logger.Info().Bool("authenticated", manager.IsAuthenticated()).Msg("Exiting")
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
