// Command webmail serves a browser-based Gmail client.
//
// Usage:
//
//	webmail [-config path] [serve]
//	webmail [-config path] secret set     # reads the OAuth client secret from stdin
//	webmail [-config path] secret delete
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhle/webmail/internal/app"
	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/logging"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/web"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "webmail:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("webmail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"serve"}
	}

	switch rest[0] {
	case "serve":
		return serve(cfg, credential.SystemSecrets(), stderr)
	case "secret":
		return secret(rest[1:], credential.SystemSecrets(), stdin, stdout)
	default:
		return fmt.Errorf("unknown command %q (want serve or secret)", rest[0])
	}
}

func serve(cfg *model.AppConfig, secrets credential.SecretSource, stderr io.Writer) error {
	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	client, oauthEnabled, err := credential.ResolveOAuthClient(cfg.OAuth, secrets)
	if err != nil {
		logger.Warn("reading OAuth client secret from keyring", "error", err)
	}
	if !oauthEnabled {
		logger.Info("google sign-in not configured; app password login only")
	}

	factory, err := app.NewSessionFactory(cfg, logger)
	if err != nil {
		return err
	}
	registry := app.NewRegistry(app.Options{
		FetchLimit:     cfg.Mail.FetchLimit,
		OAuth:          client,
		OAuthEnabled:   oauthEnabled,
		IdleTimeout:    cfg.Server.IdleTimeout(),
		MaxControllers: cfg.Server.MaxVisitors,
		NewSession:     factory,
		Logger:         logger,
	})

	srv, err := web.New(web.Options{Config: cfg, Registry: registry, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, cfg.Server.Addr)
}

func secret(args []string, store *credential.SecretStore, stdin io.Reader, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: webmail secret set|delete")
	}

	switch args[0] {
	case "set":
		fmt.Fprintln(stdout, "Paste the Google OAuth client secret and press Enter:")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading secret: %w", err)
		}
		if err := store.SetClientSecret(line); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Client secret stored in the system keyring.")
		return nil
	case "delete":
		if err := store.DeleteClientSecret(); err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				fmt.Fprintln(stdout, "No client secret was stored.")
				return nil
			}
			return err
		}
		fmt.Fprintln(stdout, "Client secret removed.")
		return nil
	default:
		return fmt.Errorf("unknown secret command %q (want set or delete)", args[0])
	}
}
