package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/vantigo/csfiles/internal/config"
	"github.com/vantigo/csfiles/internal/logger"
	"github.com/vantigo/csfiles/pkg/demo"
	"github.com/vantigo/csfiles/pkg/fetch"
	"github.com/vantigo/csfiles/pkg/steam"
	"github.com/vantigo/csfiles/pkg/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <username> [password] [two-factor-code]
       %s --demo    (create sample files, no Steam login)

Downloads CS:GO localization and item-schema files from the Steam CDN.
When password is omitted it is read from the terminal without echo.

Flags:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func main() {
	var (
		configDir string
		demoMode  bool
	)
	flag.StringVar(&configDir, "config", "", "directory holding config.json (optional)")
	flag.BoolVar(&demoMode, "demo", false, "create sample files without logging in")
	flag.Usage = usage
	flag.Parse()

	if configDir != "" {
		config.SetConfigPath(configDir)
	}
	cfg := config.Get()
	logger.Configure(cfg.LogLevel, cfg.StaticDir)
	_log := logger.Default()

	_log.Info().Str("version", version.GetInfo()).Msg("csfiles")

	if demoMode {
		if err := demo.Run(cfg); err != nil {
			_log.Error().Err(err).Msg("demo mode failed")
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 1 || flag.NArg() > 3 {
		usage()
		os.Exit(1)
	}
	username := flag.Arg(0)
	password := flag.Arg(1)
	twoFactorCode := flag.Arg(2)

	if password == "" {
		fmt.Fprint(os.Stderr, "Steam password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			_log.Error().Err(err).Msg("could not read password")
			os.Exit(1)
		}
		password = string(raw)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, username, password, twoFactorCode); err != nil {
		_log.Error().Err(err).Msg("download failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, username, password, twoFactorCode string) error {
	session := steam.NewClient(time.Duration(cfg.LoginTimeoutSeconds) * time.Second)
	if err := session.Login(ctx, username, password, twoFactorCode); err != nil {
		return err
	}
	defer session.Logout()

	cdn := steam.NewCDN(session, cfg.AppID, cfg.DepotID, cfg.AppInfoURL, cfg.RequestsPerSecond)
	return fetch.New(cdn, cfg).Run(ctx)
}
