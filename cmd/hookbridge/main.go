// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// hookbridge bridges Slack-style incoming webhooks into Matrix rooms.
// It runs two listeners: the appservice endpoint the homeserver pushes
// transactions to, and the public ingest endpoint external services
// POST webhook payloads to.
//
// Before first start, generate and install an appservice registration:
//
//	hookbridge --config hookbridge.yaml --generate-registration
//
// then point the homeserver at the written registration file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hookbridge/appservice"
	"github.com/bureau-foundation/hookbridge/config"
	"github.com/bureau-foundation/hookbridge/hookstore"
	"github.com/bureau-foundation/hookbridge/lib/clock"
	"github.com/bureau-foundation/hookbridge/lib/httpx"
	"github.com/bureau-foundation/hookbridge/lib/process"
	"github.com/bureau-foundation/hookbridge/lib/ref"
	"github.com/bureau-foundation/hookbridge/lib/version"
	"github.com/bureau-foundation/hookbridge/messaging"
	"github.com/bureau-foundation/hookbridge/provisioning"
	"github.com/bureau-foundation/hookbridge/webhook"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath           string
		generateRegistration bool
		showVersion          bool
	)
	flags := pflag.NewFlagSet("hookbridge", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to hookbridge.yaml (default: $HOOKBRIDGE_CONFIG)")
	flags.BoolVar(&generateRegistration, "generate-registration", false,
		"write a fresh appservice registration to the configured path and exit")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Println("hookbridge " + version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if generateRegistration {
		return writeRegistration(cfg)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registration, err := appservice.LoadRegistration(cfg.Appservice.Registration)
	if err != nil {
		return err
	}

	serverName, err := ref.ParseServerName(cfg.Homeserver.ServerName)
	if err != nil {
		return err
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		ServerName:    serverName,
		ASToken:       registration.ASToken,
		BotLocalpart:  registration.SenderLocalpart,
		Clock:         clock.Real(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	store, err := hookstore.Open(hookstore.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Clock:    clock.Real(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := provisioning.New(provisioning.Config{
		Intent: client.BotIntent(),
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	formatter := webhook.NewFormatter()
	if cfg.Ingest.EmojiTable != "" {
		if err := formatter.LoadEmojiTable(cfg.Ingest.EmojiTable); err != nil {
			return err
		}
	}

	ingestHandler := webhook.NewHandler(webhook.HandlerConfig{
		Store:     store,
		Client:    client,
		Formatter: formatter,
		Metrics:   webhook.NewMetrics(),
		Logger:    logger,
	})

	appserviceServer := appservice.NewServer(appservice.ServerConfig{
		HSToken:      registration.HSToken,
		Client:       client,
		Provisioning: service,
		PublicURL:    cfg.Ingest.PublicURL,
		Clock:        clock.Real(),
		Logger:       logger,
	})

	appserviceListener := httpx.NewServer(httpx.ServerConfig{
		Address: cfg.Appservice.Address,
		Handler: appserviceServer.Routes(),
		Logger:  logger,
	})
	ingestListener := httpx.NewServer(httpx.ServerConfig{
		Address: cfg.Ingest.Address,
		Handler: ingestHandler.Routes(),
		Logger:  logger,
	})

	appserviceDone := make(chan error, 1)
	go func() {
		appserviceDone <- appserviceListener.Serve(ctx)
	}()
	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- ingestListener.Serve(ctx)
	}()

	for _, listener := range []*httpx.Server{appserviceListener, ingestListener} {
		select {
		case <-listener.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Confirm the tokens work before declaring the bridge up.
	botUserID, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("verifying appservice credentials: %w", err)
	}

	logger.Info("hookbridge running",
		"bot", botUserID,
		"appservice_address", appserviceListener.Addr().String(),
		"ingest_address", ingestListener.Addr().String(),
		"public_url", cfg.Ingest.PublicURL,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-appserviceDone; err != nil {
		logger.Error("appservice listener error", "error", err)
	}
	if err := <-ingestDone; err != nil {
		logger.Error("ingest listener error", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func writeRegistration(cfg *config.Config) error {
	path := cfg.Appservice.Registration
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("registration %s already exists; refusing to overwrite tokens", path)
	}

	registration, err := appservice.GenerateRegistration(
		"hookbridge",
		"http://localhost"+cfg.Appservice.Address,
		"_webhook",
	)
	if err != nil {
		return err
	}
	if err := registration.WriteFile(path); err != nil {
		return err
	}
	fmt.Printf("wrote appservice registration to %s\n", path)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, options)
	default:
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}
