package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sellerdesk/walink/internal/adapter"
	"github.com/sellerdesk/walink/internal/api"
	"github.com/sellerdesk/walink/internal/config"
	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/notify"
	"github.com/sellerdesk/walink/internal/paths"
	"github.com/sellerdesk/walink/internal/relay"
	"github.com/sellerdesk/walink/internal/session"
	"github.com/sellerdesk/walink/internal/store"
	"github.com/sellerdesk/walink/internal/sweep"
)

// runServe wires everything together and runs until SIGINT/SIGTERM.
func runServe() {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		initLogging("info")
		L_fatal("failed to load config: %v", err)
	}

	initLogging(cfg.Log.Level)
	L_info("walink %s starting", version)
	L_debug("config loaded", "path", cfgPath)

	tenantsDir, err := paths.TenantsDir()
	if err != nil {
		L_fatal("failed to resolve data dir: %v", err)
	}
	creds, err := store.New(tenantsDir)
	if err != nil {
		L_fatal("failed to open credential store: %v", err)
	}

	publisher := notify.New(cfg.Status.WebhookURL, 10*time.Second)

	responderTimeout := time.Duration(cfg.Responder.TimeoutSeconds) * time.Second
	inbound := relay.New(relay.NewHTTPResponder(cfg.Responder.URL, responderTimeout), responderTimeout)

	sup := session.New(
		adapter.NewWhatsmeowFactory(creds),
		creds,
		publisher,
		inbound,
		session.Options{
			PairingTimeout:     time.Duration(cfg.Session.PairingTimeoutSeconds) * time.Second,
			PairingWait:        time.Duration(cfg.Session.PairingWaitSeconds) * time.Second,
			RestoreConcurrency: cfg.Session.RestoreConcurrency,
			RestoreStagger:     time.Duration(cfg.Session.RestoreStaggerMs) * time.Millisecond,
		},
	)

	// Resume credentialed tenants in the background so the API is up
	// immediately. Failures are per-tenant and already logged.
	go func() {
		if err := sup.RestoreAll(context.Background()); err != nil {
			L_error("restore failed", "error", err)
		}
	}()

	server := api.NewServer(&api.ServerConfig{
		Listen: cfg.API.Listen,
		Secret: cfg.API.Secret,
	}, sup)
	server.Start()

	var sweeper *sweep.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = sweep.New(sup, creds, publisher)
		if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
			L_fatal("failed to schedule sweep: %v", err)
		}
	}

	// Watch the config file so log level changes apply without a restart.
	// Env-only setups have no file to watch.
	var watcher *config.Watcher
	if cfgPath != "" {
		watcher, err = config.NewWatcher(cfgPath, func(updated *config.Config) {
			SetLevel(ParseLevel(updated.Log.Level))
			L_info("config reloaded", "logLevel", updated.Log.Level)
		})
		if err != nil {
			L_warn("config watcher unavailable", "error", err)
		} else {
			watcher.Start()
		}
	}

	L_info("walink ready", "listen", cfg.API.Listen)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	L_info("shutting down", "signal", s)

	if watcher != nil {
		watcher.Stop()
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	server.Stop()
	sup.Shutdown()
	publisher.Close()

	L_info("walink stopped")
}
