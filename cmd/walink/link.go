package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/sellerdesk/walink/internal/adapter"
	"github.com/sellerdesk/walink/internal/paths"
	"github.com/sellerdesk/walink/internal/session"
	"github.com/sellerdesk/walink/internal/store"
)

// openStore builds the credential store for CLI commands. Logging stays at
// warn so whatsmeow chatter doesn't bury the QR code.
func openStore(tenantID string) (*store.Store, error) {
	initLogging("warn")

	if !store.ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}
	tenantsDir, err := paths.TenantsDir()
	if err != nil {
		return nil, err
	}
	return store.New(tenantsDir)
}

// runLink pairs a tenant interactively: prints the QR code in the terminal
// and waits for the scan to complete.
func runLink(tenantID string) error {
	creds, err := openStore(tenantID)
	if err != nil {
		return err
	}
	if creds.Exists(tenantID) {
		return fmt.Errorf("%s already has stored credentials - run 'walink unlink %s' first", tenantID, tenantID)
	}

	sup := session.New(adapter.NewWhatsmeowFactory(creds), creds, nil, nil, session.Options{})
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	code, err := sup.RequestPairing(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}

	fmt.Println("Scan the QR code below with the WhatsApp app:")
	fmt.Println("  WhatsApp > Settings > Linked Devices > Link a Device")
	fmt.Println()
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	fmt.Println()
	fmt.Println("Waiting for scan...")

	// Poll for the outcome. The code refreshes server-side every ~20s, so
	// re-render whenever a new one appears.
	lastCode := code
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pairing timed out - run the command again")
		case <-ticker.C:
		}

		rec := sup.Status(tenantID)
		switch rec.Status {
		case session.StatusConnected:
			fmt.Printf("\nPaired successfully! Account: %s\n", rec.Identity)
			return nil
		case session.StatusDisconnected:
			return fmt.Errorf("pairing failed - run the command again")
		case session.StatusQRPending:
			refreshed, err := sup.RequestPairing(ctx, tenantID)
			if err == nil && refreshed != lastCode {
				lastCode = refreshed
				fmt.Println("\nCode refreshed, scan this one instead:")
				qrterminal.GenerateHalfBlock(refreshed, qrterminal.L, os.Stdout)
				fmt.Println()
			}
		}
	}
}

// runUnlink logs the tenant out and deletes its stored credentials.
func runUnlink(tenantID string) error {
	creds, err := openStore(tenantID)
	if err != nil {
		return err
	}
	if !creds.Exists(tenantID) {
		return fmt.Errorf("%s has no stored credentials", tenantID)
	}

	sup := session.New(adapter.NewWhatsmeowFactory(creds), creds, nil, nil, session.Options{})
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sup.Disconnect(ctx, tenantID); err != nil {
		return fmt.Errorf("unlink failed: %w", err)
	}
	fmt.Printf("Unlinked %s and deleted stored credentials.\n", tenantID)
	return nil
}

// runStatus reports whether a tenant has stored credentials on disk.
func runStatus(tenantID string) error {
	creds, err := openStore(tenantID)
	if err != nil {
		return err
	}
	if creds.Exists(tenantID) {
		path, _ := creds.Path(tenantID)
		fmt.Printf("%s: linked (credentials at %s)\n", tenantID, path)
	} else {
		fmt.Printf("%s: not linked\n", tenantID)
	}
	return nil
}
