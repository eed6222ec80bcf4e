package main

import (
	"fmt"
	"os"

	"github.com/sellerdesk/walink/internal/config"
	. "github.com/sellerdesk/walink/internal/logging"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `walink %s - multi-tenant WhatsApp session supervisor

Usage:
  walink serve            run the supervisor daemon (default)
  walink link <tenant>    pair a tenant by scanning a QR code in this terminal
  walink unlink <tenant>  log the tenant out and delete stored credentials
  walink status <tenant>  show whether the tenant has stored credentials
  walink init             write a default walink.json
  walink version          print the version
`, version)
	os.Exit(2)
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "version":
		fmt.Printf("walink %s\n", version)
		return
	case "init":
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s - set api.secret (or %s) before starting.\n", path, config.EnvAPISecret)
		return
	case "serve":
		runServe()
	case "link", "unlink", "status":
		if len(os.Args) < 3 {
			usage()
		}
		tenantID := os.Args[2]
		var err error
		switch cmd {
		case "link":
			err = runLink(tenantID)
		case "unlink":
			err = runUnlink(tenantID)
		case "status":
			err = runStatus(tenantID)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

// initLogging sets up the global logger from config, before anything else
// runs.
func initLogging(level string) {
	Init(&Config{
		Level:      ParseLevel(level),
		ShowCaller: true,
	})
}
