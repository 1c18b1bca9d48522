// Command dashboard serves a read-only view of the gateway's audit log:
// recent message traffic and a per-phone summary. It never sends an SMS;
// that capability belongs solely to the gateway daemon and its own local
// ingress endpoints.
package main

import (
	"log/slog"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/psmsgw/smsgwd/internal/audit"
)

type options struct {
	AuditDBPath string `long:"audit-db" default:"/var/lib/smsgwd/audit.db" description:"path to the gateway's audit log sqlite database"`
	Bind        string `long:"bind" default:"127.0.0.1:8080" description:"address to listen on"`
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	auditLog, err := audit.Open(opts.AuditDBPath)
	if err != nil {
		log.Error("open audit log", "path", opts.AuditDBPath, "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	if err := InitServer(auditLog, opts.Bind, log); err != nil {
		log.Error("dashboard server failed", "error", err)
		os.Exit(1)
	}
}
