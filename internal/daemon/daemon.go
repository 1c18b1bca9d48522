// Package daemon wires the modem channel, transmit queue, dispatcher,
// user/command tables, and local ingress endpoints into a single running
// gateway, and owns the signal-driven lifecycle (C8): SIGHUP reloads the
// user and command tables, SIGINT/SIGTERM shut everything down cleanly.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/psmsgw/smsgwd/internal/audit"
	"github.com/psmsgw/smsgwd/internal/command"
	"github.com/psmsgw/smsgwd/internal/config"
	"github.com/psmsgw/smsgwd/internal/dispatch"
	"github.com/psmsgw/smsgwd/internal/gsmtext"
	"github.com/psmsgw/smsgwd/internal/ingress"
	"github.com/psmsgw/smsgwd/internal/modemchan"
	"github.com/psmsgw/smsgwd/internal/users"
	"github.com/psmsgw/smsgwd/internal/xmsg"
)

// Daemon owns the running gateway's components and their wiring.
type Daemon struct {
	Cfg *config.Config
	Log *slog.Logger

	Queue  *xmsg.Queue
	Coord  *xmsg.Coordinator
	Modem  *modemchan.Channel
	Users  *users.Store
	Cmds   *command.Table
	Disp   *dispatch.Dispatcher
	Audit  *audit.Log
	FIFO   *ingress.FIFO
	API    *ingress.HTTPAPI

	trans *xmsg.Transmitter
}

// New assembles a Daemon from cfg, performing no I/O yet.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}

	q := xmsg.NewQueue()
	coord := xmsg.NewCoordinator()

	us := users.New(log)
	cmds := command.NewTable()

	var auditLog *audit.Log
	if cfg.AuditDBPath != "" {
		var err error
		auditLog, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			return nil, errors.Wrap(err, "open audit log")
		}
	}

	d := &Daemon{
		Cfg:   cfg,
		Log:   log,
		Queue: q,
		Coord: coord,
		Users: us,
		Cmds:  cmds,
		Audit: auditLog,
	}

	sender := &broadcaster{d: d}
	d.Disp = dispatch.New(us, cmds, sender, log)

	d.Modem = modemchan.New(cfg.Device, cfg.Baud, cfg.Pin, q, coord, d.handleInbound, log)
	d.trans = &xmsg.Transmitter{Queue: q, Coord: coord, Writer: d.Modem}

	if cfg.FifoPath != "" {
		d.FIFO = ingress.NewFIFO(cfg.FifoPath, sender, log)
	}
	if cfg.SocketPath != "" {
		d.API = ingress.NewHTTPAPI(cfg.SocketPath, sender, log)
	}

	return d, nil
}

func (d *Daemon) handleInbound(payloadHex, phone, date string) {
	if d.Audit != nil {
		if err := d.Audit.Record(audit.Inbound, phone, gsmtext.GSMHexToLatin1(payloadHex)); err != nil {
			d.Log.Warn("audit log write failed", "error", err)
		}
	}
	ctx := context.Background()
	d.Disp.HandleInbound(ctx, payloadHex, phone, date)
}

// broadcaster implements dispatch.Sender and ingress.Sender by handing
// every request to Daemon.send, which resolves "*" to every known user and
// plain names to their current phone number.
type broadcaster struct{ d *Daemon }

func (b *broadcaster) Send(to, msg string) error {
	return b.d.send(to, msg)
}

func (d *Daemon) send(to, msg string) error {
	if to == "*" {
		var firstErr error
		d.Users.ForEach(func(r users.Record) {
			phone := r.Phone
			if r.CurrentPhone != "" {
				phone = r.CurrentPhone
			}
			if err := d.sendOne(phone, msg); err != nil && firstErr == nil {
				firstErr = err
			}
		})
		return firstErr
	}

	if isPhoneNumber(to) {
		return d.sendOne(to, msg)
	}

	phone, ok := d.Users.Name2Phone(to)
	if !ok {
		return errors.Errorf("unknown recipient %q", to)
	}
	return d.sendOne(phone, msg)
}

func (d *Daemon) sendOne(phone, msg string) error {
	if d.Audit != nil {
		if err := d.Audit.Record(audit.Outbound, phone, msg); err != nil {
			d.Log.Warn("audit log write failed", "error", err)
		}
	}
	d.Queue.Put(dispatch.EncodeOutbound(phone, msg))
	return nil
}

func isPhoneNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' {
		i = 1
	}
	if i >= len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Reload re-reads the user and external-command tables from disk, as
// SIGHUP does.
func (d *Daemon) Reload() {
	if d.Cfg.CommandsFile != "" {
		if n, err := d.Cmds.Load(d.Cfg.CommandsFile); err != nil {
			d.Log.Warn("reload commands failed", "error", err)
		} else {
			d.Log.Info("reloaded commands", "count", n)
		}
	}
	if d.Cfg.UsersFile != "" {
		if n, err := d.Users.Load(d.Cfg.UsersFile); err != nil {
			d.Log.Warn("reload users failed", "error", err)
		} else {
			d.Log.Info("reloaded users", "count", n)
		}
	}
}

// Run loads initial state, connects to the modem, starts every
// background component, and blocks until ctx is canceled or a terminating
// signal (SIGINT, SIGTERM) arrives, at which point it shuts down cleanly.
func (d *Daemon) Run(ctx context.Context) error {
	d.Reload()

	if err := d.Modem.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect to modem")
	}
	if err := d.Modem.Startup(ctx); err != nil {
		return errors.Wrap(err, "modem startup sequence")
	}

	if d.Cfg.AutologoutSeconds > 0 {
		d.Users.StartAutologout(ctx, secondsToDuration(d.Cfg.AutologoutSeconds), func(name, phone string) {
			d.Log.Info("session autologout", "name", name, "phone", phone)
			if err := d.send(phone, "Autologout\r(Inactivity)"); err != nil {
				d.Log.Warn("autologout notification failed", "phone", phone, "error", err)
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	runComponent := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.Log.Warn("component stopped", "component", name, "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.trans.Run(runCtx)
	}()
	runComponent("modem-read", d.Modem.ReadLoop)
	if d.FIFO != nil {
		runComponent("fifo", d.FIFO.Run)
	}
	if d.API != nil {
		runComponent("http-api", d.API.Run)
	}

	d.Log.Info("smsgwd running", "device", d.Cfg.Device)

	for {
		select {
		case <-ctx.Done():
			cancel()
			d.Queue.Put(nil)
			wg.Wait()
			return nil

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				d.Reload()
			default:
				d.Log.Info("shutting down", "signal", sig)
				cancel()
				d.Queue.Put(nil)
				wg.Wait()
				if d.Audit != nil {
					d.Audit.Close()
				}
				return nil
			}
		}
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
