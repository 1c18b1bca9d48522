// Package ingress implements local outbound-message entry points (C7): a
// named pipe accepting "<phone>\t<message>" lines, and an optional
// UNIX-domain-socket HTTP+JSON endpoint for the same purpose.
package ingress

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Sender delivers one outbound message; it is satisfied by the daemon's
// top-level send function (phone number, "*" broadcast, or user name).
type Sender interface {
	Send(to, msg string) error
}

// FIFO reads "<phone>\t<message>" lines from a named pipe, one send per
// line, for as long as ctx is not done. The pipe is created (mode 0660)
// if it does not already exist.
type FIFO struct {
	Path   string
	Sender Sender
	Log    *slog.Logger
}

// NewFIFO creates a FIFO reader bound to path.
func NewFIFO(path string, sender Sender, log *slog.Logger) *FIFO {
	if log == nil {
		log = slog.Default()
	}
	return &FIFO{Path: path, Sender: sender, Log: log}
}

// Run creates the pipe if necessary and repeatedly opens and drains it
// until ctx is done, reopening after each writer closes its end — a named
// pipe delivers EOF to the reader once all writers disconnect, and the
// original daemon simply reopens and keeps going.
func (f *FIFO) Run(ctx context.Context) error {
	if err := syscall.Mkfifo(f.Path, 0o660); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "create fifo %s", f.Path)
	}

	// Opening the pipe for reading blocks until a writer appears; once ctx
	// is done, briefly open the write end until Run returns so that a
	// pending open completes.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		<-ctx.Done()
		for {
			if w, err := os.OpenFile(f.Path, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
				w.Close()
			}
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := f.drainOnce(ctx); err != nil {
			f.Log.Warn("fifo read failed, retrying", "path", f.Path, "error", err)
		}
	}
}

func (f *FIFO) drainOnce(ctx context.Context) error {
	file, err := os.OpenFile(f.Path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "open fifo %s", f.Path)
	}
	defer file.Close()

	go func() {
		<-ctx.Done()
		file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		f.handleLine(scanner.Text())
	}
	return scanner.Err()
}

func (f *FIFO) handleLine(line string) {
	fields := strings.SplitN(strings.TrimRight(line, "\r\n"), "\t", 2)
	if len(fields) != 2 {
		return
	}
	phone := fields[0]
	msg := strings.TrimSpace(fields[1])
	if phone == "" || msg == "" {
		return
	}
	if err := f.Sender.Send(phone, msg); err != nil {
		f.Log.Warn("fifo send failed", "phone", phone, "error", err)
	}
}
