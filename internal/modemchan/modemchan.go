// Package modemchan implements the modem channel (C1): it owns the serial
// read/write pair, writes one AT command at a time under the discipline of
// the response coordinator (C3), and parses the unsolicited and
// command-response lines the modem sends back.
package modemchan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/psmsgw/smsgwd/internal/serialio"
	"github.com/psmsgw/smsgwd/internal/xmsg"
)

// InboundFunc is invoked once per decoded inbound SMS: the hex-encoded
// GSM-7 payload, the originating phone number, and the modem's date
// header. It is called synchronously from the channel's read loop, so it
// must not block on further channel activity.
type InboundFunc func(payloadHex, phone, date string)

// Dialer opens the byte-duplex line to the modem. The default is
// serialio.Open; tests supply a fake.
type Dialer func(device string, baud int) (io.ReadWriter, error)

// Channel drives the physical modem line: it is the sole writer of AT
// commands (serialized by xmsg.Coordinator) and the sole reader of
// response/indication lines.
type Channel struct {
	Device string
	Baud   int
	Pin    string // optional SIM PIN, sent once at startup

	Queue  *xmsg.Queue
	Coord  *xmsg.Coordinator
	Inbound InboundFunc

	Log *slog.Logger

	dial Dialer

	mu sync.Mutex
	rw io.ReadWriter

	promptCh chan struct{}

	deleteReadPending bool
}

// New creates a channel bound to the given queue and coordinator. Inbound
// SMS notifications are reported to onInbound.
func New(device string, baud int, pin string, q *xmsg.Queue, coord *xmsg.Coordinator, onInbound InboundFunc, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		Device:   device,
		Baud:     baud,
		Pin:      pin,
		Queue:    q,
		Coord:    coord,
		Inbound:  onInbound,
		Log:      log,
		dial:     defaultDialer,
		promptCh: make(chan struct{}, 1),
	}
}

func defaultDialer(device string, baud int) (io.ReadWriter, error) {
	return serialio.Open(device, baud)
}

// Connect opens the modem line, retrying with exponential backoff (as the
// teacher's modem.monitor does) until it succeeds or ctx is done. It
// returns an error only when ctx is done, so under a context without a
// deadline it keeps retrying for as long as the device fails to open.
func (c *Channel) Connect(ctx context.Context) error {
	b := &backoff.Backoff{Min: time.Second, Max: 5 * time.Minute}
	for {
		rw, err := c.dial(c.Device, c.Baud)
		if err == nil {
			c.mu.Lock()
			c.rw = rw
			c.mu.Unlock()
			return nil
		}
		c.Log.Warn("modem connect failed, retrying", "device", c.Device, "error", err, "backoff", b.Duration())
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "modem connect cancelled")
		case <-time.After(b.Duration()):
		}
	}
}

// Startup performs the fixed initialization sequence of §4.1: escape any
// pending modem prompt, allow it to settle, then enqueue (as ordinary
// XMSGs, in order) the optional PIN unlock, HEX character set selection,
// and a listing of all stored messages.
func (c *Channel) Startup(ctx context.Context) error {
	c.mu.Lock()
	rw := c.rw
	c.mu.Unlock()
	if rw == nil {
		return errors.New("modem channel not connected")
	}
	if _, err := rw.Write([]byte{0x1B}); err != nil {
		return errors.Wrap(err, "write startup escape")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}

	if c.Pin != "" {
		c.Queue.Put(&xmsg.XMSG{Cmd: fmt.Sprintf(`+CPIN=%s`, c.Pin)})
	}
	c.Queue.Put(&xmsg.XMSG{Cmd: `+CSCS="HEX"`})
	c.Queue.Put(&xmsg.XMSG{Cmd: `+CMGL="ALL"`})
	return nil
}

// WriteCommand implements xmsg.Writer: it performs the exact wire sequence
// of §4.1 for the request currently installed in the coordinator.
func (c *Channel) WriteCommand(ctx context.Context, m *xmsg.XMSG) error {
	c.mu.Lock()
	rw := c.rw
	c.mu.Unlock()
	if rw == nil {
		return errors.New("modem channel not connected")
	}

	c.Log.Debug("modem write", "cmd", m.Cmd, "hasData", m.Data != "")
	if _, err := fmt.Fprintf(rw, "AT%s\r", m.Cmd); err != nil {
		return errors.Wrap(err, "write AT command")
	}

	if m.Data == "" {
		return nil
	}

	// Wait for the modem's actual SMS-entry prompt where we can observe
	// it; fall back to the spec's fixed one-second delay if the read
	// loop never reports one (e.g. the modem is slow or silent).
	select {
	case <-c.promptCh:
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := io.WriteString(rw, m.Data); err != nil {
		return errors.Wrap(err, "write SMS payload")
	}
	if _, err := rw.Write([]byte{0x1A}); err != nil {
		return errors.Wrap(err, "write SMS terminator")
	}
	return nil
}

// ReadLoop reads lines from the modem until ctx is done or the underlying
// line returns EOF, dispatching each per the parsing rules of §4.1. It is
// intended to run on its own goroutine (T_recv).
func (c *Channel) ReadLoop(ctx context.Context) error {
	c.mu.Lock()
	rw := c.rw
	c.mu.Unlock()
	if rw == nil {
		return errors.New("modem channel not connected")
	}

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(rw)
		scanner.Split(scanPromptAware)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- io.EOF
		}
		close(lines)
	}()

	var pendingPayload func(line string)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errCh
			}
			if pendingPayload != nil {
				p := pendingPayload
				pendingPayload = nil
				p(line)
				continue
			}
			pendingPayload = c.handleLine(line)
		}
	}
}

// handleLine processes one non-payload line. If it indicates that the
// following line is an SMS payload, it returns a continuation to process
// that payload; otherwise it returns nil.
func (c *Channel) handleLine(line string) (payloadHandler func(string)) {
	switch {
	case line == ">":
		select {
		case c.promptCh <- struct{}{}:
		default:
		}
		return nil

	case strings.HasPrefix(line, "+CMTI:"):
		id, ok := parseCMTI(line)
		if ok {
			c.Queue.Put(&xmsg.XMSG{Cmd: fmt.Sprintf("+CMGR=%d", id)})
		}
		return nil

	case strings.HasPrefix(line, "+CMGR:"):
		phone, date, ok := parseCMGR(line)
		if !ok {
			return nil
		}
		return func(payload string) {
			if c.Inbound != nil {
				c.Inbound(payload, phone, date)
			}
		}

	case strings.HasPrefix(line, "+CMGL:"):
		phone, date, ok := parseCMGL(line)
		if !ok {
			return nil
		}
		c.deleteReadPending = true
		return func(payload string) {
			if c.Inbound != nil {
				c.Inbound(payload, phone, date)
			}
		}

	case line == "OK" || line == "ERROR":
		if c.deleteReadPending {
			c.Queue.Put(&xmsg.XMSG{Cmd: "+CMGD=1,2"})
			c.deleteReadPending = false
		}
		rc := 0
		if line == "ERROR" {
			rc = 1
		}
		c.Coord.Release(rc)
		return nil

	default:
		if strings.TrimSpace(line) != "" {
			c.Log.Debug("modem line ignored", "line", line)
		}
		return nil
	}
}

// parseCMTI parses `+CMTI: "SM",<id>`.
func parseCMTI(line string) (id int, ok bool) {
	idx := strings.LastIndex(line, ",")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseCMGR parses `+CMGR: "<status>","<phone>",,"<date>"`.
func parseCMGR(line string) (phone, date string, ok bool) {
	fields := quotedFields(line)
	if len(fields) < 3 {
		return "", "", false
	}
	return fields[1], fields[2], true
}

// parseCMGL parses `+CMGL: <id>,"<status>","<phone>",,"<date>"`.
func parseCMGL(line string) (phone, date string, ok bool) {
	fields := quotedFields(line)
	if len(fields) < 3 {
		return "", "", false
	}
	return fields[1], fields[2], true
}

// quotedFields extracts the double-quoted substrings from a line, in
// order. `+CMGR: "REC UNREAD","+46700000001",,"24/11/06,13:37:00+04"`
// yields ["REC UNREAD", "+46700000001", "24/11/06,13:37:00+04"].
func quotedFields(line string) []string {
	var out []string
	for {
		start := strings.IndexByte(line, '"')
		if start < 0 {
			break
		}
		line = line[start+1:]
		end := strings.IndexByte(line, '"')
		if end < 0 {
			break
		}
		out = append(out, line[:end])
		line = line[end+1:]
	}
	return out
}

// scanPromptAware is bufio.ScanLines extended to recognise the modem's
// bare ">" SMS-entry prompt, which is not itself CR/LF terminated.
func scanPromptAware(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) >= 1 && data[0] == '>' {
		i := 1
		for i < len(data) && data[i] == ' ' {
			i++
		}
		return i, data[0:1], nil
	}
	return bufio.ScanLines(data, atEOF)
}
