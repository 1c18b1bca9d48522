package modemchan

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/psmsgw/smsgwd/internal/xmsg"
)

// pipeConn is an in-memory io.ReadWriter standing in for the serial port:
// writes from the test are visible to the channel's read loop, and writes
// from the channel are visible to the test.
type pipeConn struct {
	toChannel *io.PipeReader
	toChannelW *io.PipeWriter

	fromChannel *io.PipeReader
	fromChannelW *io.PipeWriter
}

func newPipeConn() *pipeConn {
	tr, tw := io.Pipe()
	fr, fw := io.Pipe()
	return &pipeConn{toChannel: tr, toChannelW: tw, fromChannel: fr, fromChannelW: fw}
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.toChannel.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.fromChannelW.Write(b) }

func newTestChannel(t *testing.T) (*Channel, *pipeConn) {
	t.Helper()
	conn := newPipeConn()
	q := xmsg.NewQueue()
	coord := xmsg.NewCoordinator()
	ch := New("/dev/fake", 9600, "", q, coord, nil, nil)
	ch.dial = func(device string, baud int) (io.ReadWriter, error) {
		return conn, nil
	}
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return ch, conn
}

func TestWriteCommandWithoutDataWritesATLine(t *testing.T) {
	ch, conn := newTestChannel(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.WriteCommand(context.Background(), &xmsg.XMSG{Cmd: `+CMGF=1`})
	}()

	buf := make([]byte, 64)
	n, err := conn.fromChannel.Read(buf)
	if err != nil {
		t.Fatalf("read from channel: %v", err)
	}
	got := string(buf[:n])
	want := "AT+CMGF=1\r"
	if got != want {
		t.Errorf("wrote %q, want %q", got, want)
	}
	if err := <-errCh; err != nil {
		t.Errorf("WriteCommand returned error: %v", err)
	}
}

func TestWriteCommandWithDataWaitsForPrompt(t *testing.T) {
	ch, conn := newTestChannel(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.WriteCommand(context.Background(), &xmsg.XMSG{Cmd: `+CMGS="+46700000001"`, Data: "4869"})
	}()

	// Drain the AT command line first.
	buf := make([]byte, 64)
	if _, err := conn.fromChannel.Read(buf); err != nil {
		t.Fatalf("read AT line: %v", err)
	}

	// Signal the prompt as the read loop would.
	ch.handleLine(">")

	n, err := conn.fromChannel.Read(buf)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	got := buf[:n]
	want := append([]byte("4869"), 0x1A)
	if !bytes.Equal(got, want) {
		t.Errorf("wrote %q, want %q", got, want)
	}
	if err := <-errCh; err != nil {
		t.Errorf("WriteCommand returned error: %v", err)
	}
}

func TestHandleLineCMTIEnqueuesCMGR(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.handleLine(`+CMTI: "SM",3`)

	m := ch.Queue.Get()
	if m.Cmd != "+CMGR=3" {
		t.Errorf("enqueued cmd = %q, want %q", m.Cmd, "+CMGR=3")
	}
}

func TestHandleLineCMGRDispatchesInboundWithoutDeleteFlag(t *testing.T) {
	ch, _ := newTestChannel(t)

	var mu sync.Mutex
	var gotPayload, gotPhone, gotDate string
	ch.Inbound = func(payload, phone, date string) {
		mu.Lock()
		defer mu.Unlock()
		gotPayload, gotPhone, gotDate = payload, phone, date
	}

	next := ch.handleLine(`+CMGR: "REC UNREAD","+46700000001",,"24/11/06,13:37:00+04"`)
	if next == nil {
		t.Fatal("expected a payload continuation after +CMGR")
	}
	next("48656c6c6f")

	mu.Lock()
	defer mu.Unlock()
	if gotPayload != "48656c6c6f" || gotPhone != "+46700000001" || gotDate != "24/11/06,13:37:00+04" {
		t.Errorf("inbound = (%q, %q, %q)", gotPayload, gotPhone, gotDate)
	}
	if ch.deleteReadPending {
		t.Error("+CMGR must not set deleteReadPending")
	}
}

func TestHandleLineCMGLSetsDeleteFlagAndOKEnqueuesCMGD(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.Inbound = func(payload, phone, date string) {}

	next := ch.handleLine(`+CMGL: 1,"REC READ","+46700000001",,"24/11/06,13:37:00+04"`)
	if next == nil {
		t.Fatal("expected a payload continuation after +CMGL")
	}
	next("48656c6c6f")

	if !ch.deleteReadPending {
		t.Fatal("+CMGL must set deleteReadPending")
	}

	ch.Coord.Install(&xmsg.XMSG{Cmd: "+CMGL=\"ALL\""})
	ch.handleLine("OK")

	m := ch.Queue.Get()
	if m.Cmd != "+CMGD=1,2" {
		t.Errorf("enqueued cmd = %q, want %q", m.Cmd, "+CMGD=1,2")
	}
	if ch.deleteReadPending {
		t.Error("deleteReadPending should be cleared after OK")
	}
	if ch.Coord.InFlight() {
		t.Error("coordinator slot should be freed after OK")
	}
}

func TestHandleLineERRORReleasesCoordinator(t *testing.T) {
	ch, _ := newTestChannel(t)

	var gotRC int
	done := make(chan struct{})
	ch.Coord.Install(&xmsg.XMSG{Cmd: "+CMGF=1", Ack: func(rc int, misc interface{}) {
		gotRC = rc
		close(done)
	}})

	ch.handleLine("ERROR")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Ack never invoked")
	}
	if gotRC != 1 {
		t.Errorf("rc = %d, want 1 for ERROR", gotRC)
	}
}

func TestParseCMTI(t *testing.T) {
	id, ok := parseCMTI(`+CMTI: "SM",12`)
	if !ok || id != 12 {
		t.Errorf("parseCMTI = (%d, %v), want (12, true)", id, ok)
	}
}

func TestQuotedFields(t *testing.T) {
	got := quotedFields(`+CMGR: "REC UNREAD","+46700000001",,"24/11/06,13:37:00+04"`)
	want := []string{"REC UNREAD", "+46700000001", "24/11/06,13:37:00+04"}
	if len(got) != len(want) {
		t.Fatalf("quotedFields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, got[i], want[i])
		}
	}
}
