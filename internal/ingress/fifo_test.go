package ingress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu   sync.Mutex
	to   []string
	msgs []string
}

func (f *fakeSender) Send(to, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) last() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.to) == 0 {
		return "", ""
	}
	return f.to[len(f.to)-1], f.msgs[len(f.msgs)-1]
}

func TestFIFODispatchesLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smsin")

	sender := &fakeSender{}
	f := NewFIFO(path, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	// Give Run a moment to create and open the pipe for reading.
	time.Sleep(50 * time.Millisecond)

	wf, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo for write: %v", err)
	}
	if _, err := wf.WriteString("+46700000001\thello there\n"); err != nil {
		t.Fatalf("write fifo: %v", err)
	}
	wf.Close()

	deadline := time.After(time.Second)
	for {
		to, msg := sender.last()
		if to == "+46700000001" && msg == "hello there" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("fifo send never observed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after cancel")
	}
}

func TestHandleLineIgnoresMalformed(t *testing.T) {
	sender := &fakeSender{}
	f := NewFIFO("/unused", sender, nil)

	f.handleLine("not-enough-fields")
	f.handleLine("+46700000001\t   ")
	if to, _ := sender.last(); to != "" {
		t.Errorf("unexpected send for malformed line, to=%q", to)
	}

	f.handleLine("+46700000001\treal message")
	to, msg := sender.last()
	if to != "+46700000001" || msg != "real message" {
		t.Errorf("got (%q, %q)", to, msg)
	}
}
