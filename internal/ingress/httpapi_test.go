package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPAPISendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "smsgwd.sock")

	sender := &fakeSender{}
	api := NewHTTPAPI(sockPath, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		api.Run(ctx)
		close(done)
	}()

	waitForSocket(t, sockPath)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}

	body, _ := json.Marshal(sendRequest{Phone: "+46700000001", Message: "hi"})
	resp, err := client.Post("http://unix/send", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /send: %v", err)
	}
	defer resp.Body.Close()

	var got sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != 0 {
		t.Errorf("status = %d, want 0: %s", got.Status, got.Error)
	}

	to, msg := sender.last()
	if to != "+46700000001" || msg != "hi" {
		t.Errorf("sender saw (%q, %q)", to, msg)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run never returned after cancel")
	}
}

func TestHTTPAPIRejectsMissingFields(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "smsgwd.sock")

	sender := &fakeSender{}
	api := NewHTTPAPI(sockPath, sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go api.Run(ctx)
	waitForSocket(t, sockPath)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}

	resp, err := client.Post("http://unix/send", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST /send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", resp.StatusCode)
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		select {
		case <-deadline:
			t.Fatalf("socket %s never appeared", path)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
