package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// sendRequest is the JSON body accepted by POST /send.
type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// sendResponse is always returned for POST /send: status 0 means queued
// successfully, non-zero carries a short machine-readable reason.
type sendResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HTTPAPI serves the optional local send endpoint over a UNIX domain
// socket: local-only by construction, standing in for the original's
// fixed-record IPC channel with a self-describing JSON wire format.
type HTTPAPI struct {
	SocketPath string
	Sender     Sender
	Log        *slog.Logger

	server *http.Server
}

// NewHTTPAPI creates an HTTP API bound to the given UNIX domain socket path.
func NewHTTPAPI(socketPath string, sender Sender, log *slog.Logger) *HTTPAPI {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPAPI{SocketPath: socketPath, Sender: sender, Log: log}
}

// Run listens on the configured socket and serves until ctx is done.
func (a *HTTPAPI) Run(ctx context.Context) error {
	if err := os.Remove(a.SocketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale socket %s", a.SocketPath)
	}

	ln, err := net.Listen("unix", a.SocketPath)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", a.SocketPath)
	}
	if err := os.Chmod(a.SocketPath, 0o660); err != nil {
		a.Log.Warn("chmod socket failed", "path", a.SocketPath, "error", err)
	}

	r := mux.NewRouter()
	r.HandleFunc("/send", a.handleSend).Methods(http.MethodPost)

	a.server = &http.Server{Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		return a.server.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *HTTPAPI) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: 1, Error: "malformed request body"})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: 1, Error: "phone and message are required"})
		return
	}
	if err := a.Sender.Send(req.Phone, req.Message); err != nil {
		a.Log.Warn("http send failed", "phone", req.Phone, "error", err)
		writeJSON(w, http.StatusInternalServerError, sendResponse{Status: 2, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Status: 0})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
