package main

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/psmsgw/smsgwd/internal/audit"
)

// logsResponse is the payload for GET /api/logs: the most recent traffic
// plus a per-phone count, for the dashboard's summary table. It never
// carries a way to trigger a send — this dashboard is read-only.
type logsResponse struct {
	Status     int            `json:"status"`
	Entries    []audit.Entry  `json:"entries"`
	CountByNum map[string]int `json:"count_by_phone"`
}

type server struct {
	auditLog *audit.Log
	log      *slog.Logger
}

func (s *server) indexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := template.ParseFiles("./templates/index.html")
		if err != nil {
			s.log.Warn("index template missing", "error", err)
			http.Error(w, "dashboard template not installed", http.StatusInternalServerError)
			return
		}
		t.Execute(w, nil)
	}
}

func (s *server) staticHandler(w http.ResponseWriter, r *http.Request) {
	static := mux.Vars(r)["path"]
	http.ServeFile(w, r, filepath.Join("./assets", static))
}

func (s *server) logsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.auditLog.Recent(200)
		if err != nil {
			s.log.Warn("recent entries query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		counts, err := s.auditLog.CountByPhone()
		if err != nil {
			s.log.Warn("count by phone query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(logsResponse{Status: 200, Entries: entries, CountByNum: counts})
	}
}

// InitServer starts the read-only audit dashboard. Unlike the gateway's
// own local HTTP API, this server never accepts a request that causes an
// SMS to be sent — it only ever reads from the audit log.
func InitServer(auditLog *audit.Log, bind string, log *slog.Logger) error {
	s := &server{auditLog: auditLog, log: log}

	r := mux.NewRouter()
	r.StrictSlash(true)
	r.HandleFunc("/", s.indexHandler())
	r.HandleFunc(`/assets/{path:[a-zA-Z0-9=\-\/\.\_]+}`, s.staticHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodGet).Path("/logs").HandlerFunc(s.logsHandler())

	log.Info("dashboard listening", "bind", bind)
	return http.ListenAndServe(bind, r)
}
