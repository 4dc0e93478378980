// Package admin serves the administrative endpoints of gatekeeper: the
// migration state of every database and the engine actions (migrate,
// validate, clean, baseline and repair).
//
// Routes, relative to the configured prefix (default /@gatekeeper):
//
//	GET  <prefix>                   list configured databases
//	GET  <prefix>/{database}        migration info of a database
//	POST <prefix>/{database}/{action}
//
// Actions change the database and are refused outside dev mode.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pseudomuto/gatekeeper/pkg/config"
	"github.com/pseudomuto/gatekeeper/pkg/engine"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
)

type (
	// Dispatcher is a router handlers are mounted on. It is satisfied by
	// *http.ServeMux.
	Dispatcher interface {
		Handle(pattern string, h http.Handler)
	}

	// Engine is the part of a migration engine exposed by the admin
	// endpoints.
	Engine interface {
		Info(ctx context.Context) (*engine.Info, error)
		Migrate(ctx context.Context) (int, error)
		Validate(ctx context.Context) error
		Clean(ctx context.Context) error
		Baseline(ctx context.Context) error
		Repair(ctx context.Context) error
	}

	// Recorder is notified of migrations applied through the admin endpoints.
	Recorder interface {
		Applied(database string, n int, took time.Duration)
	}

	// Params configure a Handler. Engines looks up the engine of a database;
	// ok is false when the database has none.
	Params struct {
		Config *config.Config

		// Environment is the host mode. Actions are only served in dev.
		Environment config.Mode

		// Prefix is the URL prefix the handler is mounted at
		Prefix string

		// Location is the base location of the migration scripts; each
		// database keeps its scripts in <location>/<database>
		Location string

		Engines func(name string) (e Engine, ok bool, err error)
		Metrics Recorder
	}

	// Handler serves the admin endpoints.
	Handler struct {
		params Params
		prefix string
		mux    *http.ServeMux
	}

	databaseSummary struct {
		Name     string `json:"name"`
		Driver   string `json:"driver"`
		Location string `json:"location"`
		Auto     bool   `json:"auto"`
		Managed  bool   `json:"managed"`
	}

	infoResponse struct {
		Database   string                  `json:"database"`
		Current    string                  `json:"current,omitempty"`
		Pending    int                     `json:"pending"`
		Migrations []*engine.MigrationInfo `json:"migrations"`
	}
)

var actions = map[string]func(ctx context.Context, e Engine) (int, error){
	"migrate":  func(ctx context.Context, e Engine) (int, error) { return e.Migrate(ctx) },
	"validate": noCount(Engine.Validate),
	"clean":    noCount(Engine.Clean),
	"baseline": noCount(Engine.Baseline),
	"repair":   noCount(Engine.Repair),
}

// New creates a Handler.
func New(p Params) *Handler {
	prefix := "/" + strings.Trim(p.Prefix, "/")

	h := &Handler{
		params: p,
		prefix: prefix,
		mux:    http.NewServeMux(),
	}

	base := strings.TrimSuffix(prefix, "/")
	h.mux.HandleFunc("GET "+prefix, h.handleIndex)
	h.mux.HandleFunc("GET "+base+"/{database}", h.handleInfo)
	h.mux.HandleFunc("POST "+base+"/{database}/{action}", h.handleAction)

	return h
}

// Prefix returns the URL prefix the handler serves.
func (h *Handler) Prefix() string {
	return h.prefix
}

// Register mounts the handler on d.
func (h *Handler) Register(d Dispatcher) {
	d.Handle(h.prefix, h)
	if h.prefix != "/" {
		d.Handle(h.prefix+"/", h)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	dbs := make([]databaseSummary, 0, len(h.params.Config.Databases))
	for _, db := range h.params.Config.Databases {
		_, ok, err := h.params.Engines(db.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		dbs = append(dbs, databaseSummary{
			Name:     db.Name,
			Driver:   db.Driver,
			Location: resource.Join(h.params.Location, db.Name),
			Auto:     db.Migration.Auto,
			Managed:  ok,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"environment": h.params.Environment,
		"databases":   dbs,
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("database")
	e, ok := h.lookup(w, name)
	if !ok {
		return
	}

	info, err := e.Info(r.Context())
	if err != nil {
		slog.Error("Failed to load migration info", "database", name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := infoResponse{
		Database:   name,
		Pending:    len(info.Pending()),
		Migrations: info.All(),
	}
	if cur := info.Current(); cur != nil {
		resp.Current = cur.Version.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	name, action := r.PathValue("database"), r.PathValue("action")

	run, ok := actions[action]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action: "+action)
		return
	}

	if h.params.Environment != config.ModeDev {
		slog.Warn("Refusing admin action outside dev mode", "database", name, "action", action, "mode", h.params.Environment)
		writeError(w, http.StatusForbidden, fmt.Sprintf("%s is only available in dev mode (current mode: %s)", action, h.params.Environment))
		return
	}

	e, ok := h.lookup(w, name)
	if !ok {
		return
	}

	slog.Info("Running admin action", "database", name, "action", action)

	start := time.Now()
	n, err := run(r.Context(), e)
	if err != nil {
		slog.Error("Admin action failed", "database", name, "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"database": name, "action": action}
	if action == "migrate" {
		resp["applied"] = n
		if h.params.Metrics != nil {
			h.params.Metrics.Applied(name, n, time.Since(start))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// lookup writes a 404 when the database has no engine.
func (h *Handler) lookup(w http.ResponseWriter, name string) (Engine, bool) {
	e, ok, err := h.params.Engines(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown database: "+name)
		return nil, false
	}

	return e, true
}

func noCount(fn func(Engine, context.Context) error) func(context.Context, Engine) (int, error) {
	return func(ctx context.Context, e Engine) (int, error) {
		return 0, fn(e, ctx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
