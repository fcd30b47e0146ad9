package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/netpulsehq/collector/internal/config"
	"github.com/netpulsehq/collector/internal/events"
	"github.com/netpulsehq/collector/internal/health"
	"github.com/netpulsehq/collector/internal/metrics"
	"github.com/netpulsehq/collector/internal/query"
)

const (
	formatMultiTarget = "multitarget"
	formatSmokestack  = "smokestack"
	formatMTR         = "mtr"
)

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger  *slog.Logger
	Queries *query.Facade
	Metrics *metrics.Store
	Health  *health.Checker
	Events  *events.Ring
	Graphs  []config.GraphConfig
	Now     func() time.Time
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

// New constructs the graph-serving HTTP server.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":7021"
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Queries == nil {
		deps.Queries = query.New(nil, nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc("/targets", targetsHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/graph_data", graphDataHandler(deps)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/graph", graphViewHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/", indexViewHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/events", eventsHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.NewHTTPHandler(deps.Metrics)).Methods(http.MethodGet, http.MethodHead)
	}

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, cfg: cfg, deps: deps}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.Server.Handler }

func targetsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Logger, struct {
			Targets   []query.Target       `json:"targets"`
			DataTypes []string             `json:"data_types"`
			Graphs    []config.GraphConfig `json:"graphs"`
		}{
			Targets:   deps.Queries.Targets(),
			DataTypes: deps.Queries.DataTypes(),
			Graphs:    deps.Graphs,
		})
	}
}

type graphDataRequest struct {
	Type    string   `json:"type"`
	Targets []string `json:"targets"`
	Format  string   `json:"format"`
	From    int64    `json:"from"`
	To      int64    `json:"to"`
	Buckets int      `json:"buckets"`
}

func (req graphDataRequest) window() query.Window {
	var w query.Window
	if req.From > 0 {
		w.From = time.Unix(req.From, 0).UTC()
	}
	if req.To > 0 {
		w.To = time.Unix(req.To, 0).UTC()
	}
	return w
}

func parseGraphDataRequest(r *http.Request) (graphDataRequest, error) {
	if r.Method == http.MethodPost {
		var req graphDataRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return graphDataRequest{}, errors.New("invalid json")
		}
		return req, nil
	}

	q := r.URL.Query()
	req := graphDataRequest{
		Type:    q.Get("type"),
		Targets: q["target"],
		Format:  q.Get("format"),
	}
	for name, dst := range map[string]*int64{"from": &req.From, "to": &req.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return graphDataRequest{}, errors.New("invalid " + name)
		}
		*dst = v
	}
	if raw := q.Get("buckets"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return graphDataRequest{}, errors.New("invalid buckets")
		}
		req.Buckets = v
	}
	return req, nil
}

func graphDataHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseGraphDataRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Type == "" || len(req.Targets) == 0 {
			http.Error(w, "type and target are required", http.StatusBadRequest)
			return
		}
		if req.Format == "" {
			req.Format = formatMultiTarget
		}

		window := req.window()
		var payload any
		switch req.Format {
		case formatMultiTarget:
			series := make([]query.Series, 0, len(req.Targets))
			for _, target := range req.Targets {
				s, err := deps.Queries.Series(req.Type, target, window)
				if err != nil {
					writeQueryError(w, deps.Logger, err)
					return
				}
				series = append(series, s)
			}
			payload = struct {
				Type   string         `json:"type"`
				Series []query.Series `json:"series"`
			}{Type: req.Type, Series: series}

		case formatSmokestack:
			buckets := req.Buckets
			if buckets <= 0 {
				buckets = 30
			}
			stacks := make(map[string][]query.Summary, len(req.Targets))
			for _, target := range req.Targets {
				summaries, err := deps.Queries.Summaries(req.Type, target, window, buckets)
				if err != nil {
					writeQueryError(w, deps.Logger, err)
					return
				}
				stacks[target] = summaries
			}
			payload = struct {
				Type    string                     `json:"type"`
				Buckets map[string][]query.Summary `json:"buckets"`
			}{Type: req.Type, Buckets: stacks}

		case formatMTR:
			traces := make(map[string][]query.Trace, len(req.Targets))
			for _, target := range req.Targets {
				hops, err := deps.Queries.Traces(req.Type, target, window)
				if err != nil {
					writeQueryError(w, deps.Logger, err)
					return
				}
				traces[target] = hops
			}
			payload = struct {
				Type   string                   `json:"type"`
				Traces map[string][]query.Trace `json:"traces"`
			}{Type: req.Type, Traces: traces}

		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}

		writeJSON(w, deps.Logger, payload)
	}
}

func eventsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		max := 100
		if raw := r.URL.Query().Get("max"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				http.Error(w, "invalid max", http.StatusBadRequest)
				return
			}
			max = v
		}
		if deps.Events == nil {
			writeJSON(w, deps.Logger, []any{})
			return
		}
		writeJSON(w, deps.Logger, deps.Events.Recent(max))
	}
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := deps.Health.Ready(deps.Now())
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(struct {
			Ready   bool     `json:"ready"`
			Reasons []string `json:"reasons,omitempty"`
		}{Ready: ready, Reasons: reasons})
	}
}

// writeQueryError maps facade errors onto HTTP statuses. Unknown keys
// never reach here; the facade returns empty results for those.
func writeQueryError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, query.ErrUnknownDataType), errors.Is(err, query.ErrBadWindow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("graph data query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response failed", "error", err)
	}
}
