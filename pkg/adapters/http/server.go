package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/pkg/chance"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/outcome"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/scenario"
	"github.com/go-chi/chi/v5"
)

// MaxBodyBytes bounds the size of a request body.
const MaxBodyBytes = 8 << 20

// Planner defines the planning core served over HTTP.
type Planner interface {
	Solve(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, opts plantopt.RunOptions) (*domain.RunRecord, error)
	Compare(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, variants ...plantopt.Variant) (*outcome.Table, []*domain.RunRecord, error)
}

// Config wires the handler. Store, Streams and Metrics are optional.
type Config struct {
	Planner Planner
	Store   ports.ResultStore
	Streams *StreamManager
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server serves the planning API.
type Server struct {
	planner    Planner
	store      ports.ResultStore
	streams    *StreamManager
	logger     *slog.Logger
	apiVersion string
}

// RunRequest is the body of POST /solve.
type RunRequest struct {
	Label      string               `json:"label,omitempty"`
	Resources  *domain.ResourceSpec `json:"resources"`
	Tree       scenario.Description `json:"tree"`
	Model      domain.ModelConfig   `json:"model"`
	Truncate   *int                 `json:"truncate,omitempty"`
	Chance     []chance.Constraint  `json:"chance,omitempty"`
	Baseline   bool                 `json:"baseline,omitempty"`
	WaitAndSee bool                 `json:"wait_and_see,omitempty"`
}

// CompareRequest is the body of POST /compare. The default variants are compared,
// with the truncated variant cut at TruncateAt.
type CompareRequest struct {
	RunRequest
	TruncateAt int `json:"truncate_at"`
}

// CompareResponse carries the table and the identifiers of the solved variants.
type CompareResponse struct {
	Table *outcome.Table `json:"table"`
	Runs  []string       `json:"runs"`
}

func (r RunRequest) options() plantopt.RunOptions {
	return plantopt.RunOptions{
		Label:      r.Label,
		Model:      r.Model,
		Truncate:   r.Truncate,
		Chance:     r.Chance,
		Baseline:   r.Baseline,
		WaitAndSee: r.WaitAndSee,
	}
}

// NewHandler creates the HTTP handler of the planning API.
func NewHandler(cfg Config) http.Handler {
	s := &Server{
		planner: cfg.Planner,
		store:   cfg.Store,
		streams: cfg.Streams,
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	s.apiVersion = "unknown"
	if doc, err := GetSwagger(); err != nil {
		s.logger.Error("OpenAPI spec unavailable, requests are not validated", "err", err)
	} else if validate, err := validateRequests(doc, s.logger); err != nil {
		s.logger.Error("OpenAPI spec unavailable, requests are not validated", "err", err)
	} else {
		s.apiVersion = doc.Info.Version
		r.Use(validate)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Post("/solve", s.Solve)
	r.Post("/compare", s.Compare)
	r.Get("/results", s.ListResults)
	r.Get("/results/{id}", s.GetResult)
	r.Delete("/results/{id}", s.DeleteResult)
	r.Get("/events", s.SubscribeEvents)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "plantopt-http",
		"version":     strings.TrimSpace(plantopt.Version),
		"api_version": s.apiVersion,
	})
}

// Solve handles the POST /solve request.
func (s *Server) Solve(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if !s.decode(w, r, &body) {
		return
	}
	tree, err := body.Tree.Build()
	if err != nil {
		s.fail(w, "Solve", err)
		return
	}

	rec, err := s.planner.Solve(r.Context(), tree, body.Resources, body.options())
	if err != nil {
		s.fail(w, "Solve", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// Compare handles the POST /compare request.
func (s *Server) Compare(w http.ResponseWriter, r *http.Request) {
	var body CompareRequest
	if !s.decode(w, r, &body) {
		return
	}
	tree, err := body.Tree.Build()
	if err != nil {
		s.fail(w, "Compare", err)
		return
	}

	variants := plantopt.DefaultVariants(body.options(), body.TruncateAt)
	table, records, err := s.planner.Compare(r.Context(), tree, body.Resources, variants...)
	if err != nil {
		s.fail(w, "Compare", err)
		return
	}
	resp := CompareResponse{Table: table, Runs: make([]string, 0, len(records))}
	for _, rec := range records {
		if rec != nil {
			resp.Runs = append(resp.Runs, rec.ID)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ListResults handles the GET /results request.
func (s *Server) ListResults(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.fail(w, "ListResults", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetResult handles the GET /results/{id} request.
func (s *Server) GetResult(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	rec, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetResult", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// DeleteResult handles the DELETE /results/{id} request.
func (s *Server) DeleteResult(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "DeleteResult", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles the GET /events request (SSE). The optional type query
// parameter is a comma-separated list of event types to keep.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	keep := map[domain.EventType]bool{}
	if q := r.URL.Query().Get("type"); q != "" {
		for _, t := range strings.Split(q, ",") {
			keep[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	send := func(msg Message) {
		if len(keep) > 0 && !keep[msg.Type] {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			// flush what was broadcast before the disconnect
			for {
				select {
				case msg, ok := <-ch:
					if !ok {
						return
					}
					send(msg)
				default:
					s.logger.Debug("SSE client disconnected")
					return
				}
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(msg)
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: trailing data", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		http.Error(w, "No result store configured", http.StatusNotImplemented)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" rejected", "err", err)
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), code)
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSpec),
		errors.Is(err, domain.ErrMalformedTree),
		errors.Is(err, domain.ErrNonConvexReformulation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrSolverFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
