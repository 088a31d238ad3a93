// servers/proxy/server.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mwiater/lime/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

// ErrResp is the error body of every failed request.
type ErrResp struct {
	Error string `json:"error"`
}

// Server answers the completion proxy protocol.
type Server struct {
	cfg      Config
	answerer Answerer
	schema   *gojsonschema.Schema

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewServer validates the request schema derived from cfg and registers
// metrics on a private registry.
func NewServer(cfg Config, answerer Answerer) (*Server, error) {
	schema, err := requestSchema(cfg.RequiredKeys)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		answerer: answerer,
		schema:   schema,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lime_proxy_requests_total",
			Help: "Requests served by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lime_proxy_infer_duration_seconds",
			Help:    "Time spent producing /infer answers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	s.registry.MustRegister(s.requests, s.latency)
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /check", s.handleCheck)
	mux.HandleFunc("POST /infer", s.handleInfer)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "check", http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeJSON(w, "infer", http.StatusBadRequest, ErrResp{Error: err.Error()})
		return
	}
	if err := s.validate(body); err != nil {
		s.writeJSON(w, "infer", http.StatusBadRequest, ErrResp{Error: err.Error()})
		return
	}

	question := body["question"].(string)
	params := make(map[string]any, len(body)-1)
	for k, v := range body {
		if k != "question" {
			params[k] = v
		}
	}
	logging.LogRequest("request", r.RemoteAddr, s.cfg.Mode, body)

	start := time.Now()
	answer, err := s.answerer.Answer(r.Context(), question, params)
	if err != nil {
		s.latency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		logging.LogEvent("infer failed: %v", err)
		s.writeJSON(w, "infer", http.StatusInternalServerError, ErrResp{Error: err.Error()})
		return
	}
	s.latency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	logging.LogRequest("response", r.RemoteAddr, s.cfg.Mode, answer)
	s.writeJSON(w, "infer", http.StatusOK, map[string]string{"answer": answer})
}

// validate checks body against the request schema and reports the first
// missing key in the wording proxy clients surface to users.
func (s *Server) validate(body map[string]any) error {
	res, err := s.schema.Validate(gojsonschema.NewGoLoader(body))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	for _, e := range res.Errors() {
		if e.Type() == "required" {
			if prop, ok := e.Details()["property"].(string); ok {
				if prop == "question" {
					return errors.New("No question provided in json body")
				}
				return fmt.Errorf("missing required key: %s", prop)
			}
		}
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// requestSchema requires a string question plus every extra key.
func requestSchema(extra []string) (*gojsonschema.Schema, error) {
	required := []any{"question"}
	for _, k := range extra {
		if k = strings.TrimSpace(k); k != "" && k != "question" {
			required = append(required, k)
		}
	}
	doc := map[string]any{
		"type":     "object",
		"required": required,
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
		},
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, status int, v any) {
	s.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	writeJSON(w, status, v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("No question provided in json body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// shutdown gives in-flight requests a moment to finish.
func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
