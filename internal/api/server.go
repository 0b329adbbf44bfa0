// Package api exposes the federating query gateway's HTTP interface:
// the composite occurrence endpoints, health checks, metrics, and the
// small auxiliary vocabulary/ruleset read endpoints.
package api

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/paleoapi/compositegw/internal/app"
	"github.com/paleoapi/compositegw/internal/composite"
	idgen "github.com/paleoapi/compositegw/internal/id/uuid"
	"github.com/paleoapi/compositegw/internal/metrics"
	"github.com/paleoapi/compositegw/internal/record"
	"github.com/paleoapi/compositegw/internal/reqtransform"
	"github.com/paleoapi/compositegw/internal/store"
	"github.com/paleoapi/compositegw/internal/upstream/paleobio"
	"github.com/paleoapi/compositegw/internal/upstream/quaternary"
)

// Server wires HTTP handlers to the application's shared services.
type Server struct {
	router chi.Router
	app    *app.App
	ids    *idgen.Generator
}

// NewServer constructs a Server with middleware and routes wired against
// the given application container.
func NewServer(a *app.App) *Server {
	s := &Server{app: a, ids: idgen.NewUUIDGenerator()}
	zap.ReplaceGlobals(a.GetLogger())

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware(a.GetLogger()))
	r.Use(timeoutMiddleware(a.Config.Timeout() + a.Config.TickPeriod()))
	if a.Config.Auth.Enabled {
		r.Use(apiKeyMiddleware(a.Config.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Get("/occs/list.{fmt:json|csv|tsv|txt}", s.occsList)
	r.Get("/occs/single.{fmt:json|csv|tsv|txt}", s.occsSingle)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/vocab/{vocab}", s.getVocab)
		r.Get("/rulesets", s.listRulesets)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getVocab(w http.ResponseWriter, r *http.Request) {
	vocab := chi.URLParam(r, "vocab")
	fields, err := s.app.GetRulesets().VocabFields(r.Context(), vocab)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown vocab: "+vocab)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vocab": vocab, "fields": fields})
}

func (s *Server) listRulesets(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.app.GetRulesets().ListOutputBlocks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output_blocks": blocks})
}

// occsList serves the composite list query: every enabled upstream's
// adapter contributes a primary list subquery.
func (s *Server) occsList(w http.ResponseWriter, r *http.Request) {
	s.serveComposite(w, r, composite.ModeList)
}

// occsSingle serves the composite single-record fetch: identical fan-out
// shape to occsList, since an upstream's single-record URL builder is
// what distinguishes the two, not the driver's registration.
func (s *Server) occsSingle(w http.ResponseWriter, r *http.Request) {
	s.serveComposite(w, r, composite.ModeSingle)
}

func (s *Server) serveComposite(w http.ResponseWriter, r *http.Request, mode composite.Mode) {
	fmtName := chi.URLParam(r, "fmt")

	result, err := reqtransform.Parse(r.URL.Query())
	if err != nil {
		var parseErr *reqtransform.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rc := result.Ctx
	rc.RequestID, _ = r.Context().Value(requestIDKey{}).(string)

	cfg := s.app.Config
	d := composite.New(rc, composite.Options{
		Timeout:     cfg.Timeout(),
		Retries:     cfg.Composite.Retries,
		TickPeriod:  cfg.TickPeriod(),
		RateLimiter: s.app.GetRateLimiter(),
		Archiver:    s.app.GetArchiver(),
		Progress:    s.app.GetProgress(),
		Logger:      s.app.GetLogger(),
	})

	if cfg.Upstreams.PaleobioEnabled && rc.UpstreamEnabled("paleo") {
		d.AddSubquery("paleo", true, paleobio.New(cfg.Upstreams.PaleobioBaseURL), mode)
	}
	if cfg.Upstreams.QuaternaryEnabled && rc.UpstreamEnabled("quaternary") {
		d.AddSubquery("quaternary", true, quaternary.New(cfg.Upstreams.QuaternaryBaseURL, cfg.Upstreams.PaleobioBaseURL), mode)
	}

	d.Run(r.Context())

	records, removed := d.Results()
	warnings := append(append([]string(nil), result.Warnings...), d.Warnings()...)

	renderOccurrences(w, fmtName, records, removed, warnings)
}

func renderOccurrences(w http.ResponseWriter, fmtName string, records []record.Record, removed int, warnings []string) {
	switch fmtName {
	case "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"records":  records,
			"removed":  removed,
			"warnings": warnings,
		})
	case "csv", "tsv":
		writeDelimited(w, fmtName, records, warnings)
	case "txt":
		writeText(w, records, warnings)
	default:
		writeError(w, http.StatusBadRequest, "unsupported format: "+fmtName)
	}
}

// recordColumns orders the union of every record's keys, fixed priority
// fields first, then the remainder alphabetically, so csv/tsv output has
// a stable column set across heterogeneous upstream records.
func recordColumns(records []record.Record) []string {
	priority := []string{
		record.FieldDatabase, record.FieldRecordType,
		record.FieldAgeOlder, record.FieldAgeYounger,
		record.FieldLng, record.FieldLat,
	}
	seen := map[string]bool{}
	var rest []string
	for _, r := range records {
		for k := range r {
			if seen[k] {
				continue
			}
			seen[k] = true
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	var cols []string
	for _, p := range priority {
		if seen[p] {
			cols = append(cols, p)
		}
	}
	for _, k := range rest {
		isPriority := false
		for _, p := range priority {
			if k == p {
				isPriority = true
				break
			}
		}
		if !isPriority {
			cols = append(cols, k)
		}
	}
	return cols
}

func writeDelimited(w http.ResponseWriter, fmtName string, records []record.Record, warnings []string) {
	contentType := "text/csv"
	delim := ','
	if fmtName == "tsv" {
		contentType = "text/tab-separated-values"
		delim = '\t'
	}
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Comma = delim
	cols := recordColumns(records)
	_ = cw.Write(cols)
	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = fmt.Sprint(r[c])
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	for _, warn := range warnings {
		fmt.Fprintf(w, "# %s\n", warn)
	}
}

func writeText(w http.ResponseWriter, records []record.Record, warnings []string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	cols := recordColumns(records)
	for i, r := range records {
		fmt.Fprintf(w, "--- record %d ---\n", i+1)
		for _, c := range cols {
			if v, ok := r[c]; ok {
				fmt.Fprintf(w, "%s: %v\n", c, v)
			}
		}
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warn)
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.ids.NewID()
		if err != nil {
			id = ""
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	logger := s.app.GetLogger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
