package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/exprflow/pkg/artifact"
	"github.com/matzehuels/exprflow/pkg/enrich"
	"github.com/matzehuels/exprflow/pkg/errors"
	"github.com/matzehuels/exprflow/pkg/pipeline"
	"github.com/matzehuels/exprflow/pkg/results"
	"github.com/matzehuels/exprflow/pkg/store"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		dir  string
		addr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report, tables and metrics of an output directory",
		Long: `Serve exposes a run's output directory over HTTP:

  /                     the interactive report
  /api/files            artifact listing
  /api/files/{name}     one artifact
  /api/results          the result table as JSON (?significant=true filters it)
  /api/enrichment       the enrichment table as JSON
  /api/runs             runs recorded in the run store
  /metrics              Prometheus metrics of the server`,
		Example: `  exprflow run -o out/ && exprflow serve --dir out/`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := pipelineOptions(cfg.Config, logger)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Output.Dir
			}
			sink, err := artifact.NewFS(dir)
			if err != nil {
				return err
			}
			st, err := store.OpenDriver(ctx, cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := newServer(sink, st, opts.Thresholds(), logger, prometheus.NewRegistry())
			return srv.serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory to serve (default: output.dir)")
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	addFilterFlags(cmd)
	addStoreFlags(cmd)
	return cmd
}

// server serves one output directory.
type server struct {
	sink       artifact.Sink
	store      store.Store
	thresholds results.Thresholds
	logger     *log.Logger
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newServer(sink artifact.Sink, st store.Store, th results.Thresholds, logger *log.Logger, reg *prometheus.Registry) *server {
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewGoCollector())
	return &server{
		sink:       sink,
		store:      st,
		thresholds: th,
		logger:     logger,
		registry:   reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: appName,
			Name:      "serve_requests_total",
			Help:      "Requests served by route and status",
		}, []string{"route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: appName,
			Name:      "serve_request_duration_seconds",
			Help:      "Request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// routes builds the chi router.
func (s *server) routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Compress(5),
		s.instrument,
	)

	r.Get("/", s.handleReport)
	r.Route("/api", func(r chi.Router) {
		r.Get("/files", s.handleFiles)
		r.Get("/files/{name}", s.handleFile)
		r.Get("/results", s.handleResults)
		r.Get("/enrichment", s.handleEnrichment)
		r.Get("/runs", s.handleRuns)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// serve blocks until ctx is cancelled, then shuts the server down.
func (s *server) serve(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.routes(),
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	printSuccess("Serving %s", StyleValue.Render(s.sink.Location()))
	printKeyValue("url", StyleLink.Render("http://"+addr))

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	err := eg.Wait()
	if ctx.Err() != nil && err == nil {
		return ctx.Err()
	}
	return err
}

// instrument records request counts and latency by chi route pattern.
func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status,
			"duration", time.Since(start).Round(time.Microsecond))
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.writeArtifact(w, r, pipeline.FileReport)
}

func (s *server) handleFiles(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sink.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []artifact.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.writeArtifact(w, r, chi.URLParam(r, "name"))
}

func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	data, err := s.sink.Get(r.Context(), pipeline.FileResultsTSV)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := results.ReadTSV(bytes.NewReader(data))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sig, _ := strconv.ParseBool(r.URL.Query().Get("significant")); sig {
		kept := results.Table{Coefficient: t.Coefficient}
		for _, row := range t.Rows {
			if s.thresholds.Passes(row) {
				kept.Rows = append(kept.Rows, row)
			}
		}
		t = kept
	}
	w.Header().Set("Content-Type", "application/json")
	if err := results.WriteJSON(w, t); err != nil {
		s.logger.Warn("write results", "err", err)
	}
}

func (s *server) handleEnrichment(w http.ResponseWriter, r *http.Request) {
	data, err := s.sink.Get(r.Context(), pipeline.FileEnrichmentTSV)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := enrich.ReadTSV(bytes.NewReader(data))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res.Rows == nil {
		res.Rows = []enrich.Term{}
	}
	writeJSON(w, http.StatusOK, res)
}

// runJSON is the wire form of a stored run.
type runJSON struct {
	ID          string     `json:"id"`
	Dataset     string     `json:"dataset"`
	Coefficient string     `json:"coefficient,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Features    int        `json:"features"`
	Significant int        `json:"significant"`
	Terms       int        `json:"terms"`
	Location    string     `json:"location,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		j := runJSON{
			ID:          run.ID,
			Dataset:     run.Dataset,
			Coefficient: run.Coefficient,
			Reference:   run.Reference,
			Status:      string(run.Status),
			StartedAt:   run.StartedAt,
			Features:    run.Features,
			Significant: run.Significant,
			Terms:       run.Terms,
			Location:    run.Location,
			Error:       run.Error,
		}
		if !run.CompletedAt.IsZero() {
			completed := run.CompletedAt
			j.CompletedAt = &completed
		}
		out = append(out, j)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) writeArtifact(w http.ResponseWriter, r *http.Request, name string) {
	data, err := s.sink.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType(filepath.Base(name)))
	_, _ = w.Write(data)
}

// writeError maps error categories to HTTP statuses.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err).Category() {
	case errors.CategoryNotFound:
		status = http.StatusNotFound
	case errors.CategoryInput:
		status = http.StatusBadRequest
	case errors.CategoryRemote:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{
		"error": errors.UserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
