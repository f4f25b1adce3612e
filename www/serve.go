// Package www is the HTTP surface of the server: health, uploads, the
// audio stream websocket, session listing and metrics.
package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"node.town/shabad/metrics"
	"node.town/shabad/session"
)

type Sessions interface {
	Snapshot() []session.Info
}

type Transcripts interface {
	Recent(ctx context.Context, limit int) ([]session.Transcript, error)
}

type Options struct {
	Sessions Sessions
	Stream   http.Handler

	StaticDir      string
	UploadDir      string
	AllowedOrigins []string

	// Optional.
	Transcripts Transcripts
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(opts Options, logger *log.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "Backend is running (HTTP)!")
	})

	uploads := &uploadHandler{
		dir:     opts.UploadDir,
		metrics: opts.Metrics,
		log:     logger,
	}
	r.Post("/api/audio", uploads.ServeHTTP)

	if opts.Stream != nil {
		r.Get("/api/audio_stream", opts.Stream.ServeHTTP)
	}

	r.Get("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, opts.Sessions.Snapshot(), logger)
	})

	if opts.Transcripts != nil {
		r.Get("/api/transcripts", func(w http.ResponseWriter, req *http.Request) {
			limit := 100
			if s := req.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 {
					http.Error(w, "Invalid limit", http.StatusBadRequest)
					return
				}
				limit = n
			}

			transcripts, err := opts.Transcripts.Recent(req.Context(), limit)
			if err != nil {
				logger.Error("failed to get transcripts", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, transcripts, logger)
		})
	}

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

// Serve runs the router on port until ctx ends, then gives open requests
// grace to finish. Websocket connections are hijacked and are not waited
// for here.
func Serve(ctx context.Context, port int, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
