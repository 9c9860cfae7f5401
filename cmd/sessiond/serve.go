package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		addr          string
		sweepInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo session routes and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m, err := g.manager(ctx)
			if err != nil {
				return err
			}
			defer m.Close()

			exp, err := prometheus.NewPrometheusExporter(m)
			if err != nil {
				return err
			}

			if sweepInterval >= 0 {
				go m.RunSweeper(ctx, sweepInterval)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(m, exp.Handler()),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log := m.Logger()
			log.Info().Str("addr", addr).Msg("sessiond listening")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "background gc interval; 0 uses the session lifetime, negative disables")
	return cmd
}

// newRouter mounts the demo routes. Every route under /session runs inside the session
// middleware; /metrics does not touch the store.
func newRouter(m *goSession.Manager, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestIDHeader)
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/session", func(r chi.Router) {
		r.With(middleware.ReadOnly(m)).Get("/peek", peek)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(m, middleware.ModeReadWrite))
			r.Get("/", count)
			r.Post("/rotate", rotate)
			r.Post("/logout", logout)
		})
	})
	return r
}

// requestIDHeader copies chi's request id onto the header the Manager reads for audit.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" && r.Header.Get(goSession.RequestIDHeader) == "" {
			r.Header.Set(goSession.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func visits(s *goSession.Session) int {
	v, _ := s.Get("visits")
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func count(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.FromContext(r.Context())
	n := visits(s) + 1
	if err := s.Set("visits", n); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "visits=%d new=%t\n", n, s.IsNew())
}

func peek(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.FromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}
	fmt.Fprintf(w, "visits=%d\n", visits(s))
}

func rotate(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.FromContext(r.Context())
	if err := s.Regenerate(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func logout(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.FromContext(r.Context())
	if err := s.Destroy(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
