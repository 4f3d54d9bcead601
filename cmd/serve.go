package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-explorer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API",
	Long:  "Serves rosters, run history, and the review queue over HTTP for dashboards and triage tooling.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("serving review API", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "serve: shutdown")
		})
		return g.Wait()
	},
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		summaries, err := st.ListRunSummaries(req.Context(), queryLimit(req, 20))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	})

	r.Get("/segments/{segment}/roster", func(w http.ResponseWriter, req *http.Request) {
		roster, err := st.LoadRoster(req.Context(), chi.URLParam(req, "segment"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roster)
	})

	r.Get("/segments/{segment}/conflicts", func(w http.ResponseWriter, req *http.Request) {
		conflicts, err := st.ListConflicts(req.Context(), chi.URLParam(req, "segment"), queryLimit(req, 50))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conflicts)
	})

	r.Get("/segments/{segment}/market-sizes", func(w http.ResponseWriter, req *http.Request) {
		sizes, err := st.ListMarketSizes(req.Context(), chi.URLParam(req, "segment"), queryLimit(req, 20))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sizes)
	})

	return r
}

func queryLimit(req *http.Request, fallback int) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("serve: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
