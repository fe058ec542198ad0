package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/monitoring"
	"github.com/veldscape/landcover-cli/internal/render"
	"github.com/veldscape/landcover-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history and previews over HTTP",
	Long:  "Read-only API over the run history: list and inspect runs, fetch the class legend, and render PNG previews of output rasters under the preview directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		leg, err := loadLegend()
		if err != nil {
			return err
		}
		pal, err := resolvePalette("")
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		addr := fmt.Sprintf(":%d", port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           newServeMux(st, leg, pal, cfg.Server.PreviewDir),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newServeMux builds the read-only API router.
func newServeMux(st store.Store, leg *legend.Legend, pal *render.Palette, previewDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", handleRuns(st))
		r.Get("/runs/{id}", handleRun(st))
		r.Get("/stats", handleStats(st))
		r.Get("/legend", handleLegend(leg))
		r.Get("/preview", handlePreview(pal, previewDir))
	})

	return r
}

func handleRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
				return
			}
			limit = n
		}

		filter := store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Scene:  r.URL.Query().Get("scene"),
			Limit:  limit,
		}

		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleStats(st store.Store) http.HandlerFunc {
	collector := monitoring.NewCollector(st)
	return func(w http.ResponseWriter, r *http.Request) {
		hours := 0
		if v := r.URL.Query().Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, `{"error":"invalid hours"}`, http.StatusBadRequest)
				return
			}
			hours = n
		}

		snap, err := collector.Collect(r.Context(), hours)
		if err != nil {
			zap.L().Error("collect stats failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
				return
			}
			zap.L().Error("get run failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// legendEntry is the wire form of one legend class.
type legendEntry struct {
	Code uint8  `json:"code"`
	Name string `json:"name"`
}

func handleLegend(leg *legend.Legend) http.HandlerFunc {
	entries := make([]legendEntry, 0, leg.Len())
	for _, code := range leg.Codes() {
		name, _ := leg.Name(code)
		entries = append(entries, legendEntry{Code: code, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })

	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, entries)
	}
}

func handlePreview(pal *render.Palette, previewDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if previewDir == "" {
			http.Error(w, `{"error":"preview is disabled"}`, http.StatusNotFound)
			return
		}

		full, err := confinePath(previewDir, r.URL.Query().Get("path"))
		if err != nil {
			http.Error(w, `{"error":"invalid path"}`, http.StatusBadRequest)
			return
		}

		grid, err := geoio.ReadClass(r.Context(), full, "")
		if err != nil {
			zap.L().Warn("preview read failed", zap.String("path", full), zap.Error(err))
			http.Error(w, `{"error":"raster not readable"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, render.Image(grid, pal)); err != nil {
			zap.L().Warn("preview encode failed", zap.Error(err))
		}
	}
}

// confinePath resolves p as if rooted at root, so ".." segments cannot
// escape the preview directory.
func confinePath(root, p string) (string, error) {
	if p == "" {
		return "", eris.New("empty path")
	}
	full := filepath.Join(root, filepath.Clean("/"+p))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("path %q escapes the preview directory", p)
	}
	return full, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
