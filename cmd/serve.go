package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/CraigglesO/mercator-to-s2/internal/log"
	"github.com/CraigglesO/mercator-to-s2/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for cube tiles and builds",
	Long: `Start an HTTP server that serves built cube-face tiles and exposes
the reprojection pipeline over a REST API.

GET /api/v1/tiles/{face}/{zoom}/{x}/{y} streams one tile, GET /api/v1/info
lists the levels found on disk, and POST /api/v1/build runs a build with
the server's flag values as defaults.

Examples:
  # Serve tiles from ./out on default port 8080
  mercator-to-s2 serve

  # Start server on custom port
  mercator-to-s2 serve --port 3000

  # Start server with custom bind address and tile folder
  mercator-to-s2 serve --bind 0.0.0.0 --port 8080 -f ./tiles`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().StringP("folder", "f", "./out", "cube tile folder to serve")
	serveCmd.Flags().StringP("input", "i", "./img", "default source folder for build requests")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.folder", serveCmd.Flags().Lookup("folder"))
	viper.BindPFlag("server.input", serveCmd.Flags().Lookup("input"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Setup(viper.GetBool("verbose"))
	defer log.Sync()

	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")
	folder := viper.GetString("server.folder")
	input := viper.GetString("server.input")

	base, err := engineConfigFromViper()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", bind, port)

	// Create Chi router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	// CORS middleware for API access
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Create server implementation
	apiServer := server.NewServer(version, folder, input, base)

	// Mount API routes at /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		apiServer.Routes(r)
	})

	// Legacy health endpoint (without /api/v1 prefix for backward compatibility)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
	}()

	log.Info("starting server",
		zap.String("addr", addr),
		zap.String("folder", folder),
		zap.String("health", fmt.Sprintf("http://%s/api/v1/health", addr)),
		zap.String("tiles", fmt.Sprintf("http://%s/api/v1/tiles/{face}/{zoom}/{x}/{y}", addr)))

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
