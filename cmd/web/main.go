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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"voicecollect/internal/config"
	"voicecollect/internal/security"
	"voicecollect/internal/session"
	"voicecollect/internal/storage"
	"voicecollect/internal/upload"
	"voicecollect/internal/web"
)

var (
	cfgFile       string
	listenAddr    string
	verbose       bool
	tlsSelfSigned bool
	tlsHosts      []string
)

var rootCmd = &cobra.Command{
	Use:   "voicecollect",
	Short: "Collect short spoken-word recordings into cloud storage",
}

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the recording web app",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "voicecollect.yaml", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides config and PORT")
	serveCmd.Flags().BoolVar(&tlsSelfSigned, "tls-self-signed", false, "serve HTTPS with a throwaway certificate")
	serveCmd.Flags().StringSliceVar(&tlsHosts, "tls-host", nil, "host names or IPs for the self-signed certificate")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies file, then environment, then flags, and validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = listenAddr
	}
	if tlsSelfSigned {
		cfg.TLSSelfSigned = true
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func openBucket(ctx context.Context, cfg *config.Config) (storage.Bucket, error) {
	if cfg.LocalDir != "" {
		return storage.NewDirBucket(cfg.LocalDir)
	}
	return storage.NewGCSBucket(ctx, cfg.Bucket)
}

func newHTTPServer(cfg *config.Config, handler http.Handler) (*http.Server, error) {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	if cfg.TLSSelfSigned {
		tlsConfig, err := security.SelfSignedTLSConfig(tlsHosts...)
		if err != nil {
			return nil, err
		}
		srv.TLSConfig = tlsConfig
	}
	return srv, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	bucket, err := openBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer bucket.Close()

	sessions := session.NewStore([]byte(cfg.SessionSecret), cfg.SecureCookies || cfg.TLSSelfSigned)
	app, err := web.NewServer(cfg, sessions, upload.NewService(bucket, logger), logger)
	if err != nil {
		return err
	}
	srv, err := newHTTPServer(cfg, app.Router())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("tls", srv.TLSConfig != nil),
			zap.String("bucket", cfg.Bucket),
			zap.String("local_dir", cfg.LocalDir))
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
