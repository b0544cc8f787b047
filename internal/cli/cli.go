// Package cli is the sitedrop command line: a cobra root with the serve and
// config subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raysh454/sitedrop/internal/app"
	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/server"
)

const shutdownTimeout = 20 * time.Second

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	port       int
	logLevel   string
}

// NewRootCommand builds the command tree. Output goes to out so tests can
// capture it.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sitedrop",
		Short:         "Publish uploaded static sites to GitHub Pages",
		Long:          "sitedrop accepts static site uploads over HTTP, creates a GitHub repository per upload and activates GitHub Pages on it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().IntVarP(&opts.port, "port", "p", 0, "HTTP port (overrides config and PORT)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(newServeCommand(opts), newConfigCommand(opts))
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

// loadConfig applies flags on top of file and environment settings.
func (o *options) loadConfig() (*app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.port != 0 {
		cfg.HTTP.Port = o.port
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the upload API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logging.NewLogger(cmd.OutOrStdout(), "sitedrop", logging.ParseLevel(cfg.LogLevel)))
		},
	}
}

// serve runs the API until ctx is done, then drains in-flight requests and
// jobs.
func serve(ctx context.Context, cfg *app.Config, logger logging.Logger) error {
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{App: application, Logger: logger})
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			srv.Close()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Err(err))
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Warn("application shutdown", logging.Err(err))
	}
	srv.Close()
	return nil
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.GitHub.Token != "" {
				shown.GitHub.Token = "<redacted>"
			}
			if shown.HTTP.RateLimit.RedisPassword != "" {
				shown.HTTP.RateLimit.RedisPassword = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&shown); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}
