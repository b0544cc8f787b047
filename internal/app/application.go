package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/metrics"
	"github.com/raysh454/sitedrop/internal/pages"
	"github.com/raysh454/sitedrop/internal/provisioner"
	"github.com/raysh454/sitedrop/internal/publisher"
	"github.com/raysh454/sitedrop/internal/registry"
	"github.com/raysh454/sitedrop/internal/remote"
	"github.com/raysh454/sitedrop/internal/remote/ghprovider"
	"github.com/raysh454/sitedrop/internal/webclient"
)

// Application is the global runtime state container.
// It holds config and the core services that are shared across modules
// (orchestrator, registry, metrics, logger). Pass Application into modules
// that need access to the global state rather than using package-level
// variables.
type Application struct {
	Config   *Config
	Logger   logging.Logger
	Orch     *Orchestrator
	Registry *registry.MemoryRegistry
	Metrics  *metrics.Metrics
	Provider remote.Provider
}

// NewApplication builds the GitHub-backed provider from cfg and wires every
// workflow component around it.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	httpClient := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
	provider, err := ghprovider.New(ghprovider.Config{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.APIURL,
	}, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating github provider: %w", err)
	}
	return NewApplicationWithProvider(cfg, logger, provider), nil
}

// NewApplicationWithProvider wires the workflow around an existing provider.
func NewApplicationWithProvider(cfg *Config, logger logging.Logger, provider remote.Provider) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := remote.NewClient(cfg.Remote, logger)

	provCfg := cfg.Provisioner
	provCfg.Owner = cfg.GitHub.Owner
	prov := provisioner.New(provider, client, provisioner.NewNamer(time.Now), provCfg, logger)

	pub := publisher.New(provider, client, logger)
	act := pages.New(provider, client, pub, cfg.Pages, logger)

	reg := registry.NewMemoryRegistry(logger)
	m := metrics.New()

	orch := NewOrchestrator(cfg, Components{
		Provisioner: prov,
		Publisher:   pub,
		Activator:   act,
		Registry:    reg,
		Metrics:     m,
	}, logger)

	return &Application{
		Config:   cfg,
		Logger:   logger,
		Orch:     orch,
		Registry: reg,
		Metrics:  m,
		Provider: provider,
	}
}

// Start prepares local state: the upload staging root must exist before the
// first request arrives.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	if err := os.MkdirAll(a.Config.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload dir %s: %w", a.Config.UploadDir, err)
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "owner", Value: a.Config.GitHub.Owner},
		logging.Field{Key: "upload_dir", Value: a.Config.UploadDir})
	return nil
}

// Shutdown attempts a graceful shutdown, delegating to the orchestrator first.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	// Ask orchestrator to shut down first with a bounded timeout.
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if a.Orch != nil {
		if err := a.Orch.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("orchestrator shutdown returned error", logging.Err(err))
		}
	}
	return nil
}
