// Package pages enables GitHub Pages hosting for a published repository.
package pages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/remote"
)

// State is a step of the activation state machine.
type State int

const (
	StateAbsent State = iota
	StateCreating
	StateActive
	StateUpdating
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateUpdating:
		return "updating"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Path records how hosting became active.
type Path string

const (
	PathCreated    Path = "created"
	PathConflict   Path = "already_enabled"
	PathRemediated Path = "remediated"
	PathUpdated    Path = "updated"
	// PathLegacy means workflow builds were refused and hosting was enabled
	// from the branch source instead.
	PathLegacy Path = "legacy"
)

// Config holds activation timing.
type Config struct {
	// PrepareDelay is waited before each attempt.
	PrepareDelay time.Duration `yaml:"prepare_delay"`
	// SettleDelay is waited after hosting is created or updated.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Attempts bounds the outer retry loop around the whole sequence.
	Attempts int `yaml:"attempts"`
	// RetryDelay is waited between outer attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// ReadinessTimeout enables polling the hosting status for "built" after
	// the settle delay. 0 disables the poll.
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
	// ReadinessInterval is the wait between readiness polls.
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PrepareDelay:      5 * time.Second,
		SettleDelay:       8 * time.Second,
		Attempts:          3,
		RetryDelay:        5 * time.Second,
		ReadinessInterval: 5 * time.Second,
	}
}

// EntryEnsurer creates index.html at the repository root when it is missing.
type EntryEnsurer interface {
	EnsureEntryDocument(ctx context.Context, repo *remote.Repository) (bool, error)
}

// Result is the outcome of a successful activation.
type Result struct {
	Endpoint string  `json:"endpoint"`
	Path     Path    `json:"path"`
	State    State   `json:"-"`
	States   []State `json:"-"`
	// Ready is true when a readiness poll saw the site built.
	Ready    bool `json:"ready"`
	Attempts int  `json:"attempts"`
}

// Endpoint returns the public URL of owner/repo's Pages site.
func Endpoint(owner, repo string) string {
	return "https://" + strings.ToLower(owner) + ".github.io/" + repo + "/"
}

// Activator drives a repository from no hosting to a settled Pages site.
type Activator struct {
	provider remote.Provider
	client   *remote.Client
	ensurer  EntryEnsurer
	cfg      Config
	logger   logging.Logger
}

// New returns an Activator.
func New(provider remote.Provider, client *remote.Client, ensurer EntryEnsurer, cfg Config, logger logging.Logger) *Activator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &Activator{
		provider: provider,
		client:   client,
		ensurer:  ensurer,
		cfg:      cfg,
		logger:   logger.With(logging.Field{Key: "component", Value: "pages"}),
	}
}

// Activate enables or updates hosting for repo and returns its endpoint.
// The sequence is retried as a whole; when the attempts run out a single
// Fatal error is returned and no endpoint.
func (a *Activator) Activate(ctx context.Context, repo *remote.Repository) (*Result, error) {
	attempt := 0
	var res *Result
	retryable := func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		var rerr *remote.Error
		if errors.As(err, &rerr) && rerr.Kind == remote.KindFatal && !rerr.Exhausted() {
			return false
		}
		return true
	}

	err := remote.Retry(ctx, "activate pages", a.cfg.Attempts, a.cfg.RetryDelay, retryable, func(ctx context.Context) error {
		attempt++
		r, err := a.activateOnce(ctx, repo)
		if err != nil {
			a.logger.Warn("pages activation attempt failed",
				logging.Field{Key: "repo", Value: repo.FullName()},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "max_attempts", Value: a.cfg.Attempts},
				logging.Err(err))
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		a.logger.Error("pages activation failed",
			logging.Field{Key: "repo", Value: repo.FullName()},
			logging.Err(err))
		if remote.KindOf(err) != remote.KindFatal {
			err = remote.Exhausted("activate pages", attempt, err)
		}
		return nil, err
	}
	res.Attempts = attempt

	a.logger.Info("pages active",
		logging.Field{Key: "repo", Value: repo.FullName()},
		logging.Field{Key: "endpoint", Value: res.Endpoint},
		logging.Field{Key: "path", Value: string(res.Path)})
	return res, nil
}

func (a *Activator) activateOnce(ctx context.Context, repo *remote.Repository) (*Result, error) {
	res := &Result{Endpoint: Endpoint(repo.Owner, repo.Name)}
	enter := func(s State) {
		a.logger.Debug("pages state",
			logging.Field{Key: "repo", Value: repo.FullName()},
			logging.Field{Key: "state", Value: s.String()})
		res.State = s
		res.States = append(res.States, s)
	}

	if err := remote.Sleep(ctx, a.cfg.PrepareDelay); err != nil {
		return nil, err
	}

	req := remote.PagesRequest{Branch: repo.DefaultBranch, Path: "/", BuildType: remote.BuildWorkflow}

	_, err := remote.Call(ctx, a.client, remote.Op{Name: "get pages"}, func(ctx context.Context) (*remote.PagesConfig, error) {
		return a.provider.GetPages(ctx, repo.Owner, repo.Name)
	})
	switch remote.KindOf(err) {
	case remote.KindNone:
		enter(StateActive)
		enter(StateUpdating)
		if err := a.client.Do(ctx, remote.Op{Name: "update pages"}, func(ctx context.Context) error {
			return a.provider.UpdatePages(ctx, repo.Owner, repo.Name, req)
		}); err != nil {
			return nil, err
		}
		res.Path = PathUpdated
		enter(StateActive)

	case remote.KindNotFound:
		enter(StateAbsent)
		enter(StateCreating)
		path, err := a.create(ctx, repo, req)
		if err != nil {
			return nil, err
		}
		res.Path = path
		enter(StateActive)

	default:
		return nil, err
	}

	if err := remote.Sleep(ctx, a.cfg.SettleDelay); err != nil {
		return nil, err
	}
	res.Ready = a.awaitReady(ctx, repo)
	enter(StateSettled)
	return res, nil
}

func (a *Activator) createPages(ctx context.Context, repo *remote.Repository, req remote.PagesRequest) error {
	// Enabling an already enabled site answers Conflict, so repeating the
	// call is safe.
	return a.client.Do(ctx, remote.Op{Name: "create pages", Class: remote.Idempotent}, func(ctx context.Context) error {
		_, err := a.provider.CreatePages(ctx, repo.Owner, repo.Name, req)
		return err
	})
}

// rejectsWorkflowBuild reports whether the provider refused the request
// itself, as accounts without workflow builds do.
func rejectsWorkflowBuild(err error) bool {
	var rerr *remote.Error
	if !errors.As(err, &rerr) || rerr.Kind != remote.KindFatal || rerr.Exhausted() {
		return false
	}
	return rerr.StatusCode == http.StatusBadRequest || rerr.StatusCode == http.StatusForbidden
}

func (a *Activator) create(ctx context.Context, repo *remote.Repository, req remote.PagesRequest) (Path, error) {
	created := PathCreated
	err := a.createPages(ctx, repo, req)
	if rejectsWorkflowBuild(err) {
		a.logger.Info("workflow pages refused, enabling from branch source",
			logging.Field{Key: "repo", Value: repo.FullName()},
			logging.Err(err))
		req.BuildType = remote.BuildLegacy
		created = PathLegacy
		err = a.createPages(ctx, repo, req)
	}
	switch remote.KindOf(err) {
	case remote.KindNone:
		return created, nil
	case remote.KindConflict:
		a.logger.Info("pages already enabled",
			logging.Field{Key: "repo", Value: repo.FullName()})
		return PathConflict, nil
	case remote.KindUnprocessable:
		a.logger.Info("pages needs root content, creating index.html",
			logging.Field{Key: "repo", Value: repo.FullName()},
			logging.Err(err))
		if _, err := a.ensurer.EnsureEntryDocument(ctx, repo); err != nil {
			return "", err
		}
		// With content in place hosting can be enabled; if the provider
		// still refuses, the pushed workflow enables it on its first run.
		if err := a.createPages(ctx, repo, req); err != nil && remote.KindOf(err) != remote.KindConflict {
			a.logger.Warn("pages still not enabled after adding index.html",
				logging.Field{Key: "repo", Value: repo.FullName()},
				logging.Err(err))
		}
		return PathRemediated, nil
	default:
		return "", err
	}
}

// awaitReady polls the hosting status until it reports built. It gives up
// early when the build errored. A timeout or poll failure is logged, never
// returned.
func (a *Activator) awaitReady(ctx context.Context, repo *remote.Repository) bool {
	if a.cfg.ReadinessTimeout <= 0 {
		return false
	}
	interval := a.cfg.ReadinessInterval
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ReadinessTimeout)
	defer cancel()

	for {
		cfg, err := a.provider.GetPages(ctx, repo.Owner, repo.Name)
		switch {
		case err != nil:
			a.logger.Debug("pages readiness poll failed",
				logging.Field{Key: "repo", Value: repo.FullName()},
				logging.Err(err))
		case cfg.Status == remote.PagesBuilt:
			return true
		case cfg.Status == remote.PagesErrored:
			a.logger.Warn("pages build errored",
				logging.Field{Key: "repo", Value: repo.FullName()})
			return false
		case cfg.Status == remote.PagesBuilding:
			a.logger.Debug("pages building",
				logging.Field{Key: "repo", Value: repo.FullName()})
		}
		if err := remote.Sleep(ctx, interval); err != nil {
			a.logger.Warn("pages not reported built before timeout",
				logging.Field{Key: "repo", Value: repo.FullName()},
				logging.Field{Key: "timeout", Value: a.cfg.ReadinessTimeout.String()})
			return false
		}
	}
}
