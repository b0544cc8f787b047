// Package provisioner creates the remote repository a bundle is published to.
package provisioner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/remote"
)

// Config controls repository creation.
type Config struct {
	// SettleDelay is waited after a successful create so that the first
	// writes see the new repository.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Owner is used when the provider does not report one.
	Owner string `yaml:"-"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{SettleDelay: 5 * time.Second}
}

// Sanitize replaces every character outside [A-Za-z0-9] with '-' and
// lower-cases the result.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Namer derives repository names from project names. Suffixes are unix
// milliseconds and strictly increase within a Namer, so names never repeat.
type Namer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewNamer returns a Namer reading time from now; nil uses time.Now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now}
}

// Next returns Sanitize(project) + "-" + a unique timestamp.
func (n *Namer) Next(project string) string {
	n.mu.Lock()
	ts := n.now().UnixMilli()
	if ts <= n.last {
		ts = n.last + 1
	}
	n.last = ts
	n.mu.Unlock()
	return Sanitize(project) + "-" + strconv.FormatInt(ts, 10)
}

// Provisioner creates one public repository per deployment.
type Provisioner struct {
	provider remote.Provider
	client   *remote.Client
	namer    *Namer
	cfg      Config
	logger   logging.Logger
}

// New returns a Provisioner. namer may be nil.
func New(provider remote.Provider, client *remote.Client, namer *Namer, cfg Config, logger logging.Logger) *Provisioner {
	if namer == nil {
		namer = NewNamer(nil)
	}
	return &Provisioner{
		provider: provider,
		client:   client,
		namer:    namer,
		cfg:      cfg,
		logger:   logger.With(logging.Field{Key: "component", Value: "provisioner"}),
	}
}

// Provision creates the repository for projectName and waits out the settle
// delay. Creation runs exactly once; any failure is returned as a Fatal
// *remote.Error.
func (p *Provisioner) Provision(ctx context.Context, projectName, contactEmail string) (*remote.Repository, error) {
	name := p.namer.Next(projectName)
	req := remote.CreateRepositoryRequest{
		Name:        name,
		Description: fmt.Sprintf("Website for %s by %s", projectName, contactEmail),
		Private:     false,
		AutoInit:    true,
		HasIssues:   false,
		HasProjects: false,
		HasWiki:     false,
	}

	p.logger.Info("creating repository",
		logging.Field{Key: "repo", Value: name},
		logging.Field{Key: "project", Value: projectName})

	op := remote.Op{Name: "create repository", Class: remote.NonIdempotent}
	repo, err := remote.Call(ctx, p.client, op, func(ctx context.Context) (*remote.Repository, error) {
		return p.provider.CreateRepository(ctx, req)
	})
	if err != nil {
		p.logger.Error("repository creation failed",
			logging.Field{Key: "repo", Value: name},
			logging.Err(err))
		if remote.KindOf(err) != remote.KindFatal {
			// A taken or invalid name has no remediation here.
			err = remote.Fatal(op.Name, err)
		}
		return nil, err
	}

	out := *repo
	if out.Name == "" {
		out.Name = name
	}
	if out.Owner == "" {
		out.Owner = p.cfg.Owner
	}
	if out.DefaultBranch == "" {
		out.DefaultBranch = "main"
	}
	out.ProjectName = projectName

	p.logger.Info("repository created",
		logging.Field{Key: "repo", Value: out.FullName()},
		logging.Field{Key: "settle_delay", Value: p.cfg.SettleDelay.String()})

	if err := remote.Sleep(ctx, p.cfg.SettleDelay); err != nil {
		return nil, fmt.Errorf("wait for repository %s to settle: %w", out.FullName(), err)
	}
	return &out, nil
}
