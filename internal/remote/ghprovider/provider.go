// Package ghprovider implements remote.Provider on top of the GitHub REST API.
package ghprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/remote"
)

// Config selects the API endpoint and credential.
type Config struct {
	Token string
	// BaseURL overrides https://api.github.com/, e.g. to target the demo server.
	BaseURL string
}

// Provider talks to GitHub through go-github. Every non-2xx response is
// returned as a *remote.StatusError so the remote client can classify it.
type Provider struct {
	client *github.Client
	logger logging.Logger
}

// New returns a Provider. httpClient carries timeouts and transport logging;
// nil uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client, logger logging.Logger) (*Provider, error) {
	client := github.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}
	return &Provider{
		client: client,
		logger: logger.With(logging.Field{Key: "component", Value: "ghprovider"}),
	}, nil
}

// statusError converts go-github's error types into *remote.StatusError.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return &remote.StatusError{StatusCode: http.StatusTooManyRequests, Message: rl.Message}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &remote.StatusError{StatusCode: http.StatusTooManyRequests, Message: abuse.Message}
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return &remote.StatusError{StatusCode: er.Response.StatusCode, Message: er.Message}
	}
	return err
}

func (p *Provider) CreateRepository(ctx context.Context, req remote.CreateRepositoryRequest) (*remote.Repository, error) {
	repo, _, err := p.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(req.Name),
		Description: github.String(req.Description),
		Private:     github.Bool(req.Private),
		AutoInit:    github.Bool(req.AutoInit),
		HasIssues:   github.Bool(req.HasIssues),
		HasProjects: github.Bool(req.HasProjects),
		HasWiki:     github.Bool(req.HasWiki),
	})
	if err != nil {
		return nil, statusError(err)
	}

	out := &remote.Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		Private:       repo.GetPrivate(),
		DefaultBranch: repo.GetDefaultBranch(),
		HTMLURL:       repo.GetHTMLURL(),
	}
	if out.DefaultBranch == "" {
		out.DefaultBranch = "main"
	}
	p.logger.Debug("repository created",
		logging.Field{Key: "repo", Value: out.FullName()},
		logging.Field{Key: "default_branch", Value: out.DefaultBranch})
	return out, nil
}

func pagesConfig(pg *github.Pages) *remote.PagesConfig {
	return &remote.PagesConfig{
		URL:       pg.GetHTMLURL(),
		Status:    pg.GetStatus(),
		BuildType: pg.GetBuildType(),
		Branch:    pg.GetSource().GetBranch(),
		Path:      pg.GetSource().GetPath(),
	}
}

func pagesSource(req remote.PagesRequest) *github.PagesSource {
	src := &github.PagesSource{Branch: github.String(req.Branch)}
	if req.Path != "" {
		src.Path = github.String(req.Path)
	}
	return src
}

func (p *Provider) GetPages(ctx context.Context, owner, repo string) (*remote.PagesConfig, error) {
	pg, _, err := p.client.Repositories.GetPagesInfo(ctx, owner, repo)
	if err != nil {
		return nil, statusError(err)
	}
	return pagesConfig(pg), nil
}

func (p *Provider) CreatePages(ctx context.Context, owner, repo string, req remote.PagesRequest) (*remote.PagesConfig, error) {
	pg, _, err := p.client.Repositories.EnablePages(ctx, owner, repo, &github.Pages{
		Source:    pagesSource(req),
		BuildType: github.String(req.BuildType),
	})
	if err != nil {
		return nil, statusError(err)
	}
	return pagesConfig(pg), nil
}

func (p *Provider) UpdatePages(ctx context.Context, owner, repo string, req remote.PagesRequest) error {
	_, err := p.client.Repositories.UpdatePages(ctx, owner, repo, &github.PagesUpdate{
		Source:    pagesSource(req),
		BuildType: github.String(req.BuildType),
	})
	return statusError(err)
}

func (p *Provider) GetFile(ctx context.Context, owner, repo, path, ref string) (*remote.FileContent, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		return nil, statusError(err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &remote.FileContent{Path: file.GetPath(), SHA: file.GetSHA(), Content: []byte(content)}, nil
}

func (p *Provider) PutFile(ctx context.Context, owner, repo, path string, change remote.FileChange) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(change.Message),
		Content: change.Content,
	}
	if change.Branch != "" {
		opts.Branch = github.String(change.Branch)
	}
	if change.SHA != "" {
		opts.SHA = github.String(change.SHA)
		_, _, err := p.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
		return statusError(err)
	}
	_, _, err := p.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
	return statusError(err)
}

var _ remote.Provider = (*Provider)(nil)
