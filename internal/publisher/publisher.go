// Package publisher commits a bundle's files and the Pages deploy workflow
// to a provisioned repository.
package publisher

import (
	"bytes"
	"context"
	"fmt"

	"github.com/raysh454/sitedrop/internal/bundle"
	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/remote"
)

// EntryMessage is the commit message of an entry document created to unblock
// Pages activation.
const EntryMessage = "Add index.html for GitHub Pages"

// FileError reports the file whose write aborted a publish.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("publish %s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// Report describes a completed publish.
type Report struct {
	// Files lists every path written or found up to date, in publish order.
	Files []string `json:"files"`
	// Unchanged lists paths whose remote content already matched.
	Unchanged []string `json:"unchanged,omitempty"`
	// Synthesized is true when index.html was generated.
	Synthesized bool `json:"synthesized"`
}

// ProgressFunc is called after each file with the number done and the total.
type ProgressFunc func(done, total int)

// Publisher writes files one at a time through the provider.
type Publisher struct {
	provider remote.Provider
	client   *remote.Client
	logger   logging.Logger
}

// New returns a Publisher.
func New(provider remote.Provider, client *remote.Client, logger logging.Logger) *Publisher {
	return &Publisher{
		provider: provider,
		client:   client,
		logger:   logger.With(logging.Field{Key: "component", Value: "publisher"}),
	}
}

// Publish ensures an entry document, commits every file in order and then
// installs the deploy workflow. The first failing write aborts with a
// *FileError; files already written stay in place.
func (p *Publisher) Publish(ctx context.Context, repo *remote.Repository, files []bundle.File, progress ProgressFunc) (*Report, error) {
	files, synthesized, err := WithEntryDocument(files, repo.ProjectName)
	if err != nil {
		return nil, &FileError{Path: bundle.EntryDocument, Err: err}
	}
	if synthesized {
		p.logger.Info("no index.html uploaded, synthesized one",
			logging.Field{Key: "repo", Value: repo.FullName()})
	}

	workflowYAML, err := WorkflowYAML(repo.DefaultBranch)
	if err != nil {
		return nil, &FileError{Path: WorkflowPath, Err: err}
	}

	total := len(files) + 1
	report := &Report{Synthesized: synthesized, Files: make([]string, 0, total)}
	done := func(path string, changed bool) {
		report.Files = append(report.Files, path)
		if !changed {
			report.Unchanged = append(report.Unchanged, path)
		}
		if progress != nil {
			progress(len(report.Files), total)
		}
	}

	for _, f := range files {
		content, err := f.Content()
		if err != nil {
			return nil, &FileError{Path: f.Name, Err: err}
		}
		msg := fmt.Sprintf("Add %s for %s", f.Name, repo.ProjectName)
		changed, err := p.putFile(ctx, repo, f.Name, content, msg)
		if err != nil {
			return nil, &FileError{Path: f.Name, Err: err}
		}
		done(f.Name, changed)
	}

	changed, err := p.putFile(ctx, repo, WorkflowPath, workflowYAML, WorkflowMessage)
	if err != nil {
		return nil, &FileError{Path: WorkflowPath, Err: err}
	}
	done(WorkflowPath, changed)

	p.logger.Info("files published",
		logging.Field{Key: "repo", Value: repo.FullName()},
		logging.Field{Key: "files", Value: len(report.Files)},
		logging.Field{Key: "unchanged", Value: len(report.Unchanged)})
	return report, nil
}

// EnsureEntryDocument creates index.html at the repository root unless one
// already exists. It reports whether a file was written.
func (p *Publisher) EnsureEntryDocument(ctx context.Context, repo *remote.Repository) (bool, error) {
	op := remote.Op{Name: "get " + bundle.EntryDocument, Class: remote.Idempotent}
	_, err := remote.Call(ctx, p.client, op, func(ctx context.Context) (*remote.FileContent, error) {
		return p.provider.GetFile(ctx, repo.Owner, repo.Name, bundle.EntryDocument, repo.DefaultBranch)
	})
	switch remote.KindOf(err) {
	case remote.KindNone:
		return false, nil
	case remote.KindNotFound:
	default:
		return false, err
	}

	p.logger.Info("creating index.html for pages",
		logging.Field{Key: "repo", Value: repo.FullName()})
	doc, err := EntryDocument(repo.ProjectName, "")
	if err != nil {
		return false, &FileError{Path: bundle.EntryDocument, Err: err}
	}
	if _, err := p.putFile(ctx, repo, bundle.EntryDocument, doc, EntryMessage); err != nil {
		return false, &FileError{Path: bundle.EntryDocument, Err: err}
	}
	return true, nil
}

// putFile creates or updates path. The current SHA is read inside the
// retried call so a retry after a lost response still converges. It reports
// false when the remote content already matched.
func (p *Publisher) putFile(ctx context.Context, repo *remote.Repository, path string, content []byte, message string) (bool, error) {
	changed := true
	op := remote.Op{Name: "put " + path, Class: remote.Idempotent}
	err := p.client.Do(ctx, op, func(ctx context.Context) error {
		sha := ""
		cur, err := p.provider.GetFile(ctx, repo.Owner, repo.Name, path, repo.DefaultBranch)
		switch remote.KindOf(err) {
		case remote.KindNone:
			if bytes.Equal(cur.Content, content) {
				changed = false
				return nil
			}
			sha = cur.SHA
		case remote.KindNotFound:
		default:
			return err
		}
		return p.provider.PutFile(ctx, repo.Owner, repo.Name, path, remote.FileChange{
			Message: message,
			Content: content,
			Branch:  repo.DefaultBranch,
			SHA:     sha,
		})
	})
	if err != nil {
		p.logger.Error("file write failed",
			logging.Field{Key: "repo", Value: repo.FullName()},
			logging.Field{Key: "path", Value: path},
			logging.Err(err))
		return false, err
	}
	p.logger.Debug("file written",
		logging.Field{Key: "repo", Value: repo.FullName()},
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "changed", Value: changed})
	return changed, nil
}
