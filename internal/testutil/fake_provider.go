package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/raysh454/sitedrop/internal/remote"
)

// Provider operation names, as recorded in FakeProvider.Calls.
const (
	OpCreateRepository = "CreateRepository"
	OpGetPages         = "GetPages"
	OpCreatePages      = "CreatePages"
	OpUpdatePages      = "UpdatePages"
	OpGetFile          = "GetFile"
	OpPutFile          = "PutFile"
)

// FakeRepo is the state FakeProvider keeps per repository.
type FakeRepo struct {
	Repository remote.Repository
	Files      map[string][]byte
	// Order lists paths in the order they were first written.
	Order   []string
	Commits []string
	Pages   *remote.PagesConfig
}

// FakeProvider implements remote.Provider in memory.
//
// Fail, when set, is consulted before every call with the operation name and
// its 1-based call count; a non-nil return fails the call without touching state.
type FakeProvider struct {
	Owner string
	Fail  func(op string, n int) error

	mu     sync.Mutex
	repos  map[string]*FakeRepo
	counts map[string]int
	Calls  []string
}

// NewFakeProvider returns an empty provider acting as owner.
func NewFakeProvider(owner string) *FakeProvider {
	return &FakeProvider{Owner: owner, repos: map[string]*FakeRepo{}, counts: map[string]int{}}
}

// StatusErr is shorthand for a provider status error.
func StatusErr(code int) error {
	return &remote.StatusError{StatusCode: code, Message: http.StatusText(code)}
}

// BlobSHA returns the git blob id of content.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func (p *FakeProvider) enter(op string) error {
	p.Calls = append(p.Calls, op)
	if p.counts == nil {
		p.counts = map[string]int{}
	}
	p.counts[op]++
	if p.Fail != nil {
		return p.Fail(op, p.counts[op])
	}
	return nil
}

// Count returns how many times op was invoked.
func (p *FakeProvider) Count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[op]
}

// Repo returns the stored repository state, or nil.
func (p *FakeProvider) Repo(name string) *FakeRepo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repos[name]
}

// SeedRepo installs a repository directly, bypassing CreateRepository.
func (p *FakeProvider) SeedRepo(name string) *FakeRepo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addRepo(name)
}

func (p *FakeProvider) addRepo(name string) *FakeRepo {
	if p.repos == nil {
		p.repos = map[string]*FakeRepo{}
	}
	r := &FakeRepo{
		Repository: remote.Repository{
			Owner:         p.Owner,
			Name:          name,
			DefaultBranch: "main",
			HTMLURL:       "https://github.com/" + p.Owner + "/" + name,
		},
		Files: map[string][]byte{},
	}
	p.repos[name] = r
	return r
}

func (p *FakeProvider) lookup(owner, repo string) (*FakeRepo, error) {
	if !strings.EqualFold(owner, p.Owner) {
		return nil, StatusErr(http.StatusNotFound)
	}
	r, ok := p.repos[repo]
	if !ok {
		return nil, StatusErr(http.StatusNotFound)
	}
	return r, nil
}

func (p *FakeProvider) CreateRepository(_ context.Context, req remote.CreateRepositoryRequest) (*remote.Repository, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpCreateRepository); err != nil {
		return nil, err
	}
	if _, exists := p.repos[req.Name]; exists {
		return nil, StatusErr(http.StatusUnprocessableEntity)
	}
	r := p.addRepo(req.Name)
	r.Repository.Private = req.Private
	if req.AutoInit {
		r.Files["README.md"] = []byte("# " + req.Name + "\n")
		r.Order = append(r.Order, "README.md")
		r.Commits = append(r.Commits, "Initial commit")
	}
	out := r.Repository
	return &out, nil
}

func (p *FakeProvider) GetPages(_ context.Context, owner, repo string) (*remote.PagesConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpGetPages); err != nil {
		return nil, err
	}
	r, err := p.lookup(owner, repo)
	if err != nil {
		return nil, err
	}
	if r.Pages == nil {
		return nil, StatusErr(http.StatusNotFound)
	}
	out := *r.Pages
	return &out, nil
}

func (p *FakeProvider) CreatePages(_ context.Context, owner, repo string, req remote.PagesRequest) (*remote.PagesConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpCreatePages); err != nil {
		return nil, err
	}
	r, err := p.lookup(owner, repo)
	if err != nil {
		return nil, err
	}
	if r.Pages != nil {
		return nil, StatusErr(http.StatusConflict)
	}
	r.Pages = &remote.PagesConfig{
		URL:       "https://" + strings.ToLower(owner) + ".github.io/" + repo + "/",
		Status:    remote.PagesBuilt,
		BuildType: req.BuildType,
		Branch:    req.Branch,
		Path:      req.Path,
	}
	out := *r.Pages
	return &out, nil
}

func (p *FakeProvider) UpdatePages(_ context.Context, owner, repo string, req remote.PagesRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpUpdatePages); err != nil {
		return err
	}
	r, err := p.lookup(owner, repo)
	if err != nil {
		return err
	}
	if r.Pages == nil {
		return StatusErr(http.StatusNotFound)
	}
	r.Pages.BuildType = req.BuildType
	r.Pages.Branch = req.Branch
	r.Pages.Path = req.Path
	return nil
}

func (p *FakeProvider) GetFile(_ context.Context, owner, repo, path, _ string) (*remote.FileContent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpGetFile); err != nil {
		return nil, err
	}
	r, err := p.lookup(owner, repo)
	if err != nil {
		return nil, err
	}
	data, ok := r.Files[path]
	if !ok {
		return nil, StatusErr(http.StatusNotFound)
	}
	return &remote.FileContent{Path: path, SHA: BlobSHA(data), Content: append([]byte(nil), data...)}, nil
}

func (p *FakeProvider) PutFile(_ context.Context, owner, repo, path string, change remote.FileChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpPutFile); err != nil {
		return err
	}
	r, err := p.lookup(owner, repo)
	if err != nil {
		return err
	}
	if cur, exists := r.Files[path]; exists {
		if change.SHA == "" {
			return StatusErr(http.StatusUnprocessableEntity)
		}
		if change.SHA != BlobSHA(cur) {
			return StatusErr(http.StatusConflict)
		}
	} else {
		r.Order = append(r.Order, path)
	}
	r.Files[path] = append([]byte(nil), change.Content...)
	r.Commits = append(r.Commits, change.Message)
	return nil
}

var _ remote.Provider = (*FakeProvider)(nil)
