package remote

import "context"

// Pages build types understood by the provider.
const (
	BuildWorkflow = "workflow"
	BuildLegacy   = "legacy"
)

// Pages statuses reported by the provider.
const (
	PagesBuilt    = "built"
	PagesBuilding = "building"
	PagesErrored  = "errored"
)

// Repository identifies a remote repository. Identity (Owner, Name) is fixed
// once the provisioner hands it on.
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`

	// ProjectName is the human name the repository was created for.
	ProjectName string `json:"project_name"`
}

// FullName returns owner/name.
func (r Repository) FullName() string { return r.Owner + "/" + r.Name }

// CreateRepositoryRequest describes a new repository for the authenticated account.
type CreateRepositoryRequest struct {
	Name        string
	Description string
	Private     bool
	AutoInit    bool
	HasIssues   bool
	HasProjects bool
	HasWiki     bool
}

// PagesConfig is the hosting configuration of a repository.
type PagesConfig struct {
	URL       string `json:"url"`
	Status    string `json:"status"`
	BuildType string `json:"build_type"`
	Branch    string `json:"branch"`
	Path      string `json:"path"`
}

// PagesRequest is the desired hosting configuration.
type PagesRequest struct {
	Branch    string
	Path      string
	BuildType string
}

// FileContent is a file as stored on a branch.
type FileContent struct {
	Path    string
	SHA     string
	Content []byte
}

// FileChange is a committed create-or-update of one file. SHA must be the
// current blob SHA when the file already exists.
type FileChange struct {
	Message string
	Content []byte
	Branch  string
	SHA     string
}

// Provider is the outbound contract required of the hosting provider. All
// calls are scoped to (owner, repo[, path]) and return a *StatusError for
// non-2xx responses.
type Provider interface {
	CreateRepository(ctx context.Context, req CreateRepositoryRequest) (*Repository, error)
	GetPages(ctx context.Context, owner, repo string) (*PagesConfig, error)
	CreatePages(ctx context.Context, owner, repo string, req PagesRequest) (*PagesConfig, error)
	UpdatePages(ctx context.Context, owner, repo string, req PagesRequest) error
	GetFile(ctx context.Context, owner, repo, path, ref string) (*FileContent, error)
	PutFile(ctx context.Context, owner, repo, path string, change FileChange) error
}
