package ghprovider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitedrop/internal/demoserver"
	"github.com/raysh454/sitedrop/internal/remote"
	"github.com/raysh454/sitedrop/internal/remote/ghprovider"
	"github.com/raysh454/sitedrop/internal/testutil"
	"github.com/raysh454/sitedrop/internal/webclient"
)

const token = "test-token"

func setup(t *testing.T, mutate func(*demoserver.Config)) (*ghprovider.Provider, *demoserver.DemoServer) {
	t.Helper()
	cfg := demoserver.DefaultConfig()
	cfg.Owner = "Octo-Cat"
	cfg.Token = token
	cfg.BuildPolls = 0
	if mutate != nil {
		mutate(&cfg)
	}
	ds := demoserver.NewDemoServer(cfg)
	ts := httptest.NewServer(ds.Handler())
	t.Cleanup(ts.Close)

	logger := &testutil.DummyLogger{}
	httpClient := webclient.NewNetHTTPClient(webclient.DefaultConfig(), logger, ts.Client())
	p, err := ghprovider.New(ghprovider.Config{Token: token, BaseURL: ts.URL}, httpClient, logger)
	require.NoError(t, err)
	return p, ds
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var serr *remote.StatusError
	require.ErrorAs(t, err, &serr)
	return serr.StatusCode
}

func TestCreateRepository(t *testing.T) {
	p, ds := setup(t, nil)

	repo, err := p.CreateRepository(context.Background(), remote.CreateRepositoryRequest{
		Name:        "my-site-1",
		Description: "Website for My Site by a@b.c",
		AutoInit:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Octo-Cat", repo.Owner)
	assert.Equal(t, "my-site-1", repo.Name)
	assert.Equal(t, "main", repo.DefaultBranch)
	assert.False(t, repo.Private)
	assert.Equal(t, "https://github.com/Octo-Cat/my-site-1", repo.HTMLURL)
	assert.Equal(t, []string{"README.md"}, ds.Files("Octo-Cat", "my-site-1"))

	_, err = p.CreateRepository(context.Background(), remote.CreateRepositoryRequest{Name: "my-site-1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
}

func TestBadCredentialsAreFatal(t *testing.T) {
	ds := demoserver.NewDemoServer(demoserver.Config{Owner: "o", Token: "right"})
	ts := httptest.NewServer(ds.Handler())
	defer ts.Close()

	p, err := ghprovider.New(ghprovider.Config{Token: "wrong", BaseURL: ts.URL}, ts.Client(), &testutil.DummyLogger{})
	require.NoError(t, err)

	_, err = p.CreateRepository(context.Background(), remote.CreateRepositoryRequest{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	assert.Equal(t, remote.KindFatal, remote.Classify(err))
}

func TestPagesLifecycle(t *testing.T) {
	p, _ := setup(t, nil)
	ctx := context.Background()
	_, err := p.CreateRepository(ctx, remote.CreateRepositoryRequest{Name: "site"})
	require.NoError(t, err)

	_, err = p.GetPages(ctx, "Octo-Cat", "site")
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))

	req := remote.PagesRequest{Branch: "main", Path: "/", BuildType: remote.BuildWorkflow}
	cfg, err := p.CreatePages(ctx, "Octo-Cat", "site", req)
	require.NoError(t, err)
	assert.Equal(t, "https://octo-cat.github.io/site/", cfg.URL)
	assert.Equal(t, remote.BuildWorkflow, cfg.BuildType)
	assert.Equal(t, "main", cfg.Branch)

	_, err = p.CreatePages(ctx, "Octo-Cat", "site", req)
	require.Error(t, err)
	assert.Equal(t, remote.KindConflict, remote.Classify(err))

	require.NoError(t, p.UpdatePages(ctx, "Octo-Cat", "site", remote.PagesRequest{Branch: "main", BuildType: remote.BuildLegacy}))
	got, err := p.GetPages(ctx, "Octo-Cat", "site")
	require.NoError(t, err)
	assert.Equal(t, remote.BuildLegacy, got.BuildType)
	assert.Equal(t, remote.PagesBuilt, got.Status)
}

func TestCreatePages_UnprocessableWithoutIndex(t *testing.T) {
	p, _ := setup(t, func(c *demoserver.Config) { c.RequireRootIndex = true })
	ctx := context.Background()
	_, err := p.CreateRepository(ctx, remote.CreateRepositoryRequest{Name: "site"})
	require.NoError(t, err)

	_, err = p.CreatePages(ctx, "Octo-Cat", "site", remote.PagesRequest{Branch: "main", BuildType: remote.BuildWorkflow})
	require.Error(t, err)
	assert.Equal(t, remote.KindUnprocessable, remote.Classify(err))
}

func TestFiles_CreateGetUpdate(t *testing.T) {
	p, ds := setup(t, nil)
	ctx := context.Background()
	_, err := p.CreateRepository(ctx, remote.CreateRepositoryRequest{Name: "site"})
	require.NoError(t, err)

	_, err = p.GetFile(ctx, "Octo-Cat", "site", ".github/workflows/deploy-pages.yml", "main")
	assert.True(t, remote.IsNotFound(err))

	err = p.PutFile(ctx, "Octo-Cat", "site", ".github/workflows/deploy-pages.yml", remote.FileChange{
		Message: "Add GitHub Pages workflow",
		Content: []byte("name: Deploy\n"),
		Branch:  "main",
	})
	require.NoError(t, err)

	f, err := p.GetFile(ctx, "Octo-Cat", "site", ".github/workflows/deploy-pages.yml", "main")
	require.NoError(t, err)
	assert.Equal(t, "name: Deploy\n", string(f.Content))
	assert.Equal(t, testutil.BlobSHA([]byte("name: Deploy\n")), f.SHA)

	err = p.PutFile(ctx, "Octo-Cat", "site", ".github/workflows/deploy-pages.yml", remote.FileChange{
		Message: "Update workflow", Content: []byte("name: Deploy v2\n"), Branch: "main", SHA: f.SHA,
	})
	require.NoError(t, err)
	data, ok := ds.File("Octo-Cat", "site", ".github/workflows/deploy-pages.yml")
	require.True(t, ok)
	assert.Equal(t, "name: Deploy v2\n", string(data))

	err = p.PutFile(ctx, "Octo-Cat", "site", ".github/workflows/deploy-pages.yml", remote.FileChange{
		Message: "stale", Content: []byte("x"), Branch: "main", SHA: f.SHA,
	})
	assert.Equal(t, remote.KindConflict, remote.Classify(err))
}

func TestServerErrorsAreTransient(t *testing.T) {
	p, ds := setup(t, nil)
	ds.FailNext(http.MethodGet, "/pages", http.StatusBadGateway, 1)

	_, err := p.GetPages(context.Background(), "Octo-Cat", "anything")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, statusOf(t, err))
	assert.Equal(t, remote.KindTransient, remote.Classify(err))
}
