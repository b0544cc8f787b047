package publisher

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// WorkflowPath is where the Pages deploy workflow is installed.
const WorkflowPath = ".github/workflows/deploy-pages.yml"

// WorkflowMessage is the commit message used for the workflow file.
const WorkflowMessage = "Add GitHub Pages workflow"

// WorkflowBranch triggers deployments when the repository reports no
// default branch.
const WorkflowBranch = "main"

type workflow struct {
	Name        string              `yaml:"name"`
	On          workflowTriggers    `yaml:"on"`
	Permissions map[string]string   `yaml:"permissions"`
	Concurrency workflowConcurrency `yaml:"concurrency"`
	Jobs        map[string]job      `yaml:"jobs"`
}

type workflowTriggers struct {
	Push             pushTrigger `yaml:"push"`
	WorkflowDispatch struct{}    `yaml:"workflow_dispatch"`
}

type pushTrigger struct {
	Branches []string `yaml:"branches"`
}

type workflowConcurrency struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

type job struct {
	Environment environment `yaml:"environment"`
	RunsOn      string      `yaml:"runs-on"`
	Steps       []step      `yaml:"steps"`
}

type environment struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type step struct {
	Name string            `yaml:"name"`
	ID   string            `yaml:"id,omitempty"`
	Uses string            `yaml:"uses"`
	With map[string]string `yaml:"with,omitempty"`
}

func deployWorkflow(branch string) workflow {
	return workflow{
		Name: "Deploy to GitHub Pages",
		On: workflowTriggers{
			Push: pushTrigger{Branches: []string{branch}},
		},
		Permissions: map[string]string{
			"contents": "read",
			"pages":    "write",
			"id-token": "write",
		},
		Concurrency: workflowConcurrency{Group: "pages", CancelInProgress: true},
		Jobs: map[string]job{
			"deploy": {
				Environment: environment{
					Name: "github-pages",
					URL:  "${{ steps.deployment.outputs.page_url }}",
				},
				RunsOn: "ubuntu-latest",
				Steps: []step{
					{Name: "Checkout", Uses: "actions/checkout@v3"},
					{Name: "Setup Pages", Uses: "actions/configure-pages@v3"},
					{Name: "Upload artifact", Uses: "actions/upload-pages-artifact@v1", With: map[string]string{"path": "."}},
					{Name: "Deploy to GitHub Pages", ID: "deployment", Uses: "actions/deploy-pages@v1"},
				},
			},
		},
	}
}

// WorkflowYAML returns the deploy workflow triggered by pushes to branch,
// which should be the branch Pages is configured from. An empty branch means
// WorkflowBranch.
func WorkflowYAML(branch string) ([]byte, error) {
	if branch == "" {
		branch = WorkflowBranch
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(deployWorkflow(branch)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
