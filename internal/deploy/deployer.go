package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/config"
	"github.com/navillasa/litellm-eks-stack/internal/helmx"
)

// secretEnsurer is the Secrets Manager surface the steps use.
type secretEnsurer interface {
	Ensure(ctx context.Context, name string) (bool, error)
	Exists(ctx context.Context, name string) (bool, error)
}

// irsaEnsurer creates or refreshes IRSA roles.
type irsaEnsurer interface {
	Ensure(ctx context.Context, role awsx.IRSARole) (bool, error)
}

// kubeAPI is the cluster surface the steps use.
type kubeAPI interface {
	EnsureNamespaces(ctx context.Context, names []string) ([]string, error)
	SecretExists(ctx context.Context, namespace, name string) (bool, error)
	DeploymentReady(ctx context.Context, namespace, name string) (bool, error)
	WaitDeploymentReady(ctx context.Context, namespace, name string, timeout time.Duration) error
	ListDeployments(ctx context.Context, namespace string) (map[string]bool, error)
}

// helmAPI is the chart surface the steps use.
type helmAPI interface {
	RepoAdd(ctx context.Context, name, url string) error
	RepoUpdate(ctx context.Context) error
	Status(ctx context.Context, release, namespace string) (helmx.ReleaseStatus, bool, error)
	UpgradeInstall(ctx context.Context, opts helmx.UpgradeOptions) error
}

// kubectlAPI applies CRD-backed manifests the typed client does not cover.
type kubectlAPI interface {
	Apply(ctx context.Context, namespace string, manifest []byte) (bool, error)
	WaitCondition(ctx context.Context, namespace, target, condition string, timeout time.Duration) error
	DryRunCreate(ctx context.Context, namespace string, manifest []byte) error
}

// Deployer implements the deployment steps against a cluster and account.
type Deployer struct {
	cfg     *config.Config
	secrets secretEnsurer
	irsa    irsaEnsurer
	kube    kubeAPI
	helm    helmAPI
	kubectl kubectlAPI
}

// New creates a Deployer from its collaborators.
func New(cfg *config.Config, secrets secretEnsurer, irsa irsaEnsurer, kube kubeAPI, helm helmAPI, kubectl kubectlAPI) *Deployer {
	return &Deployer{
		cfg:     cfg,
		secrets: secrets,
		irsa:    irsa,
		kube:    kube,
		helm:    helm,
		kubectl: kubectl,
	}
}

// release looks up a chart pin from the config.
func (d *Deployer) release(name string) (config.ChartRelease, error) {
	rel, ok := d.cfg.Charts.Releases[name]
	if !ok {
		return config.ChartRelease{}, fmt.Errorf("no chart configured for release %s", name)
	}
	return rel, nil
}

// withValuesDir runs fn with a temp directory for materialized values files.
func withValuesDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", "llmstack-values-*")
	if err != nil {
		return fmt.Errorf("failed to create values dir: %w", err)
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}
