package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/config"
	"github.com/navillasa/litellm-eks-stack/internal/helmx"
	"github.com/navillasa/litellm-eks-stack/internal/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	existing map[string]bool
	created  []string
}

func (f *fakeSecrets) Ensure(ctx context.Context, name string) (bool, error) {
	if f.existing[name] {
		return false, nil
	}
	f.existing[name] = true
	f.created = append(f.created, name)
	return true, nil
}

func (f *fakeSecrets) Exists(ctx context.Context, name string) (bool, error) {
	return f.existing[name], nil
}

type fakeIRSA struct {
	existing map[string]bool
}

func (f *fakeIRSA) Ensure(ctx context.Context, role awsx.IRSARole) (bool, error) {
	if f.existing[role.RoleName] {
		return false, nil
	}
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[role.RoleName] = true
	return true, nil
}

type fakeKube struct {
	namespaces    map[string]bool
	secrets       map[string]bool // "namespace/name"
	deployments   map[string]map[string]bool
	rolloutsOK    bool
	rolloutCalled []string
}

func (f *fakeKube) EnsureNamespaces(ctx context.Context, names []string) ([]string, error) {
	var created []string
	for _, name := range names {
		if !f.namespaces[name] {
			if f.namespaces == nil {
				f.namespaces = map[string]bool{}
			}
			f.namespaces[name] = true
			created = append(created, name)
		}
	}
	return created, nil
}

func (f *fakeKube) SecretExists(ctx context.Context, namespace, name string) (bool, error) {
	return f.secrets[namespace+"/"+name], nil
}

func (f *fakeKube) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	return f.deployments[namespace][name], nil
}

func (f *fakeKube) WaitDeploymentReady(ctx context.Context, namespace, name string, timeout time.Duration) error {
	f.rolloutCalled = append(f.rolloutCalled, namespace+"/"+name)
	if !f.rolloutsOK {
		return errors.New("rollout timed out")
	}
	return nil
}

func (f *fakeKube) ListDeployments(ctx context.Context, namespace string) (map[string]bool, error) {
	return f.deployments[namespace], nil
}

type fakeHelm struct {
	installed map[string]bool
	upgrades  []helmx.UpgradeOptions
	repos     []string
}

func (f *fakeHelm) RepoAdd(ctx context.Context, name, url string) error {
	f.repos = append(f.repos, name)
	return nil
}

func (f *fakeHelm) RepoUpdate(ctx context.Context) error { return nil }

func (f *fakeHelm) Status(ctx context.Context, release, namespace string) (helmx.ReleaseStatus, bool, error) {
	if f.installed[release] {
		return helmx.ReleaseStatus{Name: release, Namespace: namespace, Deployed: true}, true, nil
	}
	return helmx.ReleaseStatus{}, false, nil
}

func (f *fakeHelm) UpgradeInstall(ctx context.Context, opts helmx.UpgradeOptions) error {
	if f.installed == nil {
		f.installed = map[string]bool{}
	}
	f.installed[opts.Release] = true
	f.upgrades = append(f.upgrades, opts)
	return nil
}

type fakeKubectl struct {
	applied      [][]byte
	applyChanged bool
	dryRunErr    error
}

func (f *fakeKubectl) Apply(ctx context.Context, namespace string, manifest []byte) (bool, error) {
	f.applied = append(f.applied, manifest)
	return f.applyChanged, nil
}

func (f *fakeKubectl) WaitCondition(ctx context.Context, namespace, target, condition string, timeout time.Duration) error {
	return nil
}

func (f *fakeKubectl) DryRunCreate(ctx context.Context, namespace string, manifest []byte) error {
	return f.dryRunErr
}

func testDeployer(kube *fakeKube, helm *fakeHelm, kubectl *fakeKubectl) (*Deployer, *fakeSecrets) {
	cfg := config.Default()
	cfg.AWS.AccountID = "123456789012"
	cfg.AWS.OIDCProvider = "oidc.eks.us-east-1.amazonaws.com/id/TEST"

	secrets := &fakeSecrets{existing: map[string]bool{}}
	if kube == nil {
		kube = &fakeKube{rolloutsOK: true}
	}
	if helm == nil {
		helm = &fakeHelm{}
	}
	if kubectl == nil {
		kubectl = &fakeKubectl{applyChanged: true}
	}
	return New(cfg, secrets, &fakeIRSA{existing: map[string]bool{}}, kube, helm, kubectl), secrets
}

func indexOf(plan []string, name string) int {
	for i, s := range plan {
		if s == name {
			return i
		}
	}
	return -1
}

func TestEnginePlanHonorsPhaseOrder(t *testing.T) {
	d, _ := testDeployer(nil, nil, nil)
	e, err := d.Engine()
	require.NoError(t, err)

	plan, err := e.Plan()
	require.NoError(t, err)
	require.Len(t, plan, 15)

	before := func(a, b string) {
		assert.Less(t, indexOf(plan, a), indexOf(plan, b), "%s must run before %s", a, b)
	}
	before("irsa", "external-secrets")
	before("secrets", "external-secrets")
	before("namespaces", "external-secrets")
	before("external-secrets", "redis")
	before("redis", "litellm")
	before("litellm", "openwebui")
	before("openwebui", "verify")
	before("gatekeeper", "opa-policies")
	before("opa-policies", "opa-verify")
	before("monitoring", "dashboards")
}

func TestStepSecretsAppliesThenSkips(t *testing.T) {
	d, secrets := testDeployer(nil, nil, nil)

	outcome, _, err := d.stepSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Len(t, secrets.created, 7)

	outcome, reason, err := d.stepSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Skipped, outcome)
	assert.Equal(t, "all secrets exist", reason)
}

func TestStepNamespacesSkipsWhenPresent(t *testing.T) {
	kube := &fakeKube{namespaces: map[string]bool{
		"litellm": true, "openwebui": true, "monitoring": true,
		"external-secrets": true, "gatekeeper-system": true,
	}, rolloutsOK: true}
	d, _ := testDeployer(kube, nil, nil)

	outcome, _, err := d.stepNamespaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Skipped, outcome)
}

func TestStepIRSASkipsWhenRolesExist(t *testing.T) {
	d, _ := testDeployer(nil, nil, nil)

	outcome, _, err := d.stepIRSA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)

	outcome, reason, err := d.stepIRSA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Skipped, outcome)
	assert.Contains(t, reason, "trust policies refreshed")
}

func TestStepLiteLLMRequiresSyncedSecret(t *testing.T) {
	kube := &fakeKube{rolloutsOK: true, secrets: map[string]bool{}}
	d, _ := testDeployer(kube, nil, nil)

	_, _, err := d.stepLiteLLM(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "litellm-env")
}

func TestStepLiteLLMInstallsAndWaits(t *testing.T) {
	kube := &fakeKube{rolloutsOK: true, secrets: map[string]bool{"litellm/litellm-env": true}}
	helm := &fakeHelm{}
	d, _ := testDeployer(kube, helm, nil)

	outcome, _, err := d.stepLiteLLM(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Contains(t, kube.rolloutCalled, "litellm/litellm")

	require.Len(t, helm.upgrades, 1)
	opts := helm.upgrades[0]
	assert.Equal(t, "litellm", opts.Release)
	assert.Equal(t, "litellm", opts.Namespace)
	assert.Contains(t, opts.Set["serviceAccount.annotations.eks\\.amazonaws\\.com/role-arn"], "role/litellm-cluster-litellm")
	require.Len(t, opts.ValuesFiles, 1)
}

func TestStepExternalSecretsAppliesStores(t *testing.T) {
	kube := &fakeKube{rolloutsOK: true}
	kubectl := &fakeKubectl{applyChanged: true}
	d, _ := testDeployer(kube, nil, kubectl)

	outcome, _, err := d.stepExternalSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	// Cluster store plus the ExternalSecret bundle.
	require.Len(t, kubectl.applied, 2)
	assert.Contains(t, string(kubectl.applied[0]), "ClusterSecretStore")
	assert.Contains(t, string(kubectl.applied[0]), "region: us-east-1")
	assert.Contains(t, string(kubectl.applied[1]), "ExternalSecret")
}

func TestStepOPAVerifyRejectionMeansEnforced(t *testing.T) {
	kubectl := &fakeKubectl{dryRunErr: errors.New("admission webhook denied the request")}
	d, _ := testDeployer(nil, nil, kubectl)

	outcome, reason, err := d.stepOPAVerify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Contains(t, reason, "rejected")
}

func TestStepOPAVerifyAdmissionMeansFailure(t *testing.T) {
	kubectl := &fakeKubectl{dryRunErr: nil}
	d, _ := testDeployer(nil, nil, kubectl)

	_, _, err := d.stepOPAVerify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enforcing")
}

func TestStepOPAVerifyInfraErrorIsNotEnforcement(t *testing.T) {
	// A dry-run that never reached admission control proves nothing about
	// the policies. The step must fail with the underlying error rather
	// than report enforcement.
	kubectl := &fakeKubectl{dryRunErr: errors.New(`The connection to the server 10.0.0.1:443 was refused - did you specify the right host or port?`)}
	d, _ := testDeployer(nil, nil, kubectl)

	_, _, err := d.stepOPAVerify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be evaluated")
	assert.Contains(t, err.Error(), "connection to the server")
}

func TestStepOPAVerifyGatekeeperDenialMeansEnforced(t *testing.T) {
	kubectl := &fakeKubectl{dryRunErr: errors.New(`admission webhook "validation.gatekeeper.sh" denied the request: [require-managed-labels] missing required labels`)}
	d, _ := testDeployer(nil, nil, kubectl)

	outcome, _, err := d.stepOPAVerify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
}

func TestInstallReleaseReportsInstallVersusUpgrade(t *testing.T) {
	helm := &fakeHelm{}
	d, _ := testDeployer(nil, helm, nil)

	outcome, detail, err := d.installRelease(context.Background(), "monitoring", nil)
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Equal(t, "installed release", detail)

	// The fake records the release as installed, so a second run is an
	// in-place upgrade and says so.
	outcome, detail, err = d.installRelease(context.Background(), "monitoring", nil)
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Equal(t, "upgraded existing release", detail)
	assert.Len(t, helm.upgrades, 2)
}

func TestStepVerifyReportsUnhealthy(t *testing.T) {
	kube := &fakeKube{
		rolloutsOK: true,
		deployments: map[string]map[string]bool{
			"litellm":   {"litellm": true},
			"openwebui": {"open-webui": false},
		},
		secrets: map[string]bool{
			"litellm/litellm-env":     true,
			"litellm/litellm-redis":   true,
			"openwebui/openwebui-env": true,
		},
	}
	d, _ := testDeployer(kube, nil, nil)

	_, _, err := d.stepVerify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openwebui/open-webui")
}

func TestStepVerifyHealthy(t *testing.T) {
	kube := &fakeKube{
		rolloutsOK: true,
		deployments: map[string]map[string]bool{
			"litellm":          {"litellm": true, "redis-master": true},
			"openwebui":        {"open-webui": true},
			"external-secrets": {"external-secrets": true},
			"monitoring":       {"monitoring-grafana": true},
		},
		secrets: map[string]bool{
			"litellm/litellm-env":     true,
			"litellm/litellm-redis":   true,
			"openwebui/openwebui-env": true,
		},
	}
	d, _ := testDeployer(kube, nil, nil)

	outcome, reason, err := d.stepVerify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Contains(t, reason, "all deployments ready")
}

func TestStepHelmReposRegistersAll(t *testing.T) {
	helm := &fakeHelm{}
	d, _ := testDeployer(nil, helm, nil)

	outcome, _, err := d.stepHelmRepos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Applied, outcome)
	assert.Contains(t, helm.repos, "bitnami")
	assert.Contains(t, helm.repos, "external-secrets")
}

func TestStepDashboardsSkipsWhenUnchanged(t *testing.T) {
	kubectl := &fakeKubectl{applyChanged: false}
	d, _ := testDeployer(nil, nil, kubectl)

	outcome, _, err := d.stepDashboards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, steps.Skipped, outcome)
}
