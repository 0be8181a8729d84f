package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/navillasa/litellm-eks-stack/internal/assets"
	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/helmx"
	"github.com/navillasa/litellm-eks-stack/internal/steps"
	"github.com/sirupsen/logrus"
)

// Engine builds the step engine with the full deployment DAG. The edges
// encode the phase order: IRSA and secrets before ESO, ESO before anything
// that consumes synced secrets, data layer before the application layer.
func (d *Deployer) Engine() (*steps.Engine, error) {
	e := steps.NewEngine()

	all := []steps.Step{
		{Name: "irsa", Description: "IAM roles for service accounts", Run: d.stepIRSA},
		{Name: "secrets", Description: "AWS Secrets Manager entries", Run: d.stepSecrets},
		{Name: "helm-repos", Description: "Helm chart repositories", Run: d.stepHelmRepos},
		{Name: "namespaces", Description: "Kubernetes namespaces", Run: d.stepNamespaces},
		{Name: "external-secrets", Description: "External Secrets Operator and secret stores",
			Requires: []string{"irsa", "secrets", "helm-repos", "namespaces"}, Run: d.stepExternalSecrets},
		{Name: "monitoring", Description: "kube-prometheus-stack",
			Requires: []string{"helm-repos", "namespaces"}, Run: d.stepMonitoring},
		{Name: "dashboards", Description: "Grafana dashboards",
			Requires: []string{"monitoring"}, Run: d.stepDashboards},
		{Name: "jaeger", Description: "Jaeger tracing",
			Requires: []string{"helm-repos", "namespaces"}, Run: d.stepJaeger},
		{Name: "gatekeeper", Description: "OPA Gatekeeper",
			Requires: []string{"helm-repos", "namespaces"}, Run: d.stepGatekeeper},
		{Name: "opa-policies", Description: "Gatekeeper constraint templates and constraints",
			Requires: []string{"gatekeeper"}, Run: d.stepOPAPolicies},
		{Name: "redis", Description: "Redis cache",
			Requires: []string{"external-secrets"}, Run: d.stepRedis},
		{Name: "litellm", Description: "LiteLLM proxy",
			Requires: []string{"redis", "external-secrets"}, Run: d.stepLiteLLM},
		{Name: "openwebui", Description: "OpenWebUI frontend",
			Requires: []string{"litellm"}, Run: d.stepOpenWebUI},
		{Name: "opa-verify", Description: "Admission policy enforcement check",
			Requires: []string{"opa-policies"}, Run: d.stepOPAVerify},
		{Name: "verify", Description: "Post-deploy verification",
			Requires: []string{"litellm", "openwebui"}, Run: d.stepVerify},
	}

	for _, s := range all {
		if err := e.Register(s); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (d *Deployer) stepIRSA(ctx context.Context) (steps.Outcome, string, error) {
	esoPolicy, err := awsx.SecretsReaderPolicy(d.cfg.AWS.Region, d.cfg.AWS.AccountID, d.cfg.Secrets.Names)
	if err != nil {
		return steps.Failed, "", err
	}

	roles := []awsx.IRSARole{
		{
			RoleName:       d.cfg.AWS.ClusterName + "-eso-reader",
			Namespace:      "external-secrets",
			ServiceAccount: "external-secrets-sa",
			PolicyName:     "secrets-read",
			PolicyDocument: esoPolicy,
		},
		{
			RoleName:       d.cfg.AWS.ClusterName + "-litellm",
			Namespace:      "litellm",
			ServiceAccount: "litellm",
			PolicyName:     "litellm-runtime",
			PolicyDocument: esoPolicy,
		},
	}

	createdAny := false
	for _, role := range roles {
		created, err := d.irsa.Ensure(ctx, role)
		if err != nil {
			return steps.Failed, "", err
		}
		createdAny = createdAny || created
	}

	if !createdAny {
		return steps.Skipped, "all IRSA roles exist; trust policies refreshed", nil
	}
	return steps.Applied, "", nil
}

func (d *Deployer) stepSecrets(ctx context.Context) (steps.Outcome, string, error) {
	created := 0
	for _, name := range d.cfg.Secrets.Names {
		wasCreated, err := d.secrets.Ensure(ctx, name)
		if err != nil {
			return steps.Failed, "", err
		}
		if wasCreated {
			created++
		}
	}

	if created == 0 {
		return steps.Skipped, "all secrets exist", nil
	}
	return steps.Applied, fmt.Sprintf("created %d of %d secrets", created, len(d.cfg.Secrets.Names)), nil
}

func (d *Deployer) stepHelmRepos(ctx context.Context) (steps.Outcome, string, error) {
	for _, repo := range d.cfg.Charts.Repos {
		if err := d.helm.RepoAdd(ctx, repo.Name, repo.URL); err != nil {
			return steps.Failed, "", err
		}
	}
	if err := d.helm.RepoUpdate(ctx); err != nil {
		return steps.Failed, "", err
	}
	return steps.Applied, fmt.Sprintf("%d repos registered", len(d.cfg.Charts.Repos)), nil
}

func (d *Deployer) stepNamespaces(ctx context.Context) (steps.Outcome, string, error) {
	created, err := d.kube.EnsureNamespaces(ctx, d.cfg.Namespaces)
	if err != nil {
		return steps.Failed, "", err
	}
	if len(created) == 0 {
		return steps.Skipped, "all namespaces exist", nil
	}
	return steps.Applied, "created " + strings.Join(created, ", "), nil
}

func (d *Deployer) stepExternalSecrets(ctx context.Context) (steps.Outcome, string, error) {
	outcome, _, err := d.installRelease(ctx, "external-secrets", map[string]string{
		"serviceAccount.annotations.eks\\.amazonaws\\.com/role-arn": fmt.Sprintf(
			"arn:aws:iam::%s:role/%s-eso-reader", d.cfg.AWS.AccountID, d.cfg.AWS.ClusterName),
	})
	if err != nil {
		return steps.Failed, "", err
	}

	if err := d.kube.WaitDeploymentReady(ctx, "external-secrets", "external-secrets", d.cfg.Timeouts.RolloutWait); err != nil {
		return steps.Failed, "", err
	}

	store, err := assets.RenderManifest("cluster-secret-store.yaml", map[string]string{
		"Region": d.cfg.AWS.Region,
	})
	if err != nil {
		return steps.Failed, "", err
	}
	if _, err := d.kubectl.Apply(ctx, "", store); err != nil {
		return steps.Failed, "", err
	}

	externals, err := assets.Manifest("external-secrets.yaml")
	if err != nil {
		return steps.Failed, "", err
	}
	if _, err := d.kubectl.Apply(ctx, "", externals); err != nil {
		return steps.Failed, "", err
	}

	return outcome, "operator installed, stores applied", nil
}

func (d *Deployer) stepMonitoring(ctx context.Context) (steps.Outcome, string, error) {
	return d.installRelease(ctx, "monitoring", nil)
}

func (d *Deployer) stepDashboards(ctx context.Context) (steps.Outcome, string, error) {
	manifest, err := assets.Manifest("grafana-dashboards.yaml")
	if err != nil {
		return steps.Failed, "", err
	}
	changed, err := d.kubectl.Apply(ctx, "monitoring", manifest)
	if err != nil {
		return steps.Failed, "", err
	}
	if !changed {
		return steps.Skipped, "dashboards unchanged", nil
	}
	return steps.Applied, "", nil
}

func (d *Deployer) stepJaeger(ctx context.Context) (steps.Outcome, string, error) {
	return d.installRelease(ctx, "jaeger", nil)
}

func (d *Deployer) stepGatekeeper(ctx context.Context) (steps.Outcome, string, error) {
	return d.installRelease(ctx, "gatekeeper", nil)
}

func (d *Deployer) stepOPAPolicies(ctx context.Context) (steps.Outcome, string, error) {
	templates, err := assets.Manifest("constraint-templates.yaml")
	if err != nil {
		return steps.Failed, "", err
	}
	changedTemplates, err := d.kubectl.Apply(ctx, "", templates)
	if err != nil {
		return steps.Failed, "", err
	}

	// Gatekeeper registers a CRD per template; the constraints cannot be
	// applied until those are established.
	for _, crd := range []string{
		"crd/k8srequiredlabels.constraints.gatekeeper.sh",
		"crd/k8sdisallowlatest.constraints.gatekeeper.sh",
	} {
		if err := d.kubectl.WaitCondition(ctx, "", crd, "established", d.cfg.Timeouts.RolloutWait); err != nil {
			return steps.Failed, "", err
		}
	}

	constraints, err := assets.Manifest("constraints.yaml")
	if err != nil {
		return steps.Failed, "", err
	}
	changedConstraints, err := d.kubectl.Apply(ctx, "", constraints)
	if err != nil {
		return steps.Failed, "", err
	}

	if !changedTemplates && !changedConstraints {
		return steps.Skipped, "policies unchanged", nil
	}
	return steps.Applied, "", nil
}

func (d *Deployer) stepOPAVerify(ctx context.Context) (steps.Outcome, string, error) {
	probe, err := assets.Manifest("policy-probe.yaml")
	if err != nil {
		return steps.Failed, "", err
	}

	// The probe pod violates both policies; a successful dry-run means
	// admission control is not enforcing them. Any other failure (apiserver
	// unreachable, bad manifest) is not a rejection and must not count as one.
	err = d.kubectl.DryRunCreate(ctx, "litellm", probe)
	if err == nil {
		return steps.Failed, "", fmt.Errorf("policy probe was admitted; gatekeeper is not enforcing constraints")
	}
	if !admissionDenied(err) {
		return steps.Failed, "", fmt.Errorf("policy probe could not be evaluated: %w", err)
	}

	return steps.Applied, "violating object rejected by admission control", nil
}

// admissionDenied reports whether a dry-run failure came from the admission
// webhook rejecting the object rather than the request itself failing.
func admissionDenied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "denied the request") ||
		strings.Contains(msg, "validation.gatekeeper.sh")
}

func (d *Deployer) stepRedis(ctx context.Context) (steps.Outcome, string, error) {
	synced, err := d.kube.SecretExists(ctx, "litellm", "litellm-redis")
	if err != nil {
		return steps.Failed, "", err
	}
	if !synced {
		logrus.Warn("Secret litellm/litellm-redis not synced yet; redis auth will fail until ESO catches up")
	}

	return d.installRelease(ctx, "redis", nil)
}

func (d *Deployer) stepLiteLLM(ctx context.Context) (steps.Outcome, string, error) {
	synced, err := d.kube.SecretExists(ctx, "litellm", "litellm-env")
	if err != nil {
		return steps.Failed, "", err
	}
	if !synced {
		return steps.Failed, "", fmt.Errorf("secret litellm/litellm-env has not been synced; check the external-secrets step")
	}

	outcome, detail, err := d.installRelease(ctx, "litellm", map[string]string{
		"serviceAccount.annotations.eks\\.amazonaws\\.com/role-arn": fmt.Sprintf(
			"arn:aws:iam::%s:role/%s-litellm", d.cfg.AWS.AccountID, d.cfg.AWS.ClusterName),
	})
	if err != nil {
		return steps.Failed, "", err
	}

	if err := d.kube.WaitDeploymentReady(ctx, "litellm", "litellm", d.cfg.Timeouts.RolloutWait); err != nil {
		return steps.Failed, "", err
	}
	return outcome, detail, nil
}

func (d *Deployer) stepOpenWebUI(ctx context.Context) (steps.Outcome, string, error) {
	synced, err := d.kube.SecretExists(ctx, "openwebui", "openwebui-env")
	if err != nil {
		return steps.Failed, "", err
	}
	if !synced {
		return steps.Failed, "", fmt.Errorf("secret openwebui/openwebui-env has not been synced; check the external-secrets step")
	}

	outcome, detail, err := d.installRelease(ctx, "openwebui", nil)
	if err != nil {
		return steps.Failed, "", err
	}

	if err := d.kube.WaitDeploymentReady(ctx, "openwebui", "open-webui", d.cfg.Timeouts.RolloutWait); err != nil {
		return steps.Failed, "", err
	}
	return outcome, detail, nil
}

func (d *Deployer) stepVerify(ctx context.Context) (steps.Outcome, string, error) {
	var notReady []string

	for _, namespace := range []string{"litellm", "openwebui", "external-secrets", "monitoring"} {
		deployments, err := d.kube.ListDeployments(ctx, namespace)
		if err != nil {
			return steps.Failed, "", err
		}
		for name, ready := range deployments {
			if !ready {
				notReady = append(notReady, namespace+"/"+name)
			}
		}
	}

	for _, secret := range []struct{ namespace, name string }{
		{"litellm", "litellm-env"},
		{"litellm", "litellm-redis"},
		{"openwebui", "openwebui-env"},
	} {
		exists, err := d.kube.SecretExists(ctx, secret.namespace, secret.name)
		if err != nil {
			return steps.Failed, "", err
		}
		if !exists {
			notReady = append(notReady, "secret "+secret.namespace+"/"+secret.name)
		}
	}

	if len(notReady) > 0 {
		return steps.Failed, "", fmt.Errorf("not healthy: %s", strings.Join(notReady, ", "))
	}
	return steps.Applied, "all deployments ready, all secrets synced", nil
}

// installRelease materializes the embedded values file for the release and
// runs an idempotent helm upgrade. The chart is always applied; the detail
// reports whether that was a first install or an in-place upgrade.
func (d *Deployer) installRelease(ctx context.Context, name string, set map[string]string) (steps.Outcome, string, error) {
	rel, err := d.release(name)
	if err != nil {
		return steps.Failed, "", err
	}

	_, existed, err := d.helm.Status(ctx, name, rel.Namespace)
	if err != nil {
		return steps.Failed, "", err
	}

	err = withValuesDir(func(dir string) error {
		valuesFile, err := assets.WriteValuesFile(dir, name)
		if err != nil {
			return err
		}
		return d.helm.UpgradeInstall(ctx, helmx.UpgradeOptions{
			Release:     name,
			Chart:       rel.Chart,
			Version:     rel.Version,
			Namespace:   rel.Namespace,
			ValuesFiles: []string{valuesFile},
			Set:         set,
			Wait:        d.cfg.Timeouts.HelmWait,
		})
	})
	if err != nil {
		return steps.Failed, "", err
	}

	if existed {
		logrus.Infof("Release %s already installed; applied as an upgrade", name)
		return steps.Applied, "upgraded existing release", nil
	}
	return steps.Applied, "installed release", nil
}
