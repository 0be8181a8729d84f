package helmx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Helm wraps the helm CLI for the small set of operations the deployer
// needs: repo management, idempotent release upgrades, and status checks.
type Helm struct {
	runner Runner
}

// NewHelm creates a Helm adapter using the given runner.
func NewHelm(runner Runner) *Helm {
	return &Helm{runner: runner}
}

// RepoAdd registers a chart repository. Re-adding an existing repo with the
// same URL is a no-op for helm, so this is safe to repeat.
func (h *Helm) RepoAdd(ctx context.Context, name, url string) error {
	_, err := h.runner.Run(ctx, "helm", "repo", "add", name, url, "--force-update")
	if err != nil {
		return fmt.Errorf("failed to add helm repo %s: %w", name, err)
	}
	return nil
}

// RepoUpdate refreshes all chart repository indexes.
func (h *Helm) RepoUpdate(ctx context.Context) error {
	if _, err := h.runner.Run(ctx, "helm", "repo", "update"); err != nil {
		return fmt.Errorf("failed to update helm repos: %w", err)
	}
	return nil
}

// ReleaseStatus describes an installed release.
type ReleaseStatus struct {
	Name       string
	Namespace  string
	Deployed   bool
	AppVersion string
	Revision   int
}

// Status returns the release status, or found=false when the release does
// not exist.
func (h *Helm) Status(ctx context.Context, release, namespace string) (ReleaseStatus, bool, error) {
	out, err := h.runner.Run(ctx, "helm", "status", release, "--namespace", namespace, "--output", "json")
	if err != nil {
		if strings.Contains(err.Error(), "release: not found") {
			return ReleaseStatus{}, false, nil
		}
		return ReleaseStatus{}, false, fmt.Errorf("failed to check release %s: %w", release, err)
	}

	var payload struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		Version   int    `json:"version"`
		Info      struct {
			Status string `json:"status"`
		} `json:"info"`
		Chart struct {
			Metadata struct {
				AppVersion string `json:"appVersion"`
			} `json:"metadata"`
		} `json:"chart"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return ReleaseStatus{}, false, fmt.Errorf("failed to parse helm status for %s: %w", release, err)
	}

	return ReleaseStatus{
		Name:       payload.Name,
		Namespace:  payload.Namespace,
		Deployed:   payload.Info.Status == "deployed",
		AppVersion: payload.Chart.Metadata.AppVersion,
		Revision:   payload.Version,
	}, true, nil
}

// UpgradeOptions configures an idempotent release install/upgrade.
type UpgradeOptions struct {
	Release     string
	Chart       string
	Version     string
	Namespace   string
	ValuesFiles []string
	Set         map[string]string
	Wait        time.Duration
}

// UpgradeInstall runs `helm upgrade --install --wait` with the given
// options. It is the idempotent primitive behind every chart step.
func (h *Helm) UpgradeInstall(ctx context.Context, opts UpgradeOptions) error {
	args := []string{
		"upgrade", "--install", opts.Release, opts.Chart,
		"--namespace", opts.Namespace,
		"--create-namespace",
		"--wait",
	}
	if opts.Version != "" {
		args = append(args, "--version", opts.Version)
	}
	if opts.Wait > 0 {
		args = append(args, "--timeout", opts.Wait.String())
	}
	for _, f := range opts.ValuesFiles {
		args = append(args, "--values", f)
	}
	for _, key := range sortedKeys(opts.Set) {
		args = append(args, "--set", fmt.Sprintf("%s=%s", key, opts.Set[key]))
	}

	if _, err := h.runner.Run(ctx, "helm", args...); err != nil {
		return fmt.Errorf("failed to install release %s: %w", opts.Release, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
