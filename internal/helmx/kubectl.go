package helmx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kubectl wraps the kubectl CLI for manifest application and waits that the
// typed client does not cover (CRD-backed objects like ExternalSecrets and
// Gatekeeper constraints).
type Kubectl struct {
	runner Runner
}

// NewKubectl creates a Kubectl adapter using the given runner.
func NewKubectl(runner Runner) *Kubectl {
	return &Kubectl{runner: runner}
}

// Apply runs `kubectl apply -f` on manifest bytes via a temp file and
// reports whether anything changed ("unchanged" lines mean a no-op).
func (k *Kubectl) Apply(ctx context.Context, namespace string, manifest []byte) (changed bool, err error) {
	tmpDir, err := os.MkdirTemp("", "llmstack-apply-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	file := filepath.Join(tmpDir, "manifest.yaml")
	if err := os.WriteFile(file, manifest, 0o600); err != nil {
		return false, fmt.Errorf("failed to write manifest: %w", err)
	}

	args := []string{"apply", "-f", file}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}

	out, err := k.runner.Run(ctx, "kubectl", args...)
	if err != nil {
		return false, fmt.Errorf("failed to apply manifest: %w", err)
	}

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" && !strings.HasSuffix(line, "unchanged") {
			changed = true
		}
	}
	return changed, nil
}

// WaitCondition blocks until the named object meets the condition or the
// timeout elapses.
func (k *Kubectl) WaitCondition(ctx context.Context, namespace, target, condition string, timeout time.Duration) error {
	args := []string{
		"wait", target,
		"--for", "condition=" + condition,
		"--timeout", timeout.String(),
	}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}
	if _, err := k.runner.Run(ctx, "kubectl", args...); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", target, err)
	}
	return nil
}

// DryRunCreate attempts a server-side dry-run create of a manifest and
// returns the error, if any. Used to verify that admission policies reject
// violating objects.
func (k *Kubectl) DryRunCreate(ctx context.Context, namespace string, manifest []byte) error {
	tmpDir, err := os.MkdirTemp("", "llmstack-dryrun-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	file := filepath.Join(tmpDir, "manifest.yaml")
	if err := os.WriteFile(file, manifest, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	args := []string{"apply", "-f", file, "--dry-run=server"}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}
	_, err = k.runner.Run(ctx, "kubectl", args...)
	return err
}
