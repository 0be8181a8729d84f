package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	// Pin the overlay variables so the host environment cannot leak in.
	t.Setenv("AWS_REGION", "")
	t.Setenv("EKS_CLUSTER_NAME", "")
	t.Setenv("BASTION_NAME", "")

	cfg := Default()

	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "litellm-cluster", cfg.AWS.ClusterName)
	assert.Equal(t, "litellm-bastion", cfg.Bastion.Name)
	assert.False(t, cfg.Bastion.NonInteractive)
	assert.Len(t, cfg.Namespaces, 5)
	assert.Len(t, cfg.Charts.Repos, 6)
	assert.Len(t, cfg.Charts.Releases, 7)
	assert.Contains(t, cfg.Secrets.Names, "litellm/salt-key")
	assert.Equal(t, 8090, cfg.Status.Port)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.HelmWait)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aws:
  region: eu-west-1
bastion:
  instanceType: t3.small
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "t3.small", cfg.Bastion.InstanceType)
	// Untouched sections still get defaults.
	assert.Equal(t, "litellm-cluster", cfg.AWS.ClusterName)
	assert.NotEmpty(t, cfg.Charts.Releases["litellm"].Chart)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aws: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_ACCOUNT_ID", "123456789012")
	t.Setenv("EKS_CLUSTER_NAME", "staging-cluster")
	t.Setenv("BASTION_NAME", "staging-bastion")
	t.Setenv("INTERACTIVE_MODE", "false")
	t.Setenv("AUTO_SKIP_HEALTHY", "true")

	cfg := Default()

	assert.Equal(t, "us-west-2", cfg.AWS.Region)
	assert.Equal(t, "123456789012", cfg.AWS.AccountID)
	assert.Equal(t, "staging-cluster", cfg.AWS.ClusterName)
	assert.Equal(t, "staging-bastion", cfg.Bastion.Name)
	assert.True(t, cfg.Bastion.NonInteractive)
	assert.True(t, cfg.Bastion.AutoSkipHealthy)
}

func TestInteractiveModeTrueStaysInteractive(t *testing.T) {
	t.Setenv("INTERACTIVE_MODE", "true")
	cfg := Default()
	assert.False(t, cfg.Bastion.NonInteractive)
}
