package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level deployment configuration
type Config struct {
	AWS        AWSConfig     `yaml:"aws"`
	Bastion    BastionConfig `yaml:"bastion"`
	Namespaces []string      `yaml:"namespaces"`
	Charts     ChartsConfig  `yaml:"charts"`
	Secrets    SecretsConfig `yaml:"secrets"`
	Status     StatusConfig  `yaml:"status"`
	Timeouts   TimeoutConfig `yaml:"timeouts"`
}

// AWSConfig identifies the target account and cluster
type AWSConfig struct {
	Region       string `yaml:"region"`
	AccountID    string `yaml:"accountId"`
	ClusterName  string `yaml:"clusterName"`
	OIDCProvider string `yaml:"oidcProvider"`
}

// BastionConfig controls the jump-host lifecycle commands
type BastionConfig struct {
	Name            string `yaml:"name"`
	InstanceType    string `yaml:"instanceType"`
	NonInteractive  bool   `yaml:"nonInteractive"`
	AutoSkipHealthy bool   `yaml:"autoSkipHealthy"`
}

// ChartsConfig lists Helm repositories and release pins
type ChartsConfig struct {
	Repos    []ChartRepo             `yaml:"repos"`
	Releases map[string]ChartRelease `yaml:"releases"`
}

type ChartRepo struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type ChartRelease struct {
	Chart     string `yaml:"chart"`
	Version   string `yaml:"version"`
	Namespace string `yaml:"namespace"`
}

// SecretsConfig names the AWS Secrets Manager entries synced into the cluster
type SecretsConfig struct {
	Prefix string   `yaml:"prefix"`
	Names  []string `yaml:"names"`
}

// StatusConfig drives the post-deploy status server
type StatusConfig struct {
	Port          int              `yaml:"port"`
	ProbeInterval time.Duration    `yaml:"probeInterval"`
	Endpoints     []EndpointConfig `yaml:"endpoints"`
}

type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

// TimeoutConfig holds per-phase wait limits
type TimeoutConfig struct {
	HelmWait    time.Duration `yaml:"helmWait"`
	RolloutWait time.Duration `yaml:"rolloutWait"`
	BastionWait time.Duration `yaml:"bastionWait"`
}

// Load reads the YAML configuration file, applies defaults, and overlays
// the well-known environment variables.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

// Default returns a configuration with defaults and environment overlays
// applied but no file loaded.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.ClusterName == "" {
		c.AWS.ClusterName = "litellm-cluster"
	}
	if c.Bastion.Name == "" {
		c.Bastion.Name = "litellm-bastion"
	}
	if c.Bastion.InstanceType == "" {
		c.Bastion.InstanceType = "t3.micro"
	}
	if len(c.Namespaces) == 0 {
		c.Namespaces = []string{
			"litellm",
			"openwebui",
			"monitoring",
			"external-secrets",
			"gatekeeper-system",
		}
	}
	if len(c.Charts.Repos) == 0 {
		c.Charts.Repos = []ChartRepo{
			{Name: "external-secrets", URL: "https://charts.external-secrets.io"},
			{Name: "prometheus-community", URL: "https://prometheus-community.github.io/helm-charts"},
			{Name: "jaegertracing", URL: "https://jaegertracing.github.io/helm-charts"},
			{Name: "bitnami", URL: "https://charts.bitnami.com/bitnami"},
			{Name: "gatekeeper", URL: "https://open-policy-agent.github.io/gatekeeper/charts"},
			{Name: "open-webui", URL: "https://helm.openwebui.com"},
		}
	}
	if c.Charts.Releases == nil {
		c.Charts.Releases = map[string]ChartRelease{
			"external-secrets": {Chart: "external-secrets/external-secrets", Version: "0.9.11", Namespace: "external-secrets"},
			"monitoring":       {Chart: "prometheus-community/kube-prometheus-stack", Version: "55.5.0", Namespace: "monitoring"},
			"jaeger":           {Chart: "jaegertracing/jaeger", Version: "0.73.1", Namespace: "monitoring"},
			"redis":            {Chart: "bitnami/redis", Version: "18.6.1", Namespace: "litellm"},
			"litellm":          {Chart: "oci://ghcr.io/berriai/litellm-helm", Version: "0.3.0", Namespace: "litellm"},
			"openwebui":        {Chart: "open-webui/open-webui", Version: "3.1.0", Namespace: "openwebui"},
			"gatekeeper":       {Chart: "gatekeeper/gatekeeper", Version: "3.14.0", Namespace: "gatekeeper-system"},
		}
	}
	if c.Secrets.Prefix == "" {
		c.Secrets.Prefix = "litellm"
	}
	if len(c.Secrets.Names) == 0 {
		c.Secrets.Names = []string{
			"litellm/master-key",
			"litellm/salt-key",
			"litellm/redis-password",
			"litellm/database-url",
			"litellm/jwt-public-key-url",
			"openwebui/secret-key",
			"openwebui/database-url",
		}
	}
	if c.Status.Port == 0 {
		c.Status.Port = 8090
	}
	if c.Status.ProbeInterval == 0 {
		c.Status.ProbeInterval = 30 * time.Second
	}
	if c.Timeouts.HelmWait == 0 {
		c.Timeouts.HelmWait = 10 * time.Minute
	}
	if c.Timeouts.RolloutWait == 0 {
		c.Timeouts.RolloutWait = 5 * time.Minute
	}
	if c.Timeouts.BastionWait == 0 {
		c.Timeouts.BastionWait = 3 * time.Minute
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCOUNT_ID"); v != "" {
		c.AWS.AccountID = v
	}
	if v := os.Getenv("EKS_CLUSTER_NAME"); v != "" {
		c.AWS.ClusterName = v
	}
	if v := os.Getenv("OIDC_PROVIDER"); v != "" {
		c.AWS.OIDCProvider = v
	}
	if v := os.Getenv("BASTION_NAME"); v != "" {
		c.Bastion.Name = v
	}
	if v := os.Getenv("INSTANCE_TYPE"); v != "" {
		c.Bastion.InstanceType = v
	}
	if v := os.Getenv("INTERACTIVE_MODE"); v != "" {
		c.Bastion.NonInteractive = v == "false" || v == "0"
	}
	if v := os.Getenv("AUTO_SKIP_HEALTHY"); v != "" {
		c.Bastion.AutoSkipHealthy = v == "true" || v == "1"
	}
}
