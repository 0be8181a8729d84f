package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/config"
	"github.com/sirupsen/logrus"
)

// loadConfig reads the config file if one is given or present, falling back
// to built-in defaults plus environment overlays.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveIdentity fills in the account ID and OIDC provider when the config
// and environment left them empty. The account comes from STS, the OIDC
// issuer from the cluster itself.
func resolveIdentity(ctx context.Context, cfg *config.Config, clients *awsx.Clients) error {
	if cfg.AWS.AccountID == "" {
		identity, err := awsx.CallerIdentity(ctx, clients.STS)
		if err != nil {
			return err
		}
		cfg.AWS.AccountID = identity.AccountID
		logrus.Debugf("Resolved account %s from caller identity", identity.AccountID)
	}

	if cfg.AWS.OIDCProvider == "" {
		out, err := clients.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{
			Name: aws.String(cfg.AWS.ClusterName),
		})
		if err != nil {
			return fmt.Errorf("failed to resolve OIDC provider from cluster %s: %w", cfg.AWS.ClusterName, err)
		}
		if out.Cluster.Identity == nil || out.Cluster.Identity.Oidc == nil {
			return fmt.Errorf("cluster %s has no OIDC identity provider", cfg.AWS.ClusterName)
		}
		issuer := aws.ToString(out.Cluster.Identity.Oidc.Issuer)
		cfg.AWS.OIDCProvider = strings.TrimPrefix(issuer, "https://")
		logrus.Debugf("Resolved OIDC provider %s", cfg.AWS.OIDCProvider)
	}

	return nil
}
