package main

import (
	"fmt"
	"os/exec"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/kube"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		kubeconfig string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check deployment prerequisites",
		Long: `Checks that everything a deploy needs is in place: AWS credentials, the
EKS cluster, the kubeconfig, and the helm/kubectl/aws binaries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			failures := 0
			check := func(name string, err error, detail string) {
				if err != nil {
					failures++
					fmt.Printf("FAIL  %-22s %v\n", name, err)
					return
				}
				fmt.Printf("ok    %-22s %s\n", name, detail)
			}

			for _, binary := range []string{"helm", "kubectl", "aws"} {
				path, err := exec.LookPath(binary)
				check(binary+" on PATH", err, path)
			}

			clients, err := awsx.NewClients(ctx, cfg.AWS.Region)
			if err != nil {
				return err
			}

			identity, err := awsx.CallerIdentity(ctx, clients.STS)
			check("aws credentials", err, fmt.Sprintf("account %s (%s)", identity.AccountID, identity.ARN))

			clusterDetail := ""
			out, err := clients.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{
				Name: aws.String(cfg.AWS.ClusterName),
			})
			if err == nil {
				clusterDetail = fmt.Sprintf("%s, status %s, version %s",
					cfg.AWS.ClusterName, out.Cluster.Status, aws.ToString(out.Cluster.Version))
			}
			check("eks cluster", err, clusterDetail)

			kubeDetail := ""
			kubeClient, err := kube.NewClient(kubeconfig)
			if err == nil {
				var deployments map[string]bool
				deployments, err = kubeClient.ListDeployments(ctx, "kube-system")
				kubeDetail = fmt.Sprintf("%d deployments in kube-system", len(deployments))
			}
			check("kubeconfig", err, kubeDetail)

			if failures > 0 {
				return fmt.Errorf("%d prerequisite check(s) failed", failures)
			}
			fmt.Println("\nAll checks passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to the kubeconfig")

	return cmd
}
