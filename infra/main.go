// The infra program provisions everything the LiteLLM + OpenWebUI stack
// needs below Kubernetes: VPC, EKS cluster, RDS Postgres, IAM/IRSA roles,
// ECR repositories, the SSM bastion, and the load balancer controller.
// In-cluster workloads are deployed afterwards with the llmstack CLI.
package main

import (
	"strings"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		cfg := loadInfraConfig(ctx)
		naming := newResourceNaming(cfg.Environment, "litellm-stack")

		network, err := provisionNetwork(ctx, naming, cfg.Region)
		if err != nil {
			return err
		}

		identity, err := provisionClusterIAM(ctx, naming)
		if err != nil {
			return err
		}

		cluster, err := provisionCluster(ctx, naming, cfg, network, identity)
		if err != nil {
			return err
		}

		irsa, err := provisionIRSA(ctx, naming, cluster.OIDCProvider, cfg.Region)
		if err != nil {
			return err
		}

		database, err := provisionDatabase(ctx, naming, cfg, network, cluster)
		if err != nil {
			return err
		}

		if err := provisionSecrets(ctx, naming, database); err != nil {
			return err
		}

		registry, err := provisionRegistry(ctx, naming)
		if err != nil {
			return err
		}

		bastion, err := provisionBastion(ctx, naming, cfg, network, cluster)
		if err != nil {
			return err
		}

		if err := provisionAddons(ctx, naming, cfg, network, cluster); err != nil {
			return err
		}

		// Outputs the deployer and the operator read back.
		ctx.Export("region", pulumi.String(cfg.Region))
		ctx.Export("vpcId", network.VPC.ID())
		ctx.Export("clusterName", cluster.Cluster.Name)
		ctx.Export("clusterEndpoint", cluster.Cluster.Endpoint)
		ctx.Export("kubeconfig", pulumi.ToSecret(cluster.Kubeconfig))
		ctx.Export("oidcProvider", cluster.OIDCProvider.Url.ApplyT(func(url string) string {
			return strings.TrimPrefix(url, "https://")
		}).(pulumi.StringOutput))
		ctx.Export("esoReaderRoleArn", irsa.ESOReaderRole.Arn)
		ctx.Export("litellmRoleArn", irsa.LiteLLMRole.Arn)
		ctx.Export("rdsEndpoint", database.Instance.Endpoint)
		ctx.Export("litellmRepositoryUrl", registry.LiteLLM.RepositoryUrl)
		ctx.Export("openwebuiRepositoryUrl", registry.OpenWebUI.RepositoryUrl)
		ctx.Export("bastionInstanceId", bastion.Instance.ID())

		return nil
	})
}
