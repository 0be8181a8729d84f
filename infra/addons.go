package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes"
	"github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes/helm/v3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// provisionAddons installs the AWS Load Balancer Controller through a
// Kubernetes provider built from the generated kubeconfig. Everything else
// that runs in the cluster is deployed by the llmstack CLI.
func provisionAddons(ctx *pulumi.Context, naming *resourceNaming, cfg infraConfig, network *networkOutputs, cluster *clusterOutputs) error {
	albRole, err := iam.NewRole(ctx, naming.name("alb-role"), &iam.RoleArgs{
		AssumeRolePolicy: irsaTrustPolicy(cluster.OIDCProvider.Arn, cluster.OIDCProvider.Url,
			"kube-system", "aws-load-balancer-controller"),
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return err
	}

	_, err = iam.NewRolePolicy(ctx, naming.name("alb-policy"), &iam.RolePolicyArgs{
		Role: albRole.Name,
		Policy: pulumi.String(`{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Effect": "Allow",
					"Action": [
						"ec2:Describe*",
						"elasticloadbalancing:*",
						"acm:ListCertificates",
						"acm:DescribeCertificate",
						"wafv2:GetWebACL",
						"wafv2:AssociateWebACL",
						"wafv2:DisassociateWebACL",
						"shield:GetSubscriptionState"
					],
					"Resource": "*"
				}
			]
		}`),
	})
	if err != nil {
		return err
	}

	k8sProvider, err := kubernetes.NewProvider(ctx, naming.name("k8s-provider"), &kubernetes.ProviderArgs{
		Kubeconfig: cluster.Kubeconfig,
	}, pulumi.DependsOn([]pulumi.Resource{cluster.NodeGroup}))
	if err != nil {
		return err
	}

	_, err = helm.NewRelease(ctx, naming.name("alb-controller"), &helm.ReleaseArgs{
		Chart:     pulumi.String("aws-load-balancer-controller"),
		Version:   pulumi.String("1.6.2"),
		Namespace: pulumi.String("kube-system"),
		RepositoryOpts: &helm.RepositoryOptsArgs{
			Repo: pulumi.String("https://aws.github.io/eks-charts"),
		},
		Values: pulumi.Map{
			"clusterName": cluster.Cluster.Name,
			"region":      pulumi.String(cfg.Region),
			"vpcId":       network.VPC.ID(),
			"serviceAccount": pulumi.Map{
				"create": pulumi.Bool(true),
				"name":   pulumi.String("aws-load-balancer-controller"),
				"annotations": pulumi.Map{
					"eks.amazonaws.com/role-arn": albRole.Arn,
				},
			},
		},
	}, pulumi.Provider(k8sProvider))
	return err
}
