package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/eks"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// oidcThumbprint is the root CA thumbprint for EKS OIDC issuers.
const oidcThumbprint = "9e99a48a9960b14926bb7f3b02e22da2b0ab7280"

// clusterOutputs carries the cluster and everything derived from it.
type clusterOutputs struct {
	Cluster      *eks.Cluster
	NodeGroup    *eks.NodeGroup
	OIDCProvider *iam.OpenIdConnectProvider
	Kubeconfig   pulumi.StringOutput
}

// provisionCluster creates the EKS cluster, its managed node group on the
// private subnets, and the OIDC provider that IRSA hangs off.
func provisionCluster(ctx *pulumi.Context, naming *resourceNaming, cfg infraConfig, network *networkOutputs, identity *identityOutputs) (*clusterOutputs, error) {
	// The control plane sees both subnet tiers so it can place load
	// balancers publicly while nodes stay private.
	var subnetIDs pulumi.StringArray
	subnetIDs = append(subnetIDs, network.publicSubnetIDs()...)
	subnetIDs = append(subnetIDs, network.privateSubnetIDs()...)

	cluster, err := eks.NewCluster(ctx, naming.name("cluster"), &eks.ClusterArgs{
		RoleArn: identity.ClusterRole.Arn,
		VpcConfig: &eks.ClusterVpcConfigArgs{
			SubnetIds:             subnetIDs,
			EndpointPrivateAccess: pulumi.Bool(true),
			EndpointPublicAccess:  pulumi.Bool(true),
		},
		Version: pulumi.String("1.28"),
		Tags:    pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	nodeGroup, err := eks.NewNodeGroup(ctx, naming.name("nodegroup"), &eks.NodeGroupArgs{
		ClusterName: cluster.Name,
		NodeRoleArn: identity.NodeRole.Arn,
		SubnetIds:   network.privateSubnetIDs(),
		InstanceTypes: pulumi.StringArray{
			pulumi.String(cfg.NodeInstanceType),
		},
		ScalingConfig: &eks.NodeGroupScalingConfigArgs{
			DesiredSize: pulumi.Int(cfg.NodeDesired),
			MinSize:     pulumi.Int(cfg.NodeMin),
			MaxSize:     pulumi.Int(cfg.NodeMax),
		},
		AmiType:      pulumi.String("AL2_x86_64"),
		CapacityType: pulumi.String("ON_DEMAND"),
		DiskSize:     pulumi.Int(50),
		Tags:         pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	issuer := cluster.Identities.Index(pulumi.Int(0)).Oidcs().Index(pulumi.Int(0)).Issuer().Elem()

	oidcProvider, err := iam.NewOpenIdConnectProvider(ctx, naming.name("oidc-provider"), &iam.OpenIdConnectProviderArgs{
		Url: issuer,
		ClientIdLists: pulumi.StringArray{
			pulumi.String("sts.amazonaws.com"),
		},
		ThumbprintLists: pulumi.StringArray{
			pulumi.String(oidcThumbprint),
		},
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	kubeconfig := generateKubeconfig(
		cluster.Name,
		cluster.Endpoint,
		cluster.CertificateAuthority.Data().Elem(),
		cfg.Region,
	)

	return &clusterOutputs{
		Cluster:      cluster,
		NodeGroup:    nodeGroup,
		OIDCProvider: oidcProvider,
		Kubeconfig:   kubeconfig,
	}, nil
}
