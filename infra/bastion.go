package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// al2023AMIParameter resolves to the latest Amazon Linux 2023 AMI.
const al2023AMIParameter = "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64"

// bastionOutputs carries the jump host instance.
type bastionOutputs struct {
	Instance *ec2.Instance
}

// provisionBastion creates the SSM-only jump host on a private subnet. No
// SSH key pair, no public IP; access goes through Session Manager.
func provisionBastion(ctx *pulumi.Context, naming *resourceNaming, cfg infraConfig, network *networkOutputs, cluster *clusterOutputs) (*bastionOutputs, error) {
	role, err := iam.NewRole(ctx, naming.name("bastion-role"), &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(`{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Action": "sts:AssumeRole",
					"Effect": "Allow",
					"Principal": {
						"Service": "ec2.amazonaws.com"
					}
				}
			]
		}`),
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	_, err = iam.NewRolePolicyAttachment(ctx, naming.name("bastion-ssm-policy"), &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String("arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"),
	})
	if err != nil {
		return nil, err
	}

	profile, err := iam.NewInstanceProfile(ctx, naming.name("bastion-profile"), &iam.InstanceProfileArgs{
		Role: role.Name,
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	ami, err := ssm.LookupParameter(ctx, &ssm.LookupParameterArgs{
		Name: al2023AMIParameter,
	})
	if err != nil {
		return nil, err
	}

	instance, err := ec2.NewInstance(ctx, naming.name("bastion"), &ec2.InstanceArgs{
		Ami:                 pulumi.String(ami.Value),
		InstanceType:        pulumi.String(cfg.BastionInstanceType),
		SubnetId:            network.PrivateSubnets[0].ID(),
		IamInstanceProfile:  profile.Name,
		VpcSecurityGroupIds: pulumi.StringArray{cluster.Cluster.VpcConfig.ClusterSecurityGroupId().Elem()},
		Tags: pulumi.ToStringMap(mergeTags(naming.tags(), map[string]string{
			"Name": naming.name("bastion"),
		})),
	})
	if err != nil {
		return nil, err
	}

	return &bastionOutputs{Instance: instance}, nil
}
