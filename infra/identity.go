package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// identityOutputs carries the IAM roles the cluster and its workloads need.
type identityOutputs struct {
	ClusterRole *iam.Role
	NodeRole    *iam.Role
}

// provisionClusterIAM creates the EKS service role and the node group role
// with their required managed policies.
func provisionClusterIAM(ctx *pulumi.Context, naming *resourceNaming) (*identityOutputs, error) {
	clusterRole, err := iam.NewRole(ctx, naming.name("eks-role"), &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(`{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Action": "sts:AssumeRole",
					"Effect": "Allow",
					"Principal": {
						"Service": "eks.amazonaws.com"
					}
				}
			]
		}`),
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	_, err = iam.NewRolePolicyAttachment(ctx, naming.name("eks-service-policy"), &iam.RolePolicyAttachmentArgs{
		Role:      clusterRole.Name,
		PolicyArn: pulumi.String("arn:aws:iam::aws:policy/AmazonEKSClusterPolicy"),
	})
	if err != nil {
		return nil, err
	}

	nodeRole, err := iam.NewRole(ctx, naming.name("node-role"), &iam.RoleArgs{
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

	nodePolicies := []string{
		"arn:aws:iam::aws:policy/AmazonEKSWorkerNodePolicy",
		"arn:aws:iam::aws:policy/AmazonEKS_CNI_Policy",
		"arn:aws:iam::aws:policy/AmazonEC2ContainerRegistryReadOnly",
	}

	for i, policy := range nodePolicies {
		_, err = iam.NewRolePolicyAttachment(ctx, naming.name(fmt.Sprintf("node-policy-%d", i)), &iam.RolePolicyAttachmentArgs{
			Role:      nodeRole.Name,
			PolicyArn: pulumi.String(policy),
		})
		if err != nil {
			return nil, err
		}
	}

	return &identityOutputs{ClusterRole: clusterRole, NodeRole: nodeRole}, nil
}

// irsaTrustPolicy builds the OIDC-federated assume-role document binding a
// role to one Kubernetes service account.
func irsaTrustPolicy(oidcArn, oidcURL pulumi.StringOutput, namespace, serviceAccount string) pulumi.StringOutput {
	return pulumi.All(oidcArn, oidcURL).ApplyT(func(args []interface{}) (string, error) {
		arn := args[0].(string)
		host := strings.TrimPrefix(args[1].(string), "https://")

		doc := map[string]interface{}{
			"Version": "2012-10-17",
			"Statement": []map[string]interface{}{
				{
					"Effect": "Allow",
					"Principal": map[string]string{
						"Federated": arn,
					},
					"Action": "sts:AssumeRoleWithWebIdentity",
					"Condition": map[string]map[string]string{
						"StringEquals": {
							host + ":sub": fmt.Sprintf("system:serviceaccount:%s:%s", namespace, serviceAccount),
							host + ":aud": "sts.amazonaws.com",
						},
					},
				},
			},
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}).(pulumi.StringOutput)
}

// irsaOutputs carries the workload roles bound through the OIDC provider.
type irsaOutputs struct {
	ESOReaderRole *iam.Role
	LiteLLMRole   *iam.Role
}

// provisionIRSA creates the External Secrets reader role and the LiteLLM
// runtime role, both assumable only by their service accounts.
func provisionIRSA(ctx *pulumi.Context, naming *resourceNaming, oidc *iam.OpenIdConnectProvider, region string) (*irsaOutputs, error) {
	esoRole, err := iam.NewRole(ctx, naming.name("eso-reader-role"), &iam.RoleArgs{
		AssumeRolePolicy: irsaTrustPolicy(oidc.Arn, oidc.Url, "external-secrets", "external-secrets-sa"),
		Tags:             pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	// Read access to the stack's secrets only, nothing account-wide.
	_, err = iam.NewRolePolicy(ctx, naming.name("eso-reader-policy"), &iam.RolePolicyArgs{
		Role: esoRole.Name,
		Policy: pulumi.Sprintf(`{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Effect": "Allow",
					"Action": [
						"secretsmanager:GetSecretValue",
						"secretsmanager:DescribeSecret"
					],
					"Resource": [
						"arn:aws:secretsmanager:%s:*:secret:litellm/*",
						"arn:aws:secretsmanager:%s:*:secret:openwebui/*"
					]
				}
			]
		}`, region, region),
	})
	if err != nil {
		return nil, err
	}

	litellmRole, err := iam.NewRole(ctx, naming.name("litellm-role"), &iam.RoleArgs{
		AssumeRolePolicy: irsaTrustPolicy(oidc.Arn, oidc.Url, "litellm", "litellm"),
		Tags:             pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	_, err = iam.NewRolePolicy(ctx, naming.name("litellm-policy"), &iam.RolePolicyArgs{
		Role: litellmRole.Name,
		Policy: pulumi.Sprintf(`{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Effect": "Allow",
					"Action": [
						"bedrock:InvokeModel",
						"bedrock:InvokeModelWithResponseStream"
					],
					"Resource": "*"
				},
				{
					"Effect": "Allow",
					"Action": "secretsmanager:GetSecretValue",
					"Resource": "arn:aws:secretsmanager:%s:*:secret:litellm/*"
				}
			]
		}`, region),
	})
	if err != nil {
		return nil, err
	}

	return &irsaOutputs{ESOReaderRole: esoRole, LiteLLMRole: litellmRole}, nil
}
