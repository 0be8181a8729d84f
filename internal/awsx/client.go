package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Clients bundles the AWS service clients the deployer needs.
type Clients struct {
	Region         string
	EC2            *ec2.Client
	EKS            *eks.Client
	IAM            *iam.Client
	SecretsManager *secretsmanager.Client
	SSM            *ssm.Client
	STS            *sts.Client
}

// NewClients loads the default AWS configuration for the region and builds
// service clients from it.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewClientsFromConfig(cfg), nil
}

// NewClientsFromConfig builds service clients from an already-resolved
// AWS configuration.
func NewClientsFromConfig(cfg aws.Config) *Clients {
	return &Clients{
		Region:         cfg.Region,
		EC2:            ec2.NewFromConfig(cfg),
		EKS:            eks.NewFromConfig(cfg),
		IAM:            iam.NewFromConfig(cfg),
		SecretsManager: secretsmanager.NewFromConfig(cfg),
		SSM:            ssm.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
	}
}
