package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/rds"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// databaseOutputs carries the RDS instance and its connection URL.
type databaseOutputs struct {
	Instance *rds.Instance
	// URL is the full postgres connection string, stored into Secrets
	// Manager for External Secrets to sync.
	URL pulumi.StringOutput
}

// provisionDatabase creates the Postgres instance on the private subnets,
// reachable only from the cluster security group.
func provisionDatabase(ctx *pulumi.Context, naming *resourceNaming, cfg infraConfig, network *networkOutputs, cluster *clusterOutputs) (*databaseOutputs, error) {
	password := config.New(ctx, "").RequireSecret("dbPassword")

	subnetGroup, err := rds.NewSubnetGroup(ctx, naming.name("db-subnets"), &rds.SubnetGroupArgs{
		SubnetIds: network.privateSubnetIDs(),
		Tags:      pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	dbSG, err := ec2.NewSecurityGroup(ctx, naming.name("db-sg"), &ec2.SecurityGroupArgs{
		VpcId:       network.VPC.ID(),
		Description: pulumi.String("Postgres access from the EKS cluster"),
		Ingress: ec2.SecurityGroupIngressArray{
			&ec2.SecurityGroupIngressArgs{
				Protocol: pulumi.String("tcp"),
				FromPort: pulumi.Int(5432),
				ToPort:   pulumi.Int(5432),
				SecurityGroups: pulumi.StringArray{
					cluster.Cluster.VpcConfig.ClusterSecurityGroupId().Elem(),
				},
			},
		},
		Egress: ec2.SecurityGroupEgressArray{
			&ec2.SecurityGroupEgressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	instance, err := rds.NewInstance(ctx, naming.name("db"), &rds.InstanceArgs{
		Engine:              pulumi.String("postgres"),
		EngineVersion:       pulumi.String("15.5"),
		InstanceClass:       pulumi.String(cfg.DBInstanceClass),
		AllocatedStorage:    pulumi.Int(20),
		StorageType:         pulumi.String("gp3"),
		StorageEncrypted:    pulumi.Bool(true),
		DbName:              pulumi.String(cfg.DBName),
		Username:            pulumi.String(cfg.DBUsername),
		Password:            password,
		DbSubnetGroupName:   subnetGroup.Name,
		VpcSecurityGroupIds: pulumi.StringArray{dbSG.ID()},
		MultiAz:             pulumi.Bool(false),
		SkipFinalSnapshot:   pulumi.Bool(true),
		Tags:                pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	url := pulumi.Sprintf("postgresql://%s:%s@%s/%s",
		cfg.DBUsername, password, instance.Endpoint, cfg.DBName)

	return &databaseOutputs{Instance: instance, URL: url}, nil
}
