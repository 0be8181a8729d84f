package awsx

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/sirupsen/logrus"
)

// amiParameter is the SSM public parameter resolving to the latest
// Amazon Linux 2023 AMI for the region.
const amiParameter = "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64"

// EC2API is the EC2 surface used for bastion lifecycle management.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// EKSAPI resolves cluster networking for bastion placement.
type EKSAPI interface {
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// SSMAPI covers AMI resolution and managed-instance checks.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	DescribeInstanceInformation(ctx context.Context, params *ssm.DescribeInstanceInformationInput, optFns ...func(*ssm.Options)) (*ssm.DescribeInstanceInformationOutput, error)
}

// BastionInstance is the subset of instance state the lifecycle commands
// care about.
type BastionInstance struct {
	ID           string
	State        string
	InstanceType string
	PrivateIP    string
	LaunchTime   time.Time
	SSMManaged   bool
}

// Running reports whether the instance is usable as-is.
func (b BastionInstance) Running() bool {
	return b.State == string(ec2types.InstanceStateNameRunning)
}

// BastionManager provisions and tears down the SSM-reachable jump host.
type BastionManager struct {
	ec2api      EC2API
	eksapi      EKSAPI
	ssmapi      SSMAPI
	name        string
	clusterName string
}

// NewBastionManager creates a manager for the named bastion next to the
// named EKS cluster.
func NewBastionManager(ec2api EC2API, eksapi EKSAPI, ssmapi SSMAPI, name, clusterName string) *BastionManager {
	return &BastionManager{
		ec2api:      ec2api,
		eksapi:      eksapi,
		ssmapi:      ssmapi,
		name:        name,
		clusterName: clusterName,
	}
}

// Find looks up the bastion by its Name tag, ignoring terminated instances.
func (m *BastionManager) Find(ctx context.Context) (BastionInstance, bool, error) {
	out, err := m.ec2api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{m.name}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return BastionInstance{}, false, fmt.Errorf("failed to look up bastion %s: %w", m.name, err)
	}

	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			b := BastionInstance{
				ID:           aws.ToString(inst.InstanceId),
				State:        string(inst.State.Name),
				InstanceType: string(inst.InstanceType),
				PrivateIP:    aws.ToString(inst.PrivateIpAddress),
			}
			if inst.LaunchTime != nil {
				b.LaunchTime = *inst.LaunchTime
			}
			b.SSMManaged = m.isSSMManaged(ctx, b.ID)
			return b, true, nil
		}
	}

	return BastionInstance{}, false, nil
}

// Launch starts a new bastion instance in one of the cluster's private
// subnets, attached to the cluster security group and the given SSM
// instance profile.
func (m *BastionManager) Launch(ctx context.Context, instanceType, instanceProfile string) (string, error) {
	cluster, err := m.eksapi.DescribeCluster(ctx, &eks.DescribeClusterInput{
		Name: aws.String(m.clusterName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe cluster %s: %w", m.clusterName, err)
	}

	vpcConfig := cluster.Cluster.ResourcesVpcConfig
	if vpcConfig == nil || len(vpcConfig.SubnetIds) == 0 {
		return "", fmt.Errorf("cluster %s has no subnets", m.clusterName)
	}
	subnetID := vpcConfig.SubnetIds[0]
	securityGroup := aws.ToString(vpcConfig.ClusterSecurityGroupId)

	ami, err := m.ssmapi.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(amiParameter),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve bastion AMI: %w", err)
	}

	out, err := m.ec2api.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      ami.Parameter.Value,
		InstanceType: ec2types.InstanceType(instanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		SubnetId:     aws.String(subnetID),
		SecurityGroupIds: []string{
			securityGroup,
		},
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(instanceProfile),
		},
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String(m.name)},
					{Key: aws.String("Cluster"), Value: aws.String(m.clusterName)},
					{Key: aws.String("ManagedBy"), Value: aws.String("llmstack")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to launch bastion: %w", err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("no instance returned for bastion launch")
	}

	id := aws.ToString(out.Instances[0].InstanceId)
	logrus.Infof("Launched bastion %s (%s)", m.name, id)
	return id, nil
}

// WaitManaged polls until the instance registers with SSM or the timeout
// elapses. A bastion you cannot session into is useless.
func (m *BastionManager) WaitManaged(ctx context.Context, instanceID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if m.isSSMManaged(ctx, instanceID) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("bastion %s did not register with SSM within %s", instanceID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
}

// Terminate shuts the bastion down.
func (m *BastionManager) Terminate(ctx context.Context, instanceID string) error {
	_, err := m.ec2api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate bastion %s: %w", instanceID, err)
	}
	logrus.Infof("Terminated bastion %s", instanceID)
	return nil
}

// Describe writes a human-readable summary of the instance, used by the
// [V]iew branch of the interactive prompt.
func (m *BastionManager) Describe(w io.Writer, b BastionInstance) {
	fmt.Fprintf(w, "  instance:     %s\n", b.ID)
	fmt.Fprintf(w, "  state:        %s\n", b.State)
	fmt.Fprintf(w, "  type:         %s\n", b.InstanceType)
	fmt.Fprintf(w, "  private ip:   %s\n", b.PrivateIP)
	fmt.Fprintf(w, "  launched:     %s\n", b.LaunchTime.Format(time.RFC3339))
	fmt.Fprintf(w, "  ssm managed:  %t\n", b.SSMManaged)
}

func (m *BastionManager) isSSMManaged(ctx context.Context, instanceID string) bool {
	out, err := m.ssmapi.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []ssmtypes.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		logrus.Debugf("SSM lookup for %s failed: %v", instanceID, err)
		return false
	}
	return len(out.InstanceInformationList) > 0
}
