package awsx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2API struct {
	instances  []ec2types.Instance
	launched   []*ec2.RunInstancesInput
	terminated []string
}

func (f *fakeEC2API) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: f.instances}},
	}, nil
}

func (f *fakeEC2API) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.launched = append(f.launched, in)
	return &ec2.RunInstancesOutput{
		Instances: []ec2types.Instance{{InstanceId: aws.String("i-0new")}},
	}, nil
}

func (f *fakeEC2API) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

type fakeEKSAPI struct{}

func (fakeEKSAPI) DescribeCluster(ctx context.Context, in *eks.DescribeClusterInput, _ ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	return &eks.DescribeClusterOutput{
		Cluster: &ekstypes.Cluster{
			Name: in.Name,
			ResourcesVpcConfig: &ekstypes.VpcConfigResponse{
				SubnetIds:              []string{"subnet-0a", "subnet-0b"},
				ClusterSecurityGroupId: aws.String("sg-0cluster"),
			},
		},
	}, nil
}

type fakeSSMAPI struct {
	managed map[string]bool
}

func (f *fakeSSMAPI) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String("ami-0abc123")},
	}, nil
}

func (f *fakeSSMAPI) DescribeInstanceInformation(ctx context.Context, in *ssm.DescribeInstanceInformationInput, _ ...func(*ssm.Options)) (*ssm.DescribeInstanceInformationOutput, error) {
	out := &ssm.DescribeInstanceInformationOutput{}
	for _, filter := range in.Filters {
		for _, id := range filter.Values {
			if f.managed[id] {
				out.InstanceInformationList = append(out.InstanceInformationList, ssmtypes.InstanceInformation{
					InstanceId: aws.String(id),
				})
			}
		}
	}
	return out, nil
}

func newTestBastionManager(ec2api *fakeEC2API, ssmapi *fakeSSMAPI) *BastionManager {
	if ssmapi == nil {
		ssmapi = &fakeSSMAPI{managed: map[string]bool{}}
	}
	return NewBastionManager(ec2api, fakeEKSAPI{}, ssmapi, "litellm-bastion", "litellm-cluster")
}

func TestFindNoBastion(t *testing.T) {
	m := newTestBastionManager(&fakeEC2API{}, nil)

	_, found, err := m.Find(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindRunningBastion(t *testing.T) {
	launch := time.Now().Add(-time.Hour)
	ec2api := &fakeEC2API{instances: []ec2types.Instance{{
		InstanceId:       aws.String("i-0abc"),
		State:            &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		InstanceType:     ec2types.InstanceTypeT3Micro,
		PrivateIpAddress: aws.String("10.0.1.20"),
		LaunchTime:       &launch,
	}}}
	m := newTestBastionManager(ec2api, &fakeSSMAPI{managed: map[string]bool{"i-0abc": true}})

	b, found, err := m.Find(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, b.Running())
	assert.True(t, b.SSMManaged)
	assert.Equal(t, "i-0abc", b.ID)
}

func TestLaunchPlacesBastionInClusterNetwork(t *testing.T) {
	ec2api := &fakeEC2API{}
	m := newTestBastionManager(ec2api, nil)

	id, err := m.Launch(context.Background(), "t3.micro", "litellm-bastion-profile")
	require.NoError(t, err)
	assert.Equal(t, "i-0new", id)

	require.Len(t, ec2api.launched, 1)
	in := ec2api.launched[0]
	assert.Equal(t, "subnet-0a", aws.ToString(in.SubnetId))
	assert.Equal(t, []string{"sg-0cluster"}, in.SecurityGroupIds)
	assert.Equal(t, "ami-0abc123", aws.ToString(in.ImageId))
	assert.Equal(t, "litellm-bastion-profile", aws.ToString(in.IamInstanceProfile.Name))
}

func TestWaitManagedTimesOut(t *testing.T) {
	m := newTestBastionManager(&fakeEC2API{}, &fakeSSMAPI{managed: map[string]bool{}})

	err := m.WaitManaged(context.Background(), "i-0abc", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not register with SSM")
}

func TestWaitManagedImmediate(t *testing.T) {
	m := newTestBastionManager(&fakeEC2API{}, &fakeSSMAPI{managed: map[string]bool{"i-0abc": true}})
	require.NoError(t, m.WaitManaged(context.Background(), "i-0abc", time.Minute))
}

func TestTerminate(t *testing.T) {
	ec2api := &fakeEC2API{}
	m := newTestBastionManager(ec2api, nil)

	require.NoError(t, m.Terminate(context.Background(), "i-0abc"))
	assert.Equal(t, []string{"i-0abc"}, ec2api.terminated)
}

func TestDescribeOutput(t *testing.T) {
	m := newTestBastionManager(&fakeEC2API{}, nil)
	var buf bytes.Buffer
	m.Describe(&buf, BastionInstance{ID: "i-0abc", State: "running", InstanceType: "t3.micro", PrivateIP: "10.0.1.20"})
	assert.Contains(t, buf.String(), "i-0abc")
	assert.Contains(t, buf.String(), "running")
}
