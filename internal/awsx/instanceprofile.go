package awsx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/sirupsen/logrus"
)

// ssmCorePolicyARN lets an instance register with Systems Manager, which is
// all the bastion needs for session access.
const ssmCorePolicyARN = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

// InstanceProfileAPI is the IAM surface used for the bastion's instance
// profile lifecycle.
type InstanceProfileAPI interface {
	GetInstanceProfile(ctx context.Context, params *iam.GetInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.GetInstanceProfileOutput, error)
	CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error)
	AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error)
	RemoveRoleFromInstanceProfile(ctx context.Context, params *iam.RemoveRoleFromInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error)
	DeleteInstanceProfile(ctx context.Context, params *iam.DeleteInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

// ProfileManager maintains the bastion's SSM instance profile. The role and
// the profile share the same name.
type ProfileManager struct {
	api InstanceProfileAPI
}

// NewProfileManager creates a manager over the given IAM API.
func NewProfileManager(api InstanceProfileAPI) *ProfileManager {
	return &ProfileManager{api: api}
}

func ec2TrustPolicy() (string, error) {
	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Principal": map[string]string{
					"Service": "ec2.amazonaws.com",
				},
				"Action": "sts:AssumeRole",
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to build EC2 trust policy: %w", err)
	}
	return string(data), nil
}

func notFound(err error) bool {
	var nf *iamtypes.NoSuchEntityException
	return errors.As(err, &nf)
}

// Ensure creates the role and instance profile if missing and attaches the
// SSM core policy. Returns true when anything was created.
func (m *ProfileManager) Ensure(ctx context.Context, name string) (bool, error) {
	created := false

	_, err := m.api.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if !notFound(err) {
			return false, fmt.Errorf("failed to look up role %s: %w", name, err)
		}

		trust, err := ec2TrustPolicy()
		if err != nil {
			return false, err
		}
		_, err = m.api.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(name),
			AssumeRolePolicyDocument: aws.String(trust),
			Description:              aws.String("Bastion SSM access, managed by llmstack"),
		})
		if err != nil {
			return false, fmt.Errorf("failed to create role %s: %w", name, err)
		}
		created = true
		logrus.Infof("Created bastion role %s", name)
	}

	// AttachRolePolicy is idempotent for an already-attached managed policy.
	_, err = m.api.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(name),
		PolicyArn: aws.String(ssmCorePolicyARN),
	})
	if err != nil {
		return false, fmt.Errorf("failed to attach SSM policy to %s: %w", name, err)
	}

	_, err = m.api.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{InstanceProfileName: aws.String(name)})
	if err != nil {
		if !notFound(err) {
			return false, fmt.Errorf("failed to look up instance profile %s: %w", name, err)
		}

		_, err = m.api.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
			InstanceProfileName: aws.String(name),
		})
		if err != nil {
			return false, fmt.Errorf("failed to create instance profile %s: %w", name, err)
		}
		_, err = m.api.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
			InstanceProfileName: aws.String(name),
			RoleName:            aws.String(name),
		})
		if err != nil {
			return false, fmt.Errorf("failed to add role to instance profile %s: %w", name, err)
		}
		created = true
		logrus.Infof("Created bastion instance profile %s", name)
	}

	return created, nil
}

// Delete removes the instance profile, its role, and the SSM policy
// attachment. Already-deleted pieces are ignored so the cleanup can be
// re-run.
func (m *ProfileManager) Delete(ctx context.Context, name string) error {
	_, err := m.api.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
		InstanceProfileName: aws.String(name),
		RoleName:            aws.String(name),
	})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to detach role from instance profile %s: %w", name, err)
	}

	_, err = m.api.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to delete instance profile %s: %w", name, err)
	}

	_, err = m.api.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(name),
		PolicyArn: aws.String(ssmCorePolicyARN),
	})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to detach SSM policy from %s: %w", name, err)
	}

	_, err = m.api.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	if err != nil && !notFound(err) {
		return fmt.Errorf("failed to delete role %s: %w", name, err)
	}

	logrus.Infof("Removed bastion instance profile %s", name)
	return nil
}
