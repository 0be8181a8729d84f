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

// IAMAPI is the IAM surface used for IRSA role management.
type IAMAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// IRSARole describes an IAM role bound to a Kubernetes service account via
// the cluster's OIDC provider.
type IRSARole struct {
	RoleName       string
	Namespace      string
	ServiceAccount string
	PolicyName     string
	PolicyDocument string
}

// IRSAManager creates and updates IRSA roles.
type IRSAManager struct {
	api          IAMAPI
	accountID    string
	oidcProvider string // e.g. oidc.eks.us-east-1.amazonaws.com/id/ABC123
}

// NewIRSAManager creates a manager for the given account and OIDC provider
// host path (without the https:// scheme).
func NewIRSAManager(api IAMAPI, accountID, oidcProvider string) *IRSAManager {
	return &IRSAManager{api: api, accountID: accountID, oidcProvider: oidcProvider}
}

// trustPolicy builds the OIDC-federated assume-role document for a service
// account.
func (m *IRSAManager) trustPolicy(namespace, serviceAccount string) (string, error) {
	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Principal": map[string]string{
					"Federated": fmt.Sprintf("arn:aws:iam::%s:oidc-provider/%s", m.accountID, m.oidcProvider),
				},
				"Action": "sts:AssumeRoleWithWebIdentity",
				"Condition": map[string]map[string]string{
					"StringEquals": {
						m.oidcProvider + ":sub": fmt.Sprintf("system:serviceaccount:%s:%s", namespace, serviceAccount),
						m.oidcProvider + ":aud": "sts.amazonaws.com",
					},
				},
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to build trust policy: %w", err)
	}
	return string(data), nil
}

// Ensure creates the role if missing, refreshes its trust policy otherwise,
// and attaches the inline policy. Returns true when the role was created.
func (m *IRSAManager) Ensure(ctx context.Context, role IRSARole) (bool, error) {
	if m.oidcProvider == "" {
		return false, errors.New("OIDC provider is not configured; set OIDC_PROVIDER or deploy the cluster first")
	}

	trust, err := m.trustPolicy(role.Namespace, role.ServiceAccount)
	if err != nil {
		return false, err
	}

	created := false
	_, err = m.api.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(role.RoleName)})
	if err != nil {
		var nf *iamtypes.NoSuchEntityException
		if !errors.As(err, &nf) {
			return false, fmt.Errorf("failed to look up role %s: %w", role.RoleName, err)
		}

		_, err = m.api.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(role.RoleName),
			AssumeRolePolicyDocument: aws.String(trust),
			Description:              aws.String(fmt.Sprintf("IRSA role for %s/%s", role.Namespace, role.ServiceAccount)),
		})
		if err != nil {
			return false, fmt.Errorf("failed to create role %s: %w", role.RoleName, err)
		}
		created = true
		logrus.Infof("Created IRSA role %s for %s/%s", role.RoleName, role.Namespace, role.ServiceAccount)
	} else {
		_, err = m.api.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(role.RoleName),
			PolicyDocument: aws.String(trust),
		})
		if err != nil {
			return false, fmt.Errorf("failed to refresh trust policy on %s: %w", role.RoleName, err)
		}
	}

	_, err = m.api.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(role.RoleName),
		PolicyName:     aws.String(role.PolicyName),
		PolicyDocument: aws.String(role.PolicyDocument),
	})
	if err != nil {
		return false, fmt.Errorf("failed to attach policy %s to %s: %w", role.PolicyName, role.RoleName, err)
	}

	return created, nil
}

// SecretsReaderPolicy returns an inline policy granting read access to the
// given Secrets Manager entries. Used by the ESO service account role.
func SecretsReaderPolicy(region, accountID string, secretNames []string) (string, error) {
	resources := make([]string, 0, len(secretNames))
	for _, name := range secretNames {
		resources = append(resources, fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s-??????", region, accountID, name))
	}

	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Action": []string{
					"secretsmanager:GetSecretValue",
					"secretsmanager:DescribeSecret",
				},
				"Resource": resources,
			},
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to build secrets policy: %w", err)
	}
	return string(data), nil
}
