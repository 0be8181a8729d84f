package awsx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/sirupsen/logrus"
)

// ErrSaltKeyImmutable is returned when a rotation of litellm/salt-key is
// attempted. The salt key encrypts stored model credentials; regenerating
// it makes every existing row undecryptable.
var ErrSaltKeyImmutable = errors.New("litellm/salt-key must never be regenerated")

// ErrConfirmationRequired is returned when a guarded rotation was not
// confirmed by the operator.
var ErrConfirmationRequired = errors.New("rotation not confirmed")

// SecretsAPI is the Secrets Manager surface used by the store, narrowed so
// tests can substitute a fake.
type SecretsAPI interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// Confirmer asks the operator to approve a destructive change. It matches
// prompt.Prompter.ConfirmDestructive.
type Confirmer interface {
	ConfirmDestructive(action string) (bool, error)
}

// SecretStore manages the fixed set of AWS Secrets Manager entries that
// External Secrets Operator syncs into the cluster.
type SecretStore struct {
	api       SecretsAPI
	confirmer Confirmer
}

// NewSecretStore creates a store over the given API. confirmer may be nil,
// in which case guarded rotations always fail.
func NewSecretStore(api SecretsAPI, confirmer Confirmer) *SecretStore {
	return &SecretStore{api: api, confirmer: confirmer}
}

// guardedSecrets require explicit double confirmation before their value may
// change. A deployed proxy hands out keys derived from these; changing them
// invalidates every issued credential or points the proxy at another
// database.
var guardedSecrets = map[string]bool{
	"litellm/master-key":   true,
	"litellm/database-url": true,
}

// Exists reports whether the named secret is present.
func (s *SecretStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.api.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe secret %s: %w", name, err)
	}
	return true, nil
}

// Ensure creates the named secret with a generated value if it does not
// exist. Existing secrets are left untouched, whatever their value.
// Returns true when the secret was created.
func (s *SecretStore) Ensure(ctx context.Context, name string) (bool, error) {
	exists, err := s.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		logrus.Debugf("Secret %s already exists", name)
		return false, nil
	}

	value, err := generateSecretValue(name)
	if err != nil {
		return false, err
	}

	_, err = s.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
		Description:  aws.String("Managed by llmstack; synced to Kubernetes by External Secrets Operator"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create secret %s: %w", name, err)
	}

	logrus.Infof("Created secret %s", name)
	return true, nil
}

// Rotate replaces the value of an existing secret. litellm/salt-key is
// blocked unconditionally; the other guarded secrets need the operator's
// double confirmation. value may be empty for generated secrets.
func (s *SecretStore) Rotate(ctx context.Context, name, value string) error {
	if name == "litellm/salt-key" {
		return ErrSaltKeyImmutable
	}

	if guardedSecrets[name] {
		if s.confirmer == nil {
			return fmt.Errorf("rotating %s: %w", name, ErrConfirmationRequired)
		}
		ok, err := s.confirmer.ConfirmDestructive(fmt.Sprintf("Regenerate %s", name))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("rotating %s: %w", name, ErrConfirmationRequired)
		}
	}

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("secret %s does not exist; run the secrets step first", name)
	}

	if value == "" {
		value, err = generateSecretValue(name)
		if err != nil {
			return err
		}
	}

	_, err = s.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return fmt.Errorf("failed to rotate secret %s: %w", name, err)
	}

	logrus.Warnf("Rotated secret %s; dependent pods pick it up on the next ESO refresh", name)
	return nil
}

// Value returns the current secret string.
func (s *SecretStore) Value(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	return aws.ToString(out.SecretString), nil
}

// generateSecretValue produces an initial value appropriate for the secret
// name. Keys get random hex; URL-shaped secrets get a placeholder the
// operator must overwrite.
func generateSecretValue(name string) (string, error) {
	switch {
	case strings.HasSuffix(name, "database-url"):
		return "postgresql://CHANGE_ME", nil
	case strings.HasSuffix(name, "jwt-public-key-url"):
		return "https://CHANGE_ME/.well-known/jwks.json", nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret value: %w", err)
	}
	value := hex.EncodeToString(buf)

	if strings.HasSuffix(name, "master-key") {
		return "sk-" + value, nil
	}
	return value, nil
}
