package awsx

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSecretsAPI is an in-memory Secrets Manager.
type fakeSecretsAPI struct {
	values map[string]string
	puts   int
}

func newFakeSecretsAPI(values map[string]string) *fakeSecretsAPI {
	if values == nil {
		values = make(map[string]string)
	}
	return &fakeSecretsAPI{values: values}
}

func (f *fakeSecretsAPI) CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.values[aws.ToString(in.Name)] = aws.ToString(in.SecretString)
	return &secretsmanager.CreateSecretOutput{Name: in.Name}, nil
}

func (f *fakeSecretsAPI) DescribeSecret(ctx context.Context, in *secretsmanager.DescribeSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	if _, ok := f.values[aws.ToString(in.SecretId)]; !ok {
		return nil, &smtypes.ResourceNotFoundException{}
	}
	return &secretsmanager.DescribeSecretOutput{Name: in.SecretId}, nil
}

func (f *fakeSecretsAPI) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func (f *fakeSecretsAPI) PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.values[aws.ToString(in.SecretId)] = aws.ToString(in.SecretString)
	f.puts++
	return &secretsmanager.PutSecretValueOutput{}, nil
}

// fakeConfirmer answers destructive prompts with a fixed decision.
type fakeConfirmer struct {
	answer bool
	asked  []string
}

func (f *fakeConfirmer) ConfirmDestructive(action string) (bool, error) {
	f.asked = append(f.asked, action)
	return f.answer, nil
}

func TestEnsureCreatesMissingSecret(t *testing.T) {
	api := newFakeSecretsAPI(nil)
	store := NewSecretStore(api, nil)

	created, err := store.Ensure(context.Background(), "litellm/master-key")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(api.values["litellm/master-key"], "sk-"))
}

func TestEnsureIsIdempotent(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/salt-key": "original"})
	store := NewSecretStore(api, nil)

	created, err := store.Ensure(context.Background(), "litellm/salt-key")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "original", api.values["litellm/salt-key"])
}

func TestEnsureDatabaseURLPlaceholder(t *testing.T) {
	api := newFakeSecretsAPI(nil)
	store := NewSecretStore(api, nil)

	_, err := store.Ensure(context.Background(), "openwebui/database-url")
	require.NoError(t, err)
	assert.Contains(t, api.values["openwebui/database-url"], "postgresql://")
}

func TestRotateSaltKeyBlockedUnconditionally(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/salt-key": "original"})
	confirmer := &fakeConfirmer{answer: true}
	store := NewSecretStore(api, confirmer)

	err := store.Rotate(context.Background(), "litellm/salt-key", "")
	require.ErrorIs(t, err, ErrSaltKeyImmutable)
	assert.Empty(t, confirmer.asked, "salt key rotation must not even prompt")
	assert.Equal(t, "original", api.values["litellm/salt-key"])
}

func TestRotateMasterKeyNeedsConfirmation(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/master-key": "sk-old"})
	confirmer := &fakeConfirmer{answer: false}
	store := NewSecretStore(api, confirmer)

	err := store.Rotate(context.Background(), "litellm/master-key", "")
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, "sk-old", api.values["litellm/master-key"])
	assert.Len(t, confirmer.asked, 1)
}

func TestRotateMasterKeyConfirmed(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/master-key": "sk-old"})
	store := NewSecretStore(api, &fakeConfirmer{answer: true})

	require.NoError(t, store.Rotate(context.Background(), "litellm/master-key", ""))
	assert.NotEqual(t, "sk-old", api.values["litellm/master-key"])
	assert.True(t, strings.HasPrefix(api.values["litellm/master-key"], "sk-"))
}

func TestRotateDatabaseURLConfirmedWithValue(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/database-url": "postgresql://old"})
	store := NewSecretStore(api, &fakeConfirmer{answer: true})

	require.NoError(t, store.Rotate(context.Background(), "litellm/database-url", "postgresql://new"))
	assert.Equal(t, "postgresql://new", api.values["litellm/database-url"])
}

func TestRotateUnguardedSecret(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/redis-password": "old"})
	confirmer := &fakeConfirmer{answer: false}
	store := NewSecretStore(api, confirmer)

	require.NoError(t, store.Rotate(context.Background(), "litellm/redis-password", ""))
	assert.NotEqual(t, "old", api.values["litellm/redis-password"])
	assert.Empty(t, confirmer.asked)
}

func TestRotateMissingSecret(t *testing.T) {
	store := NewSecretStore(newFakeSecretsAPI(nil), &fakeConfirmer{answer: true})
	err := store.Rotate(context.Background(), "litellm/redis-password", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValue(t *testing.T) {
	api := newFakeSecretsAPI(map[string]string{"litellm/redis-password": "hunter2"})
	store := NewSecretStore(api, nil)

	v, err := store.Value(context.Background(), "litellm/redis-password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}
