package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// provisionSecrets stores the database connection URLs in Secrets Manager,
// where External Secrets Operator picks them up. The key-type secrets
// (master key, salt key, redis password) are created by the deployer's
// secrets step instead: its create-if-missing semantics generate values,
// which would be defeated by empty shells pre-created here.
func provisionSecrets(ctx *pulumi.Context, naming *resourceNaming, database *databaseOutputs) error {
	urls := map[string]string{
		"litellm-database-url":   "litellm/database-url",
		"openwebui-database-url": "openwebui/database-url",
	}

	for resource, secretName := range urls {
		secret, err := secretsmanager.NewSecret(ctx, naming.name(resource), &secretsmanager.SecretArgs{
			Name:        pulumi.String(secretName),
			Description: pulumi.String("Postgres connection URL, synced to Kubernetes by External Secrets Operator"),
			Tags:        pulumi.ToStringMap(naming.tags()),
		})
		if err != nil {
			return err
		}

		_, err = secretsmanager.NewSecretVersion(ctx, naming.name(resource+"-value"), &secretsmanager.SecretVersionArgs{
			SecretId:     secret.ID(),
			SecretString: database.URL,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
