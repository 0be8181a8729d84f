package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecr"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// registryOutputs carries the image repositories.
type registryOutputs struct {
	LiteLLM   *ecr.Repository
	OpenWebUI *ecr.Repository
}

// provisionRegistry creates ECR repositories for locally built images with
// scan-on-push enabled.
func provisionRegistry(ctx *pulumi.Context, naming *resourceNaming) (*registryOutputs, error) {
	newRepo := func(resource, name string) (*ecr.Repository, error) {
		return ecr.NewRepository(ctx, naming.name(resource), &ecr.RepositoryArgs{
			Name:               pulumi.String(name),
			ImageTagMutability: pulumi.String("IMMUTABLE"),
			ImageScanningConfiguration: &ecr.RepositoryImageScanningConfigurationArgs{
				ScanOnPush: pulumi.Bool(true),
			},
			ForceDelete: pulumi.Bool(true),
			Tags:        pulumi.ToStringMap(naming.tags()),
		})
	}

	litellm, err := newRepo("litellm-repo", "litellm")
	if err != nil {
		return nil, err
	}
	openwebui, err := newRepo("openwebui-repo", "openwebui")
	if err != nil {
		return nil, err
	}

	return &registryOutputs{LiteLLM: litellm, OpenWebUI: openwebui}, nil
}
