package main

import (
	"fmt"
	"os"

	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/prompt"
	"github.com/spf13/cobra"
)

func newSecretsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the AWS Secrets Manager entries backing the stack",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")

	cmd.AddCommand(
		newSecretsListCmd(&configPath),
		newSecretsEnsureCmd(&configPath),
		newSecretsRotateCmd(&configPath),
	)

	return cmd
}

func buildSecretStore(configPath string) (*awsx.SecretStore, []string, error) {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	clients, err := awsx.NewClients(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, nil, err
	}

	prompter := prompt.New(os.Stdin, os.Stdout, cfg.Bastion.NonInteractive, cfg.Bastion.AutoSkipHealthy)
	return awsx.NewSecretStore(clients.SecretsManager, prompter), cfg.Secrets.Names, nil
}

func newSecretsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show which managed secrets exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			store, names, err := buildSecretStore(*configPath)
			if err != nil {
				return err
			}

			for _, name := range names {
				exists, err := store.Exists(ctx, name)
				if err != nil {
					return err
				}
				state := "missing"
				if exists {
					state = "present"
				}
				fmt.Printf("%-30s %s\n", name, state)
			}
			return nil
		},
	}
}

func newSecretsEnsureCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create any missing managed secrets with generated values",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			store, names, err := buildSecretStore(*configPath)
			if err != nil {
				return err
			}

			created := 0
			for _, name := range names {
				wasCreated, err := store.Ensure(ctx, name)
				if err != nil {
					return err
				}
				if wasCreated {
					created++
				}
			}
			fmt.Printf("Created %d of %d secrets; the rest already existed.\n", created, len(names))
			return nil
		},
	}
}

func newSecretsRotateCmd(configPath *string) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "rotate <name>",
		Short: "Replace the value of an existing secret",
		Long: `Rotates one managed secret. litellm/salt-key can never be rotated: it
encrypts stored credentials and regenerating it destroys them. Rotating
litellm/master-key or litellm/database-url invalidates live credentials,
so both require a double confirmation.

Without --value a fresh value is generated in the shape the secret expects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			store, _, err := buildSecretStore(*configPath)
			if err != nil {
				return err
			}

			if err := store.Rotate(ctx, args[0], value); err != nil {
				return err
			}
			fmt.Printf("Rotated %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Explicit new value (generated when omitted)")

	return cmd
}
