package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/deploy"
	"github.com/navillasa/litellm-eks-stack/internal/helmx"
	"github.com/navillasa/litellm-eks-stack/internal/kube"
	"github.com/navillasa/litellm-eks-stack/internal/prompt"
	"github.com/navillasa/litellm-eks-stack/internal/steps"
	"github.com/spf13/cobra"
)

func newDeployCmd() *cobra.Command {
	var (
		configPath string
		kubeconfig string
		assumeYes  bool
		planOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "deploy [all | step ...]",
		Short: "Run deployment steps in dependency order",
		Long: `Runs deployment steps against the target cluster and account. "all" runs
every step in topological order, stopping at the first failure; naming one
or more steps runs exactly those, without pulling in their dependencies.

Every step is idempotent, so re-running "deploy all" after a failure picks
up where the previous run left off.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if assumeYes {
				cfg.Bastion.NonInteractive = true
			}

			clients, err := awsx.NewClients(ctx, cfg.AWS.Region)
			if err != nil {
				return err
			}
			if err := resolveIdentity(ctx, cfg, clients); err != nil {
				return err
			}

			kubeClient, err := kube.NewClient(kubeconfig)
			if err != nil {
				return err
			}

			prompter := prompt.New(os.Stdin, os.Stdout, cfg.Bastion.NonInteractive, cfg.Bastion.AutoSkipHealthy)
			runner := helmx.ExecRunner{}

			deployer := deploy.New(cfg,
				awsx.NewSecretStore(clients.SecretsManager, prompter),
				awsx.NewIRSAManager(clients.IAM, cfg.AWS.AccountID, cfg.AWS.OIDCProvider),
				kubeClient,
				helmx.NewHelm(runner),
				helmx.NewKubectl(runner),
			)

			engine, err := deployer.Engine()
			if err != nil {
				return err
			}

			if planOnly {
				plan, err := engine.Plan()
				if err != nil {
					return err
				}
				for i, name := range plan {
					fmt.Printf("%2d. %s\n", i+1, name)
				}
				return nil
			}

			var results []steps.Result
			var runErr error

			if len(args) == 1 && args[0] == "all" {
				results, runErr = engine.RunAll(ctx)
			} else {
				for _, name := range args {
					result, err := engine.RunOne(ctx, name)
					if result.Step != "" {
						results = append(results, result)
					}
					if err != nil {
						runErr = err
						break
					}
				}
			}

			printResults(results)
			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default config.yaml if present)")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to the kubeconfig (default KUBECONFIG or ~/.kube/config)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Non-interactive mode: never prompt")
	cmd.Flags().BoolVar(&planOnly, "plan", false, "Print the execution order without running anything")

	return cmd
}

func printResults(results []steps.Result) {
	if len(results) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nSTEP\tOUTCOME\tDURATION\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Step, r.Outcome, r.Duration.Round(10*time.Millisecond), r.Reason)
	}
	w.Flush()
}
