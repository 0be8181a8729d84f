// Command llmstack deploys and operates the LiteLLM + OpenWebUI stack on
// AWS EKS.
//
// Usage:
//
//	llmstack validate                 Check prerequisites
//	llmstack deploy all               Run every deployment step in order
//	llmstack deploy litellm           Run a single step
//	llmstack secrets rotate <name>    Rotate a Secrets Manager entry
//	llmstack bastion create           Provision the SSM jump host
//	llmstack status serve             Serve stack health and metrics
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "llmstack",
		Short: "Deploy the LiteLLM + OpenWebUI stack on AWS EKS",
		Long: `llmstack stands up a LiteLLM proxy with an OpenWebUI frontend on an EKS
cluster, wired to Redis caching, Prometheus/Grafana/Jaeger observability,
External Secrets Operator, and OPA Gatekeeper.

Steps are idempotent: re-running against an already-deployed resource is a
no-op or a safe upgrade, so a failed run can be resumed by re-running.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newValidateCmd(),
		newDeployCmd(),
		newSecretsCmd(),
		newBastionCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("llmstack %s\n", getVersion())
		},
	}
}
