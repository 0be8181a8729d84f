package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/navillasa/litellm-eks-stack/internal/awsx"
	"github.com/navillasa/litellm-eks-stack/internal/config"
	"github.com/navillasa/litellm-eks-stack/internal/prompt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newBastionCmd() *cobra.Command {
	var (
		configPath string
		assumeYes  bool
	)

	cmd := &cobra.Command{
		Use:   "bastion",
		Short: "Manage the SSM jump host next to the cluster",
		Long: `The bastion is a small EC2 instance inside the cluster VPC, reachable
through SSM Session Manager only. It carries no SSH keys and no public IP.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Non-interactive mode: never prompt")

	cmd.AddCommand(
		newBastionCreateCmd(&configPath, &assumeYes),
		newBastionConnectCmd(&configPath),
		newBastionStatusCmd(&configPath),
		newBastionCleanupCmd(&configPath, &assumeYes),
		newBastionDeleteCmd(&configPath, &assumeYes),
	)

	return cmd
}

// bastionManager is the lifecycle surface the commands use.
type bastionManager interface {
	Find(ctx context.Context) (awsx.BastionInstance, bool, error)
	Launch(ctx context.Context, instanceType, instanceProfile string) (string, error)
	WaitManaged(ctx context.Context, instanceID string, timeout time.Duration) error
	Terminate(ctx context.Context, instanceID string) error
	Describe(w io.Writer, b awsx.BastionInstance)
}

// profileManager maintains the bastion's IAM pieces.
type profileManager interface {
	Ensure(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// confirmPrompter asks the operator about existing and destructive actions.
type confirmPrompter interface {
	AskExisting(resource string, healthy bool, details func(io.Writer)) (prompt.Decision, error)
	ConfirmDestructive(action string) (bool, error)
}

type bastionDeps struct {
	cfg      *config.Config
	manager  bastionManager
	profiles profileManager
	prompter confirmPrompter
	out      io.Writer
}

func buildBastionDeps(ctx context.Context, configPath string, assumeYes bool) (*bastionDeps, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if assumeYes {
		cfg.Bastion.NonInteractive = true
	}

	clients, err := awsx.NewClients(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}

	return &bastionDeps{
		cfg:      cfg,
		manager:  awsx.NewBastionManager(clients.EC2, clients.EKS, clients.SSM, cfg.Bastion.Name, cfg.AWS.ClusterName),
		profiles: awsx.NewProfileManager(clients.IAM),
		prompter: prompt.New(os.Stdin, os.Stdout, cfg.Bastion.NonInteractive, cfg.Bastion.AutoSkipHealthy),
		out:      os.Stdout,
	}, nil
}

func (d *bastionDeps) profileName() string {
	return d.cfg.Bastion.Name + "-ssm"
}

// createBastion provisions the jump host. An existing instance is reused
// unless the operator both chooses Proceed and confirms the termination;
// the second confirmation is what makes the replacement deliberate, and
// non-interactive runs can never replace an instance.
func createBastion(ctx context.Context, d *bastionDeps) error {
	existing, found, err := d.manager.Find(ctx)
	if err != nil {
		return err
	}

	if found {
		healthy := existing.Running() && existing.SSMManaged
		decision, err := d.prompter.AskExisting("bastion "+d.cfg.Bastion.Name, healthy, func(w io.Writer) {
			d.manager.Describe(w, existing)
		})
		if err != nil {
			return err
		}
		switch decision {
		case prompt.Skip:
			fmt.Fprintf(d.out, "Reusing bastion %s (%s).\n", d.cfg.Bastion.Name, existing.ID)
			return nil
		case prompt.Quit:
			return nil
		}

		ok, err := d.prompter.ConfirmDestructive(fmt.Sprintf("Terminate and recreate bastion %s (%s)", d.cfg.Bastion.Name, existing.ID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(d.out, "Keeping bastion %s (%s).\n", d.cfg.Bastion.Name, existing.ID)
			return nil
		}

		logrus.Infof("Replacing bastion %s", existing.ID)
		if err := d.manager.Terminate(ctx, existing.ID); err != nil {
			return err
		}
	}

	if _, err := d.profiles.Ensure(ctx, d.profileName()); err != nil {
		return err
	}

	id, err := d.manager.Launch(ctx, d.cfg.Bastion.InstanceType, d.profileName())
	if err != nil {
		return err
	}

	logrus.Infof("Waiting for %s to register with SSM", id)
	if err := d.manager.WaitManaged(ctx, id, d.cfg.Timeouts.BastionWait); err != nil {
		return err
	}

	fmt.Fprintf(d.out, "Bastion %s is ready. Connect with: llmstack bastion connect\n", id)
	return nil
}

// terminateBastion shuts the instance down after the double confirmation,
// optionally removing the IAM role and instance profile with it.
func terminateBastion(ctx context.Context, d *bastionDeps, removeIAM bool) error {
	existing, found, err := d.manager.Find(ctx)
	if err != nil {
		return err
	}

	if found {
		ok, err := d.prompter.ConfirmDestructive(fmt.Sprintf("Terminate bastion %s (%s)", d.cfg.Bastion.Name, existing.ID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(d.out, "Aborted.")
			return nil
		}
		if err := d.manager.Terminate(ctx, existing.ID); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(d.out, "Bastion %s does not exist.\n", d.cfg.Bastion.Name)
	}

	if removeIAM {
		if err := d.profiles.Delete(ctx, d.profileName()); err != nil {
			return err
		}
	}

	return nil
}

func newBastionCreateCmd(configPath *string, assumeYes *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Provision the bastion, reusing a healthy existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			d, err := buildBastionDeps(ctx, *configPath, *assumeYes)
			if err != nil {
				return err
			}
			return createBastion(ctx, d)
		},
	}
}

func newBastionConnectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open an SSM session to the bastion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			d, err := buildBastionDeps(ctx, *configPath, false)
			if err != nil {
				return err
			}

			existing, found, err := d.manager.Find(ctx)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("bastion %s does not exist; run 'llmstack bastion create' first", d.cfg.Bastion.Name)
			}
			if !existing.Running() {
				return fmt.Errorf("bastion %s is %s, not running", existing.ID, existing.State)
			}

			// Session Manager needs an interactive terminal; hand the session
			// to the aws CLI with our stdio attached.
			session := exec.CommandContext(ctx, "aws", "ssm", "start-session",
				"--target", existing.ID,
				"--region", d.cfg.AWS.Region,
			)
			session.Stdin = os.Stdin
			session.Stdout = os.Stdout
			session.Stderr = os.Stderr
			return session.Run()
		},
	}
}

func newBastionStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the bastion's instance details",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			d, err := buildBastionDeps(ctx, *configPath, false)
			if err != nil {
				return err
			}

			existing, found, err := d.manager.Find(ctx)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(d.out, "Bastion %s does not exist.\n", d.cfg.Bastion.Name)
				return nil
			}

			fmt.Fprintf(d.out, "Bastion %s:\n", d.cfg.Bastion.Name)
			d.manager.Describe(d.out, existing)
			return nil
		},
	}
}

func newBastionCleanupCmd(configPath *string, assumeYes *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Terminate the bastion instance, keeping its IAM resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			d, err := buildBastionDeps(ctx, *configPath, *assumeYes)
			if err != nil {
				return err
			}
			return terminateBastion(ctx, d, false)
		},
	}
}

func newBastionDeleteCmd(configPath *string, assumeYes *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Terminate the bastion and remove its IAM role and profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			d, err := buildBastionDeps(ctx, *configPath, *assumeYes)
			if err != nil {
				return err
			}
			return terminateBastion(ctx, d, true)
		},
	}
}
