package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	configpkg "github.com/minhyannv/anbud-assistant-go/pkg/config"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

// rootOptions carries the process seams so commands can run against a fake.
type rootOptions struct {
	in        io.Reader
	out       io.Writer
	errOut    io.Writer
	getenv    func(string) string
	loadEnv   bool
	newClient func(configpkg.Config) remote.Client
}

func defaultRootOptions() rootOptions {
	return rootOptions{
		in:        os.Stdin,
		out:       os.Stdout,
		errOut:    os.Stderr,
		getenv:    os.Getenv,
		loadEnv:   true,
		newClient: newOpenAIClient,
	}
}

func newRootCmd(opts rootOptions) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "anbud-assistant",
		Short:         "Interactive assistant for writing tenders",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	root.SetIn(opts.in)
	root.SetOut(opts.out)
	root.SetErr(opts.errOut)
	flags.register(root.PersistentFlags())

	// build resolves configuration and wires the app for one command.
	build := func(cmd *cobra.Command) (*app, error) {
		if opts.loadEnv {
			loadEnvFiles()
		}
		cfg, err := resolveConfig(cmd.Flags(), flags, opts.getenv)
		if err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg, opts.newClient(cfg), cmd.ErrOrStderr())
	}

	root.RunE = func(cmd *cobra.Command, _ []string) error {
		a, err := build(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return runMenu(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "matrix",
			Short: "Stream a competency matrix for the configured consultants",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				return a.generateMatrix(cmd.Context(), cmd.OutOrStdout())
			},
		},
		newAssistantsCmd(build),
	)
	return root
}

func newAssistantsCmd(build func(*cobra.Command) (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistants",
		Short: "Manage assistants on the account",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List assistants",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				list, err := a.session.ListAssistants(cmd.Context())
				if err != nil {
					return err
				}
				for _, asst := range list {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", asst.ID, asst.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every assistant",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := build(cmd)
				if err != nil {
					return err
				}
				defer a.Close()
				n, err := a.session.ClearAssistants(cmd.Context())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d assistant(s)\n", n)
				return err
			},
		},
	)
	return cmd
}
