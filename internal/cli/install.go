package cli

import (
	"fmt"

	"github.com/jmgilman/depsync/install"
	"github.com/spf13/cobra"
)

func (a *app) installCommand() *cobra.Command {
	var opts install.Options

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Restore node_modules from a backend or install and publish it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			backends, err := cfg.BuildBackends(a.registry)
			if err != nil {
				return err
			}
			return a.installer(cfg, backends).Install(ctx, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "replace an existing node_modules")
	cmd.Flags().BoolVar(&opts.RePull, "re-pull", false, "fail instead of re-pulling when the bundle was published concurrently")
	return cmd
}

func (a *app) calcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "calc",
		Short: "Print the fingerprint of the current manifest and lockfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			hash, err := a.installer(cfg, nil).Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the depsync version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "depsync %s\n", Version)
		},
	}
}
