package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newConfigCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the CLI configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server: %s\n", state.client.URL)
			fmt.Fprintf(out, "config-dir: %s\n", state.configDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-server [url]",
		Short: "Save the notes server URL to config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil || u.Scheme == "" || u.Host == "" {
				return &cliError{msg: fmt.Sprintf("invalid server URL: %s", args[0]), err: err}
			}

			s, err := loadSettings(state.configDir)
			if err != nil {
				return fail("failed to load configuration", err)
			}
			s.Server = args[0]
			if err := saveSettings(state.configDir, s); err != nil {
				return fail("failed to save configuration", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server set to %s\n", s.Server)
			return nil
		},
	})
	return cmd
}
