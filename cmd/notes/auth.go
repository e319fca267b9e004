package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&f.password, "password", "", "Account password (prompted if omitted)")
}

func (f *credentialFlags) resolve(cmd *cobra.Command, state *cli) error {
	var err error
	if f.email == "" {
		if f.email, err = state.prompt(cmd.OutOrStdout(), "Email: "); err != nil {
			return fail("failed to read email", err)
		}
	}
	if f.password == "" {
		if f.password, err = state.promptSecret(cmd, "Password: "); err != nil {
			return fail("failed to read password", err)
		}
	}
	return nil
}

func newSignUpCmd(state *cli) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd, state); err != nil {
				return err
			}
			principal, err := state.client.SignUp(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return fail("failed to sign up", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up and signed in as %s\n", principal.Email)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignInCmd(state *cli) *cobra.Command {
	creds := &credentialFlags{}
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in to the notes server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.resolve(cmd, state); err != nil {
				return err
			}
			principal, err := state.client.SignIn(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return fail("failed to sign in", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", principal.Email)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func newSignOutCmd(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.client.SignOut(cmd.Context()); err != nil {
				return fail("signed out locally, but the server could not revoke the session", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newStatusCmd(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !state.client.HasSession() {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			principal, err := state.client.CurrentUser(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, "Not signed in (stored session is no longer valid)")
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s (%s)\n", principal.Email, state.client.URL)
			return nil
		},
	}
}
