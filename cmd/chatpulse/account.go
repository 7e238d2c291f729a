package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/auth"
)

func newLoginCommand(a *app) *cobra.Command {
	var email, password, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			tk := a.toolkit(store)

			if token == "" {
				token = a.cfg.Auth.CustomToken
			}
			if email == "" {
				email = a.cfg.Auth.Email
			}
			if password == "" {
				password = a.cfg.Auth.Password
			}

			var id *auth.Identity
			switch {
			case token != "":
				id, err = tk.SignInWithCustomToken(ctx, token)
			case email != "" && password != "":
				id, err = tk.SignInWithPassword(ctx, email, password)
			default:
				return errors.New("login needs --email and --password, or --token")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", bold(id.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default auth.email)")
	cmd.Flags().StringVar(&password, "password", "", "account password (default auth.password)")
	cmd.Flags().StringVar(&token, "token", "", "admin-issued login token")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := a.toolkit(store).SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newRegisterCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <email> <password> <display-name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.apiClient(nil, nil)
			err := client.CreateUser(cmd.Context(), api.NewUser{
				Email:       args[0],
				Password:    args[1],
				DisplayName: args[2],
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s, run 'chatpulse login' to sign in\n", bold(args[0]))
			return nil
		},
	}
}
