package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/model"
)

func newAdminCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator commands",
	}

	var query string
	var all bool
	users := &cobra.Command{
		Use:   "users",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				rows, err := collect(cmd.Context(), a.cfg.Views.PageSize, all,
					func(ctx context.Context, page api.PageRequest) (*model.Page[model.User], error) {
						return acct.client.GetAllUsers(ctx, query, page)
					})
				if err != nil {
					return err
				}

				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "EMAIL\tNAME\tADMIN\tCREATED")
				for _, u := range rows {
					created := "-"
					if u.CreatedAt != nil {
						created = u.CreatedAt.Format("2006-01-02")
					}
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", u.Email, u.DisplayName, u.IsAdmin, created)
				}
				return w.Flush()
			})
		},
	}
	users.Flags().StringVarP(&query, "query", "q", "", "filter by name or email")
	users.Flags().BoolVar(&all, "all", false, "fetch every page")

	token := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a login token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				tok, err := acct.client.GetLoginToken(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				if err := acct.client.DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", red("deleted"), args[0])
				return nil
			})
		},
	}

	var password string
	add := &cobra.Command{
		Use:   "add <email[=display name]>...",
		Short: "Create several users at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newUsers, err := parseNewUsers(args, password)
			if err != nil {
				return err
			}
			return a.withAccount(cmd.Context(), func(acct *account) error {
				failures, err := acct.client.BulkCreateUsers(cmd.Context(), newUsers)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, f := range failures {
					fmt.Fprintf(out, "%s %s: %s\n", red("failed"), f.Email, f.Message)
				}
				if len(failures) > 0 {
					return fmt.Errorf("%d of %d users not created", len(failures), len(newUsers))
				}
				fmt.Fprintf(out, "%s %d users\n", green("created"), len(newUsers))
				return nil
			})
		},
	}
	add.Flags().StringVar(&password, "password", defaultNewUserPassword, "initial password for every user")

	cmd.AddCommand(users, token, del, add)
	return cmd
}

const defaultNewUserPassword = "123456"

// parseNewUsers reads "email" or "email=Display Name" arguments. Without a
// name the local part of the email is used.
func parseNewUsers(args []string, password string) ([]api.NewUser, error) {
	if password == "" {
		return nil, errors.New("password must not be empty")
	}
	out := make([]api.NewUser, 0, len(args))
	for _, arg := range args {
		email, name, _ := strings.Cut(arg, "=")
		email = strings.TrimSpace(email)
		local, _, ok := strings.Cut(email, "@")
		if !ok || local == "" {
			return nil, fmt.Errorf("invalid email %q", email)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = local
		}
		out = append(out, api.NewUser{
			Email:         email,
			Password:      password,
			DisplayName:   name,
			EmailVerified: true,
		})
	}
	return out, nil
}
