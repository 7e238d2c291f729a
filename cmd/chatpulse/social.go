package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/model"
	"github.com/rickgao/chatpulse/internal/registry"
	"github.com/rickgao/chatpulse/internal/views"
)

// collect reads the first page, or every page when all is set.
func collect[T any](ctx context.Context, limit int, all bool, fetch func(context.Context, api.PageRequest) (*model.Page[T], error)) ([]T, error) {
	req := api.FirstPage(limit)
	var rows []T
	for {
		page, err := fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Data...)

		next, ok := api.Next(req, *page)
		if !all || !ok {
			return rows, nil
		}
		req = next
	}
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func statusLabel(s *model.FriendStatus) string {
	if s == nil {
		return "-"
	}
	return string(*s)
}

// drain calls loadMore until nothing is left.
func drain(ctx context.Context, loadMore func(context.Context) (bool, error)) error {
	for {
		more, err := loadMore(ctx)
		if err != nil || !more {
			return err
		}
	}
}

// userLookup resolves an email to an account.
type userLookup interface {
	LookupUser(ctx context.Context, email string) (*model.User, error)
}

// resolvePeer fails unless email belongs to an existing user.
func resolvePeer(ctx context.Context, users userLookup, email string) (*model.User, error) {
	u, err := users.LookupUser(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", email, err)
	}
	if u == nil {
		return nil, fmt.Errorf("no user with email %s", email)
	}
	return u, nil
}

func newFriendsCommand(a *app) *cobra.Command {
	var query string
	var all bool

	cmd := &cobra.Command{
		Use:   "friends",
		Short: "List friends with the last message exchanged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				ctx := cmd.Context()
				v := views.NewFriendsView(registry.New(a.logger, nil), acct.client, a.viewOptions())
				if err := v.SetQuery(ctx, query); err != nil {
					return err
				}
				if err := v.Open(ctx); err != nil {
					return err
				}
				defer v.Close()
				if all {
					if err := drain(ctx, v.LoadMore); err != nil {
						return err
					}
				}
				return printFriends(cmd.OutOrStdout(), v.Snapshot())
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by name or email")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	return cmd
}

func printFriends(out io.Writer, rows []model.FriendWithMessage) error {
	w := newTable(out)
	fmt.Fprintln(w, "EMAIL\tNAME\tLAST MESSAGE")
	for _, f := range rows {
		last := "-"
		if f.LastMessage != nil {
			last = f.LastMessage.Text
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Email, f.DisplayName, last)
	}
	return w.Flush()
}

// openRequests opens a requests view on a registry of its own. One-shot
// commands have no socket, so only explicit refreshes update it.
func (a *app) openRequests(ctx context.Context, acct *account, status model.FriendStatus) (*views.RequestsView, error) {
	v, err := views.NewRequestsView(registry.New(a.logger, nil), acct.client, status, a.viewOptions())
	if err != nil {
		return nil, err
	}
	if err := v.Open(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func newRequestsCommand(a *app) *cobra.Command {
	var status string
	var all bool

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List friend requests in one status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := model.ParseFriendStatus(status)
			if err != nil {
				return err
			}
			return a.withAccount(cmd.Context(), func(acct *account) error {
				v, err := a.openRequests(cmd.Context(), acct, s)
				if err != nil {
					return err
				}
				defer v.Close()
				if all {
					if err := drain(cmd.Context(), v.LoadMore); err != nil {
						return err
					}
				}
				return printRequests(cmd.OutOrStdout(), acct.identity.Email, v.Snapshot())
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.StatusPending), "pending, accepted, rejected or removed")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	return cmd
}

func printRequests(out io.Writer, self string, rows []model.FriendRequest) error {
	w := newTable(out)
	fmt.Fprintln(w, "DIRECTION\tEMAIL\tNAME\tSTATUS")
	for _, r := range rows {
		other, incoming := r.Counterpart(self)
		dir := "outgoing"
		if incoming {
			dir = "incoming"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", dir, other.Email, other.DisplayName, r.Status)
	}
	return w.Flush()
}

func newRequestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send, answer or remove friend requests",
	}

	// Each action runs through a requests view on the tab it affects and
	// prints that tab after the view refreshed.
	action := func(use, short string, tab model.FriendStatus, fn func(context.Context, *views.RequestsView, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <email>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withAccount(cmd.Context(), func(acct *account) error {
					v, err := a.openRequests(cmd.Context(), acct, tab)
					if err != nil {
						return err
					}
					defer v.Close()

					if err := fn(cmd.Context(), v, args[0]); err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s %s, %d %s\n", green("ok"), args[0], len(v.Snapshot()), tab)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		action("add", "Send a friend request", model.StatusPending, func(ctx context.Context, v *views.RequestsView, email string) error {
			return v.Send(ctx, email)
		}),
		action("accept", "Accept a pending request", model.StatusPending, func(ctx context.Context, v *views.RequestsView, email string) error {
			return v.Answer(ctx, email, model.StatusAccepted)
		}),
		action("reject", "Reject a pending request", model.StatusPending, func(ctx context.Context, v *views.RequestsView, email string) error {
			return v.Answer(ctx, email, model.StatusRejected)
		}),
		action("remove", "Cancel a request or remove a friend", model.StatusAccepted, func(ctx context.Context, v *views.RequestsView, email string) error {
			return v.Remove(ctx, email)
		}),
	)
	return cmd
}

func newSearchCommand(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search users by name or email",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			return a.withAccount(cmd.Context(), func(acct *account) error {
				rows, err := collect(cmd.Context(), a.cfg.Views.PageSize, all,
					func(ctx context.Context, page api.PageRequest) (*model.Page[model.User], error) {
						return acct.client.SearchUsers(ctx, q, page)
					})
				if err != nil {
					return err
				}

				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "EMAIL\tNAME\tFRIEND STATUS")
				for _, u := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.Email, u.DisplayName, statusLabel(u.FriendStatus))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	return cmd
}

func newMessagesCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages <email>",
		Short: "Print the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				peer, err := resolvePeer(cmd.Context(), acct.client, args[0])
				if err != nil {
					return err
				}
				page, err := acct.client.GetMessages(cmd.Context(), peer.Email, api.FirstPage(limit))
				if err != nil {
					return err
				}
				p := newPrinter(cmd.OutOrStdout(), acct.identity.Email)
				for _, msg := range page.Data {
					p.chatLine(msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum number of messages")
	return cmd
}

func newSendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <email> <text>...",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccount(cmd.Context(), func(acct *account) error {
				peer, err := resolvePeer(cmd.Context(), acct.client, args[0])
				if err != nil {
					return err
				}
				return acct.client.SendMessage(cmd.Context(), peer.Email, strings.Join(args[1:], " "))
			})
		},
	}
}
