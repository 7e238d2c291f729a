package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rickgao/chatpulse/internal/connection"
	"github.com/rickgao/chatpulse/internal/model"
	"github.com/rickgao/chatpulse/internal/registry"
	"github.com/rickgao/chatpulse/internal/session"
	"github.com/rickgao/chatpulse/internal/views"
)

// historyTail is how many loaded messages are shown when a conversation
// is first opened.
const historyTail = 20

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <email>",
		Short: "Open an interactive conversation",
		Long: `Each line read from stdin is sent to the current peer.

  /open <email>   switch conversation (recent ones stay loaded)
  /search <text>  look up users, typing again replaces the pending search
  /quit           exit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
		},
	}
}

func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, peer string) error {
	acct, err := a.openAccount(ctx, nil)
	if err != nil {
		return err
	}
	defer acct.Close()

	reg := registry.New(a.logger, nil)
	manager := connection.NewManager(a.managerConfig(), reg, nil, a.logger)
	binding := session.New(manager, reg, session.Config{
		ReconnectInterval: a.cfg.Connection.ReconnectInterval,
	}, a.logger)
	defer binding.Shutdown()

	viewOpts := a.viewOptions()
	convs, err := views.NewConversationCache(a.cfg.Views.ConversationCache, reg, acct.client, viewOpts)
	if err != nil {
		return err
	}
	defer convs.Purge()

	p := newPrinter(out, acct.identity.Email)
	room := newChatRoom(p)

	search := views.NewSearchView(reg, acct.client, a.cfg.Views.SearchDebounce, viewOpts)
	search.OnChange(func() {
		users := search.Snapshot()
		p.printf("%s %q: %d users", gray("search"), search.Query(), len(users))
		for _, u := range users {
			p.printf("  %s %s (%s)", bold(u.Email), u.DisplayName, statusLabel(u.FriendStatus))
		}
	})
	if err := search.Open(ctx); err != nil {
		return err
	}
	defer search.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-manager.States():
				p.State(ev)
			}
		}
	}()

	if err := binding.SetIdentity(ctx, acct.identity); err != nil {
		a.logger.Warn("connect failed, messages will not update live", "error", err)
	}

	open := func(email string) error {
		peer, err := resolvePeer(ctx, acct.client, email)
		if err != nil {
			return err
		}
		v, err := convs.Get(ctx, peer.Email)
		if err != nil {
			return err
		}
		room.show(v)
		return nil
	}
	if err := open(peer); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return nil
			case strings.HasPrefix(line, "/search "):
				q := strings.TrimSpace(strings.TrimPrefix(line, "/search "))
				go func() {
					err := search.Search(ctx, q)
					if err != nil && !errors.Is(err, views.ErrSuperseded) && ctx.Err() == nil {
						p.printf("%s %v", red("search failed:"), err)
					}
				}()
			case strings.HasPrefix(line, "/open "):
				if err := open(strings.TrimSpace(strings.TrimPrefix(line, "/open "))); err != nil {
					p.printf("%s %v", red("open failed:"), err)
				}
			default:
				if err := room.send(ctx, line); err != nil {
					p.printf("%s %v", red("send failed:"), err)
				}
			}
		}
	}
}

// chatRoom prints new messages of the conversation in focus.
type chatRoom struct {
	mu      sync.Mutex
	p       *printer
	current *views.ConversationView
	seen    map[*views.ConversationView]int
}

func newChatRoom(p *printer) *chatRoom {
	return &chatRoom{p: p, seen: make(map[*views.ConversationView]int)}
}

func (r *chatRoom) show(v *views.ConversationView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current != v {
		r.current.OnChange(nil)
	}
	r.current = v
	if _, ok := r.seen[v]; !ok {
		r.seen[v] = max(0, len(v.Snapshot())-historyTail)
	}
	r.p.printf("%s %s", gray("conversation with"), bold(v.Peer()))
	r.flushLocked(v)

	v.OnChange(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.current == v {
			r.flushLocked(v)
		}
	})
}

func (r *chatRoom) flushLocked(v *views.ConversationView) {
	msgs := v.Snapshot()
	for _, msg := range msgs[min(r.seen[v], len(msgs)):] {
		r.p.chatLine(msg)
	}
	r.seen[v] = len(msgs)
}

func (r *chatRoom) send(ctx context.Context, text string) error {
	r.mu.Lock()
	v := r.current
	r.mu.Unlock()
	if v == nil {
		return errors.New("no conversation open")
	}
	return v.Send(ctx, text)
}

// chatLine prints msg relative to the signed-in user.
func (p *printer) chatLine(msg model.Message) {
	if strings.EqualFold(msg.Sender.Email, p.self) {
		p.printf("%s %s", green("me:"), msg.Text)
		return
	}
	p.printf("%s %s", cyan(msg.Sender.Email+":"), msg.Text)
}
