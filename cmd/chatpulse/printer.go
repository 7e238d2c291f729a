package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/chatpulse/internal/connection"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printer renders notifications and connection changes as text lines.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	self    string
	now     func() time.Time
	friends int
}

func newPrinter(out io.Writer, self string) *printer {
	return &printer{out: out, self: self, now: time.Now, friends: -1}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", gray(p.now().Format("15:04:05")), fmt.Sprintf(format, args...))
}

// Event is registered as a registry callback.
func (p *printer) Event(env events.Envelope) {
	switch {
	case env.Type.IsMessage():
		msg, err := env.Message()
		if err != nil {
			p.printf("%s %v", red("bad message event:"), err)
			return
		}
		p.message(env.Type, msg)
	case env.Type.IsFriendRequest():
		req, err := env.FriendRequest()
		if err != nil {
			p.printf("%s %v", red("bad friend request event:"), err)
			return
		}
		p.friendRequest(env.Type, req)
	}
}

func (p *printer) message(typ events.EventType, msg model.Message) {
	if typ == events.MessageSent {
		p.printf("%s %s: %s", green("->"), bold(msg.Recipient.Email), msg.Text)
		return
	}
	p.printf("%s %s: %s", cyan("<-"), bold(msg.Sender.Email), msg.Text)
}

func (p *printer) friendRequest(typ events.EventType, req model.FriendRequest) {
	other, _ := req.Counterpart(p.self)
	var what string
	switch typ {
	case events.FriendRequestSent:
		what = "friend request sent to"
	case events.FriendRequestReceived:
		what = "friend request from"
	case events.FriendRequestAnswer:
		what = fmt.Sprintf("friend request %s with", req.Status)
	case events.FriendRequestRemoved:
		what = "friendship removed with"
	}
	p.printf("%s %s", yellow(what), bold(other.Email))
}

// State prints a connection state change.
func (p *printer) State(ev connection.StateEvent) {
	line := fmt.Sprintf("connection %s -> %s", ev.Old, ev.New)
	switch ev.New {
	case connection.StateOpen:
		p.printf("%s", green(line))
	case connection.StateErrored:
		p.printf("%s (%v), send SIGHUP to reconnect", red(line), ev.Err)
	default:
		p.printf("%s", gray(line))
	}
}

// Friends prints the friend count when it changed since the last call.
// Refreshes caused by messages alone print nothing.
func (p *printer) Friends(rows []model.FriendWithMessage) {
	p.mu.Lock()
	changed := p.friends != len(rows)
	p.friends = len(rows)
	p.mu.Unlock()
	if changed {
		p.printf("%s %d", yellow("friends:"), len(rows))
	}
}

// Pending prints the number of pending friend requests.
func (p *printer) Pending(n int) {
	p.printf("%s %d", yellow("pending friend requests:"), n)
}
