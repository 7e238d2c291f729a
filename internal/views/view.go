package views

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/chatpulse/internal/registry"
)

// Errors
var (
	ErrNotOpen     = errors.New("view not open")
	ErrAlreadyOpen = errors.New("view already open")
)

// Subscriber is the part of the registry a view uses.
type Subscriber interface {
	Subscribe(cb registry.Callback) registry.SubscriptionID
	Unsubscribe(id registry.SubscriptionID)
}

// Options configures a view.
type Options struct {
	PageSize int
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// base carries subscription and change-notification plumbing.
type base struct {
	subs   Subscriber
	logger *slog.Logger

	hookMu   sync.RWMutex
	onChange func()

	lifeMu  sync.Mutex
	subID   registry.SubscriptionID
	open    bool
	refresh *loop
}

// OnChange sets a hook called after the view's data changes. It runs on
// the goroutine that made the change and must not block.
func (b *base) OnChange(fn func()) {
	b.hookMu.Lock()
	b.onChange = fn
	b.hookMu.Unlock()
}

func (b *base) changed() {
	b.hookMu.RLock()
	fn := b.onChange
	b.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// attach subscribes cb and, when refetch is non-nil, starts the loop that
// runs it.
func (b *base) attach(ctx context.Context, cb registry.Callback, refetch func(context.Context)) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.open {
		return ErrAlreadyOpen
	}
	if refetch != nil {
		b.refresh = startLoop(ctx, refetch)
	}
	b.subID = b.subs.Subscribe(cb)
	b.open = true
	return nil
}

// detach unsubscribes and stops the refetch loop. It is idempotent.
func (b *base) detach() {
	b.lifeMu.Lock()
	if !b.open {
		b.lifeMu.Unlock()
		return
	}
	b.open = false
	b.subs.Unsubscribe(b.subID)
	l := b.refresh
	b.refresh = nil
	b.lifeMu.Unlock()

	if l != nil {
		l.stop()
	}
}

func (b *base) isOpen() bool {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.open
}

// kick schedules a refetch.
func (b *base) kick() {
	b.lifeMu.Lock()
	l := b.refresh
	b.lifeMu.Unlock()
	if l != nil {
		l.trigger()
	}
}

// loop runs fn once per burst of triggers.
type loop struct {
	kicks  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// startLoop keeps parent's values but not its cancellation; the loop lives
// until stop.
func startLoop(parent context.Context, fn func(context.Context)) *loop {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	l := &loop{
		kicks:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.kicks:
				fn(ctx)
			}
		}
	}()
	return l
}

func (l *loop) trigger() {
	select {
	case l.kicks <- struct{}{}:
	default:
	}
}

func (l *loop) stop() {
	l.cancel()
	<-l.done
}
