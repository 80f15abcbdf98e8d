// Package boardsync owns one open board on the client: the local store, the
// mutation engine committing to the server, and the event subscription that
// keeps the store in step with other sessions.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/fanout"
	"github.com/h0rv/kanban/internal/remote"
	"github.com/h0rv/kanban/internal/store"
)

// ErrClosed is returned by calls on a closed session.
var ErrClosed = errors.New("session closed")

// Remote is the server connection a session runs on. *remote.Client implements it.
type Remote interface {
	engine.Persistence
	Subscribe(ctx context.Context, boardID string) <-chan remote.Signal
}

// Update tells the UI that something about the board changed.
type Update struct {
	// Changed is set when the store was replaced with a fresh board.
	Changed bool
	// Reconnected is set on every (re)established event stream after the first.
	Reconnected bool
	// Deleted is set when the board was deleted by someone else.
	Deleted bool
	// Err carries a failed refetch, or the reason the event stream stopped.
	Err error
	// Final is set on the last update; the subscription has ended.
	Final   bool
	Version int64
}

// Session is an open board. Create one with Open and release it with Close.
type Session struct {
	boardID string
	remote  Remote
	store   *store.Store
	engine  *engine.Engine
	log     *slog.Logger
	timeout time.Duration

	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger. The engine logs through it too.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithFetchTimeout bounds each board refetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// Open fetches a board, loads it into a fresh store and starts following its
// events. The first fetch must succeed; later refetch failures are reported
// on Updates.
func Open(ctx context.Context, r Remote, boardID string, opts ...Option) (*Session, error) {
	s := &Session{
		boardID: boardID,
		remote:  r,
		store:   store.New(),
		log:     slog.New(slog.DiscardHandler),
		timeout: 15 * time.Second,
		updates: make(chan Update, 16),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = engine.New(s.store, r, engine.WithLogger(s.log))

	b, err := r.GetBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("open board %s: %w", boardID, err)
	}
	s.store.Load(b)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.run(runCtx, r.Subscribe(runCtx, boardID))

	s.log.Info("board opened", "board", boardID, "version", b.Version)
	return s, nil
}

// BoardID returns the id of the open board.
func (s *Session) BoardID() string { return s.boardID }

// Store returns the local board state.
func (s *Session) Store() *store.Store { return s.store }

// Engine returns the engine that applies and commits this session's mutations.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Updates delivers change notifications. It is closed after Close or once the
// subscription ends for good.
func (s *Session) Updates() <-chan Update { return s.updates }

// Refetch fetches the board and hands it to the engine, which keeps any
// unresolved optimistic mutations on top. It reports whether the store changed.
func (s *Session) Refetch(ctx context.Context) (bool, error) {
	select {
	case <-s.done:
		return false, ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.remote.GetBoard(ctx, s.boardID)
	if err != nil {
		return false, fmt.Errorf("refetch board %s: %w", s.boardID, err)
	}
	return s.engine.Replace(b), nil
}

// Close stops the subscription and waits for it to finish.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.log.Info("board closed", "board", s.boardID)
	})
	return nil
}

func (s *Session) run(ctx context.Context, signals <-chan remote.Signal) {
	defer close(s.done)
	defer close(s.updates)
	defer s.cancel()

	connects := 0
	for sig := range signals {
		switch {
		case sig.Err != nil:
			s.emit(ctx, Update{Err: sig.Err, Final: true, Version: s.store.Version()})
			return

		case sig.Connected:
			// Anything may have happened before the stream was up.
			connects++
			changed, err := s.Refetch(ctx)
			s.emit(ctx, Update{Changed: changed, Reconnected: connects > 1, Err: err, Version: s.store.Version()})

		case sig.Event.Type == fanout.TypeDeleted:
			s.log.Info("board deleted remotely", "board", s.boardID)
			s.emit(ctx, Update{Deleted: true, Final: true, Version: sig.Event.Version})
			return

		default:
			if !s.engine.Notify(sig.Event.Version) {
				continue
			}
			changed, err := s.Refetch(ctx)
			if err != nil {
				s.log.Warn("refetch failed", "board", s.boardID, "version", sig.Event.Version, "err", err)
			}
			s.emit(ctx, Update{Changed: changed, Err: err, Version: s.store.Version()})
		}
	}
}

func (s *Session) emit(ctx context.Context, u Update) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}
