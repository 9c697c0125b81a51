// Package orchestrator runs the game loop: a comment feed and a move timer
// produce events, and a single consumer owns the board and the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/crowdchess/internal/comment"
	"github.com/park285/crowdchess/internal/domain"
	"github.com/park285/crowdchess/internal/gamestate"
	"github.com/park285/crowdchess/internal/msgcat"
	"github.com/park285/crowdchess/internal/platform"
	"github.com/park285/crowdchess/internal/replycache"
	"github.com/park285/crowdchess/internal/rules"
	"github.com/park285/crowdchess/internal/schedule"
	"github.com/park285/crowdchess/internal/selector"
)

type EventKind int

const (
	MoveRequested EventKind = iota + 1
	ReplyRequested
)

func (k EventKind) String() string {
	switch k {
	case MoveRequested:
		return "move_requested"
	case ReplyRequested:
		return "reply_requested"
	default:
		return "unknown"
	}
}

type Event struct {
	ID      uuid.UUID
	Kind    EventKind
	Comment platform.Comment
}

// Store is the ledger as the engine uses it.
type Store interface {
	gamestate.Recorder
	InsertPost(ctx context.Context, externalRef string) error
	PreviousPost(ctx context.Context) (string, error)
	LastMove(ctx context.Context) (*domain.Move, error)
	Moves(ctx context.Context) ([]domain.Move, error)
}

type Deps struct {
	Store     Store
	Platform  platform.Client
	Publisher gamestate.Publisher
	Catalog   *msgcat.Catalog
	Replies   replycache.Cache
	Cadence   schedule.Cadence
	Logger    *zap.Logger
	// QueueSize bounds the event queue; producers block when it is full.
	QueueSize int
	Now       func() time.Time
}

type Engine struct {
	store     Store
	platform  platform.Client
	publisher gamestate.Publisher
	catalog   *msgcat.Catalog
	replies   replycache.Cache
	cadence   schedule.Cadence
	logger    *zap.Logger
	now       func() time.Time

	queue   chan Event
	head    atomic.Pointer[string]
	machine *gamestate.Machine
}

func New(d Deps) (*Engine, error) {
	if d.Store == nil || d.Platform == nil || d.Publisher == nil || d.Cadence == nil {
		return nil, errors.New("orchestrator: store, platform, publisher and cadence are required")
	}
	e := &Engine{
		store:     d.Store,
		platform:  d.Platform,
		publisher: d.Publisher,
		catalog:   d.Catalog,
		replies:   d.Replies,
		cadence:   d.Cadence,
		logger:    d.Logger,
		now:       d.Now,
	}
	if e.catalog == nil {
		e.catalog = msgcat.MustDefault()
	}
	if e.replies == nil {
		e.replies = replycache.NewMemory(0)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	size := d.QueueSize
	if size <= 0 {
		size = 64
	}
	e.queue = make(chan Event, size)
	return e, nil
}

// SeedInitialPost publishes the starting position and records it as the
// current game's first post. It is only valid on a ledger that has no posts.
func (e *Engine) SeedInitialPost(ctx context.Context) (string, error) {
	ref, err := e.publisher.Publish(ctx, gamestate.Snapshot{Board: rules.NewBoard(), Outcome: domain.Ongoing})
	if err != nil {
		return "", fmt.Errorf("%w: initial post: %v", gamestate.ErrPublish, err)
	}
	if err := e.store.InsertPost(context.WithoutCancel(ctx), ref); err != nil {
		return "", fmt.Errorf("record initial post: %w", err)
	}
	e.logger.Info("initial_post_seeded", zap.String("post_ref", ref))
	return ref, nil
}

// Restore rebuilds the board from the ledger. Run calls it when needed.
func (e *Engine) Restore(ctx context.Context) error {
	moves, err := e.store.Moves(ctx)
	if err != nil {
		return fmt.Errorf("load moves: %w", err)
	}
	board, err := rules.Replay(moves)
	if err != nil {
		return fmt.Errorf("replay moves: %w", err)
	}
	head, err := e.store.PreviousPost(ctx)
	if err != nil {
		return fmt.Errorf("load head post: %w", err)
	}
	e.machine = gamestate.New(board, e.publisher, e.store, e.logger)
	e.head.Store(&head)
	e.logger.Info("board_restored",
		zap.Int("ply", board.Ply()),
		zap.String("head_ref", head),
		zap.String("fen", board.FEN()),
	)
	return nil
}

// Board exposes the consumer's board for inspection. It must not be used
// while Run is active.
func (e *Engine) Board() *rules.Board {
	if e.machine == nil {
		return nil
	}
	return e.machine.Board()
}

// Run restores state and runs the feed, the timer and the consumer until
// ctx is canceled or one of them fails. Cancellation is a clean exit.
func (e *Engine) Run(ctx context.Context) error {
	if e.machine == nil {
		if err := e.Restore(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("engine_started", zap.String("cadence", e.cadence.String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.feed(gctx) })
	g.Go(func() error { return e.timer(gctx) })
	g.Go(func() error { return e.consume(gctx) })

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	e.logger.Info("engine_stopped", zap.Error(err))
	return err
}

func (e *Engine) enqueue(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case e.queue <- ev:
		return nil
	}
}

func (e *Engine) feed(ctx context.Context) error {
	err := e.platform.StreamComments(ctx, func(c platform.Comment) error {
		if !e.relevant(c) {
			return nil
		}
		return e.enqueue(ctx, Event{ID: uuid.New(), Kind: ReplyRequested, Comment: c})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("comment stream: %w", err)
	}
	return err
}

// relevant keeps top-level comments on the head post not written by the
// thread author.
func (e *Engine) relevant(c platform.Comment) bool {
	head := e.head.Load()
	return head != nil && c.TopLevel() && c.PostRef == *head && !c.IsThreadAuthor
}

func (e *Engine) timer(ctx context.Context) error {
	for {
		wait := e.cadence.Next(e.now())
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if err := e.enqueue(ctx, Event{ID: uuid.New(), Kind: MoveRequested}); err != nil {
			return err
		}
	}
}

func (e *Engine) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.queue:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	log := e.logger.With(zap.String("event_id", ev.ID.String()), zap.Stringer("kind", ev.Kind))
	var err error
	switch ev.Kind {
	case MoveRequested:
		err = e.handleMove(ctx, log)
	case ReplyRequested:
		err = e.handleReply(ctx, ev.Comment, log)
	default:
		err = fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	if err == nil || ctx.Err() != nil {
		return
	}
	if errors.Is(err, gamestate.ErrNoDrawOffer) {
		log.Warn("move_skipped", zap.Error(err))
		return
	}
	log.Error("event_failed", zap.Error(err))
}

func (e *Engine) handleMove(ctx context.Context, log *zap.Logger) error {
	head, err := e.store.PreviousPost(ctx)
	if err != nil {
		return fmt.Errorf("head post: %w", err)
	}
	raw, err := e.platform.PostComments(ctx, head)
	if err != nil {
		return fmt.Errorf("fetch comments: %w", err)
	}
	comments := make([]selector.Comment, 0, len(raw))
	for _, c := range raw {
		if !c.TopLevel() {
			continue
		}
		comments = append(comments, selector.Comment{ID: c.ID, Text: c.Body, Score: c.Score, IsThreadAuthor: c.IsThreadAuthor})
	}

	prev, err := e.store.LastMove(ctx)
	if err != nil {
		return fmt.Errorf("last move: %w", err)
	}
	sel, ok := selector.Select(comments, e.machine.Board(), prev.OffersDraw())
	if !ok {
		log.Info("no_move_selected", zap.String("head_ref", head), zap.Int("comments", len(comments)))
		return nil
	}
	res, err := e.machine.Play(ctx, sel.Intent, prev)
	if err != nil {
		return fmt.Errorf("play %s from %s: %w", domain.Describe(sel.Intent), sel.Comment.ID, err)
	}
	e.head.Store(&res.HeadRef)
	log.Info("move_played",
		zap.String("comment_id", sel.Comment.ID),
		zap.Int("score", sel.Comment.Score),
		zap.String("intent", domain.Describe(sel.Intent)),
		zap.String("outcome", res.Outcome.String()),
		zap.String("head_ref", res.HeadRef),
	)
	return nil
}

func (e *Engine) handleReply(ctx context.Context, c platform.Comment, log *zap.Logger) error {
	if head := e.head.Load(); head == nil || *head != c.PostRef {
		log.Debug("stale_comment_skipped", zap.String("comment_id", c.ID))
		return nil
	}
	first, err := e.replies.MarkReplied(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("reply cache: %w", err)
	}
	if !first {
		return nil
	}

	in, perr := comment.Parse(c.Body, e.machine.Board())
	prev, err := e.store.LastMove(ctx)
	if err != nil {
		return fmt.Errorf("last move: %w", err)
	}
	text, err := e.catalog.Reply(in, perr, prev.OffersDraw())
	if err != nil {
		return fmt.Errorf("render reply: %w", err)
	}
	if err := e.platform.Reply(ctx, c.ID, text); err != nil {
		return fmt.Errorf("reply to %s: %w", c.ID, err)
	}
	log.Debug("comment_answered", zap.String("comment_id", c.ID))
	return nil
}
