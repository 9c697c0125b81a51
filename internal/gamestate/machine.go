// Package gamestate applies intents to the shared board and decides when a
// game ends.
package gamestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/domain"
	"github.com/park285/crowdchess/internal/rules"
)

var (
	// ErrPublish wraps a failure of the posting collaborator.
	ErrPublish = errors.New("gamestate: publish failed")
	// ErrNoDrawOffer means a draw was accepted but the last move offered none.
	ErrNoDrawOffer = errors.New("gamestate: no draw offer to accept")
)

// Snapshot is one state to publish.
type Snapshot struct {
	Board       *rules.Board
	Outcome     domain.Outcome
	DrawOffered bool
}

// Publisher posts a snapshot and returns its external reference.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) (string, error)
}

// Recorder is the part of the ledger the machine writes to.
type Recorder interface {
	PlayMove(ctx context.Context, mv domain.Move, nextRef string) error
	NewGame(ctx context.Context, closingRef string, outcome domain.Outcome, openingRef string) error
}

// Transition is the effect of one intent on the board.
type Transition struct {
	Outcome domain.Outcome
	// Move is set when a move was pushed onto the board.
	Move *domain.Move
}

// Result describes a completed Play.
type Result struct {
	Outcome domain.Outcome
	Move    *domain.Move
	// HeadRef is the post comments should now be read from.
	HeadRef string
}

type Machine struct {
	board         *rules.Board
	pub           Publisher
	rec           Recorder
	logger        *zap.Logger
	commitTimeout time.Duration
}

func New(board *rules.Board, pub Publisher, rec Recorder, logger *zap.Logger) *Machine {
	if board == nil {
		board = rules.NewBoard()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{board: board, pub: pub, rec: rec, logger: logger, commitTimeout: 15 * time.Second}
}

// Board returns the live board. Only the owner of the machine may mutate it.
func (m *Machine) Board() *rules.Board { return m.board }

// Advance applies in to the board. prev is the game's last recorded move.
func (m *Machine) Advance(in domain.Intent, prev *domain.Move) (Transition, error) {
	switch v := in.(type) {
	case domain.Resign:
		return Transition{Outcome: domain.ResignationBy(m.board.Turn())}, nil
	case domain.DrawAccept:
		if !prev.OffersDraw() {
			return Transition{}, ErrNoDrawOffer
		}
		return Transition{Outcome: domain.Draw}, nil
	case domain.NormalMove:
		if err := m.board.Apply(v); err != nil {
			return Transition{}, err
		}
		t := Transition{Move: &domain.Move{UCI: v.UCI, OfferDraw: v.OfferDraw}}
		if v.OfferDraw && prev.OffersDraw() {
			t.Outcome = domain.Draw
			return t, nil
		}
		t.Outcome = classify(m.board.Terminal())
		return t, nil
	default:
		panic(fmt.Sprintf("gamestate: unknown intent %T", in))
	}
}

// Rollback undoes the board effect of t.
func (m *Machine) Rollback(t Transition) {
	if t.Move != nil {
		m.board.Pop()
	}
}

// Play advances, publishes and records one intent. On a publish or ledger
// failure the board is restored and nothing is recorded.
func (m *Machine) Play(ctx context.Context, in domain.Intent, prev *domain.Move) (Result, error) {
	t, err := m.Advance(in, prev)
	if err != nil {
		return Result{}, err
	}

	if !t.Outcome.Terminal() {
		ref, err := m.pub.Publish(ctx, Snapshot{Board: m.board, Outcome: domain.Ongoing, DrawOffered: t.Move.OfferDraw})
		if err != nil {
			m.Rollback(t)
			return Result{}, fmt.Errorf("%w: %v", ErrPublish, err)
		}
		commitCtx, cancel := m.commitContext(ctx)
		defer cancel()
		if err := m.rec.PlayMove(commitCtx, *t.Move, ref); err != nil {
			m.Rollback(t)
			m.logger.Error("ledger_play_move_failed", zap.String("post_ref", ref), zap.Error(err))
			return Result{}, fmt.Errorf("record move: %w", err)
		}
		return Result{Outcome: domain.Ongoing, Move: t.Move, HeadRef: ref}, nil
	}

	closing, err := m.pub.Publish(ctx, Snapshot{Board: m.board, Outcome: t.Outcome})
	if err != nil {
		m.Rollback(t)
		return Result{}, fmt.Errorf("%w: closing post: %v", ErrPublish, err)
	}
	opening, err := m.pub.Publish(ctx, Snapshot{Board: rules.NewBoard(), Outcome: domain.Ongoing})
	if err != nil {
		m.Rollback(t)
		m.logger.Warn("closing_post_orphaned", zap.String("post_ref", closing))
		return Result{}, fmt.Errorf("%w: opening post: %v", ErrPublish, err)
	}
	commitCtx, cancel := m.commitContext(ctx)
	defer cancel()
	if err := m.rec.NewGame(commitCtx, closing, t.Outcome, opening); err != nil {
		m.Rollback(t)
		m.logger.Error("ledger_new_game_failed",
			zap.String("closing_ref", closing),
			zap.String("opening_ref", opening),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("record new game: %w", err)
	}
	m.board.Reset()
	m.logger.Info("game_over",
		zap.String("outcome", t.Outcome.String()),
		zap.String("closing_ref", closing),
		zap.String("opening_ref", opening),
	)
	return Result{Outcome: t.Outcome, Move: t.Move, HeadRef: opening}, nil
}

// commitContext lets a started ledger write finish even if ctx is cancelled.
func (m *Machine) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.commitTimeout)
}

func classify(t rules.Termination) domain.Outcome {
	switch t.Kind {
	case rules.Checkmate:
		return domain.VictoryFor(t.Winner)
	case rules.StalemateKind:
		return domain.Stalemate
	case rules.DrawByRule:
		return domain.Draw
	default:
		return domain.Ongoing
	}
}
