package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/crowdchess/internal/domain"
)

// The three conditions a notation lookup can fail with.
var (
	ErrNoSuchMove = errors.New("rules: no such move")
	ErrAmbiguous  = errors.New("rules: ambiguous move")
	ErrIllegal    = errors.New("rules: illegal move")
)

// TerminationKind classifies the position after the last move.
type TerminationKind int

const (
	NotTerminal TerminationKind = iota
	Checkmate
	StalemateKind
	DrawByRule
)

// Termination is the rules engine's verdict on the current position.
// Winner is set only for Checkmate.
type Termination struct {
	Kind   TerminationKind
	Winner domain.Side
	Method string
}

// Board is a game in progress. It keeps the played moves in UCI form so the
// position can always be rebuilt from the start.
type Board struct {
	game *nchess.Game
	uci  []string
	san  []string
}

func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// Replay builds a board by applying moves in order from the initial position.
func Replay(moves []domain.Move) (*Board, error) {
	b := NewBoard()
	for i, m := range moves {
		if err := b.ApplyUCI(m.UCI); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, m.UCI, err)
		}
	}
	return b, nil
}

// Ply is the number of half-moves played.
func (b *Board) Ply() int { return len(b.uci) }

// Turn is the side to move.
func (b *Board) Turn() domain.Side { return domain.SideToMove(b.Ply()) }

// ApplyUCI plays a move given in UCI form.
func (b *Board) ApplyUCI(uci string) error {
	uci = strings.ToLower(strings.TrimSpace(uci))
	pos := b.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegal, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := b.game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegal, uci, err)
	}
	b.uci = append(b.uci, uci)
	b.san = append(b.san, san)
	return nil
}

// Apply plays a resolved move.
func (b *Board) Apply(m domain.NormalMove) error { return b.ApplyUCI(m.UCI) }

// Pop takes back the last move. It reports false on an empty board.
func (b *Board) Pop() bool {
	if len(b.uci) == 0 {
		return false
	}
	rest := b.uci[:len(b.uci)-1]
	game := nchess.NewGame()
	san := make([]string, 0, len(rest))
	for _, u := range rest {
		pos := game.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, u)
		if err != nil {
			panic(fmt.Sprintf("rules: replay of recorded move %s failed: %v", u, err))
		}
		san = append(san, nchess.AlgebraicNotation{}.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			panic(fmt.Sprintf("rules: replay of recorded move %s failed: %v", u, err))
		}
	}
	b.game = game
	b.uci = append([]string(nil), rest...)
	b.san = san
	return true
}

// Reset returns the board to the initial position.
func (b *Board) Reset() {
	b.game = nchess.NewGame()
	b.uci = nil
	b.san = nil
}

func (b *Board) Clone() *Board {
	return &Board{
		game: b.game.Clone(),
		uci:  append([]string(nil), b.uci...),
		san:  append([]string(nil), b.san...),
	}
}

// Moves returns the played moves in UCI form.
func (b *Board) Moves() []string { return append([]string(nil), b.uci...) }

// LastMove returns the last played move in UCI form, or "".
func (b *Board) LastMove() string {
	if len(b.uci) == 0 {
		return ""
	}
	return b.uci[len(b.uci)-1]
}

// Position exposes the underlying position for rendering.
func (b *Board) Position() *nchess.Position { return b.game.Position() }

func (b *Board) FEN() string { return b.game.FEN() }

// Terminal classifies the current position. Draws that a player could claim
// (threefold repetition, fifty moves) count as draws.
func (b *Board) Terminal() Termination {
	switch b.game.Outcome() {
	case nchess.WhiteWon:
		return Termination{Kind: Checkmate, Winner: domain.White, Method: b.game.Method().String()}
	case nchess.BlackWon:
		return Termination{Kind: Checkmate, Winner: domain.Black, Method: b.game.Method().String()}
	case nchess.Draw:
		if b.game.Method() == nchess.Stalemate {
			return Termination{Kind: StalemateKind, Method: b.game.Method().String()}
		}
		return Termination{Kind: DrawByRule, Method: b.game.Method().String()}
	}
	for _, m := range b.game.EligibleDraws() {
		switch m {
		case nchess.ThreefoldRepetition, nchess.FiftyMoveRule:
			return Termination{Kind: DrawByRule, Method: m.String()}
		}
	}
	return Termination{Kind: NotTerminal}
}

// Transcript renders the movetext with numbering, ending with result.
func (b *Board) Transcript(result string) string {
	var sb strings.Builder
	for i := 0; i < len(b.san); i += 2 {
		fmt.Fprintf(&sb, "%d. %s", i/2+1, b.san[i])
		if i+1 < len(b.san) {
			sb.WriteString(" ")
			sb.WriteString(b.san[i+1])
		}
		sb.WriteString(" ")
	}
	if result == "" {
		result = "*"
	}
	sb.WriteString(result)
	return sb.String()
}

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Opening names the ECO opening for the moves played, if known.
func (b *Board) Opening() (code, title string) {
	if len(b.uci) == 0 {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(b.game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// ResultToken maps an outcome to the PGN result marker.
func ResultToken(o domain.Outcome) string {
	switch o {
	case domain.VictoryWhite, domain.ResignationBlack:
		return "1-0"
	case domain.VictoryBlack, domain.ResignationWhite:
		return "0-1"
	case domain.Draw, domain.Stalemate:
		return "1/2-1/2"
	default:
		return "*"
	}
}
