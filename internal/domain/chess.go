package domain

import "fmt"

// Side is the colour holding the move.
type Side int

const (
	White Side = iota + 1
	Black
)

// SideToMove returns the side on move after the given number of half-moves.
func SideToMove(ply int) Side {
	if ply%2 == 0 {
		return White
	}
	return Black
}

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	switch s {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Outcome is the persisted game state. Values are stored as-is in the ledger.
type Outcome int

const (
	Ongoing Outcome = iota + 1
	Draw
	Stalemate
	VictoryWhite
	VictoryBlack
	ResignationWhite
	ResignationBlack
)

func (o Outcome) Valid() bool { return o >= Ongoing && o <= ResignationBlack }

// Terminal reports whether the outcome ends the game.
func (o Outcome) Terminal() bool { return o.Valid() && o != Ongoing }

// VictoryFor maps a mating side to its victory outcome.
func VictoryFor(s Side) Outcome {
	if s == White {
		return VictoryWhite
	}
	return VictoryBlack
}

// ResignationBy maps the resigning side to its outcome.
func ResignationBy(s Side) Outcome {
	if s == White {
		return ResignationWhite
	}
	return ResignationBlack
}

func (o Outcome) String() string {
	switch o {
	case Ongoing:
		return "ongoing"
	case Draw:
		return "draw"
	case Stalemate:
		return "stalemate"
	case VictoryWhite:
		return "victory_white"
	case VictoryBlack:
		return "victory_black"
	case ResignationWhite:
		return "resignation_white"
	case ResignationBlack:
		return "resignation_black"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Intent is what an audience comment asks the game to do.
// The set of implementations is closed: NormalMove, Resign, DrawAccept.
type Intent interface {
	intent()
}

// NormalMove carries a move in UCI form and whether it offers a draw.
type NormalMove struct {
	UCI       string
	SAN       string
	OfferDraw bool
}

// Resign gives up the game for the side to move.
type Resign struct{}

// DrawAccept accepts a draw offered on the previous move.
type DrawAccept struct{}

func (NormalMove) intent() {}
func (Resign) intent()     {}
func (DrawAccept) intent() {}

// Move is a ledger row: a played move and its draw flag.
type Move struct {
	UCI       string
	OfferDraw bool
}

// OffersDraw reports whether m is present and carries a draw offer.
func (m *Move) OffersDraw() bool { return m != nil && m.OfferDraw }

// Describe renders an intent for logs.
func Describe(in Intent) string {
	switch v := in.(type) {
	case NormalMove:
		if v.OfferDraw {
			return v.UCI + " (draw offered)"
		}
		return v.UCI
	case Resign:
		return "resign"
	case DrawAccept:
		return "draw accept"
	case nil:
		return "none"
	default:
		panic(fmt.Sprintf("domain: unknown intent %T", in))
	}
}
