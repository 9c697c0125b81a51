package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// sanQuery is a parsed SAN move before it is matched against legal moves.
type sanQuery struct {
	castle   nchess.MoveTag
	piece    nchess.PieceType
	fromFile int // -1 if unspecified
	fromRank int // -1 if unspecified
	to       nchess.Square
	promo    nchess.PieceType
}

// legalMove is the comparable part of a legal move.
type legalMove struct {
	uci   string
	from  nchess.Square
	to    nchess.Square
	promo nchess.PieceType
	piece nchess.PieceType
	tag   nchess.MoveTag
}

func (b *Board) legalMoves() []legalMove {
	pos := b.game.Position()
	board := pos.Board()
	var out []legalMove
	for _, mv := range b.game.ValidMoves() {
		lm := legalMove{
			uci:   strings.ToLower(mv.String()),
			from:  mv.S1(),
			to:    mv.S2(),
			promo: mv.Promo(),
			piece: board.Piece(mv.S1()).Type(),
		}
		switch {
		case mv.HasTag(nchess.KingSideCastle):
			lm.tag = nchess.KingSideCastle
		case mv.HasTag(nchess.QueenSideCastle):
			lm.tag = nchess.QueenSideCastle
		}
		out = append(out, lm)
	}
	return out
}

// ParseSAN resolves canonical SAN (uppercase pieces, lowercase squares)
// to a move in UCI form. It returns ErrNoSuchMove when the text is not SAN,
// ErrAmbiguous when several legal moves match and ErrIllegal when none do.
func (b *Board) ParseSAN(san string) (uci string, err error) {
	pos := b.game.Position()
	if mv, derr := (nchess.AlgebraicNotation{}).Decode(pos, san); derr == nil {
		return strings.ToLower(nchess.UCINotation{}.Encode(pos, mv)), nil
	}
	return b.classifySAN(san)
}

// classifySAN matches san against the legal moves after the decoder has
// rejected it. The decoder reports a single error for unparsable, ambiguous
// and illegal text alike, and it also rejects loose forms such as a missing
// capture mark or "e8Q", which resolve here when exactly one move fits.
func (b *Board) classifySAN(san string) (string, error) {
	q, ok := parseSAN(san)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoSuchMove, san)
	}
	var found []string
	for _, lm := range b.legalMoves() {
		if q.matches(lm) {
			found = append(found, lm.uci)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrIllegal, san)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, san)
	}
}

// ParseUCI checks a coordinate move against the legal moves.
func (b *Board) ParseUCI(text string) (string, error) {
	uci := strings.ToLower(strings.TrimSpace(text))
	if !isUCIShape(uci) {
		return "", fmt.Errorf("%w: %q", ErrNoSuchMove, text)
	}
	for _, lm := range b.legalMoves() {
		if lm.uci == uci {
			return uci, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrIllegal, uci)
}

// SAN renders a legal UCI move in SAN for the current position.
func (b *Board) SAN(uci string) (string, error) {
	pos := b.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegal, uci)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}

func (q sanQuery) matches(lm legalMove) bool {
	if q.castle != 0 {
		return lm.tag == q.castle
	}
	if lm.tag != 0 && q.piece == nchess.King {
		// castling is only reachable through O-O / O-O-O
		return false
	}
	if lm.piece != q.piece || lm.to != q.to || lm.promo != q.promo {
		return false
	}
	if q.fromFile >= 0 && int(lm.from.File()) != q.fromFile {
		return false
	}
	if q.fromRank >= 0 && int(lm.from.Rank()) != q.fromRank {
		return false
	}
	return true
}

func isUCIShape(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !isFile(s[0]) || !isRank(s[1]) || !isFile(s[2]) || !isRank(s[3]) {
		return false
	}
	if len(s) == 5 && !strings.ContainsRune("qrbnk", rune(s[4])) {
		return false
	}
	return true
}

func parseSAN(s string) (sanQuery, bool) {
	q := sanQuery{fromFile: -1, fromRank: -1, promo: nchess.NoPieceType}
	s = strings.TrimRight(s, "+#")
	switch s {
	case "O-O":
		q.castle = nchess.KingSideCastle
		return q, true
	case "O-O-O":
		q.castle = nchess.QueenSideCastle
		return q, true
	}
	if s == "" {
		return q, false
	}

	q.piece = nchess.Pawn
	if pt, ok := pieceLetter(s[0]); ok {
		q.piece = pt
		s = s[1:]
	}

	// promotion: "=Q" or a bare trailing piece letter after the rank
	if n := len(s); n >= 2 {
		if pt, ok := pieceLetter(s[n-1]); ok && pt != nchess.King {
			q.promo = pt
			s = s[:n-1]
			s = strings.TrimSuffix(s, "=")
		}
	}
	if q.promo != nchess.NoPieceType && q.piece != nchess.Pawn {
		return q, false
	}

	if len(s) < 2 || !isFile(s[len(s)-2]) || !isRank(s[len(s)-1]) {
		return q, false
	}
	q.to = nchess.NewSquare(nchess.File(s[len(s)-2]-'a'), nchess.Rank(s[len(s)-1]-'1'))
	s = strings.TrimSuffix(s[:len(s)-2], "x")

	switch len(s) {
	case 0:
	case 1:
		switch {
		case isFile(s[0]):
			q.fromFile = int(s[0] - 'a')
		case isRank(s[0]):
			q.fromRank = int(s[0] - '1')
		default:
			return q, false
		}
	case 2:
		if !isFile(s[0]) || !isRank(s[1]) {
			return q, false
		}
		q.fromFile = int(s[0] - 'a')
		q.fromRank = int(s[1] - '1')
	default:
		return q, false
	}

	if q.piece == nchess.Pawn {
		if q.fromRank >= 0 {
			return q, false
		}
		if q.fromFile < 0 {
			q.fromFile = int(q.to.File())
		}
	}
	return q, true
}

func pieceLetter(c byte) (nchess.PieceType, bool) {
	switch c {
	case 'K':
		return nchess.King, true
	case 'Q':
		return nchess.Queen, true
	case 'R':
		return nchess.Rook, true
	case 'B':
		return nchess.Bishop, true
	case 'N':
		return nchess.Knight, true
	default:
		return nchess.NoPieceType, false
	}
}

func isFile(c byte) bool { return c >= 'a' && c <= 'h' }
func isRank(c byte) bool { return c >= '1' && c <= '8' }
