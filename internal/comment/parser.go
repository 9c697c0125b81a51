// Package comment turns the first line of an audience comment into a move intent.
package comment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/crowdchess/internal/domain"
	"github.com/park285/crowdchess/internal/rules"
)

// ErrNoMatch means the comment holds nothing that looks like a move.
var ErrNoMatch = errors.New("comment: no move found")

type ErrorKind int

const (
	Ambiguous ErrorKind = iota + 1
	Illegal
)

func (k ErrorKind) String() string {
	switch k {
	case Ambiguous:
		return "ambiguous"
	case Illegal:
		return "illegal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseError is a move-shaped token the rules engine rejected.
// Text is the normalized notation that was looked up.
type ParseError struct {
	Text string
	Raw  string
	Kind ErrorKind
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("move %s is %s", e.Text, e.Kind)
}

const (
	keywordResign = "resign"
	keywordDraw   = "draw"
)

// Parse reads the first line of text against the board. It returns an intent,
// ErrNoMatch, or a *ParseError.
func Parse(text string, b *rules.Board) (domain.Intent, error) {
	line, _, _ := strings.Cut(text, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrNoMatch
	}
	tok := trimToken(fields[0])
	offer := len(fields) > 1 && strings.EqualFold(trimToken(fields[1]), keywordDraw)

	lowerTok := strings.ToLower(tok)
	switch {
	case strings.HasPrefix(lowerTok, keywordResign):
		return domain.Resign{}, nil
	case lowerTok == keywordDraw:
		if len(fields) > 1 {
			return nil, ErrNoMatch
		}
		return domain.DrawAccept{}, nil
	case lowerTok == "":
		return nil, ErrNoMatch
	}

	if lower := strings.ToLower(tok); looksUCI(lower) {
		uci, err := b.ParseUCI(lower)
		if err != nil {
			return nil, mapErr(err, lower, tok)
		}
		return normalMove(b, uci, offer)
	}

	if castle, ok := normalizeCastle(tok); ok {
		uci, err := b.ParseSAN(castle)
		if err != nil {
			return nil, mapErr(err, castle, tok)
		}
		return normalMove(b, uci, offer)
	}

	candidates := sanCandidates(tok)
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}
	var firstErr error
	var firstText string
	for _, san := range candidates {
		uci, err := b.ParseSAN(san)
		if err == nil {
			return normalMove(b, uci, offer)
		}
		if errors.Is(err, rules.ErrAmbiguous) {
			return nil, mapErr(err, san, tok)
		}
		if firstErr == nil || errors.Is(firstErr, rules.ErrNoSuchMove) {
			firstErr, firstText = err, san
		}
	}
	return nil, mapErr(firstErr, firstText, tok)
}

func normalMove(b *rules.Board, uci string, offer bool) (domain.Intent, error) {
	san, err := b.SAN(uci)
	if err != nil {
		return nil, mapErr(err, uci, uci)
	}
	return domain.NormalMove{UCI: uci, SAN: san, OfferDraw: offer}, nil
}

func mapErr(err error, text, raw string) error {
	switch {
	case errors.Is(err, rules.ErrAmbiguous):
		return &ParseError{Text: text, Raw: raw, Kind: Ambiguous}
	case errors.Is(err, rules.ErrIllegal):
		return &ParseError{Text: text, Raw: raw, Kind: Illegal}
	default:
		return ErrNoMatch
	}
}

func trimToken(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ",.;:!?")
}

func looksUCI(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !isFile(s[0]) || !isRank(s[1]) || !isFile(s[2]) || !isRank(s[3]) {
		return false
	}
	return len(s) == 4 || strings.IndexByte("kqrbn", s[4]) >= 0
}

// normalizeCastle accepts O-O, o-o, 0-0 and their long forms.
func normalizeCastle(tok string) (string, bool) {
	body := strings.TrimRight(tok, "+#")
	suffix := tok[len(body):]
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case 'o', 'O', '0':
			return 'O'
		case '-':
			return '-'
		default:
			return -1
		}
	}, body)
	if len(mapped) != len(body) {
		return "", false
	}
	if mapped == "O-O" || mapped == "O-O-O" {
		return mapped + suffix, true
	}
	return "", false
}

// sanCandidates normalizes casing into canonical SAN. A leading lowercase b
// reads as a pawn on the b-file first and as a bishop second.
func sanCandidates(tok string) []string {
	if tok == "" {
		return nil
	}
	rest := normalizeBody(tok[1:])
	switch c := tok[0]; {
	case strings.IndexByte("KQRNkqrn", c) >= 0:
		return []string{strings.ToUpper(string(c)) + rest}
	case c == 'B':
		return []string{"B" + rest}
	case c == 'b':
		return []string{"b" + rest, "B" + rest}
	case isFile(lowerByte(c)):
		return []string{string(lowerByte(c)) + rest}
	default:
		return nil
	}
}

// normalizeBody lowercases squares and uppercases a trailing promotion piece.
func normalizeBody(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c == 'X':
			b[i] = 'x'
		case isFile(lowerByte(c)):
			b[i] = lowerByte(c)
		}
	}
	if n := len(b); n >= 2 && strings.IndexByte("qrbnQRBN", s[n-1]) >= 0 && (isRank(b[n-2]) || b[n-2] == '=') {
		b[n-1] = upperByte(s[n-1])
	}
	return string(b)
}

func isFile(c byte) bool { return c >= 'a' && c <= 'h' }
func isRank(c byte) bool { return c >= '1' && c <= '8' }

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
