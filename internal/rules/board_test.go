package rules

import (
	"errors"
	"testing"

	"github.com/park285/crowdchess/internal/domain"
)

func playSAN(t *testing.T, b *Board, moves ...string) {
	t.Helper()
	for _, san := range moves {
		uci, err := b.ParseSAN(san)
		if err != nil {
			t.Fatalf("ParseSAN(%s): %v", san, err)
		}
		if err := b.ApplyUCI(uci); err != nil {
			t.Fatalf("ApplyUCI(%s): %v", uci, err)
		}
	}
}

func TestParseSAN_Basic(t *testing.T) {
	b := NewBoard()
	cases := map[string]string{
		"e4":  "e2e4",
		"Nf3": "g1f3",
		"Nc3": "b1c3",
		"a3":  "a2a3",
	}
	for san, want := range cases {
		got, err := b.ParseSAN(san)
		if err != nil || got != want {
			t.Fatalf("ParseSAN(%s)=%q,%v want %q", san, got, err, want)
		}
	}
}

func TestParseSAN_Errors(t *testing.T) {
	b := NewBoard()
	if _, err := b.ParseSAN("Ke2"); !errors.Is(err, ErrIllegal) {
		t.Fatalf("Ke2 on the initial board: want illegal, got %v", err)
	}
	if _, err := b.ParseSAN("Zz9"); !errors.Is(err, ErrNoSuchMove) {
		t.Fatalf("garbage: want no such move, got %v", err)
	}

	playSAN(t, b, "e3", "e6", "Nc3", "e5")
	if _, err := b.ParseSAN("Ne2"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("Ne2: want ambiguous, got %v", err)
	}
	if uci, err := b.ParseSAN("Nge2"); err != nil || uci != "g1e2" {
		t.Fatalf("Nge2: got %q, %v", uci, err)
	}
}

func TestParseSAN_CaptureAndCastle(t *testing.T) {
	b := NewBoard()
	playSAN(t, b, "e4", "d5")
	if uci, err := b.ParseSAN("exd5"); err != nil || uci != "e4d5" {
		t.Fatalf("exd5: got %q, %v", uci, err)
	}
	// no capture mark: the decoder rejects it, the legal-move match does not
	if uci, err := b.ParseSAN("ed5"); err != nil || uci != "e4d5" {
		t.Fatalf("ed5: got %q, %v", uci, err)
	}
	if uci, err := b.ParseSAN("Nf3+"); err != nil || uci != "g1f3" {
		t.Fatalf("Nf3+: got %q, %v", uci, err)
	}
	playSAN(t, b, "exd5", "Qxd5", "Nf3", "Qe6+", "Be2", "Qe4", "O-O")
	if b.LastMove() != "e1g1" {
		t.Fatalf("expected castling move e1g1, got %s", b.LastMove())
	}
}

func TestParseSAN_Promotion(t *testing.T) {
	b := NewBoard()
	playSAN(t, b, "a4", "b5", "axb5", "a6", "bxa6", "Bb7", "axb7", "Nc6")
	for _, san := range []string{"bxa8=Q", "bxa8Q"} {
		if uci, err := b.ParseSAN(san); err != nil || uci != "b7a8q" {
			t.Fatalf("%s: got %q, %v", san, uci, err)
		}
	}
}

func TestParseUCI(t *testing.T) {
	b := NewBoard()
	if uci, err := b.ParseUCI("G1F3"); err != nil || uci != "g1f3" {
		t.Fatalf("ParseUCI: %q %v", uci, err)
	}
	if _, err := b.ParseUCI("e2e5"); !errors.Is(err, ErrIllegal) {
		t.Fatalf("e2e5 should be illegal, got %v", err)
	}
	if _, err := b.ParseUCI("hello"); !errors.Is(err, ErrNoSuchMove) {
		t.Fatalf("hello should not be a move, got %v", err)
	}
}

func TestPopAndReplay(t *testing.T) {
	b := NewBoard()
	playSAN(t, b, "e4", "e5", "Nf3")
	before := b.FEN()
	playSAN(t, b, "Nc6")
	if !b.Pop() {
		t.Fatalf("pop failed")
	}
	if b.FEN() != before || b.Ply() != 3 {
		t.Fatalf("pop did not restore position: %s", b.FEN())
	}

	var moves []domain.Move
	for _, u := range b.Moves() {
		moves = append(moves, domain.Move{UCI: u})
	}
	r, err := Replay(moves)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if r.FEN() != b.FEN() {
		t.Fatalf("replay mismatch: %s vs %s", r.FEN(), b.FEN())
	}
	if r.Turn() != domain.Black {
		t.Fatalf("expected black to move")
	}

	if _, err := Replay([]domain.Move{{UCI: "e2e5"}}); err == nil {
		t.Fatalf("expected replay of an illegal move to fail")
	}
	empty := NewBoard()
	if empty.Pop() {
		t.Fatalf("pop on empty board must report false")
	}
}

func TestTerminal_FoolsMate(t *testing.T) {
	b := NewBoard()
	playSAN(t, b, "f3", "e5", "g4")
	if got := b.Terminal(); got.Kind != NotTerminal {
		t.Fatalf("premature terminal: %+v", got)
	}
	playSAN(t, b, "Qh4#")
	got := b.Terminal()
	if got.Kind != Checkmate || got.Winner != domain.Black {
		t.Fatalf("expected black checkmate, got %+v", got)
	}
}

func TestTranscript(t *testing.T) {
	b := NewBoard()
	if got := b.Transcript(""); got != "*" {
		t.Fatalf("empty transcript: %q", got)
	}
	playSAN(t, b, "e4", "e5", "Nf3")
	got := b.Transcript("*")
	if got != "1. e4 e5 2. Nf3 *" {
		t.Fatalf("transcript: %q", got)
	}
	if code, title := b.Opening(); code == "" || title == "" {
		t.Fatalf("expected an opening name for 1. e4 e5 2. Nf3")
	}
}

func TestResultToken(t *testing.T) {
	if ResultToken(domain.ResignationWhite) != "0-1" || ResultToken(domain.Stalemate) != "1/2-1/2" || ResultToken(domain.Ongoing) != "*" {
		t.Fatalf("unexpected result tokens")
	}
}
