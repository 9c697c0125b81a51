package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/crowdchess/internal/comment"
	"github.com/park285/crowdchess/internal/domain"
)

func TestReply(t *testing.T) {
	c := MustDefault()
	cases := []struct {
		in      domain.Intent
		err     error
		offered bool
		want    string
	}{
		{domain.NormalMove{UCI: "g1f3", SAN: "Nf3"}, nil, false, "I found the move Nf3 in your comment."},
		{domain.NormalMove{UCI: "e2e4", SAN: "e4", OfferDraw: true}, nil, false, "I found the move e4 with a draw offer in your comment."},
		{domain.Resign{}, nil, false, "I found the suggestion to resign in your comment."},
		{domain.DrawAccept{}, nil, true, "I found the suggestion to accept a draw."},
		{domain.DrawAccept{}, nil, false, "Since the opponent hasn't offered a draw, I need you to also offer a move in case they don't accept."},
		{nil, comment.ErrNoMatch, false, "I did not find a valid move in your comment. Make sure to put valid SAN or UCI notation in the first line to suggest a move."},
		{nil, &comment.ParseError{Text: "Ke2", Kind: comment.Illegal}, false, "The move Ke2 is illegal."},
		{nil, &comment.ParseError{Text: "Ne2", Kind: comment.Ambiguous}, false, "The move Ne2 is ambiguous."},
	}
	for _, tc := range cases {
		got, err := c.Reply(tc.in, tc.err, tc.offered)
		if err != nil {
			t.Fatalf("Reply(%v,%v): %v", tc.in, tc.err, err)
		}
		if got != tc.want {
			t.Fatalf("Reply(%v,%v)=%q want %q", tc.in, tc.err, got, tc.want)
		}
	}
}

func TestTitle(t *testing.T) {
	c := MustDefault()
	cases := []struct {
		o       domain.Outcome
		ply     int
		offered bool
		want    string
	}{
		{domain.Ongoing, 0, false, "Move 1, white to play"},
		{domain.Ongoing, 1, true, "Move 1, black to play, white offers a draw"},
		{domain.Ongoing, 6, false, "Move 4, white to play"},
		{domain.VictoryWhite, 9, false, "White checkmate"},
		{domain.VictoryBlack, 4, false, "Black checkmate"},
		{domain.Stalemate, 40, false, "Stalemate"},
		{domain.Draw, 40, false, "Draw"},
		{domain.ResignationWhite, 2, false, "White resigns"},
		{domain.ResignationBlack, 3, false, "Black resigns"},
	}
	for _, tc := range cases {
		got, err := c.Title(tc.o, tc.ply, tc.offered)
		if err != nil || got != tc.want {
			t.Fatalf("Title(%s,%d,%v)=%q,%v want %q", tc.o, tc.ply, tc.offered, got, err, tc.want)
		}
	}
	if _, err := c.Title(domain.Outcome(0), 0, false); err == nil {
		t.Fatalf("expected error for invalid outcome")
	}
}

func TestTranscript(t *testing.T) {
	c := MustDefault()
	got, err := c.Transcript("1. e4 *", "fen-here", "", "")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if got != "PGN:\n\n1. e4 *\n\nFEN:\n\nfen-here" {
		t.Fatalf("unexpected transcript %q", got)
	}
	got, err = c.Transcript("1. e4 *", "f", "B00", "King's Pawn")
	if err != nil || !strings.HasSuffix(got, "Opening: B00 King's Pawn") {
		t.Fatalf("opening line missing: %q %v", got, err)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("title:\n  draw: \"Drawn game\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Title(domain.Draw, 0, false); got != "Drawn game" {
		t.Fatalf("override not applied: %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("title:\n  draw: \"again\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
