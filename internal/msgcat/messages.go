package msgcat

import (
	"errors"
	"fmt"

	"github.com/park285/crowdchess/internal/comment"
	"github.com/park285/crowdchess/internal/domain"
)

// Reply renders the answer to a comment given what the parser made of it.
// drawOffered reports whether the last move in the game carried a draw offer.
func (c *Catalog) Reply(in domain.Intent, parseErr error, drawOffered bool) (string, error) {
	if parseErr != nil {
		var pe *comment.ParseError
		if errors.As(parseErr, &pe) {
			return c.Render("reply.parse_error", map[string]any{"Move": pe.Text, "Kind": pe.Kind.String()})
		}
		if errors.Is(parseErr, comment.ErrNoMatch) {
			return c.Render("reply.no_match", nil)
		}
		return "", fmt.Errorf("unexpected parse error: %w", parseErr)
	}
	switch v := in.(type) {
	case domain.NormalMove:
		name := v.SAN
		if name == "" {
			name = v.UCI
		}
		if v.OfferDraw {
			return c.Render("reply.move_with_draw", map[string]any{"Move": name})
		}
		return c.Render("reply.move", map[string]any{"Move": name})
	case domain.Resign:
		return c.Render("reply.resign", nil)
	case domain.DrawAccept:
		if drawOffered {
			return c.Render("reply.draw_accept", nil)
		}
		return c.Render("reply.draw_without_offer", nil)
	default:
		return "", fmt.Errorf("unknown intent %T", in)
	}
}

// Title renders the post title for a game state at ply half-moves.
func (c *Catalog) Title(o domain.Outcome, ply int, drawOffered bool) (string, error) {
	switch o {
	case domain.Ongoing:
		side := domain.SideToMove(ply)
		data := map[string]any{
			"Number":   ply/2 + 1,
			"Side":     side.String(),
			"Opponent": side.Opponent().String(),
		}
		if drawOffered {
			return c.Render("title.ongoing_draw_offer", data)
		}
		return c.Render("title.ongoing", data)
	case domain.VictoryWhite, domain.VictoryBlack, domain.Stalemate, domain.Draw,
		domain.ResignationWhite, domain.ResignationBlack:
		return c.Render("title."+o.String(), nil)
	default:
		return "", fmt.Errorf("no title for outcome %d", int(o))
	}
}

// Transcript renders the reply attached to every published post.
func (c *Catalog) Transcript(pgn, fen, ecoCode, ecoTitle string) (string, error) {
	body, err := c.Render("transcript.body", map[string]any{"PGN": pgn, "FEN": fen})
	if err != nil {
		return "", err
	}
	if ecoCode == "" {
		return body, nil
	}
	opening, err := c.Render("transcript.opening", map[string]any{"Code": ecoCode, "Title": ecoTitle})
	if err != nil {
		return "", err
	}
	return body + "\n\n" + opening, nil
}
