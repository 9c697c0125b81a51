// Package publish turns a game snapshot into a post: a rendered board, a
// title and a transcript reply.
package publish

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/gamestate"
	"github.com/park285/crowdchess/internal/msgcat"
	"github.com/park285/crowdchess/internal/platform"
	"github.com/park285/crowdchess/internal/render"
	"github.com/park285/crowdchess/internal/rules"
)

type Publisher struct {
	client   platform.Client
	renderer *render.Renderer
	catalog  *msgcat.Catalog
	logger   *zap.Logger
}

var _ gamestate.Publisher = (*Publisher)(nil)

func New(client platform.Client, renderer *render.Renderer, catalog *msgcat.Catalog, logger *zap.Logger) *Publisher {
	if renderer == nil {
		renderer = render.New()
	}
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, renderer: renderer, catalog: catalog, logger: logger}
}

// Publish submits s and returns the new post's reference. A failed
// transcript reply is logged and does not fail the publish.
func (p *Publisher) Publish(ctx context.Context, s gamestate.Snapshot) (string, error) {
	title, err := p.catalog.Title(s.Outcome, s.Board.Ply(), s.DrawOffered)
	if err != nil {
		return "", fmt.Errorf("title: %w", err)
	}
	png, err := p.renderer.RenderPNG(ctx, s.Board, render.Options{Title: title})
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	ref, err := p.client.SubmitImagePost(ctx, title, png)
	if err != nil {
		return "", err
	}

	code, name := s.Board.Opening()
	text, err := p.catalog.Transcript(s.Board.Transcript(rules.ResultToken(s.Outcome)), s.Board.FEN(), code, name)
	if err != nil {
		p.logger.Warn("transcript_render_failed", zap.String("post_ref", ref), zap.Error(err))
		return ref, nil
	}
	if err := p.client.Reply(ctx, ref, text); err != nil {
		p.logger.Warn("transcript_reply_failed", zap.String("post_ref", ref), zap.Error(err))
	}
	p.logger.Info("post_published",
		zap.String("post_ref", ref),
		zap.String("title", title),
		zap.Int("ply", s.Board.Ply()),
	)
	return ref, nil
}
