// Package platform is the boundary to the discussion site the game is
// played on.
package platform

import (
	"context"
	"errors"
)

// ErrSubmission means the site accepted an upload but never produced a post.
var ErrSubmission = errors.New("platform: submission failed")

// Comment is one comment as the site reports it. Refs are opaque and stable.
type Comment struct {
	ID        string
	PostRef   string
	ParentRef string
	Author    string
	Body      string
	Score     int
	// IsThreadAuthor is set for comments written by the account that owns
	// the post.
	IsThreadAuthor bool
}

// TopLevel reports whether c answers the post itself rather than a comment.
func (c Comment) TopLevel() bool { return c.ParentRef == c.PostRef }

// Client is everything the game needs from the site.
type Client interface {
	SubmitImagePost(ctx context.Context, title string, png []byte) (string, error)
	Reply(ctx context.Context, parentRef, text string) error
	PostComments(ctx context.Context, postRef string) ([]Comment, error)
	// StreamComments calls fn for every comment created after the call
	// starts, until ctx is done or fn returns an error.
	StreamComments(ctx context.Context, fn func(Comment) error) error
}
