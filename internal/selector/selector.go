// Package selector picks the winning move intent from a batch of voted comments.
package selector

import (
	"github.com/park285/crowdchess/internal/comment"
	"github.com/park285/crowdchess/internal/domain"
	"github.com/park285/crowdchess/internal/rules"
)

// Comment is one audience comment on the head post.
type Comment struct {
	ID             string
	Text           string
	Score          int
	IsThreadAuthor bool
}

// Selection is the winning intent and the comment it came from.
type Selection struct {
	Intent  domain.Intent
	Comment Comment
}

// Select walks comments in order and keeps the parsed intent with the strictly
// highest score. The threshold starts at zero, so a zero score never wins and
// ties go to the earliest comment. A bare draw acceptance is only a candidate
// while drawOffered is set.
func Select(comments []Comment, b *rules.Board, drawOffered bool) (Selection, bool) {
	threshold := 0
	var (
		selected Selection
		found    bool
	)
	for _, c := range comments {
		if c.IsThreadAuthor || c.Score <= threshold {
			continue
		}
		in, err := comment.Parse(c.Text, b)
		if err != nil {
			continue
		}
		if _, accept := in.(domain.DrawAccept); accept && !drawOffered {
			continue
		}
		selected = Selection{Intent: in, Comment: c}
		threshold = c.Score
		found = true
	}
	return selected, found
}
