package reddit

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/platform"
)

// streamMemory is how many recent comment ids the stream remembers.
const streamMemory = 2048

// PostComments returns the top-level comments of postRef in site order.
func (c *Client) PostComments(ctx context.Context, postRef string) ([]platform.Comment, error) {
	path := "/comments/" + url.PathEscape(bare(postRef)) + "?depth=1&limit=500&raw_json=1"
	body, err := c.call(ctx, fasthttp.MethodGet, path, nil, true)
	if err != nil {
		return nil, fmt.Errorf("comments of %s: %w", postRef, err)
	}
	// The response is [post listing, comment listing].
	all := parseListing(gjson.GetBytes(body, "1"), postRef)
	out := all[:0]
	for _, cm := range all {
		if cm.TopLevel() {
			out = append(out, cm)
		}
	}
	return out, nil
}

// StreamComments polls the subreddit's newest comments. Comments that exist
// when the stream starts are skipped.
func (c *Client) StreamComments(ctx context.Context, fn func(platform.Comment) error) error {
	path := "/r/" + url.PathEscape(c.subreddit) + "/comments?limit=100&raw_json=1"
	seen := newRecent(streamMemory)
	primed := false

	for {
		body, err := c.call(ctx, fasthttp.MethodGet, path, nil, true)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			c.logger.Warn("reddit_stream_poll_failed", zap.Error(err))
		default:
			batch := parseListing(gjson.ParseBytes(body), "")
			// listings are newest first
			for i := len(batch) - 1; i >= 0; i-- {
				cm := batch[i]
				if !seen.add(cm.ID) || !primed {
					continue
				}
				if err := fn(cm); err != nil {
					return err
				}
			}
			primed = true
		}
		if err := sleepWithContext(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

func parseListing(listing gjson.Result, postRef string) []platform.Comment {
	var out []platform.Comment
	listing.Get("data.children").ForEach(func(_, child gjson.Result) bool {
		if child.Get("kind").String() != "t1" {
			return true
		}
		d := child.Get("data")
		cm := platform.Comment{
			ID:             d.Get("name").String(),
			PostRef:        d.Get("link_id").String(),
			ParentRef:      d.Get("parent_id").String(),
			Author:         d.Get("author").String(),
			Body:           d.Get("body").String(),
			Score:          int(d.Get("score").Int()),
			IsThreadAuthor: d.Get("is_submitter").Bool(),
		}
		if cm.PostRef == "" {
			cm.PostRef = postRef
		}
		if cm.ID == "" {
			cm.ID = "t1_" + d.Get("id").String()
		}
		out = append(out, cm)
		return true
	})
	return out
}

// recent is a bounded set that forgets the oldest ids first.
type recent struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecent(n int) *recent {
	return &recent{ids: make(map[string]struct{}, n), ring: make([]string, n)}
}

// add reports whether id was not already present.
func (r *recent) add(id string) bool {
	if _, ok := r.ids[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.ids[id] = struct{}{}
	return true
}
