package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/crowdchess/internal/platform"
)

type stubClient struct {
	platform.DryRun
	comments []platform.Comment
	err      error
}

func (s *stubClient) PostComments(context.Context, string) ([]platform.Comment, error) {
	return s.comments, s.err
}

func TestCheck(t *testing.T) {
	c := &stubClient{DryRun: *platform.NewDryRun(nil), comments: []platform.Comment{{ID: "t1_a", Body: "e4"}}}
	require.NoError(t, check(context.Background(), c, "t3_x", 20*time.Millisecond))

	c.err = errors.New("boom")
	require.ErrorContains(t, check(context.Background(), c, "t3_x", 0), "boom")

	// no post and no window is a no-op
	require.NoError(t, check(context.Background(), c, "", 0))
}
