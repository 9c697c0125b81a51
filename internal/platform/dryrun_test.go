package platform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDryRun(t *testing.T) {
	d := NewDryRun(nil)
	ctx := context.Background()

	a, err := d.SubmitImagePost(ctx, "title", []byte{1, 2})
	require.NoError(t, err)
	b, err := d.SubmitImagePost(ctx, "title", nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(a, "dryrun_"))
	require.NotEqual(t, a, b)

	require.NoError(t, d.Reply(ctx, a, "hi"))
	cs, err := d.PostComments(ctx, a)
	require.NoError(t, err)
	require.Empty(t, cs)

	sctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.StreamComments(sctx, nil), context.DeadlineExceeded)
}

func TestCommentTopLevel(t *testing.T) {
	require.True(t, Comment{PostRef: "t3_a", ParentRef: "t3_a"}.TopLevel())
	require.False(t, Comment{PostRef: "t3_a", ParentRef: "t1_b"}.TopLevel())
}
