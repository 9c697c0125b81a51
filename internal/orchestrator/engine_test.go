package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/domain"
	"github.com/park285/crowdchess/internal/gamestate"
	"github.com/park285/crowdchess/internal/ledger"
	"github.com/park285/crowdchess/internal/platform"
	"github.com/park285/crowdchess/internal/schedule"
)

type fakePlatform struct {
	mu       sync.Mutex
	comments map[string][]platform.Comment
	replies  map[string]string
	stream   []platform.Comment
}

func (f *fakePlatform) SubmitImagePost(context.Context, string, []byte) (string, error) {
	return "", fmt.Errorf("unused")
}

func (f *fakePlatform) Reply(_ context.Context, parent, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = map[string]string{}
	}
	f.replies[parent] = text
	return nil
}

func (f *fakePlatform) PostComments(_ context.Context, postRef string) ([]platform.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Comment(nil), f.comments[postRef]...), nil
}

func (f *fakePlatform) StreamComments(ctx context.Context, fn func(platform.Comment) error) error {
	for _, c := range f.stream {
		if err := fn(c); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePlatform) reply(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.replies[id]
	return s, ok
}

type fakePublisher struct {
	mu sync.Mutex
	n  int
}

func (p *fakePublisher) Publish(context.Context, gamestate.Snapshot) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return fmt.Sprintf("t3_post%d", p.n), nil
}

func top(post, id, body string, score int) platform.Comment {
	return platform.Comment{ID: id, PostRef: post, ParentRef: post, Body: body, Score: score}
}

func newEngine(t *testing.T, fp *fakePlatform, cad schedule.Cadence) (*Engine, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	l, boot, err := ledger.Open(ctx, ledger.Options{Location: filepath.Join(t.TempDir(), "cc.db")})
	require.NoError(t, err)
	require.Equal(t, ledger.NeedsInitialPost, boot)
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.InsertPost(ctx, "t3_seed"))

	if cad == nil {
		cad = schedule.Interval{Every: time.Hour}
	}
	e, err := New(Deps{Store: l, Platform: fp, Publisher: &fakePublisher{}, Cadence: cad, Logger: zap.NewNop()})
	require.NoError(t, err)
	return e, l
}

func TestHandleMove_SelectsHighestScore(t *testing.T) {
	fp := &fakePlatform{comments: map[string][]platform.Comment{
		"t3_seed": {top("t3_seed", "t1_a", "e4", 5), top("t3_seed", "t1_b", "d4", 2)},
	}}
	e, l := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))

	require.NoError(t, e.handleMove(ctx, zap.NewNop()))

	moves, err := l.Moves(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Move{{UCI: "e2e4"}}, moves)
	head, err := l.PreviousPost(ctx)
	require.NoError(t, err)
	require.Equal(t, "t3_post1", head)
	require.Equal(t, "t3_post1", *e.head.Load())
	require.Equal(t, 1, e.Board().Ply())
}

func TestHandleMove_NothingSelected(t *testing.T) {
	fp := &fakePlatform{comments: map[string][]platform.Comment{
		"t3_seed": {
			top("t3_seed", "t1_a", "e4", 0),
			{ID: "t1_b", PostRef: "t3_seed", ParentRef: "t3_seed", Body: "d4", Score: 9, IsThreadAuthor: true},
			{ID: "t1_c", PostRef: "t3_seed", ParentRef: "t1_a", Body: "c4", Score: 9},
		},
	}}
	e, l := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))

	require.NoError(t, e.handleMove(ctx, zap.NewNop()))
	moves, err := l.Moves(ctx)
	require.NoError(t, err)
	require.Empty(t, moves)
	require.Equal(t, 0, e.Board().Ply())
}

func TestHandleMove_BareDrawWithoutOfferDoesNotBlock(t *testing.T) {
	fp := &fakePlatform{comments: map[string][]platform.Comment{
		"t3_seed": {top("t3_seed", "t1_a", "draw", 5), top("t3_seed", "t1_b", "e4", 3)},
	}}
	e, l := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))

	require.NoError(t, e.handleMove(ctx, zap.NewNop()))
	moves, err := l.Moves(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Move{{UCI: "e2e4"}}, moves)
	require.Equal(t, 1, e.Board().Ply())
}

func TestHandleMove_DrawAcceptedAfterOffer(t *testing.T) {
	fp := &fakePlatform{comments: map[string][]platform.Comment{
		"t3_seed":  {top("t3_seed", "t1_a", "e4 draw", 5)},
		"t3_post1": {top("t3_post1", "t1_b", "draw", 4), top("t3_post1", "t1_c", "e5", 2)},
	}}
	e, l := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))

	require.NoError(t, e.handleMove(ctx, zap.NewNop()))
	require.NoError(t, e.handleMove(ctx, zap.NewNop()))

	closed, err := l.GameByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.Draw, closed.Outcome)
	moves, err := l.Moves(ctx)
	require.NoError(t, err)
	require.Empty(t, moves)
	require.Equal(t, 0, e.Board().Ply())
}

func TestRestore_ReplaysLedger(t *testing.T) {
	fp := &fakePlatform{comments: map[string][]platform.Comment{
		"t3_seed":  {top("t3_seed", "t1_a", "e4", 3)},
		"t3_post1": {top("t3_post1", "t1_b", "e5", 3)},
	}}
	e, l := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))
	require.NoError(t, e.handleMove(ctx, zap.NewNop()))
	require.NoError(t, e.handleMove(ctx, zap.NewNop()))
	fen := e.Board().FEN()

	again, err := New(Deps{Store: l, Platform: fp, Publisher: &fakePublisher{}, Cadence: schedule.Interval{Every: time.Hour}})
	require.NoError(t, err)
	require.NoError(t, again.Restore(ctx))
	require.Equal(t, fen, again.Board().FEN())
	require.Equal(t, "t3_post2", *again.head.Load())
}

func TestHandleReply(t *testing.T) {
	fp := &fakePlatform{}
	e, _ := newEngine(t, fp, nil)
	ctx := context.Background()
	require.NoError(t, e.Restore(ctx))

	require.NoError(t, e.handleReply(ctx, top("t3_seed", "t1_a", "Nf3 draw", 1), zap.NewNop()))
	got, ok := fp.reply("t1_a")
	require.True(t, ok)
	require.Equal(t, "I found the move Nf3 with a draw offer in your comment.", got)

	require.NoError(t, e.handleReply(ctx, top("t3_seed", "t1_b", "Ke2", 1), zap.NewNop()))
	got, _ = fp.reply("t1_b")
	require.Equal(t, "The move Ke2 is illegal.", got)

	// answered once only
	fp.replies = nil
	require.NoError(t, e.handleReply(ctx, top("t3_seed", "t1_a", "Nf3", 1), zap.NewNop()))
	_, ok = fp.reply("t1_a")
	require.False(t, ok)

	// comments on an older post are not answered against the new board
	require.NoError(t, e.handleReply(ctx, top("t3_old", "t1_c", "e4", 1), zap.NewNop()))
	_, ok = fp.reply("t1_c")
	require.False(t, ok)
}

func TestRelevant(t *testing.T) {
	e, _ := newEngine(t, &fakePlatform{}, nil)
	require.False(t, e.relevant(top("t3_seed", "t1_a", "e4", 1)))

	require.NoError(t, e.Restore(context.Background()))
	require.True(t, e.relevant(top("t3_seed", "t1_a", "e4", 1)))
	require.False(t, e.relevant(top("t3_other", "t1_a", "e4", 1)))
	require.False(t, e.relevant(platform.Comment{ID: "t1_b", PostRef: "t3_seed", ParentRef: "t1_a"}))
	require.False(t, e.relevant(platform.Comment{ID: "t1_c", PostRef: "t3_seed", ParentRef: "t3_seed", IsThreadAuthor: true}))
}

func TestSeedInitialPost(t *testing.T) {
	ctx := context.Background()
	l, boot, err := ledger.Open(ctx, ledger.Options{Location: filepath.Join(t.TempDir(), "cc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	require.Equal(t, ledger.NeedsInitialPost, boot)

	e, err := New(Deps{Store: l, Platform: &fakePlatform{}, Publisher: &fakePublisher{}, Cadence: schedule.Interval{Every: time.Hour}})
	require.NoError(t, err)
	ref, err := e.SeedInitialPost(ctx)
	require.NoError(t, err)

	head, err := l.PreviousPost(ctx)
	require.NoError(t, err)
	require.Equal(t, ref, head)
}

func TestRun_EndToEnd(t *testing.T) {
	fp := &fakePlatform{
		comments: map[string][]platform.Comment{"t3_seed": {top("t3_seed", "t1_a", "e4", 5), top("t3_seed", "t1_b", "d4", 2)}},
		stream:   []platform.Comment{top("t3_seed", "t1_a", "e4", 5), top("t3_elsewhere", "t1_z", "e4", 5)},
	}
	e, l := newEngine(t, fp, schedule.Interval{Every: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		moves, err := l.Moves(context.Background())
		return err == nil && len(moves) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := fp.reply("t1_a")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	_, ok := fp.reply("t1_z")
	require.False(t, ok)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}
