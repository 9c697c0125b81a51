package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/require"

	"github.com/park285/crowdchess/internal/rules"
)

func TestRenderPNG_StartPosition(t *testing.T) {
	r := New()
	data, err := r.RenderPNG(context.Background(), rules.NewBoard(), Options{Title: "Move 1, white to play"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, Size, img.Bounds().Size())
}

func TestRenderPNG_HighlightsLastMove(t *testing.T) {
	b := rules.NewBoard()
	require.NoError(t, b.ApplyUCI("e2e4"))

	r := New()
	plain, err := r.RenderPNG(context.Background(), b, Options{NoHighlight: true})
	require.NoError(t, err)
	marked, err := r.RenderPNG(context.Background(), b, Options{})
	require.NoError(t, err)
	require.NotEqual(t, plain, marked)

	before, err := png.Decode(bytes.NewReader(plain))
	require.NoError(t, err)
	after, err := png.Decode(bytes.NewReader(marked))
	require.NoError(t, err)
	e2 := squareRect(nchess.NewSquare(nchess.FileE, nchess.Rank2), image.Pt(sideMargin, topMargin))
	require.NotEqual(t, before.At(e2.Min.X+2, e2.Min.Y+2), after.At(e2.Min.X+2, e2.Min.Y+2))
}

func TestRenderPNG_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().RenderPNG(ctx, rules.NewBoard(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLastMoveSquares(t *testing.T) {
	from, to, ok := lastMoveSquares("g7g8q")
	require.True(t, ok)
	require.Equal(t, nchess.NewSquare(nchess.FileG, nchess.Rank7), from)
	require.Equal(t, nchess.NewSquare(nchess.FileG, nchess.Rank8), to)

	_, _, ok = lastMoveSquares("")
	require.False(t, ok)
	_, _, ok = lastMoveSquares("z9a1")
	require.False(t, ok)
}

func TestPieceSet_EmbeddedLoads(t *testing.T) {
	set := newPieceSet(defaultPieces(), 32)
	for p := range pieceFiles {
		img, err := set.image(p)
		require.NoError(t, err, pieceFiles[p])
		require.Equal(t, 32, img.Bounds().Dx())
	}
	_, err := set.image(nchess.NoPiece)
	require.Error(t, err)
}

func TestWithPieces_Override(t *testing.T) {
	override := fstest.MapFS{}
	for _, name := range pieceFiles {
		data, err := fs.ReadFile(defaultPieces(), name)
		require.NoError(t, err)
		override[name] = &fstest.MapFile{Data: data}
	}
	override["wK.svg"] = &fstest.MapFile{Data: []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45">` +
		`<rect x="0" y="0" width="45" height="45" style="fill: #ff0000; stroke: #000000; stroke-width: 1"/></svg>`)}

	r := New(WithPieces(override))
	_, err := r.RenderPNG(context.Background(), rules.NewBoard(), Options{})
	require.NoError(t, err)

	img, err := r.pieces.image(nchess.WhiteKing)
	require.NoError(t, err)
	red, _, _, _ := img.At(squareSize/2, squareSize/2).RGBA()
	require.Greater(t, red, uint32(0x8000))

	delete(override, "bP.svg")
	_, err = New(WithPieces(override)).RenderPNG(context.Background(), rules.NewBoard(), Options{})
	require.ErrorContains(t, err, "bP.svg")
}
