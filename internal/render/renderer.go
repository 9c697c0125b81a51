// Package render draws a board position as the PNG attached to each post.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"io/fs"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/crowdchess/internal/rules"
)

const (
	squareSize    = 72
	boardSize     = squareSize * 8
	sideMargin    = 36
	topMargin     = 84
	bottomMargin  = 36
	titleHeight   = 40
	panelRadius   = 12
	titlePaddingX = 24
	titleMinWidth = 240
	gapToBoard    = 22
	shadowOffsetY = 6
)

// Size of every image RenderPNG produces.
var Size = image.Pt(boardSize+sideMargin*2, boardSize+topMargin+bottomMargin)

// Options controls the HUD drawn above the board.
type Options struct {
	Title string
	// NoHighlight suppresses the last-move marker.
	NoHighlight bool
}

// Renderer draws boards.
type Renderer struct {
	face   font.Face
	pieces *pieceSet
}

type Option func(*Renderer)

// WithPieces replaces the built-in piece set. fsys holds wK.svg .. bP.svg at
// its root.
func WithPieces(fsys fs.FS) Option {
	return func(r *Renderer) {
		if fsys != nil {
			r.pieces = newPieceSet(fsys, squareSize)
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{face: basicfont.Face7x13, pieces: newPieceSet(defaultPieces(), squareSize)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) RenderPNG(ctx context.Context, b *rules.Board, opts Options) ([]byte, error) {
	if b == nil {
		return nil, errors.New("render: board is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	board := b.Position().Board()
	origin := image.Pt(sideMargin, topMargin)
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)

	img := image.NewRGBA(image.Rectangle{Max: Size})
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	r.drawTitle(img, opts.Title, boardRect)
	drawBoardShadow(img, boardRect)
	drawSquares(img, origin)
	if !opts.NoHighlight {
		if from, to, ok := lastMoveSquares(b.LastMove()); ok {
			drawHighlight(img, board, from, to, origin)
		}
	}
	if err := drawPieces(img, r.pieces, board, origin); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, origin)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	backgroundColor     = color.RGBA{246, 242, 234, 255}
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	whiteMoveHighlight  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor      = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	boardShadowColor    = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor = color.NRGBA{R: 70, G: 58, B: 44, A: 255}
)

var (
	allRanksTopToBottom = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	allFilesLeftToRight = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func (r *Renderer) drawTitle(img *image.RGBA, title string, boardRect image.Rectangle) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	drawer := &font.Drawer{Dst: img, Face: r.face}

	width := drawer.MeasureString(title).Round() + titlePaddingX*2
	if width < titleMinWidth {
		width = titleMinWidth
	}
	if width > boardRect.Dx() {
		width = boardRect.Dx()
	}
	bottom := boardRect.Min.Y - gapToBoard
	left := boardRect.Min.X + (boardRect.Dx()-width)/2
	rect := image.Rect(left, bottom-titleHeight, left+width, bottom)

	drawRoundedPanel(img, rect.Add(image.Pt(0, shadowOffsetY)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
	title = truncateWithEllipsis(r.face, title, rect.Dx()-titlePaddingX*2)
	drawCenteredString(drawer, rect, title, hudTextPrimary)
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+10, boardRect.Max.Y+12)
	imagedraw.Draw(img, shadow, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for _, rank := range allRanksTopToBottom {
		for _, file := range allFilesLeftToRight {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, squareRect(sq, origin), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, pieces *pieceSet, board *nchess.Board, origin image.Point) error {
	squares := board.SquareMap()
	for sq, piece := range squares {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := pieces.image(piece)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, origin), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawHighlight marks white moves with tinted squares and black moves with an
// arrow, so both sides stay readable on the same palette.
func drawHighlight(img *image.RGBA, board *nchess.Board, from, to nchess.Square, origin image.Point) {
	mover := board.Piece(to).Color()
	if mover == nchess.Black {
		drawArrow(img, from, to, origin, blackMoveArrow)
		return
	}
	drawSquareOverlay(img, from, origin, whiteMoveHighlight)
	drawSquareOverlay(img, to, origin, whiteMoveHighlight)
}

func lastMoveSquares(uci string) (from, to nchess.Square, ok bool) {
	if len(uci) < 4 {
		return 0, 0, false
	}
	from, ok = parseSquare(uci[0:2])
	if !ok {
		return 0, 0, false
	}
	to, ok = parseSquare(uci[2:4])
	return from, to, ok
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, origin image.Point, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, origin), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawArrow(img *image.RGBA, from, to nchess.Square, origin image.Point, clr color.Color) {
	if from == to {
		return
	}
	start := center(squareRect(from, origin))
	end := center(squareRect(to, origin))

	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - squareSize*0.45
	if baseLength < squareSize*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := squareSize * 0.18
	headWidth := squareSize * 0.32

	base := pointF{X: start.X + dirX*baseLength, Y: start.Y + dirY*baseLength}
	offset := func(p pointF, w float64) pointF { return pointF{X: p.X + perpX*w, Y: p.Y + perpY*w} }

	fillTriangleF(img, offset(start, -halfWidth), offset(start, halfWidth), offset(base, halfWidth), clr)
	fillTriangleF(img, offset(start, -halfWidth), offset(base, halfWidth), offset(base, -halfWidth), clr)
	fillTriangleF(img, end, offset(base, -headWidth/2), offset(base, headWidth/2), clr)
}

func (r *Renderer) drawCoordinates(dst imagedraw.Image, origin image.Point) {
	drawer := &font.Drawer{Dst: dst, Face: r.face, Src: image.NewUniform(coordinateTextColor)}
	ascent := r.face.Metrics().Ascent.Ceil()

	for row, rank := range allRanksTopToBottom {
		y := origin.Y + row*squareSize + squareSize/2 + ascent/2
		drawCenteredText(drawer, rank.String(), origin.X-sideMargin/2, y)
	}
	for col, file := range allFilesLeftToRight {
		x := origin.X + col*squareSize + squareSize/2
		drawCenteredText(drawer, file.String(), x, origin.Y+boardSize+ascent+4)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	const ellipsis = "..."
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius = min(radius, rect.Dx()/2, rect.Dy()/2)
	fill := image.NewUniform(clr)

	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)

	for _, c := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		drawQuarterDiscs(img, c, radius, rect, clr)
	}
}

// drawQuarterDiscs fills the disc around c, clipped to the corner region
// outside the already painted cross.
func drawQuarterDiscs(img *image.RGBA, c image.Point, radius int, rect image.Rectangle, clr color.Color) {
	inner := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	side := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			p := image.Pt(c.X+x, c.Y+y)
			if x*x+y*y > r2 || !p.In(rect) || p.In(inner) || p.In(side) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := max(rect.Min.X+(rect.Dx()-width)/2, rect.Min.X)
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	// premultiplied source over premultiplied destination
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}

func squareRect(sq nchess.Square, origin image.Point) image.Rectangle {
	x := origin.X + int(sq.File())*squareSize
	y := origin.Y + (7-int(sq.Rank()))*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

type pointF struct {
	X float64
	Y float64
}

func center(r image.Rectangle) pointF {
	return pointF{X: float64(r.Min.X+r.Max.X) / 2, Y: float64(r.Min.Y+r.Max.Y) / 2}
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(min(a.X, b.X, c.X)))
	maxX := int(math.Ceil(max(a.X, b.X, c.X)))
	minY := int(math.Floor(min(a.Y, b.Y, c.Y)))
	maxY := int(math.Ceil(max(a.Y, b.Y, c.Y)))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}
