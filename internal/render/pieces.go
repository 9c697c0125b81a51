package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"io/fs"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var embeddedPieces embed.FS

// pieceFiles maps each piece to its file in a piece set directory.
var pieceFiles = map[nchess.Piece]string{
	nchess.WhiteKing: "wK.svg", nchess.WhiteQueen: "wQ.svg", nchess.WhiteRook: "wR.svg",
	nchess.WhiteBishop: "wB.svg", nchess.WhiteKnight: "wN.svg", nchess.WhitePawn: "wP.svg",
	nchess.BlackKing: "bK.svg", nchess.BlackQueen: "bQ.svg", nchess.BlackRook: "bR.svg",
	nchess.BlackBishop: "bB.svg", nchess.BlackKnight: "bN.svg", nchess.BlackPawn: "bP.svg",
}

// pieceSet rasterises a directory of SVG pieces once, at one square size.
type pieceSet struct {
	fsys fs.FS
	size int

	once   sync.Once
	images map[nchess.Piece]image.Image
	err    error
}

func defaultPieces() fs.FS {
	sub, err := fs.Sub(embeddedPieces, "assets/pieces")
	if err != nil {
		panic(err)
	}
	return sub
}

func newPieceSet(fsys fs.FS, size int) *pieceSet {
	return &pieceSet{fsys: fsys, size: size}
}

// image returns the raster for p. The first call loads the whole set, so a
// broken file fails the first render rather than a later one.
func (s *pieceSet) image(p nchess.Piece) (image.Image, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	img, ok := s.images[p]
	if !ok {
		return nil, fmt.Errorf("render: no image for piece %v", p)
	}
	return img, nil
}

func (s *pieceSet) load() {
	images := make(map[nchess.Piece]image.Image, len(pieceFiles))
	for p, name := range pieceFiles {
		data, err := fs.ReadFile(s.fsys, name)
		if err != nil {
			s.err = fmt.Errorf("render: read piece %s: %w", name, err)
			return
		}
		img, err := rasterizeSVG(data, s.size)
		if err != nil {
			s.err = fmt.Errorf("render: piece %s: %w", name, err)
			return
		}
		images[p] = img
	}
	s.images = images
}

func rasterizeSVG(data []byte, size int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(normalizeStyle(data)))
	if err != nil {
		return nil, err
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)
	return img, nil
}

// normalizeStyle drops the space after "prop:" in inline styles; oksvg does
// not accept "fill: #fff".
func normalizeStyle(svg []byte) []byte {
	for _, prop := range []string{"fill", "stroke", "stroke-width", "stop-color"} {
		svg = bytes.ReplaceAll(svg, []byte(prop+": "), []byte(prop+":"))
	}
	return svg
}
