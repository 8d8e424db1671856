package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chess-room/internal/rules"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultSquare = 64
	minSquare     = 24
	maxSquare     = 128
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	lastMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	marginColor    = color.RGBA{28, 31, 46, 255}
	coordTextColor = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	whiteLetter    = color.RGBA{34, 34, 34, 255}
	blackLetter    = color.RGBA{240, 240, 240, 255}
)

// Renderer draws positions as PNG. Safe for concurrent use.
type Renderer struct {
	square int
	margin int

	mu     sync.RWMutex
	pieces map[pieceKey]image.Image
}

type pieceKey struct {
	white bool
	size  int
}

// New returns a renderer. squareSize 0 means the default.
func New(squareSize int) *Renderer {
	if squareSize <= 0 {
		squareSize = defaultSquare
	}
	if squareSize < minSquare {
		squareSize = minSquare
	}
	if squareSize > maxSquare {
		squareSize = maxSquare
	}
	return &Renderer{square: squareSize, margin: squareSize / 3, pieces: map[pieceKey]image.Image{}}
}

// Render draws pos with white at the bottom, or black when flip is set. The last
// move's squares are tinted.
func (r *Renderer) Render(ctx context.Context, pos rules.Position, flip bool) ([]byte, error) {
	board := pos.Board()
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	boardSize := r.square * 8
	total := boardSize + r.margin*2
	origin := image.Point{X: r.margin, Y: r.margin}

	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(marginColor), image.Point{}, imagedraw.Src)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.drawSquares(img, origin, flip)
	if from, to, ok := pos.LastMove(); ok {
		for _, s := range []string{from, to} {
			if sq, ok := parseSquare(s); ok {
				imagedraw.Draw(img, r.squareRect(sq, origin, flip), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
			}
		}
	}
	if err := r.drawPieces(img, board, origin, flip); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, origin, flip)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) squareRect(sq nchess.Square, origin image.Point, flip bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flip {
		col, row = 7-col, 7-row
	}
	x := origin.X + col*r.square
	y := origin.Y + row*r.square
	return image.Rect(x, y, x+r.square, y+r.square)
}

func (r *Renderer) drawSquares(dst *image.RGBA, origin image.Point, flip bool) {
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, r.squareRect(sq, origin, flip), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func (r *Renderer) drawPieces(dst *image.RGBA, board *nchess.Board, origin image.Point, flip bool) error {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face}
	ascent := face.Metrics().Ascent.Ceil()

	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		white := piece.Color() == nchess.White
		disc, err := r.pieceDisc(white)
		if err != nil {
			return err
		}
		rect := r.squareRect(sq, origin, flip)
		imagedraw.Draw(dst, rect, disc, image.Point{}, imagedraw.Over)

		if white {
			drawer.Src = image.NewUniform(whiteLetter)
		} else {
			drawer.Src = image.NewUniform(blackLetter)
		}
		cx := rect.Min.X + r.square/2
		drawCenteredText(drawer, pieceLetter(piece.Type()), cx, rect.Min.Y+r.square/2+ascent/2)
	}
	return nil
}

func (r *Renderer) drawCoordinates(dst *image.RGBA, origin image.Point, flip bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordTextColor)}
	ascent := face.Metrics().Ascent.Ceil()

	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		rect := r.squareRect(nchess.NewSquare(nchess.FileA, rank), origin, flip)
		drawCenteredText(drawer, rank.String(), origin.X-r.margin/2, rect.Min.Y+r.square/2+ascent/2)
	}
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		rect := r.squareRect(nchess.NewSquare(file, nchess.Rank1), origin, flip)
		drawCenteredText(drawer, file.String(), rect.Min.X+r.square/2, origin.Y+r.square*8+r.margin/2+ascent/2)
	}
}

// pieceDisc rasterizes the round piece token for one color, cached per size.
func (r *Renderer) pieceDisc(white bool) (image.Image, error) {
	key := pieceKey{white: white, size: r.square}
	r.mu.RLock()
	if img, ok := r.pieces[key]; ok {
		r.mu.RUnlock()
		return img, nil
	}
	r.mu.RUnlock()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(discSVG(white)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	size := r.square
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	r.mu.Lock()
	r.pieces[key] = img
	r.mu.Unlock()
	return img, nil
}

func discSVG(white bool) []byte {
	fill, stroke := "#f6f1e7", "#2a2a2a"
	if !white {
		fill, stroke = "#2a2a2a", "#f6f1e7"
	}
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">`+
		`<circle cx="50" cy="50" r="36" fill="%s" stroke="%s" stroke-width="5"/></svg>`, fill, stroke))
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "K"
	case nchess.Queen:
		return "Q"
	case nchess.Rook:
		return "R"
	case nchess.Bishop:
		return "B"
	case nchess.Knight:
		return "N"
	case nchess.Pawn:
		return "P"
	}
	return "?"
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
