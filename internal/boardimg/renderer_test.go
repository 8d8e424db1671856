package boardimg

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/park285/chess-room/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func red(img image.Image, x, y int) uint32 {
	r, _, _, _ := img.At(x, y).RGBA()
	return r >> 8
}

func TestRenderInitialPosition(t *testing.T) {
	r := New(64)
	raw, err := r.Render(context.Background(), rules.NewChessOracle().Initial(), false)
	require.NoError(t, err)
	img := decode(t, raw)

	margin := 64 / 3
	assert.Equal(t, 64*8+margin*2, img.Bounds().Dx())
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())

	// a8 holds a black rook, a1 a white rook
	redAt := func(col, row int) uint32 {
		return red(img, margin+col*64+32, margin+row*64+48)
	}
	assert.Less(t, redAt(0, 0), uint32(80))
	assert.Greater(t, redAt(0, 7), uint32(200))
}

func TestRenderFlipped(t *testing.T) {
	r := New(64)
	raw, err := r.Render(context.Background(), rules.NewChessOracle().Initial(), true)
	require.NoError(t, err)
	img := decode(t, raw)

	margin := 64 / 3
	// top-left is h1 when viewed from black
	assert.Greater(t, red(img, margin+32, margin+48), uint32(200))
}

func TestRenderHighlightsLastMove(t *testing.T) {
	oracle := rules.NewChessOracle()
	pos, err := oracle.Play(oracle.Initial(), rules.MoveRequest{From: "e2", To: "e4"})
	require.NoError(t, err)

	r := New(64)
	plain, err := r.Render(context.Background(), oracle.Initial(), false)
	require.NoError(t, err)
	moved, err := r.Render(context.Background(), pos, false)
	require.NoError(t, err)

	margin := 64 / 3
	// corner of e4 (col 4, row 4) is outside the piece disc
	x, y := margin+4*64+2, margin+4*64+2
	a := decode(t, plain).At(x, y)
	b := decode(t, moved).At(x, y)
	assert.NotEqual(t, a, b)
}

func TestRenderEmptyPosition(t *testing.T) {
	_, err := New(0).Render(context.Background(), rules.Position{}, false)
	assert.Error(t, err)
}

func TestRenderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(32).Render(ctx, rules.NewChessOracle().Initial(), false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseSquare(t *testing.T) {
	_, ok := parseSquare("e4")
	assert.True(t, ok)
	for _, s := range []string{"", "i1", "a9", "e44"} {
		_, ok := parseSquare(s)
		assert.False(t, ok, s)
	}
}

func TestNewClampsSquareSize(t *testing.T) {
	assert.Equal(t, defaultSquare, New(0).square)
	assert.Equal(t, minSquare, New(3).square)
	assert.Equal(t, maxSquare, New(1000).square)
}
