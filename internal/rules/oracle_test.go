package rules

import (
	"errors"
	"testing"
)

func play(t *testing.T, o Oracle, pos Position, moves ...[2]string) Position {
	t.Helper()
	for _, m := range moves {
		next, err := o.Play(pos, MoveRequest{From: m[0], To: m[1]})
		if err != nil {
			t.Fatalf("play %s%s: %v", m[0], m[1], err)
		}
		pos = next
	}
	return pos
}

func TestPlayLegalMoveAdvancesTurn(t *testing.T) {
	o := NewChessOracle()
	start := o.Initial()
	if start.Turn() != White {
		t.Fatalf("expected white to move, got %s", start.Turn())
	}
	next := play(t, o, start, [2]string{"e2", "e4"})
	if next.Turn() != Black {
		t.Fatalf("expected black to move, got %s", next.Turn())
	}
	if start.FEN() == next.FEN() {
		t.Fatalf("position did not change")
	}
	from, to, ok := next.LastMove()
	if !ok || from != "e2" || to != "e4" {
		t.Fatalf("unexpected last move %q %q %v", from, to, ok)
	}
	if got := next.MovesUCI(); len(got) != 1 || got[0] != "e2e4" {
		t.Fatalf("unexpected uci list %v", got)
	}
}

func TestPlayIllegalMoveLeavesPositionUntouched(t *testing.T) {
	o := NewChessOracle()
	start := o.Initial()
	before := start.FEN()
	cases := []MoveRequest{
		{From: "e2", To: "e5"},
		{From: "e7", To: "e5"},
		{From: "z9", To: "e4"},
		{From: "e2", To: "e4x"},
		{From: "", To: ""},
		{From: "e2", To: "e4", Promotion: "k"},
	}
	for _, c := range cases {
		if _, err := o.Play(start, c); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%+v: expected ErrIllegalMove, got %v", c, err)
		}
	}
	if start.FEN() != before {
		t.Fatalf("start position mutated")
	}
}

func TestPlayDoesNotMutateInput(t *testing.T) {
	o := NewChessOracle()
	a := play(t, o, o.Initial(), [2]string{"d2", "d4"})
	fen := a.FEN()
	_ = play(t, o, a, [2]string{"d7", "d5"})
	if a.FEN() != fen {
		t.Fatalf("input position changed after Play")
	}
}

func TestFoolsMateIsCheckmateForBlack(t *testing.T) {
	o := NewChessOracle()
	pos := play(t, o, o.Initial(),
		[2]string{"f2", "f3"},
		[2]string{"e7", "e5"},
		[2]string{"g2", "g4"},
		[2]string{"d8", "h4"},
	)
	v := o.Verdict(pos)
	if !v.Over || !v.Checkmate || v.Draw {
		t.Fatalf("expected checkmate verdict, got %+v", v)
	}
	if v.Winner != Black {
		t.Fatalf("expected black to win, got %q", v.Winner)
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	o := NewChessOracle()
	pos := play(t, o, o.Initial(),
		[2]string{"h2", "h4"},
		[2]string{"g7", "g5"},
		[2]string{"h4", "g5"},
		[2]string{"g8", "f6"},
		[2]string{"g5", "g6"},
		[2]string{"f6", "e4"},
		[2]string{"g6", "g7"},
		[2]string{"e4", "d6"},
	)
	next, err := o.Play(pos, MoveRequest{From: "g7", To: "h8"})
	if err != nil {
		t.Fatalf("promotion: %v", err)
	}
	uci := next.MovesUCI()
	if uci[len(uci)-1] != "g7h8q" {
		t.Fatalf("expected queen promotion, got %s", uci[len(uci)-1])
	}

	under, err := o.Play(pos, MoveRequest{From: "g7", To: "h8", Promotion: "N"})
	if err != nil {
		t.Fatalf("underpromotion: %v", err)
	}
	uci = under.MovesUCI()
	if uci[len(uci)-1] != "g7h8n" {
		t.Fatalf("expected knight promotion, got %s", uci[len(uci)-1])
	}
}

func TestPromotionLetterIgnoredForNormalMoves(t *testing.T) {
	o := NewChessOracle()
	next, err := o.Play(o.Initial(), MoveRequest{From: "e2", To: "e4", Promotion: "r"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if got := next.MovesUCI()[0]; got != "e2e4" {
		t.Fatalf("unexpected uci %s", got)
	}
}

func TestVerdictOngoing(t *testing.T) {
	o := NewChessOracle()
	if v := o.Verdict(o.Initial()); v.Over {
		t.Fatalf("start position reported over: %+v", v)
	}
}

func TestSideHelpers(t *testing.T) {
	if White.Opponent() != Black || Black.Opponent() != White {
		t.Fatalf("opponent mismatch")
	}
	if Side("x").Valid() {
		t.Fatalf("x should not be valid")
	}
	if White.Label() != "White" || Black.Label() != "Black" {
		t.Fatalf("label mismatch")
	}
}

func knightShuffle() [][2]string {
	return [][2]string{
		{"g1", "f3"}, {"g8", "f6"}, {"f3", "g1"}, {"f6", "g8"},
		{"g1", "f3"}, {"g8", "f6"}, {"f3", "g1"}, {"f6", "g8"},
	}
}

// loydStalemate is the shortest known stalemate, ending 10.Qe6.
func loydStalemate() [][2]string {
	return [][2]string{
		{"e2", "e3"}, {"a7", "a5"}, {"d1", "h5"}, {"a8", "a6"}, {"h5", "a5"},
		{"h7", "h5"}, {"h2", "h4"}, {"a6", "h6"}, {"a5", "c7"}, {"f7", "f6"},
		{"c7", "d7"}, {"e8", "f7"}, {"d7", "b7"}, {"d8", "d3"}, {"b7", "b8"},
		{"d3", "h7"}, {"b8", "c8"}, {"f7", "g6"}, {"c8", "e6"},
	}
}

func TestVerdictThreefoldIsAutomaticDraw(t *testing.T) {
	o := NewChessOracle()
	moves := knightShuffle()
	almost := play(t, o, o.Initial(), moves[:7]...)
	if v := o.Verdict(almost); v.Over {
		t.Fatalf("draw reported before third repetition: %+v", v)
	}
	pos := play(t, o, almost, moves[7])
	v := o.Verdict(pos)
	if !v.Over || !v.Draw || v.Checkmate {
		t.Fatalf("expected draw verdict, got %+v", v)
	}
	if v.Winner != "" {
		t.Fatalf("draw must not name a winner, got %q", v.Winner)
	}
	if v.Method != "Threefold repetition" {
		t.Fatalf("unexpected method %q", v.Method)
	}
}

func TestVerdictStalemate(t *testing.T) {
	o := NewChessOracle()
	pos := play(t, o, o.Initial(), loydStalemate()...)
	v := o.Verdict(pos)
	if !v.Over || !v.Draw || v.Checkmate {
		t.Fatalf("expected stalemate draw, got %+v", v)
	}
	if v.Method != "Stalemate" {
		t.Fatalf("unexpected method %q", v.Method)
	}
}
