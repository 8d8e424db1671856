package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Oracle decides move legality and terminal conditions. Positions are
// immutable values; Play returns a new one.
type Oracle interface {
	Initial() Position
	Play(pos Position, req MoveRequest) (Position, error)
	Verdict(pos Position) Verdict
}

// Position is an immutable snapshot of a game in progress.
type Position struct {
	game     *nchess.Game
	uci      []string
	san      []string
	lastFrom string
	lastTo   string
}

// FEN returns the Forsyth-Edwards notation of the position.
func (p Position) FEN() string {
	if p.game == nil {
		return ""
	}
	return p.game.FEN()
}

// Turn returns the side to move.
func (p Position) Turn() Side {
	if p.game == nil || p.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// Board exposes the underlying board for rendering. Callers must not mutate it.
func (p Position) Board() *nchess.Board {
	if p.game == nil {
		return nil
	}
	return p.game.Position().Board()
}

// LastMove returns the squares of the most recent move, if any.
func (p Position) LastMove() (from, to string, ok bool) {
	if p.lastFrom == "" {
		return "", "", false
	}
	return p.lastFrom, p.lastTo, true
}

// MovesUCI returns a copy of the moves played so far in UCI notation.
func (p Position) MovesUCI() []string { return append([]string(nil), p.uci...) }

// MovesSAN returns a copy of the moves played so far in SAN.
func (p Position) MovesSAN() []string { return append([]string(nil), p.san...) }

// ChessOracle implements Oracle on top of corentings/chess.
type ChessOracle struct{}

func NewChessOracle() *ChessOracle { return &ChessOracle{} }

func (o *ChessOracle) Initial() Position {
	return Position{game: nchess.NewGame()}
}

func (o *ChessOracle) Play(pos Position, req MoveRequest) (Position, error) {
	if pos.game == nil {
		pos = o.Initial()
	}
	from, err := parseSquare(req.From)
	if err != nil {
		return pos, fmt.Errorf("%w: from %q", ErrIllegalMove, req.From)
	}
	to, err := parseSquare(req.To)
	if err != nil {
		return pos, fmt.Errorf("%w: to %q", ErrIllegalMove, req.To)
	}
	promo := strings.ToLower(strings.TrimSpace(req.Promotion))
	if promo == "" {
		promo = "q"
	}
	if len(promo) != 1 || !strings.Contains("qrbn", promo) {
		return pos, fmt.Errorf("%w: promotion %q", ErrIllegalMove, req.Promotion)
	}

	game := pos.game.Clone()
	cur := game.Position()
	uci := strings.ToLower(req.From + req.To)
	if isPromotion(cur, from, to) {
		uci += promo
	}

	mv, err := nchess.UCINotation{}.Decode(cur, uci)
	if err != nil {
		return pos, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(cur, mv)
	if err := game.Move(mv, nil); err != nil {
		return pos, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	next := Position{
		game:     game,
		uci:      append(pos.MovesUCI(), uci),
		san:      append(pos.MovesSAN(), san),
		lastFrom: strings.ToLower(req.From),
		lastTo:   strings.ToLower(req.To),
	}
	return next, nil
}

// Verdict reports checkmate or any draw, claimable ones included.
func (o *ChessOracle) Verdict(pos Position) Verdict {
	if pos.game == nil {
		return Verdict{}
	}
	switch pos.game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		if pos.game.Method() == nchess.Checkmate {
			// the side to move is the one that got mated
			return Verdict{Over: true, Checkmate: true, Winner: pos.Turn().Opponent(), Method: methodText(nchess.Checkmate)}
		}
	case nchess.Draw:
		return Verdict{Over: true, Draw: true, Method: methodText(pos.game.Method())}
	}
	// threefold and fifty-move are only claimable in the library; the room draws them automatically
	for _, m := range pos.game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			return Verdict{Over: true, Draw: true, Method: methodText(m)}
		}
	}
	return Verdict{}
}

func isPromotion(pos *nchess.Position, from, to nchess.Square) bool {
	piece := pos.Board().Piece(from)
	if piece == nchess.NoPiece || piece.Type() != nchess.Pawn {
		return false
	}
	if piece.Color() == nchess.White {
		return to.Rank() == nchess.Rank8
	}
	return to.Rank() == nchess.Rank1
}

// parseSquare accepts exactly [a-h][1-8].
func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(s)
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, ErrBadSquare
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

func methodText(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "Checkmate"
	case nchess.Stalemate:
		return "Stalemate"
	case nchess.InsufficientMaterial:
		return "Insufficient material"
	case nchess.ThreefoldRepetition:
		return "Threefold repetition"
	case nchess.FivefoldRepetition:
		return "Fivefold repetition"
	case nchess.FiftyMoveRule:
		return "Fifty-move rule"
	case nchess.SeventyFiveMoveRule:
		return "Seventy-five-move rule"
	default:
		return m.String()
	}
}
