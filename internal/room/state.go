package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-room/internal/rules"
)

// matchState is the position plus both clocks. Guarded by Session.mu.
type matchState struct {
	pos       rules.Position
	whiteTime int
	blackTime int
	baseMins  int
	inc       int

	terminal  bool
	checkmate bool
	draw      bool
	winner    rules.Side
	method    string
	reason    string

	matchID   string
	startedAt time.Time
}

func newMatchState(o rules.Oracle, baseMins, inc int) *matchState {
	m := &matchState{}
	m.reset(o, baseMins, inc)
	return m
}

func (m *matchState) reset(o rules.Oracle, baseMins, inc int) {
	*m = matchState{
		pos:       o.Initial(),
		whiteTime: baseMins * 60,
		blackTime: baseMins * 60,
		baseMins:  baseMins,
		inc:       inc,
	}
}

// begin stamps a match id the first time the clock is started after a reset.
func (m *matchState) begin() {
	if m.matchID != "" {
		return
	}
	m.matchID = uuid.NewString()
	m.startedAt = time.Now()
}

func (m *matchState) remaining(side rules.Side) int {
	if side == rules.White {
		return m.whiteTime
	}
	return m.blackTime
}

// decrement removes one second from side, flooring at zero.
func (m *matchState) decrement(side rules.Side) int {
	p := &m.blackTime
	if side == rules.White {
		p = &m.whiteTime
	}
	if *p > 0 {
		*p--
	}
	return *p
}

func (m *matchState) credit(side rules.Side) {
	if m.inc <= 0 {
		return
	}
	if side == rules.White {
		m.whiteTime += m.inc
	} else {
		m.blackTime += m.inc
	}
}

func (m *matchState) conclude(winner rules.Side, method, reason string) {
	m.terminal = true
	m.winner = winner
	m.method = method
	m.reason = reason
}
