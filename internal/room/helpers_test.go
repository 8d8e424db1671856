package room

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-room/internal/rules"
	"github.com/park285/chess-room/pkg/roomproto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	msgs map[ConnID][]roomproto.Outbound
}

func newRecorder() *recorder { return &recorder{msgs: make(map[ConnID][]roomproto.Outbound)} }

func (r *recorder) Send(conn ConnID, msg roomproto.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[conn] = append(r.msgs[conn], msg)
	return nil
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = make(map[ConnID][]roomproto.Outbound)
}

func (r *recorder) types(conn ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs[conn] {
		out = append(out, m.Type)
	}
	return out
}

func payloads[T any](r *recorder, conn ConnID, typ string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, m := range r.msgs[conn] {
		if m.Type != typ {
			continue
		}
		if v, ok := m.Data.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func last[T any](t *testing.T, r *recorder, conn ConnID, typ string) T {
	t.Helper()
	all := payloads[T](r, conn, typ)
	require.NotEmpty(t, all, "no %s message for %s", typ, conn)
	return all[len(all)-1]
}

func statuses(r *recorder, conn ConnID) []string {
	var out []string
	for _, st := range payloads[roomproto.StartStatus](r, conn, roomproto.TypeStartStatus) {
		out = append(out, st.Status)
	}
	return out
}

type resultSink struct {
	mu      sync.Mutex
	results []Result
	states  int
}

func (o *resultSink) StateChanged(string, roomproto.State) {
	o.mu.Lock()
	o.states++
	o.mu.Unlock()
}

func (o *resultSink) MatchFinished(res Result) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
}

func (o *resultSink) finished() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Result(nil), o.results...)
}

type fixture struct {
	s   *Session
	out *recorder
	obs *resultSink
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	out := newRecorder()
	obs := &resultSink{}
	s := NewSession(rules.NewChessOracle(), out, Options{
		ClockInterval: interval,
		Observer:      obs,
		Logger:        zap.NewNop(),
	})
	t.Cleanup(s.Close)
	return &fixture{s: s, out: out, obs: obs}
}

// seatTwo connects c1 (white, Alice) and c2 (black, Bob).
func (f *fixture) seatTwo() (ConnID, ConnID) {
	f.s.Connect("c1")
	f.s.Identify("c1", "p1")
	f.s.SetName("c1", "Alice")
	f.s.Connect("c2")
	f.s.Identify("c2", "p2")
	f.s.SetName("c2", "Bob")
	return "c1", "c2"
}

// startMatch seats two players and runs the handshake.
func (f *fixture) startMatch(t *testing.T, base, inc int) (ConnID, ConnID) {
	t.Helper()
	w, b := f.seatTwo()
	f.s.ProposeStart(w, base, inc)
	f.s.RespondStart(b, true)
	require.True(t, f.s.clock.Running())
	return w, b
}

func (f *fixture) move(conn ConnID, from, to string) {
	f.s.Move(conn, rules.MoveRequest{From: from, To: to})
}
