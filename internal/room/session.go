package room

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/park285/chess-room/internal/msgcat"
	"github.com/park285/chess-room/internal/obslog"
	"github.com/park285/chess-room/internal/rules"
	"github.com/park285/chess-room/pkg/roomproto"
	"go.uber.org/zap"
)

// end describes how a match was decided.
type end struct {
	method     string
	overlayKey string
	reasonKey  string
}

var (
	endCheckmate  = end{method: "checkmate", overlayKey: "overlay.checkmate", reasonKey: "reason.checkmate"}
	endForfeit    = end{method: "forfeit", overlayKey: "overlay.forfeit", reasonKey: "reason.forfeit"}
	endDisconnect = end{method: "disconnect", overlayKey: "overlay.disconnect", reasonKey: "reason.disconnect"}
	endTimeout    = end{method: "timeout", overlayKey: "overlay.timeout", reasonKey: "reason.timeout"}
)

// Session is the single room. Every inbound handler and every clock tick runs
// under mu, so all observers see one order of events. Lock order is mu first,
// then the handshake or clock locks.
type Session struct {
	mu sync.Mutex

	oracle rules.Oracle
	out    Sender
	obs    Observer
	texts  Texts
	log    *zap.Logger

	defaultBase int
	defaultInc  int
	nameMax     int

	reg   *registry
	state *matchState
	hs    *Handshake
	clock *Clock
}

// NewSession builds an idle room. out receives every outbound message.
func NewSession(oracle rules.Oracle, out Sender, opts Options) *Session {
	if opts.DefaultBaseMins <= 0 {
		opts.DefaultBaseMins = defaultBaseMins
	}
	if opts.DefaultInc < 0 {
		opts.DefaultInc = 0
	}
	if opts.NameMaxRunes <= 0 {
		opts.NameMaxRunes = defaultNameMaxRunes
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	if opts.Texts == nil {
		if cat, err := msgcat.New(""); err == nil {
			opts.Texts = cat
		}
	}
	s := &Session{
		oracle:      oracle,
		out:         out,
		obs:         opts.Observer,
		texts:       opts.Texts,
		log:         opts.Logger,
		defaultBase: opts.DefaultBaseMins,
		defaultInc:  opts.DefaultInc,
		nameMax:     opts.NameMaxRunes,
		reg:         newRegistry(),
		hs:          &Handshake{},
	}
	s.state = newMatchState(oracle, s.defaultBase, s.defaultInc)
	s.clock = NewClock(opts.ClockInterval, s.tick)
	return s
}

// Close halts the clock. Connections are owned by the transport.
func (s *Session) Close() {
	s.clock.Stop()
}

// Connect registers a new connection as a spectator.
func (s *Session) Connect(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reg.add(conn); !ok {
		return
	}
	s.log.Info("room_connect", zap.String("conn_id", string(conn)), zap.Int("connections", len(s.reg.order)))
	s.send(conn, roomproto.TypeAssign, s.assignFor(conn, s.matchActive()))
	if offer, ok := s.hs.Pending(); ok {
		s.send(conn, roomproto.TypeStartOffer, s.offerPayload(offer))
	}
}

// Disconnect removes conn. An occupant leaving a running match loses it.
func (s *Session) Disconnect(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reg.get(conn); !ok {
		return
	}
	side, seated := s.reg.seatOf(conn)
	if seated && s.matchActive() {
		s.log.Info("room_occupant_left", zap.String("conn_id", string(conn)), zap.String("seat", string(side)), zap.String("match_id", s.state.matchID))
		s.finish(side.Opponent(), endDisconnect)
	}
	s.reg.remove(conn)
	if _, ok := s.hs.Withdraw(conn); ok {
		s.broadcast(roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusCancelled})
	}
	s.log.Info("room_disconnect", zap.String("conn_id", string(conn)), zap.Int("connections", len(s.reg.order)))
	s.broadcastState(roomproto.State{})
}

// Connections lists live connections in join order.
func (s *Session) Connections() []ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.ids()
}

// Snapshot returns the current state payload.
func (s *Session) Snapshot() roomproto.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(roomproto.State{})
}

// Position returns the current position for rendering.
func (s *Session) Position() rules.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.pos
}

// Handle dispatches a decoded inbound message of the given type.
func (s *Session) Handle(conn ConnID, typ string, msg any) {
	switch m := msg.(type) {
	case *roomproto.Identify:
		s.Identify(conn, m.PlayerID)
	case *roomproto.SetName:
		s.SetName(conn, m.Name)
	case *roomproto.TimeControl:
		base, inc := s.timeControl(m)
		if typ == roomproto.TypeProposeStart {
			s.ProposeStart(conn, base, inc)
		} else {
			s.SetTimeControl(conn, base, inc)
		}
	case *roomproto.RespondStart:
		if m.Accept == nil {
			s.ProtocolError(conn, roomproto.ErrMissingField)
			return
		}
		s.RespondStart(conn, *m.Accept)
	case *roomproto.CancelStart:
		s.CancelStart(conn)
	case *roomproto.Move:
		s.Move(conn, rules.MoveRequest{From: m.From, To: m.To, Promotion: m.Promotion})
	case *roomproto.Forfeit:
		s.Forfeit(conn)
	case *roomproto.Start:
		s.Start(conn)
	case *roomproto.HardReset:
		s.HardReset(conn)
	default:
		s.log.Warn("room_unhandled_message", zap.String("conn_id", string(conn)), zap.String("type", typ))
	}
}

// timeControl fills absent fields with the configured defaults.
func (s *Session) timeControl(tc *roomproto.TimeControl) (base, inc int) {
	base, inc = s.defaultBase, s.defaultInc
	if tc == nil {
		return base, inc
	}
	if tc.BaseMins != nil {
		base = *tc.BaseMins
	}
	if tc.Inc != nil {
		inc = *tc.Inc
	}
	return base, inc
}

// ProtocolError reports an undecodable frame back to its sender.
func (s *Session) ProtocolError(conn ConnID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debug("room_bad_frame", zap.String("conn_id", string(conn)), zap.Error(err))
	s.sendError(conn, roomproto.ErrorText(err))
}

// Identify binds a stable identity to conn and resolves its seat.
// Seat restore by identity only happens while no match is running.
func (s *Session) Identify(conn ConnID, identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.get(conn)
	if !ok {
		return
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		s.sendError(conn, s.text("error.missing_identity", nil))
		return
	}
	m.identity = identity

	color := roomproto.Spectator
	if side, seated := s.reg.seatOf(conn); seated {
		s.reg.sit(side, conn)
		color = string(side)
	} else if side, known := s.reg.rememberedSeat(identity); known && !s.matchActive() {
		if prev := s.reg.sit(side, conn); prev != "" {
			s.log.Info("room_seat_displaced", zap.String("conn_id", string(prev)), zap.String("seat", string(side)))
			s.send(prev, roomproto.TypeAssign, s.assignFor(prev, false))
		}
		color = string(side)
		s.log.Info("room_seat_restored", zap.String("conn_id", string(conn)), zap.String("seat", color))
	} else if !known {
		// a known identity mid-match stays a spectator even if its seat is free
		for _, side := range []rules.Side{rules.White, rules.Black} {
			if s.reg.occupant(side) == "" {
				s.reg.sit(side, conn)
				color = string(side)
				break
			}
		}
	}

	s.log.Info("room_identify", zap.String("conn_id", string(conn)), zap.String("color", color))
	s.send(conn, roomproto.TypeAssign, s.assignFor(conn, s.matchActive()))
	note, _ := s.render("note.joined", map[string]any{"Conn": string(conn), "Color": color})
	s.broadcastState(roomproto.State{Note: note})
}

// SetName sets the display name. Blank names are ignored.
func (s *Session) SetName(conn ConnID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.reg.get(conn)
	if !ok {
		return
	}
	name := cleanName(raw, s.nameMax)
	if name == "" {
		return
	}
	m.name = name
	s.broadcastState(roomproto.State{})
}

// SetTimeControl resets the board and clocks to a new time control.
func (s *Session) SetTimeControl(conn ConnID, baseMins, inc int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTimeControl(baseMins, inc) {
		s.sendError(conn, s.text("error.bad_time_control", nil))
		return
	}
	s.log.Info("room_time_control", zap.String("conn_id", string(conn)), zap.Int("base_mins", baseMins), zap.Int("inc", inc))
	s.resetLocked(baseMins, inc)
	s.broadcastState(roomproto.State{Reset: true})
}

// ProposeStart opens a start offer and shows it to everyone else.
func (s *Session) ProposeStart(conn ConnID, baseMins, inc int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reg.get(conn); !ok {
		return
	}
	if s.matchActive() {
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusGameRunning})
		return
	}
	if !validTimeControl(baseMins, inc) {
		s.sendError(conn, s.text("error.bad_time_control", nil))
		return
	}
	offer, err := s.hs.Propose(conn, baseMins, inc)
	if errors.Is(err, ErrOfferExists) {
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusWaiting})
		return
	}
	s.log.Info("room_offer", zap.String("conn_id", string(conn)), zap.Int("base_mins", baseMins), zap.Int("inc", inc))
	s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusWaiting})
	payload := s.offerPayload(offer)
	for _, id := range s.reg.ids() {
		if id != conn {
			s.send(id, roomproto.TypeStartOffer, payload)
		}
	}
}

// CancelStart withdraws conn's own pending offer.
func (s *Session) CancelStart(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hs.Withdraw(conn); !ok {
		return
	}
	s.log.Info("room_offer_cancel", zap.String("conn_id", string(conn)))
	s.broadcast(roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusCancelled})
}

// RespondStart accepts or rejects the pending offer. The first accept wins.
func (s *Session) RespondStart(conn ConnID, accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reg.get(conn); !ok {
		return
	}
	if !accept {
		s.rejectLocked(conn)
		return
	}
	offer, err := s.hs.Claim(conn)
	switch {
	case errors.Is(err, ErrNoPending):
		// the winning accept already cleared the offer and started a match
		status := roomproto.StatusNoPending
		if s.matchActive() {
			status = roomproto.StatusSlotsFull
		}
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: status})
		return
	case errors.Is(err, ErrOwnOffer):
		s.sendError(conn, s.text("error.own_offer", nil))
		return
	case errors.Is(err, ErrOfferTaken):
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusSlotsFull})
		return
	}
	s.acceptLocked(offer)
}

func (s *Session) rejectLocked(conn ConnID) {
	offer, err := s.hs.Reject(conn)
	switch {
	case errors.Is(err, ErrNoPending):
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusNoPending})
		return
	case errors.Is(err, ErrOwnOffer):
		s.sendError(conn, s.text("error.own_offer", nil))
		return
	case errors.Is(err, ErrOfferTaken):
		s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusSlotsFull})
		return
	}
	s.log.Info("room_offer_reject", zap.String("conn_id", string(conn)), zap.String("proposer", string(offer.Proposer)))
	s.send(offer.Proposer, roomproto.TypeStartStatus, roomproto.StartStatus{
		Status: roomproto.StatusRejected,
		ByName: s.reg.nameOr(conn, rejectFallbackName),
	})
	s.send(conn, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusRejected})
	for _, id := range s.reg.ids() {
		if id != conn && id != offer.Proposer {
			s.send(id, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusCancelled})
		}
	}
}

func (s *Session) acceptLocked(offer Offer) {
	proposer, acceptor := offer.Proposer, offer.Acceptor
	proposerSide, seated := s.reg.seatOf(proposer)
	if !seated {
		proposerSide = rules.White
	}
	s.reg.unseat(acceptor)
	s.reg.sit(proposerSide, proposer)
	s.reg.sit(proposerSide.Opponent(), acceptor)
	for _, id := range []ConnID{proposer, acceptor} {
		if m, ok := s.reg.get(id); ok && m.name == "" {
			m.name = acceptDefaultName
		}
	}

	s.resetLocked(offer.BaseMins, offer.Inc)
	s.hs.Clear()
	s.state.begin()
	s.log.Info("room_match_start",
		zap.String("match_id", s.state.matchID),
		zap.String("proposer", string(proposer)),
		zap.String("acceptor", string(acceptor)),
		zap.String("proposer_seat", string(proposerSide)),
		zap.Int("base_mins", offer.BaseMins),
		zap.Int("inc", offer.Inc),
	)
	s.send(proposer, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusAccepted})
	s.send(acceptor, roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusAccepted})
	s.clock.Start()
	s.broadcastState(roomproto.State{Started: true})
	s.broadcastAssignments(true)
}

// Start is the legacy path that starts the clock without a handshake.
func (s *Session) Start(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reg.occupant(rules.White) == "" || s.reg.occupant(rules.Black) == "" {
		return
	}
	if _, pending := s.hs.Pending(); pending || s.state.terminal || s.clock.Running() {
		return
	}
	s.state.begin()
	s.log.Info("room_legacy_start", zap.String("conn_id", string(conn)), zap.String("match_id", s.state.matchID))
	s.clock.Start()
	s.broadcastState(roomproto.State{Started: true})
}

// Move applies a move for the side to move and credits its increment.
func (s *Session) Move(conn ConnID, req rules.MoveRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.terminal {
		s.sendError(conn, s.text("error.match_over", nil))
		return
	}
	mover := s.state.pos.Turn()
	if s.reg.occupant(mover) != conn {
		s.sendError(conn, s.text("error.not_your_turn", nil))
		return
	}
	next, err := s.oracle.Play(s.state.pos, req)
	if err != nil {
		s.log.Debug("room_illegal_move", zap.String("conn_id", string(conn)), zap.String("from", req.From), zap.String("to", req.To), zap.Error(err))
		s.sendError(conn, s.text("error.illegal_move", nil))
		return
	}
	s.state.pos = next
	s.state.credit(mover)
	s.state.begin()

	verdict := s.oracle.Verdict(next)
	if verdict.Over {
		s.clock.Stop()
		s.state.checkmate = verdict.Checkmate
		s.state.draw = verdict.Draw
		if verdict.Checkmate {
			s.state.conclude(verdict.Winner, endCheckmate.method, s.text(endCheckmate.reasonKey, nil))
		} else {
			s.state.conclude("", "draw", verdict.Method)
		}
	}
	from, to, _ := next.LastMove()
	s.broadcastState(roomproto.State{LastMove: &roomproto.LastMove{From: from, To: to}})

	switch {
	case verdict.Checkmate:
		s.announce(verdict.Winner, endCheckmate)
	case verdict.Draw:
		s.announceDraw(verdict.Method)
	default:
		s.clock.Start()
	}
}

// Forfeit concedes the running match for conn's seat.
func (s *Session) Forfeit(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	side, seated := s.reg.seatOf(conn)
	if !seated {
		s.sendError(conn, s.text("error.spectator_forfeit", nil))
		return
	}
	if !s.matchActive() {
		s.sendError(conn, s.text("error.no_match", nil))
		return
	}
	s.finish(side.Opponent(), endForfeit)
	s.broadcastState(roomproto.State{})
}

// HardReset halts everything and returns the room to the default time control.
func (s *Session) HardReset(conn ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("room_hard_reset", zap.String("conn_id", string(conn)))
	s.clock.Stop()
	if _, ok := s.hs.Clear(); ok {
		s.broadcast(roomproto.TypeStartStatus, roomproto.StartStatus{Status: roomproto.StatusCancelled})
	}
	s.resetLocked(s.defaultBase, s.defaultInc)
	s.broadcastState(roomproto.State{Reset: true})
	s.broadcastAssignments(false)
}

// tick is the clock callback.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clock.Owns(gen) {
		return
	}
	if s.state.terminal {
		s.clock.Stop()
		return
	}
	side := s.state.pos.Turn()
	if s.state.decrement(side) == 0 {
		s.log.Info("room_flag_fall", zap.String("seat", string(side)), zap.String("match_id", s.state.matchID))
		s.finish(side.Opponent(), endTimeout)
	}
	s.broadcastState(roomproto.State{})
}

// matchActive is true while a match's clock is running.
func (s *Session) matchActive() bool {
	return !s.state.terminal && s.clock.Running()
}

func (s *Session) resetLocked(baseMins, inc int) {
	s.clock.Stop()
	s.state.reset(s.oracle, baseMins, inc)
}

// finish ends the match with a winner and announces it.
func (s *Session) finish(winner rules.Side, e end) {
	s.clock.Stop()
	s.state.conclude(winner, e.method, s.text(e.reasonKey, nil))
	s.announce(winner, e)
}

func (s *Session) announce(winner rules.Side, e end) {
	name := s.reg.displayName(winner)
	msg := s.text(e.overlayKey, map[string]any{"Winner": name})
	s.log.Info("room_match_end",
		zap.String("match_id", s.state.matchID),
		zap.String("method", e.method),
		zap.String("winner", string(winner)),
	)
	s.broadcast(roomproto.TypeOverlay, roomproto.Overlay{
		Message:     msg,
		WinnerName:  name,
		WinnerColor: string(winner),
		Reason:      s.state.reason,
	})
	s.obs.MatchFinished(s.resultLocked())
}

func (s *Session) announceDraw(method string) {
	s.log.Info("room_match_end", zap.String("match_id", s.state.matchID), zap.String("method", "draw"), zap.String("reason", method))
	s.broadcast(roomproto.TypeOverlay, roomproto.Overlay{Message: s.text("overlay.draw", nil), Reason: method})
	s.obs.MatchFinished(s.resultLocked())
}

func (s *Session) resultLocked() Result {
	st := s.state
	return Result{
		MatchID:   st.matchID,
		White:     s.reg.ref(rules.White),
		Black:     s.reg.ref(rules.Black),
		Winner:    string(st.winner),
		Method:    st.method,
		Reason:    st.reason,
		BaseMins:  st.baseMins,
		Inc:       st.inc,
		FEN:       st.pos.FEN(),
		MovesUCI:  st.pos.MovesUCI(),
		MovesSAN:  st.pos.MovesSAN(),
		StartedAt: st.startedAt,
		EndedAt:   time.Now(),
	}
}

func (s *Session) stateLocked(extra roomproto.State) roomproto.State {
	st := s.state
	extra.FEN = st.pos.FEN()
	extra.Turn = string(st.pos.Turn())
	extra.WhiteTime = st.whiteTime
	extra.BlackTime = st.blackTime
	extra.Inc = st.inc
	extra.Over = st.terminal
	extra.Checkmate = st.checkmate
	extra.Draw = st.draw
	extra.WhiteName = s.reg.displayName(rules.White)
	extra.BlackName = s.reg.displayName(rules.Black)
	return extra
}

func (s *Session) assignFor(conn ConnID, started bool) roomproto.Assign {
	color := roomproto.Spectator
	if side, ok := s.reg.seatOf(conn); ok {
		color = string(side)
	}
	st := s.state
	return roomproto.Assign{
		Color:     color,
		FEN:       st.pos.FEN(),
		WhiteTime: st.whiteTime,
		BlackTime: st.blackTime,
		Inc:       st.inc,
		Turn:      string(st.pos.Turn()),
		WhiteName: s.reg.displayName(rules.White),
		BlackName: s.reg.displayName(rules.Black),
		Started:   started,
	}
}

func (s *Session) offerPayload(o Offer) roomproto.StartOffer {
	return roomproto.StartOffer{
		FromName: s.reg.nameOr(o.Proposer, offerFallbackName),
		BaseMins: o.BaseMins,
		Inc:      o.Inc,
	}
}

func (s *Session) broadcastState(extra roomproto.State) {
	st := s.stateLocked(extra)
	s.broadcast(roomproto.TypeState, st)
	s.obs.StateChanged(s.state.matchID, st)
}

func (s *Session) broadcastAssignments(started bool) {
	for _, id := range s.reg.ids() {
		s.send(id, roomproto.TypeAssign, s.assignFor(id, started))
	}
}

func (s *Session) broadcast(typ string, data any) {
	msg := roomproto.Outbound{Type: typ, Data: data}
	for _, id := range s.reg.ids() {
		s.deliver(id, msg)
	}
}

func (s *Session) send(conn ConnID, typ string, data any) {
	if conn == "" {
		return
	}
	s.deliver(conn, roomproto.Outbound{Type: typ, Data: data})
}

func (s *Session) sendError(conn ConnID, message string) {
	s.send(conn, roomproto.TypeErrorMsg, roomproto.ErrorMsg{Message: message})
}

// deliver swallows transport errors; the disconnect path cleans up after dead links.
func (s *Session) deliver(conn ConnID, msg roomproto.Outbound) {
	if s.out == nil {
		return
	}
	if err := s.out.Send(conn, msg); err != nil {
		s.log.Debug("room_send_drop", zap.String("conn_id", string(conn)), zap.String("type", msg.Type), zap.Error(err))
	}
}

func (s *Session) render(key string, data any) (string, error) {
	if s.texts == nil {
		return key, errors.New("no message catalog")
	}
	return s.texts.Render(key, data)
}

func (s *Session) text(key string, data any) string {
	out, err := s.render(key, data)
	if err != nil {
		s.log.Warn("room_text_missing", zap.String("key", key), zap.Error(err))
		return key
	}
	return out
}

func validTimeControl(baseMins, inc int) bool {
	return baseMins >= MinBaseMins && baseMins <= MaxBaseMins && inc >= MinInc && inc <= MaxInc
}
