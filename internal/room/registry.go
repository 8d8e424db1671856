package room

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/chess-room/internal/rules"
)

type member struct {
	id       ConnID
	identity string
	name     string
	joined   time.Time
}

type seatSlot struct {
	occupant ConnID
	// identity survives the occupant leaving so a reconnect can be restored
	identity string
}

// registry tracks live connections and the two seats. Guarded by Session.mu.
type registry struct {
	members map[ConnID]*member
	order   []ConnID
	seats   map[rules.Side]*seatSlot
}

func newRegistry() *registry {
	return &registry{
		members: make(map[ConnID]*member),
		seats: map[rules.Side]*seatSlot{
			rules.White: {},
			rules.Black: {},
		},
	}
}

func (r *registry) add(id ConnID) (*member, bool) {
	if _, ok := r.members[id]; ok {
		return nil, false
	}
	m := &member{id: id, joined: time.Now()}
	r.members[id] = m
	r.order = append(r.order, id)
	return m, true
}

func (r *registry) get(id ConnID) (*member, bool) {
	m, ok := r.members[id]
	return m, ok
}

// remove drops the connection and vacates its seat. The seat keeps its identity.
func (r *registry) remove(id ConnID) {
	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.unseat(id)
}

func (r *registry) ids() []ConnID {
	out := make([]ConnID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *registry) seatOf(id ConnID) (rules.Side, bool) {
	if id == "" {
		return "", false
	}
	for _, side := range []rules.Side{rules.White, rules.Black} {
		if r.seats[side].occupant == id {
			return side, true
		}
	}
	return "", false
}

func (r *registry) occupant(side rules.Side) ConnID {
	if s, ok := r.seats[side]; ok {
		return s.occupant
	}
	return ""
}

// sit puts id into side and returns the previous occupant, if it was someone else.
func (r *registry) sit(side rules.Side, id ConnID) ConnID {
	slot := r.seats[side]
	prev := slot.occupant
	slot.occupant = id
	if m, ok := r.members[id]; ok {
		slot.identity = m.identity
	}
	if prev == id {
		return ""
	}
	return prev
}

func (r *registry) unseat(id ConnID) {
	for _, slot := range r.seats {
		if slot.occupant == id {
			slot.occupant = ""
		}
	}
}

// rememberedSeat finds the seat whose last bound identity matches.
func (r *registry) rememberedSeat(identity string) (rules.Side, bool) {
	if identity == "" {
		return "", false
	}
	for _, side := range []rules.Side{rules.White, rules.Black} {
		if r.seats[side].identity == identity {
			return side, true
		}
	}
	return "", false
}

// displayName returns the occupant's name or the side label.
func (r *registry) displayName(side rules.Side) string {
	if m, ok := r.members[r.occupant(side)]; ok && m.name != "" {
		return m.name
	}
	return side.Label()
}

func (r *registry) nameOr(id ConnID, fallback string) string {
	if m, ok := r.members[id]; ok && m.name != "" {
		return m.name
	}
	return fallback
}

func (r *registry) ref(side rules.Side) PlayerRef {
	return PlayerRef{Name: r.displayName(side), Identity: r.seats[side].identity}
}

// cleanName trims and caps a display name at max runes.
func cleanName(raw string, max int) string {
	name := strings.TrimSpace(raw)
	if max <= 0 || utf8.RuneCountInString(name) <= max {
		return name
	}
	return string([]rune(name)[:max])
}
