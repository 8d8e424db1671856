package room

import (
	"time"

	"github.com/park285/chess-room/pkg/roomproto"
	"go.uber.org/zap"
)

// ConnID is the server-generated id of one live transport link.
type ConnID string

// Sender delivers a message to a single connection. Implementations must not block.
type Sender interface {
	Send(conn ConnID, msg roomproto.Outbound) error
}

// Texts renders user facing strings by key.
type Texts interface {
	Render(key string, data any) (string, error)
}

// Observer receives room events after they were broadcast. Calls happen with the
// session lock held, so implementations must hand work off instead of doing I/O.
type Observer interface {
	StateChanged(matchID string, st roomproto.State)
	MatchFinished(res Result)
}

// PlayerRef describes a seat at the moment a match ended.
type PlayerRef struct {
	Name     string `json:"name"`
	Identity string `json:"identity,omitempty"`
}

// Result is a finished match.
type Result struct {
	MatchID   string    `json:"matchId"`
	White     PlayerRef `json:"white"`
	Black     PlayerRef `json:"black"`
	Winner    string    `json:"winner,omitempty"` // "w", "b" or empty for a draw
	Method    string    `json:"method"`
	Reason    string    `json:"reason"`
	BaseMins  int       `json:"baseMins"`
	Inc       int       `json:"inc"`
	FEN       string    `json:"fen"`
	MovesUCI  []string  `json:"movesUci"`
	MovesSAN  []string  `json:"movesSan"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Options tunes a Session. Zero values fall back to the defaults below.
type Options struct {
	ClockInterval   time.Duration
	DefaultBaseMins int
	DefaultInc      int
	NameMaxRunes    int
	Texts           Texts
	Observer        Observer
	Logger          *zap.Logger
}

const (
	defaultClockInterval = time.Second
	defaultBaseMins      = 2
	defaultNameMaxRunes  = 24

	MinBaseMins = 1
	MaxBaseMins = 180
	MinInc      = 0
	MaxInc      = 60
)

// name fallbacks
const (
	offerFallbackName  = "Player"
	rejectFallbackName = "Opponent"
	acceptDefaultName  = "ChessPlayer"
)

type nopObserver struct{}

func (nopObserver) StateChanged(string, roomproto.State) {}
func (nopObserver) MatchFinished(Result)                 {}
