package roomproto

import "fmt"

// Inbound message types.
const (
	TypeIdentify       = "identify"
	TypeSetName        = "setName"
	TypeSetTimeControl = "setTimeControl"
	TypeProposeStart   = "proposeStart"
	TypeCancelStart    = "cancelStart"
	TypeRespondStart   = "respondStart"
	TypeMove           = "move"
	TypeForfeit        = "forfeit"
	TypeStart          = "start"
	TypeHardReset      = "hardReset"
)

// Outbound message types.
const (
	TypeAssign      = "assign"
	TypeState       = "state"
	TypeOverlay     = "overlay"
	TypeStartOffer  = "startOffer"
	TypeStartStatus = "startStatus"
	TypeErrorMsg    = "errorMsg"
)

// Spectator is the color reported to connections without a seat.
const Spectator = "spectator"

// startStatus values.
const (
	StatusWaiting     = "waiting"
	StatusGameRunning = "game_running"
	StatusCancelled   = "cancelled"
	StatusNoPending   = "no_pending"
	StatusRejected    = "rejected"
	StatusAccepted    = "accepted"
	StatusSlotsFull   = "slots_full"
)

type Identify struct {
	PlayerID string `json:"playerId"`
}

type SetName struct {
	Name string `json:"name"`
}

// TimeControl is shared by setTimeControl and proposeStart. Nil fields take defaults.
type TimeControl struct {
	BaseMins *int `json:"baseMins,omitempty"`
	Inc      *int `json:"inc,omitempty"`
}

type CancelStart struct{}

// RespondStart answers the pending offer. Accept is required; a frame without
// it is rejected instead of being read as a refusal.
type RespondStart struct {
	Accept *bool `json:"accept"`
}

func (r *RespondStart) validate() error {
	if r.Accept == nil {
		return fmt.Errorf("%w: accept", ErrMissingField)
	}
	return nil
}

// Move carries squares in algebraic form, e.g. "e2". Promotion defaults to queen.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type Forfeit struct{}

type Start struct{}

type HardReset struct{}

// Assign tells a connection which seat it holds.
type Assign struct {
	Color     string `json:"color"`
	FEN       string `json:"fen"`
	WhiteTime int    `json:"whiteTime"`
	BlackTime int    `json:"blackTime"`
	Inc       int    `json:"inc"`
	Turn      string `json:"turn"`
	WhiteName string `json:"whiteName"`
	BlackName string `json:"blackName"`
	Started   bool   `json:"started"`
}

type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// State is the full room snapshot plus optional event extras.
type State struct {
	FEN       string    `json:"fen"`
	Turn      string    `json:"turn"`
	WhiteTime int       `json:"whiteTime"`
	BlackTime int       `json:"blackTime"`
	Inc       int       `json:"inc"`
	Over      bool      `json:"over"`
	Checkmate bool      `json:"checkmate"`
	Draw      bool      `json:"draw"`
	WhiteName string    `json:"whiteName"`
	BlackName string    `json:"blackName"`
	Started   bool      `json:"started,omitempty"`
	Reset     bool      `json:"reset,omitempty"`
	LastMove  *LastMove `json:"lastMove,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Overlay announces the end of a match.
type Overlay struct {
	Message     string `json:"message"`
	WinnerName  string `json:"winnerName,omitempty"`
	WinnerColor string `json:"winnerColor,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type StartOffer struct {
	FromName string `json:"fromName"`
	BaseMins int    `json:"baseMins"`
	Inc      int    `json:"inc"`
}

type StartStatus struct {
	Status string `json:"status"`
	ByName string `json:"byName,omitempty"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}
