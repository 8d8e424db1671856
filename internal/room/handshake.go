package room

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrOfferExists = errors.New("start offer already pending")
	ErrNoPending   = errors.New("no pending start offer")
	ErrOfferTaken  = errors.New("start offer already accepted")
	ErrOwnOffer    = errors.New("proposer cannot answer own offer")
)

// Offer is a pending request to start a match.
type Offer struct {
	Proposer  ConnID
	BaseMins  int
	Inc       int
	Acceptor  ConnID
	CreatedAt time.Time
}

// Handshake holds at most one pending offer. Claim is a compare-and-set on the
// acceptor so only the first accept wins.
type Handshake struct {
	mu      sync.Mutex
	pending *Offer
}

// Propose opens an offer. ErrOfferExists returns the one already pending.
func (h *Handshake) Propose(proposer ConnID, baseMins, inc int) (Offer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil {
		return *h.pending, ErrOfferExists
	}
	h.pending = &Offer{Proposer: proposer, BaseMins: baseMins, Inc: inc, CreatedAt: time.Now()}
	return *h.pending, nil
}

// Pending reports the open offer, if any.
func (h *Handshake) Pending() (Offer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Offer{}, false
	}
	return *h.pending, true
}

// Withdraw drops the offer if proposer authored it.
func (h *Handshake) Withdraw(proposer ConnID) (Offer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || h.pending.Proposer != proposer {
		return Offer{}, false
	}
	o := *h.pending
	h.pending = nil
	return o, true
}

// Claim binds acceptor to the offer if nobody else has.
func (h *Handshake) Claim(acceptor ConnID) (Offer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.pending == nil:
		return Offer{}, ErrNoPending
	case h.pending.Proposer == acceptor:
		return *h.pending, ErrOwnOffer
	case h.pending.Acceptor != "":
		return *h.pending, ErrOfferTaken
	}
	h.pending.Acceptor = acceptor
	return *h.pending, nil
}

// Reject consumes an unclaimed offer on behalf of responder.
func (h *Handshake) Reject(responder ConnID) (Offer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.pending == nil:
		return Offer{}, ErrNoPending
	case h.pending.Proposer == responder:
		return *h.pending, ErrOwnOffer
	case h.pending.Acceptor != "":
		return *h.pending, ErrOfferTaken
	}
	o := *h.pending
	h.pending = nil
	return o, nil
}

// Clear drops any offer regardless of author.
func (h *Handshake) Clear() (Offer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Offer{}, false
	}
	o := *h.pending
	h.pending = nil
	return o, true
}
