package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/chess-room/internal/obslog"
	"github.com/park285/chess-room/internal/room"
	"github.com/park285/chess-room/pkg/roomproto"
	"go.uber.org/zap"
)

// StateSink receives every broadcast state snapshot.
type StateSink interface {
	PublishState(ctx context.Context, matchID string, st roomproto.State) error
}

// ResultSink receives finished matches.
type ResultSink interface {
	SaveResult(ctx context.Context, res room.Result) error
}

type event struct {
	matchID string
	state   *roomproto.State
	result  *room.Result
}

// Dispatcher implements room.Observer. Events are queued without blocking and
// delivered to sinks by a single worker, in order.
type Dispatcher struct {
	queue   chan event
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex
	states  map[string]StateSink
	results map[string]ResultSink

	dropped atomic.Int64
	done    chan struct{}
}

// New returns a dispatcher with a queue of buffer events. timeout bounds
// each sink call.
func New(buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		queue:   make(chan event, buffer),
		timeout: timeout,
		log:     obslog.L(),
		states:  make(map[string]StateSink),
		results: make(map[string]ResultSink),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) AddStateSink(name string, s StateSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[name] = s
}

func (d *Dispatcher) AddResultSink(name string, s ResultSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[name] = s
}

// Dropped counts events lost to a full queue.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *Dispatcher) StateChanged(matchID string, st roomproto.State) {
	d.enqueue(event{matchID: matchID, state: &st})
}

// MatchFinished queues res for every result sink.
func (d *Dispatcher) MatchFinished(res room.Result) {
	d.enqueue(event{matchID: res.MatchID, result: &res})
}

func (d *Dispatcher) enqueue(ev event) {
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		if ev.result != nil {
			d.log.Error("dispatch_result_dropped", zap.String("match_id", ev.matchID))
			return
		}
		d.log.Debug("dispatch_state_dropped", zap.String("match_id", ev.matchID))
	}
}

// Run delivers events until ctx is done, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() { <-d.done }

func (d *Dispatcher) deliver(ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ev.state != nil {
		for name, s := range d.states {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.PublishState(ctx, ev.matchID, *ev.state); err != nil {
				d.log.Warn("dispatch_state_error", zap.String("sink", name), zap.String("match_id", ev.matchID), zap.Error(err))
			}
			cancel()
		}
	}
	if ev.result != nil {
		for name, s := range d.results {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.SaveResult(ctx, *ev.result); err != nil {
				d.log.Error("dispatch_result_error", zap.String("sink", name), zap.String("match_id", ev.matchID), zap.Error(err))
			} else {
				d.log.Info("dispatch_result_saved", zap.String("sink", name), zap.String("match_id", ev.matchID), zap.String("method", ev.result.Method))
			}
			cancel()
		}
	}
}
