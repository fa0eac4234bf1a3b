package switcher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/clock"
	"github.com/HerbHall/switchbridge/internal/device"
)

// TransitionKind selects how the preview bus is taken to program.
type TransitionKind string

const (
	TransitionCut  TransitionKind = "cut"
	TransitionAuto TransitionKind = "auto"
)

// ParseTransition maps a request value to a kind. Anything but "cut" is auto.
func ParseTransition(s string) TransitionKind {
	if strings.EqualFold(strings.TrimSpace(s), string(TransitionCut)) {
		return TransitionCut
	}
	return TransitionAuto
}

// PendingSwitch is a request held back until the device is idle.
type PendingSwitch struct {
	Input int            `json:"input"`
	Kind  TransitionKind `json:"transition"`
}

// QueueTiming holds the queue delays.
type QueueTiming struct {
	// Settle separates setting preview from issuing the transition.
	Settle time.Duration `mapstructure:"settle_delay"`
	// Resume is waited after a transition ends before a pending switch runs.
	Resume time.Duration `mapstructure:"resume_delay"`
	// Poll is the interval of the transition watcher.
	Poll time.Duration `mapstructure:"poll_interval"`
}

// DefaultQueueTiming returns the delays the hardware is known to accept.
func DefaultQueueTiming() QueueTiming {
	return QueueTiming{
		Settle: 100 * time.Millisecond,
		Resume: 150 * time.Millisecond,
		Poll:   50 * time.Millisecond,
	}
}

// Queue serializes switch requests against the device's own transitions.
// A request arriving while the device animates, or while an earlier request
// is still settling, becomes the single pending switch (last writer wins)
// and one watcher applies it once the device is idle.
type Queue struct {
	clock   clock.Clock
	timing  QueueTiming
	target  func() device.Switcher
	metrics *switchMetrics
	logger  *zap.Logger

	mu       sync.Mutex
	gen      uint64
	pending  *PendingSwitch
	watcher  clock.Timer
	settling bool
}

// NewQueue returns a queue issuing commands to whatever target returns.
func NewQueue(clk clock.Clock, timing QueueTiming, target func() device.Switcher, metrics *switchMetrics, logger *zap.Logger) *Queue {
	if metrics == nil {
		metrics = newSwitchMetrics(nil)
	}
	return &Queue{
		clock:   clk,
		timing:  timing,
		target:  target,
		metrics: metrics,
		logger:  logger,
	}
}

// Request switches program to input. It reports whether the request was
// queued behind a running transition.
func (q *Queue) Request(input int, kind TransitionKind) (queued bool, err error) {
	sw := q.target()
	if sw == nil {
		return false, ErrNotConnected
	}

	q.mu.Lock()
	if q.pending != nil || q.settling || sw.State().InTransition() {
		q.pending = &PendingSwitch{Input: input, Kind: kind}
		if q.watcher == nil {
			q.watcher = q.clock.AfterFunc(q.timing.Poll, q.poller(q.gen))
		}
		q.mu.Unlock()
		q.logger.Debug("switch queued", zap.Int("input", input), zap.String("transition", string(kind)))
		return true, nil
	}
	gen := q.gen
	q.settling = true
	q.mu.Unlock()

	if err := q.apply(sw, gen, input, kind); err != nil {
		return false, err
	}
	return false, nil
}

// Pending returns the queued switch, if any.
func (q *Queue) Pending() (PendingSwitch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return PendingSwitch{}, false
	}
	return *q.pending, true
}

// Reset drops the pending switch and cancels every scheduled step. Called
// whenever the connection changes.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	q.pending = nil
	q.settling = false
	if q.watcher != nil {
		q.watcher.Stop()
		q.watcher = nil
	}
}

// apply sets preview now and schedules the transition after the settle
// delay. The caller must have set q.settling.
func (q *Queue) apply(sw device.Switcher, gen uint64, input int, kind TransitionKind) error {
	if err := sw.ChangePreviewInput(input); err != nil {
		q.mu.Lock()
		if q.gen == gen {
			q.settling = false
		}
		q.mu.Unlock()
		q.metrics.requests.WithLabelValues("failed").Inc()
		return fmt.Errorf("set preview input %d: %w", input, err)
	}

	q.clock.AfterFunc(q.timing.Settle, func() {
		q.mu.Lock()
		stale := q.gen != gen
		q.mu.Unlock()
		if stale {
			return
		}

		var err error
		if kind == TransitionCut {
			err = sw.Cut()
		} else {
			err = sw.AutoTransition()
		}

		q.mu.Lock()
		if q.gen == gen {
			q.settling = false
		}
		q.mu.Unlock()

		if err != nil {
			q.metrics.requests.WithLabelValues("failed").Inc()
			q.logger.Warn("transition failed",
				zap.Int("input", input),
				zap.String("transition", string(kind)),
				zap.Error(err),
			)
			return
		}
		q.metrics.transitions.WithLabelValues(string(kind)).Inc()
		q.logger.Info("switched program",
			zap.Int("input", input),
			zap.String("transition", string(kind)),
		)
	})
	return nil
}

// poller returns the watcher callback bound to a queue generation.
func (q *Queue) poller(gen uint64) func() {
	return func() {
		sw := q.target()

		q.mu.Lock()
		defer q.mu.Unlock()
		if q.gen != gen || q.pending == nil {
			return
		}
		if sw == nil {
			q.clearLocked()
			return
		}
		if q.settling || sw.State().InTransition() {
			q.watcher = q.clock.AfterFunc(q.timing.Poll, q.poller(gen))
			return
		}
		if q.isNoopLocked(sw) {
			return
		}
		q.watcher = q.clock.AfterFunc(q.timing.Resume, q.resumer(gen))
	}
}

// resumer returns the callback that applies the pending switch after the
// resume delay. It re-checks the device since a transition may have
// started meanwhile.
func (q *Queue) resumer(gen uint64) func() {
	return func() {
		sw := q.target()

		q.mu.Lock()
		if q.gen != gen || q.pending == nil {
			q.mu.Unlock()
			return
		}
		if sw == nil {
			q.clearLocked()
			q.mu.Unlock()
			return
		}
		if q.settling || sw.State().InTransition() {
			q.watcher = q.clock.AfterFunc(q.timing.Poll, q.poller(gen))
			q.mu.Unlock()
			return
		}
		if q.isNoopLocked(sw) {
			q.mu.Unlock()
			return
		}
		p := *q.pending
		q.clearLocked()
		q.settling = true
		q.mu.Unlock()

		q.logger.Info("applying queued switch", zap.Int("input", p.Input), zap.String("transition", string(p.Kind)))
		if err := q.apply(sw, gen, p.Input, p.Kind); err != nil {
			q.logger.Warn("queued switch failed", zap.Int("input", p.Input), zap.Error(err))
		}
	}
}

// isNoopLocked clears the pending switch when program already shows it.
func (q *Queue) isNoopLocked(sw device.Switcher) bool {
	program, ok := sw.State().ProgramInput()
	if !ok || program != q.pending.Input {
		return false
	}
	q.logger.Debug("queued switch already on program", zap.Int("input", program))
	q.metrics.requests.WithLabelValues("noop").Inc()
	q.clearLocked()
	return true
}

func (q *Queue) clearLocked() {
	q.pending = nil
	q.watcher = nil
}
