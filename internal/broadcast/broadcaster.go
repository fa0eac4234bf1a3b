package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/switcher"
	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Broadcaster fans stream messages out to subscribers. Every subscriber gets
// its own unbounded queue, so a slow reader never holds up the others.
type Broadcaster struct {
	logger *zap.Logger

	subscribers prometheus.Gauge
	delivered   prometheus.Counter

	mu         sync.Mutex
	nextID     uint64
	subs       map[uint64]*Subscriber
	lastStatus string
	lastIP     string
	closed     bool
}

// NewBroadcaster returns a broadcaster whose snapshot reports disconnected
// until the first status message arrives. reg may be nil.
func NewBroadcaster(reg prometheus.Registerer, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{
		logger: logger,
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "switchbridge",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently registered stream subscribers.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Messages published to subscribers.",
		}),
		subs:       make(map[uint64]*Subscriber),
		lastStatus: string(models.StatusDisconnected),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{b.subscribers, b.delivered} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	}
	return b
}

// Subscribe registers a subscriber. Its first message is the current
// connection snapshot.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := newSubscriber(b.nextID, b)
	s.push(models.StatusMessage(b.lastStatus, b.lastIP))
	if b.closed {
		s.shutdown()
		return s
	}
	b.subs[s.id] = s
	b.subscribers.Set(float64(len(b.subs)))
	return s
}

// Publish queues msg on every registered subscriber. Connection messages
// also update the snapshot handed to later subscribers.
func (b *Broadcaster) Publish(msg models.StreamMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !msg.IsProgramInput() {
		b.lastStatus = msg.Status
		b.lastIP = msg.IP
	}
	for _, s := range b.subs {
		s.push(msg)
	}
	b.delivered.Inc()
}

// Snapshot returns the message a new subscriber would receive first.
func (b *Broadcaster) Snapshot() models.StreamMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.StatusMessage(b.lastStatus, b.lastIP)
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Attach republishes the switcher topics from bus. The returned func
// detaches.
func (b *Broadcaster) Attach(bus plugin.EventBus) func() {
	handler := func(_ context.Context, ev plugin.Event) {
		msg, ok := ev.Payload.(models.StreamMessage)
		if !ok {
			b.logger.Warn("unexpected payload on switcher topic",
				zap.String("topic", ev.Topic),
				zap.String("source", ev.Source),
			)
			return
		}
		b.Publish(msg)
	}
	unsubStatus := bus.Subscribe(switcher.TopicStatus, handler)
	unsubProgram := bus.Subscribe(switcher.TopicProgramInput, handler)
	return func() {
		unsubStatus()
		unsubProgram()
	}
}

// Close ends every subscription. Later subscribers get an already closed
// stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*Subscriber)
	b.closed = true
	b.subscribers.Set(0)
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	b.subscribers.Set(float64(len(b.subs)))
}

// Subscriber is one registered stream consumer.
type Subscriber struct {
	id uint64
	b  *Broadcaster

	mu     sync.Mutex
	queue  []models.StreamMessage
	closed bool

	signal chan struct{}
	out    chan models.StreamMessage
	done   chan struct{}
	once   sync.Once
}

func newSubscriber(id uint64, b *Broadcaster) *Subscriber {
	s := &Subscriber{
		id:     id,
		b:      b,
		signal: make(chan struct{}, 1),
		out:    make(chan models.StreamMessage),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// C delivers messages in publish order. It is closed once the subscriber
// is closed.
func (s *Subscriber) C() <-chan models.StreamMessage {
	return s.out
}

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. Queued messages are discarded. Safe to call more
// than once and concurrently with Publish.
func (s *Subscriber) Close() {
	s.shutdown()
	s.b.remove(s.id)
}

func (s *Subscriber) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// push appends msg to the queue. It never blocks.
func (s *Subscriber) push(msg models.StreamMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		msg := s.queue[0]
		s.queue[0] = models.StreamMessage{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}
