package switcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/clock"
	"github.com/HerbHall/switchbridge/internal/device"
	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// State mirrors the active connection.
type State struct {
	Status      models.ConnectionStatus `json:"status"`
	Address     string                  `json:"ip,omitempty"`
	ModelID     int                     `json:"model_id,omitempty"`
	ModelName   string                  `json:"model,omitempty"`
	DisplayName string                  `json:"name,omitempty"`
	Class       device.ModelClass       `json:"-"`
	// MaxInputs is the assertable input cap, 0 when unbounded.
	MaxInputs        int            `json:"max_inputs"`
	LastProgramInput *int           `json:"program_input,omitempty"`
	Pending          *PendingSwitch `json:"pending,omitempty"`
}

type connectCmd struct {
	address string
	reply   chan error
}

// lifecycleMsg is a device event tagged with the connection it came from.
type lifecycleMsg struct {
	gen uint64
	ev  device.LifecycleEvent
}

// Coordinator owns the single switcher connection. Every state change runs
// on one loop goroutine; readers get snapshots.
type Coordinator struct {
	factory device.Factory
	catalog *device.Catalog
	bus     plugin.EventBus
	queue   *Queue
	metrics *switchMetrics
	logger  *zap.Logger

	cmds     chan connectCmd
	events   chan lifecycleMsg
	done     chan struct{}
	loopDone chan struct{}
	started  bool
	stopOnce sync.Once
	pumps    sync.WaitGroup

	// lastInput is the last program input seen, owned by the loop.
	lastInput *int

	mu    sync.RWMutex
	state State
	sw    device.Switcher
	gen   uint64
}

// NewCoordinator returns a stopped coordinator. Call Start before Connect.
func NewCoordinator(
	factory device.Factory,
	catalog *device.Catalog,
	bus plugin.EventBus,
	clk clock.Clock,
	timing QueueTiming,
	reg prometheus.Registerer,
	logger *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		factory:  factory,
		catalog:  catalog,
		bus:      bus,
		metrics:  newSwitchMetrics(reg),
		logger:   logger,
		cmds:     make(chan connectCmd),
		events:   make(chan lifecycleMsg, 64),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		state:    State{Status: models.StatusDisconnected},
	}
	c.queue = NewQueue(clk, timing, c.connectedSwitcher, c.metrics, logger.Named("queue"))
	return c
}

// Start launches the event loop.
func (c *Coordinator) Start() {
	c.started = true
	go c.run()
}

// Stop ends the loop and tears down the active connection.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.started {
			<-c.loopDone
		}
		c.queue.Reset()

		c.mu.Lock()
		sw := c.sw
		c.sw = nil
		c.gen++
		c.mu.Unlock()
		if sw != nil {
			if err := sw.Disconnect(); err != nil {
				c.logger.Warn("disconnect on stop failed", zap.Error(err))
			}
		}
		c.pumps.Wait()
	})
}

// Connect replaces any existing connection with a new one to address. It
// returns once the attempt has started; the outcome is published as status
// events.
func (c *Coordinator) Connect(ctx context.Context, address string) error {
	cmd := connectCmd{address: address, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSwitch takes input to program with the given transition. It
// reports whether the switch was queued behind a running transition.
func (c *Coordinator) RequestSwitch(input int, kind TransitionKind) (bool, error) {
	c.mu.RLock()
	status, class := c.state.Status, c.state.Class
	c.mu.RUnlock()

	if status != models.StatusConnected {
		c.metrics.requests.WithLabelValues("rejected").Inc()
		return false, ErrNotConnected
	}
	if class.Suppresses(input) {
		c.metrics.requests.WithLabelValues("rejected").Inc()
		c.logger.Info("blocked switch to input the model does not have", zap.Int("input", input))
		return false, fmt.Errorf("%w: input %d", ErrInputNotAllowed, input)
	}

	queued, err := c.queue.Request(input, kind)
	if err != nil {
		return false, err
	}
	if queued {
		c.metrics.requests.WithLabelValues("queued").Inc()
	} else {
		c.metrics.requests.WithLabelValues("applied").Inc()
	}
	return queued, nil
}

// RunMacro runs a device macro by index.
func (c *Coordinator) RunMacro(index int) error {
	c.mu.RLock()
	status, sw := c.state.Status, c.sw
	c.mu.RUnlock()

	if status != models.StatusConnected || sw == nil {
		return ErrNotConnected
	}
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMacro, index)
	}
	runner, ok := sw.(device.MacroRunner)
	if !ok {
		return ErrMacroUnavailable
	}
	if err := runner.RunMacro(index); err != nil {
		return fmt.Errorf("run macro %d: %w", index, err)
	}
	c.logger.Info("macro triggered", zap.Int("index", index))
	return nil
}

// Snapshot returns a copy of the connection state.
func (c *Coordinator) Snapshot() State {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()

	if s.LastProgramInput != nil {
		in := *s.LastProgramInput
		s.LastProgramInput = &in
	}
	if p, ok := c.queue.Pending(); ok {
		s.Pending = &p
	}
	return s
}

// connectedSwitcher is the queue's view of the device: nil unless connected.
func (c *Coordinator) connectedSwitcher() device.Switcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Status != models.StatusConnected {
		return nil
	}
	return c.sw
}

func (c *Coordinator) run() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			cmd.reply <- c.handleConnect(cmd.address)
		case msg := <-c.events:
			c.handleEvent(msg)
		}
	}
}

func (c *Coordinator) handleConnect(address string) error {
	c.metrics.connects.Inc()
	c.queue.Reset()

	c.mu.Lock()
	old := c.sw
	c.sw = nil
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(); err != nil {
			c.logger.Warn("failed to disconnect previous switcher", zap.Error(err))
		}
	}

	sw := c.factory()
	c.mu.Lock()
	c.sw = sw
	c.state = State{Status: models.StatusConnecting, Address: address}
	c.mu.Unlock()
	c.lastInput = nil
	c.metrics.connected.Set(0)

	c.logger.Info("connecting to switcher", zap.String("ip", address))
	c.publishStatus(string(models.StatusConnecting))

	c.pumps.Add(1)
	go c.pump(gen, sw.Events())

	if err := sw.Connect(address); err != nil {
		c.setStatus(models.StatusError)
		c.logger.Warn("switcher connect failed", zap.String("ip", address), zap.Error(err))
		c.publishStatus(string(models.StatusError))
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	return nil
}

// pump forwards one connection's events into the loop until the driver
// closes the channel.
func (c *Coordinator) pump(gen uint64, ch <-chan device.LifecycleEvent) {
	defer c.pumps.Done()
	for ev := range ch {
		select {
		case c.events <- lifecycleMsg{gen: gen, ev: ev}:
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handleEvent(msg lifecycleMsg) {
	c.mu.RLock()
	current := msg.gen == c.gen
	sw := c.sw
	status := c.state.Status
	c.mu.RUnlock()

	if !current || sw == nil {
		c.logger.Debug("ignoring event from superseded connection",
			zap.String("event", string(msg.ev.Kind)),
			zap.Uint64("gen", msg.gen),
		)
		return
	}

	switch msg.ev.Kind {
	case device.EventConnected:
		c.onConnected(msg.ev.State)
	case device.EventStateChanged:
		if status == models.StatusConnected {
			c.onStateChanged(msg.ev.State)
		}
	case device.EventDisconnected:
		c.onLost(models.StatusDisconnected, nil)
	case device.EventError:
		c.onLost(models.StatusError, msg.ev.Err)
	}
}

func (c *Coordinator) onConnected(st device.State) {
	model := c.catalog.Model(st.Info.Model)

	c.mu.Lock()
	c.state.Status = models.StatusConnected
	c.state.ModelID = model.ID
	c.state.ModelName = model.Name
	c.state.DisplayName = st.Info.DisplayName
	c.state.Class = model.Class
	c.state.MaxInputs = model.Class.MaxInputs()
	address := c.state.Address
	c.mu.Unlock()
	c.metrics.connected.Set(1)

	c.logger.Info("switcher connected",
		zap.String("ip", address),
		zap.Int("model_id", model.ID),
		zap.String("model", model.Name),
		zap.String("class", model.Class.String()),
	)
	c.publishStatus("model " + model.Name)

	if in, ok := st.ProgramInput(); ok {
		c.recordProgram(in)
		c.publishProgram(in, model.Class)
	}
	c.publishStatus(string(models.StatusConnected))
}

func (c *Coordinator) onStateChanged(st device.State) {
	in, ok := st.ProgramInput()
	if !ok || (c.lastInput != nil && *c.lastInput == in) {
		return
	}
	c.recordProgram(in)

	c.mu.RLock()
	class := c.state.Class
	c.mu.RUnlock()
	c.publishProgram(in, class)
}

func (c *Coordinator) onLost(status models.ConnectionStatus, err error) {
	c.setStatus(status)
	c.queue.Reset()
	c.metrics.connected.Set(0)

	if err != nil {
		c.logger.Warn("switcher error", zap.Error(err))
	} else {
		c.logger.Info("switcher disconnected")
	}
	c.publishStatus(string(status))
}

func (c *Coordinator) recordProgram(in int) {
	c.lastInput = &in
	c.mu.Lock()
	v := in
	c.state.LastProgramInput = &v
	c.mu.Unlock()
}

func (c *Coordinator) setStatus(s models.ConnectionStatus) {
	c.mu.Lock()
	c.state.Status = s
	c.mu.Unlock()
}

func (c *Coordinator) publishStatus(status string) {
	c.mu.RLock()
	address := c.state.Address
	c.mu.RUnlock()
	c.publish(TopicStatus, models.StatusMessage(status, address))
}

// publishProgram drops inputs the model does not have and labels the rest.
func (c *Coordinator) publishProgram(in int, class device.ModelClass) {
	if class.Suppresses(in) {
		c.logger.Debug("suppressed program input", zap.Int("input", in), zap.Int("max_inputs", class.MaxInputs()))
		return
	}
	label := c.catalog.Label(in)
	c.logger.Info("program input changed", zap.Int("input", in), zap.String("label", label))
	c.publish(TopicProgramInput, models.ProgramInputMessage(in, label))
}

func (c *Coordinator) publish(topic string, msg models.StreamMessage) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "switcher",
		Timestamp: time.Now(),
		Payload:   msg,
	}); err != nil {
		c.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
