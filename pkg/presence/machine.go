package presence

import (
	"context"
	"flag"
	"time"

	"github.com/cortexproject/cortex/pkg/util"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slim-bean/dcs-presence/pkg/telemetry"
)

// Operations on the presence service, as reported in a LinkError.
const (
	OpConnect     = "connect"
	OpSetActivity = "set_activity"
	OpClose       = "close"
)

// ErrClosed is returned for anything handed to a Machine after CloseRequested.
var ErrClosed = errors.New("presence machine closed")

// Publisher is the connection to the external presence service.
type Publisher interface {
	Connect() error
	SetActivity(Payload) error
	Close() error
}

// LinkError is a failed call to the Publisher.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string { return "presence " + e.Op + ": " + e.Err.Error() }
func (e *LinkError) Unwrap() error { return e.Err }

// Intent is a request from the shell, handled in order with telemetry events.
type Intent interface {
	intent()
}

// Connect establishes the publishing link and shows the idle status.
type Connect struct{}

// CallsignChanged replaces the pilot name reported by the simulator.
// An empty Callsign clears the override.
type CallsignChanged struct {
	Callsign string
}

// CloseRequested closes the publishing link. Nothing is handled after it.
type CloseRequested struct{}

type redial struct {
	exhausted bool
}

func (Connect) intent()         {}
func (CallsignChanged) intent() {}
func (CloseRequested) intent()  {}
func (redial) intent()          {}

type Config struct {
	Callsign string             `yaml:"callsign"`
	Redial   util.BackoffConfig `yaml:"redial"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.Callsign, "presence.callsign", "", "Custom callsign shown instead of the in-game pilot name")
	f.DurationVar(&c.Redial.MinBackoff, "presence.redial.min-period", time.Second, "Initial delay before reconnecting to the presence service")
	f.DurationVar(&c.Redial.MaxBackoff, "presence.redial.max-period", 30*time.Second, "Maximum delay between reconnect attempts")
	f.IntVar(&c.Redial.MaxRetries, "presence.redial.max-retries", 0, "Reconnect attempts before giving up, 0 retries forever")
}

// Machine owns the presence state. All of its state is touched only by
// the goroutine calling Run, or by the caller of HandleEvent/HandleIntent
// when Run is not used.
type Machine struct {
	logger  log.Logger
	cfg     Config
	pub     Publisher
	labels  Labeler
	epoch   time.Time
	now     func() time.Time
	metrics *metrics
	board   *Board

	connected  bool
	lastUpdate time.Time
	callsign   string
	current    Payload
	closed     bool

	redialing bool
	backoff   *util.Backoff

	intents chan Intent
	stopped chan struct{}
}

// NewMachine returns an idle, unconnected Machine. epoch is the session
// start shown in every payload.
func NewMachine(logger log.Logger, cfg Config, pub Publisher, labels Labeler, epoch time.Time, reg prometheus.Registerer) *Machine {
	// The backoff jitter needs a non-empty range.
	if cfg.Redial.MinBackoff <= 0 {
		cfg.Redial.MinBackoff = time.Second
	}
	if cfg.Redial.MaxBackoff <= cfg.Redial.MinBackoff {
		cfg.Redial.MaxBackoff = 2 * cfg.Redial.MinBackoff
	}

	m := &Machine{
		logger:   log.With(logger, "component", "presence"),
		cfg:      cfg,
		pub:      pub,
		labels:   labels,
		epoch:    epoch,
		now:      time.Now,
		metrics:  newMetrics(reg),
		callsign: cfg.Callsign,
		current:  idlePayload(epoch),
		intents:  make(chan Intent, 16),
		stopped:  make(chan struct{}),
	}
	m.board = newBoard(m.snapshot())
	return m
}

func (m *Machine) Board() *Board {
	return m.board
}

// Submit queues an intent for Run.
func (m *Machine) Submit(ctx context.Context, in Intent) error {
	select {
	case m.intents <- in:
		return nil
	case <-m.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles events and submitted intents until CloseRequested is handled
// or ctx is cancelled, which closes the link the same way. Link failures
// are recovered by reconnecting with backoff; only a failure to close is
// returned.
func (m *Machine) Run(ctx context.Context, events <-chan telemetry.Event) error {
	level.Info(m.logger).Log("msg", "run loop started")
	defer func() {
		close(m.stopped)
		level.Info(m.logger).Log("msg", "run loop shut down")
	}()

	for {
		var err error
		select {
		case <-ctx.Done():
			if m.closed {
				return nil
			}
			return m.HandleIntent(CloseRequested{})
		case ev, ok := <-events:
			if !ok {
				level.Warn(m.logger).Log("msg", "telemetry stream ended")
				events = nil
				continue
			}
			err = m.HandleEvent(ev)
		case in := <-m.intents:
			err = m.HandleIntent(in)
			if m.closed {
				return err
			}
		}
		if err != nil {
			m.recover(ctx, err)
		}
	}
}

// HandleEvent applies a telemetry event and publishes the resulting payload.
func (m *Machine) HandleEvent(ev telemetry.Event) error {
	if m.closed {
		return ErrClosed
	}
	switch ev := ev.(type) {
	case telemetry.Sample:
		m.lastUpdate = m.now()
		m.current = samplePayload(ev, m.callsign, m.labels, m.epoch)
		level.Info(m.logger).Log("msg", "telemetry received", "name", m.displayName(ev), "vehicle", ev.VehicleID)
	case telemetry.Disconnected:
		m.lastUpdate = m.now()
		m.current = idlePayload(m.epoch)
		level.Info(m.logger).Log("msg", "clean disconnect, returning to idle")
	default:
		return nil
	}
	err := m.publish()
	m.board.store(m.snapshot())
	return err
}

// HandleIntent applies an intent from the shell.
func (m *Machine) HandleIntent(in Intent) error {
	if m.closed {
		return ErrClosed
	}
	var err error
	switch in := in.(type) {
	case Connect:
		level.Info(m.logger).Log("msg", "connecting to presence service")
		err = m.connect()

	case CallsignChanged:
		m.callsign = in.Callsign
		if m.callsign == "" {
			level.Info(m.logger).Log("msg", "callsign cleared")
		} else {
			level.Info(m.logger).Log("msg", "callsign updated", "callsign", m.callsign)
		}

	case CloseRequested:
		level.Info(m.logger).Log("msg", "closing presence connection")
		m.closed = true
		m.setConnected(false)
		if cerr := m.pub.Close(); cerr != nil {
			err = &LinkError{Op: OpClose, Err: cerr}
		}
		m.metrics.observe(OpClose, err)

	case redial:
		m.redialing = false
		if m.connected {
			break
		}
		if in.exhausted {
			level.Error(m.logger).Log("msg", "giving up reconnecting to presence service", "err", m.backoff.Err())
			m.backoff = nil
			break
		}
		err = m.connect()
		if err == nil {
			level.Info(m.logger).Log("msg", "reconnected to presence service")
			m.backoff = nil
		}
	}
	m.board.store(m.snapshot())
	return err
}

func (m *Machine) connect() error {
	err := m.pub.Connect()
	m.metrics.observe(OpConnect, err)
	if err != nil {
		return &LinkError{Op: OpConnect, Err: err}
	}
	m.setConnected(true)
	return m.publish()
}

// publish sends the current payload. While the link is down the payload is
// only kept, and goes out once the link is back.
func (m *Machine) publish() error {
	if !m.connected {
		level.Debug(m.logger).Log("msg", "presence link down, holding payload", "headline", m.current.Headline)
		return nil
	}
	err := m.pub.SetActivity(m.current)
	m.metrics.observe(OpSetActivity, err)
	if err != nil {
		return &LinkError{Op: OpSetActivity, Err: err}
	}
	return nil
}

func (m *Machine) recover(ctx context.Context, err error) {
	var le *LinkError
	if !errors.As(err, &le) {
		level.Error(m.logger).Log("msg", "failed to handle message", "err", err)
		return
	}
	level.Warn(m.logger).Log("msg", "presence link failed", "op", le.Op, "err", le.Err)
	m.setConnected(false)
	m.board.store(m.snapshot())
	m.scheduleRedial(ctx)
}

// scheduleRedial starts a goroutine that waits out the next backoff period
// and then submits a redial intent. At most one is pending at a time, and
// the backoff is only touched by that goroutine until it reports back.
func (m *Machine) scheduleRedial(ctx context.Context) {
	if m.redialing || m.closed {
		return
	}
	if m.backoff == nil {
		m.backoff = util.NewBackoff(ctx, m.cfg.Redial)
	}
	m.redialing = true

	b := m.backoff
	go func() {
		r := redial{}
		if b.Ongoing() {
			b.Wait()
			if ctx.Err() != nil {
				return
			}
		} else {
			r.exhausted = true
		}
		select {
		case m.intents <- r:
		case <-m.stopped:
		case <-ctx.Done():
		}
	}()
}

func (m *Machine) setConnected(c bool) {
	m.connected = c
	if c {
		m.metrics.linkUp.Set(1)
	} else {
		m.metrics.linkUp.Set(0)
	}
}

func (m *Machine) displayName(s telemetry.Sample) string {
	if m.callsign != "" {
		return m.callsign
	}
	return s.PilotName
}

func (m *Machine) snapshot() Snapshot {
	return Snapshot{
		Connected:  m.connected,
		LastUpdate: m.lastUpdate,
		Callsign:   m.callsign,
		Headline:   m.current.Headline,
		Detail:     m.current.Detail,
	}
}
