package telemetry

import (
	"flag"
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// MaxDatagramSize is the largest payload a UDP datagram can carry.
const MaxDatagramSize = 65527

type Config struct {
	ListenAddress string `yaml:"listen_address"`
	QueueSize     int    `yaml:"queue_size"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ListenAddress, "telemetry.listen-address", "0.0.0.0:14242", "UDP address the simulator hook sends telemetry to")
	f.IntVar(&c.QueueSize, "telemetry.queue-size", 32, "Decoded events buffered before the receive loop blocks")
}

// Listener reads datagrams from a UDP socket and publishes decoded events.
type Listener struct {
	logger   log.Logger
	conn     net.PacketConn
	events   chan Event
	metrics  *metrics
	shutdown chan struct{}
	done     chan struct{}
}

func NewListener(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Listener, error) {
	conn, err := net.ListenPacket("udp", cfg.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "binding telemetry socket %s", cfg.ListenAddress)
	}
	return newListener(logger, conn, cfg, reg), nil
}

func newListener(logger log.Logger, conn net.PacketConn, cfg Config, reg prometheus.Registerer) *Listener {
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	l := &Listener{
		logger:   log.With(logger, "component", "telemetry"),
		conn:     conn,
		events:   make(chan Event, cfg.QueueSize),
		metrics:  newMetrics(reg),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go l.run()
	level.Info(l.logger).Log("msg", "ready to receive", "addr", conn.LocalAddr())
	return l
}

// Events returns the stream of decoded events. It is closed once the
// listener has stopped.
func (l *Listener) Events() <-chan Event {
	return l.events
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) run() {
	defer func() {
		close(l.events)
		level.Info(l.logger).Log("msg", "receive loop shut down")
		close(l.done)
	}()

	// One extra byte so an oversized read is detectable.
	buf := make([]byte, MaxDatagramSize+1)
	for {
		n, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.metrics.discarded.WithLabelValues(ReasonReadError).Inc()
			level.Warn(l.logger).Log("msg", "failed to read datagram", "err", err)
			continue
		}
		l.metrics.received.Inc()
		level.Debug(l.logger).Log("msg", "received datagram", "src_addr", src, "len", n)

		if n > MaxDatagramSize {
			l.metrics.discarded.WithLabelValues(ReasonOversize).Inc()
			level.Warn(l.logger).Log("msg", "ignoring oversized datagram", "src_addr", src, "len", n)
			continue
		}

		ev, err := Decode(buf[:n])
		if err != nil {
			reason := ReasonMalformed
			var de *DecodeError
			if errors.As(err, &de) {
				reason = de.Reason
			}
			l.metrics.discarded.WithLabelValues(reason).Inc()
			level.Warn(l.logger).Log("msg", "ignoring improperly formatted line", "src_addr", src, "err", err)
			continue
		}

		select {
		case l.events <- ev:
			l.metrics.events.WithLabelValues(ev.eventType()).Inc()
		case <-l.shutdown:
			return
		}
	}
}

func (l *Listener) Stop() {
	level.Info(l.logger).Log("msg", "stop called")
	close(l.shutdown)
	l.conn.Close()
	<-l.done
	level.Info(l.logger).Log("msg", "shutdown complete")
}
