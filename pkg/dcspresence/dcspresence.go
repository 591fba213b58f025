package dcspresence

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slim-bean/dcs-presence/pkg/cfg"
	"github.com/slim-bean/dcs-presence/pkg/presence"
	"github.com/slim-bean/dcs-presence/pkg/server"
	"github.com/slim-bean/dcs-presence/pkg/settings"
	"github.com/slim-bean/dcs-presence/pkg/telemetry"
	"github.com/slim-bean/dcs-presence/pkg/vehicle"
)

// DCSPresence runs the telemetry listener and the presence machine.
type DCSPresence struct {
	config   *cfg.Config
	logger   log.Logger
	listener *telemetry.Listener
	machine  *presence.Machine
	store    *settings.Store
	server   *server.Server
	cancel   context.CancelFunc
	err      error
	done     chan struct{}

	stopTimeout time.Duration
}

// ErrStopTimeout is returned by Stop when the presence machine is stuck in a
// call to the publisher.
var ErrStopTimeout = errors.New("presence machine did not stop in time")

// New binds the telemetry socket and starts publishing through pub.
// reg and gatherer are normally the same prometheus registry.
func New(logger log.Logger, config *cfg.Config, pub presence.Publisher, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*DCSPresence, error) {
	// Every payload shows time elapsed since the program started.
	epoch := time.Now()

	labels, err := vehicle.Load(logger, config.Vehicles)
	if err != nil {
		return nil, err
	}

	d := &DCSPresence{
		config: config,
		logger: logger,
		done:   make(chan struct{}),

		stopTimeout: 10 * time.Second,
	}

	presenceCfg := config.Presence
	if config.Settings.Path != "" {
		d.store, err = settings.Open(config.Settings)
		if err != nil {
			return nil, err
		}
		saved, err := d.store.Callsign()
		if err != nil {
			level.Warn(logger).Log("msg", "failed to read saved callsign", "err", err)
		} else if saved != "" {
			presenceCfg.Callsign = saved
		}
	}

	d.listener, err = telemetry.NewListener(logger, config.Telemetry, reg)
	if err != nil {
		d.closeStore()
		return nil, err
	}

	d.machine = presence.NewMachine(logger, presenceCfg, pub, labels, epoch, reg)

	if config.Server.HTTPListenAddress != "" {
		d.server, err = server.New(logger, config.Server, d.machine.Board(), gatherer)
		if err != nil {
			d.listener.Stop()
			d.closeStore()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.run(ctx)

	if err := d.machine.Submit(ctx, presence.Connect{}); err != nil {
		level.Error(logger).Log("msg", "failed to request presence connection", "err", err)
	}
	level.Info(logger).Log("msg", "dcs-presence initialized")
	return d, nil
}

func (d *DCSPresence) run(ctx context.Context) {
	defer close(d.done)
	d.err = d.machine.Run(ctx, d.listener.Events())
}

// Board is the latest presence state, for the status window.
func (d *DCSPresence) Board() *presence.Board {
	return d.machine.Board()
}

// SetCallsign remembers the callsign and applies it to the next sample.
func (d *DCSPresence) SetCallsign(callsign string) {
	if d.store != nil {
		if err := d.store.SetCallsign(callsign); err != nil {
			level.Warn(d.logger).Log("msg", "failed to save callsign", "err", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.machine.Submit(ctx, presence.CallsignChanged{Callsign: callsign}); err != nil {
		level.Warn(d.logger).Log("msg", "failed to submit callsign", "err", err)
	}
}

// Done is closed once the presence machine has stopped.
func (d *DCSPresence) Done() <-chan struct{} {
	return d.done
}

// Stop closes the presence link and releases the socket. It returns the
// error from closing the link, if any.
func (d *DCSPresence) Stop() error {
	level.Info(d.logger).Log("msg", "dcs-presence shutdown called")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := d.machine.Submit(ctx, presence.CloseRequested{}); err != nil && err != presence.ErrClosed {
		level.Warn(d.logger).Log("msg", "failed to request close, cancelling", "err", err)
		d.cancel()
	}
	cancel()

	err := d.wait()
	d.cancel()

	d.listener.Stop()
	if d.server != nil {
		d.server.Stop()
	}
	d.closeStore()
	level.Info(d.logger).Log("msg", "dcs-presence shutdown complete")
	return err
}

func (d *DCSPresence) wait() error {
	t := time.NewTimer(d.stopTimeout)
	defer t.Stop()
	select {
	case <-d.done:
		return d.err
	case <-t.C:
		level.Error(d.logger).Log("msg", "presence machine is stuck, abandoning it", "timeout", d.stopTimeout)
		return ErrStopTimeout
	}
}

func (d *DCSPresence) closeStore() {
	if d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		level.Warn(d.logger).Log("msg", "failed to close settings", "err", err)
	}
}
