package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cortexproject/cortex/pkg/util"

	"github.com/slim-bean/dcs-presence/pkg/telemetry"
	"github.com/slim-bean/dcs-presence/pkg/vehicle"
)

// fakePublisher records calls and fails the next N calls of each kind.
type fakePublisher struct {
	mtx          sync.Mutex
	connects     int
	closes       int
	activities   []Payload
	failConnect  int
	failActivity int
	closeErr     error
}

func (f *fakePublisher) Connect() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.connects++
	if f.failConnect > 0 {
		f.failConnect--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakePublisher) SetActivity(p Payload) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.failActivity > 0 {
		f.failActivity--
		return errors.New("broken pipe")
	}
	f.activities = append(f.activities, p)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakePublisher) last() (Payload, bool) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if len(f.activities) == 0 {
		return Payload{}, false
	}
	return f.activities[len(f.activities)-1], true
}

func (f *fakePublisher) counts() (connects, activities, closes int) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.connects, len(f.activities), f.closes
}

var testNow = time.Date(2026, 10, 14, 18, 30, 0, 0, time.UTC)

func newTestMachine(pub *fakePublisher) *Machine {
	cfg := Config{Redial: util.BackoffConfig{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}}
	m := NewMachine(log.NewNopLogger(), cfg, pub, vehicle.New(nil), epoch, prometheus.NewRegistry())
	m.now = func() time.Time { return testNow }
	return m
}

func TestMachine_InitialState(t *testing.T) {
	m := newTestMachine(&fakePublisher{})
	s := m.Board().Load()
	require.False(t, s.Connected)
	require.True(t, s.LastUpdate.IsZero())
	require.Equal(t, "", s.Callsign)
	require.Equal(t, "Mission planning", s.Headline)
}

func TestMachine_ConnectPublishesIdle(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMachine(pub)

	require.NoError(t, m.HandleIntent(Connect{}))
	p, ok := pub.last()
	require.True(t, ok)
	require.Equal(t, Payload{Headline: "Mission planning", SessionStart: epoch}, p)
	require.True(t, m.Board().Load().Connected)
	require.Equal(t, float64(1), testutil.ToFloat64(m.metrics.linkUp))
}

func TestMachine_Scenarios(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMachine(pub)
	require.NoError(t, m.HandleIntent(Connect{}))

	require.NoError(t, m.HandleEvent(telemetry.Sample{PilotName: "Maverick", VehicleID: "F-16C_50", IndicatedAirspeed: 250, AltitudeBarometric: 3000, SimTime: 120}))
	p, _ := pub.last()
	require.Equal(t, "Maverick in F-16CM bl.50", p.Headline)
	require.Equal(t, "498 knots at 10k feet", p.Detail)
	require.Equal(t, "f-16c_50", p.AssetKey)
	require.Equal(t, epoch, p.SessionStart)
	require.Equal(t, testNow, m.Board().Load().LastUpdate)

	require.NoError(t, m.HandleEvent(telemetry.Sample{PilotName: "Pilot", VehicleID: "UnknownJet", IndicatedAirspeed: 5}))
	p, _ = pub.last()
	require.Equal(t, "Pilot in UnknownJet", p.Headline)
	require.Equal(t, "0 knots at 0k feet", p.Detail)

	require.NoError(t, m.HandleIntent(CallsignChanged{Callsign: "Viper"}))
	_, n, _ := pub.counts()
	require.Equal(t, 3, n, "callsign change alone must not publish")
	require.NoError(t, m.HandleEvent(telemetry.Sample{PilotName: "Maverick", VehicleID: "F-16C_50", IndicatedAirspeed: 250, AltitudeBarometric: 3000}))
	p, _ = pub.last()
	require.Equal(t, "Viper in F-16CM bl.50", p.Headline)

	require.NoError(t, m.HandleEvent(telemetry.Disconnected{}))
	p, _ = pub.last()
	require.Equal(t, Payload{Headline: "Mission planning", SessionStart: epoch}, p)
	// A clean disconnect only resets the display.
	require.True(t, m.Board().Load().Connected)
}

func TestMachine_CallsignClearIsIdempotent(t *testing.T) {
	m := newTestMachine(&fakePublisher{})
	for _, prior := range []string{"Viper", "", "Iceman", ""} {
		require.NoError(t, m.HandleIntent(CallsignChanged{Callsign: prior}))
		require.NoError(t, m.HandleIntent(CallsignChanged{Callsign: ""}))
		require.Equal(t, "", m.callsign)
		require.NoError(t, m.HandleIntent(CallsignChanged{Callsign: ""}))
		require.Equal(t, "", m.Board().Load().Callsign)
	}
}

func TestMachine_InitialCallsign(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMachine(log.NewNopLogger(), Config{Callsign: "Goose"}, pub, vehicle.New(nil), epoch, nil)
	require.NoError(t, m.HandleIntent(Connect{}))
	require.NoError(t, m.HandleEvent(telemetry.Sample{PilotName: "Maverick", VehicleID: "F-14B"}))
	p, _ := pub.last()
	require.Equal(t, "Goose in F-14B Tomcat", p.Headline)
}

func TestMachine_LinkErrorsSurface(t *testing.T) {
	pub := &fakePublisher{failConnect: 1}
	m := newTestMachine(pub)

	err := m.HandleIntent(Connect{})
	var le *LinkError
	require.True(t, errors.As(err, &le))
	require.Equal(t, OpConnect, le.Op)
	require.False(t, m.Board().Load().Connected)

	require.NoError(t, m.HandleIntent(Connect{}))
	pub.mtx.Lock()
	pub.failActivity = 1
	pub.mtx.Unlock()
	err = m.HandleEvent(telemetry.Sample{PilotName: "a", VehicleID: "b"})
	require.True(t, errors.As(err, &le))
	require.Equal(t, OpSetActivity, le.Op)
}

func TestMachine_HoldsPayloadWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMachine(pub)

	require.NoError(t, m.HandleEvent(telemetry.Sample{PilotName: "Maverick", VehicleID: "F-16C_50", IndicatedAirspeed: 250, AltitudeBarometric: 3000}))
	_, n, _ := pub.counts()
	require.Equal(t, 0, n)

	require.NoError(t, m.HandleIntent(Connect{}))
	p, _ := pub.last()
	require.Equal(t, "Maverick in F-16CM bl.50", p.Headline)
}

func TestMachine_CloseIsTerminal(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMachine(pub)
	require.NoError(t, m.HandleIntent(Connect{}))
	require.NoError(t, m.HandleIntent(CloseRequested{}))

	_, _, closes := pub.counts()
	require.Equal(t, 1, closes)
	require.Equal(t, ErrClosed, m.HandleIntent(Connect{}))
	require.Equal(t, ErrClosed, m.HandleEvent(telemetry.Disconnected{}))
	require.Equal(t, ErrClosed, m.HandleIntent(CloseRequested{}))
}

func TestMachine_RunOrdersEventsAndIntents(t *testing.T) {
	pub := &fakePublisher{}
	m := newTestMachine(pub)
	events := make(chan telemetry.Event)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background(), events) }()

	ctx := context.Background()
	require.NoError(t, m.Submit(ctx, Connect{}))
	require.Eventually(t, func() bool { return m.Board().Load().Connected }, 5*time.Second, time.Millisecond)

	events <- telemetry.Sample{PilotName: "Maverick", VehicleID: "F-16C_50", IndicatedAirspeed: 250, AltitudeBarometric: 3000}
	require.Eventually(t, func() bool {
		return m.Board().Load().Headline == "Maverick in F-16CM bl.50"
	}, 5*time.Second, time.Millisecond)

	events <- telemetry.Disconnected{}
	require.Eventually(t, func() bool {
		return m.Board().Load().Headline == "Mission planning"
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, m.Submit(ctx, CloseRequested{}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	_, _, closes := pub.counts()
	require.Equal(t, 1, closes)
	require.Equal(t, ErrClosed, m.Submit(ctx, Connect{}))
}

func TestMachine_RunReturnsCloseError(t *testing.T) {
	pub := &fakePublisher{closeErr: errors.New("pipe gone")}
	m := newTestMachine(pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, nil) }()
	cancel()

	err := <-done
	var le *LinkError
	require.True(t, errors.As(err, &le))
	require.Equal(t, OpClose, le.Op)
}

func TestMachine_RunReconnects(t *testing.T) {
	pub := &fakePublisher{failConnect: 2}
	m := newTestMachine(pub)
	events := make(chan telemetry.Event)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, events)

	require.NoError(t, m.Submit(ctx, Connect{}))
	require.Eventually(t, func() bool { return m.Board().Load().Connected }, 5*time.Second, time.Millisecond)
	connects, _, _ := pub.counts()
	require.Equal(t, 3, connects)

	// A failed update drops the link and the payload is republished on reconnect.
	pub.mtx.Lock()
	pub.failActivity = 1
	pub.mtx.Unlock()
	events <- telemetry.Sample{PilotName: "Maverick", VehicleID: "F-16C_50", IndicatedAirspeed: 250, AltitudeBarometric: 3000}

	require.Eventually(t, func() bool {
		p, ok := pub.last()
		return ok && p.Headline == "Maverick in F-16CM bl.50" && m.Board().Load().Connected
	}, 5*time.Second, time.Millisecond)
	connects, _, _ = pub.counts()
	require.Equal(t, 4, connects)
}

func TestMachine_RunGivesUp(t *testing.T) {
	pub := &fakePublisher{failConnect: 100}
	cfg := Config{Redial: util.BackoffConfig{MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, MaxRetries: 3}}
	m := NewMachine(log.NewNopLogger(), cfg, pub, vehicle.New(nil), epoch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, nil)

	require.NoError(t, m.Submit(ctx, Connect{}))
	require.Eventually(t, func() bool {
		connects, _, _ := pub.counts()
		return connects == 4
	}, 5*time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	connects, _, _ := pub.counts()
	require.Equal(t, 4, connects)
	require.False(t, m.Board().Load().Connected)
}
