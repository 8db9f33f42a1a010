package vehiclesim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aerolink/mavbridge/bridge"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/aerolink/mavbridge/serial"
	"github.com/aerolink/mavbridge/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordPublisher struct {
	mu     sync.Mutex
	topics map[string]int
	last   map[string][]byte
}

func (r *recordPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic]++
	r.last[topic] = payload
	return nil
}

func TestState(t *testing.T) {
	t.Parallel()

	v := New(nil, nil)
	s0 := v.State(0)
	assert.Equal(t, uint64(0), s0.TimeUsec)
	assert.InDelta(t, v.Home.Lat, s0.Position.Lat, 1e-9)
	assert.InDelta(t, v.Home.Lon+0.0005, s0.Position.Lon, 1e-9)
	s15 := v.State(15 * time.Second)
	assert.Equal(t, uint64(15e6), s15.TimeUsec)
	assert.InDelta(t, v.Home.Lat+0.0005, s15.Position.Lat, 1e-9)
	assert.Equal(t, s15, v.State(15*time.Second))
	assert.Equal(t, v.State(time.Second).Position, v.State(61*time.Second).Position)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	vend, bend := Pipe(5 * time.Millisecond)
	defer vend.Close()
	defer bend.Close()

	log := log2.NewTest(t, log2.LError)
	vehicle := New(vend, log)
	vehicle.Rate = 5 * time.Millisecond
	vehicle.NoiseEvery = 7

	pub := &recordPublisher{topics: make(map[string]int), last: make(map[string][]byte)}
	sup := bridge.NewSupervisor(bridge.Config{HeartbeatPeriod: 10 * time.Millisecond}, log)
	port := serial.NewPort("pipe", bend)
	sup.Attach(port, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, vehicle.Run(ctx))
	}()
	require.NoError(t, sup.Run(ctx))
	wg.Wait()

	hbs := vehicle.Heartbeats()
	require.NotEmpty(t, hbs)
	for _, hb := range hbs {
		assert.Equal(t, bridge.NewHeartbeatRecord(), hb)
	}
	assert.Equal(t, mavlink.MavTypeOnboardController, hbs[0].Type)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, topic := range []string{telemetry.TopicAttitude, telemetry.TopicPosition, telemetry.TopicVelocity, telemetry.TopicAcceleration} {
		assert.True(t, pub.topics[topic] > 0, "topic=%s", topic)
	}
	assert.Equal(t, 0, pub.topics[telemetry.TopicState])
	_, r, err := telemetry.Decode(pub.last[telemetry.TopicPosition])
	require.NoError(t, err)
	assert.InDelta(t, vehicle.Home.Lat, r.Values[0], 0.001)
	assert.InDelta(t, vehicle.Home.Alt, r.Values[2], 0.01)
	assert.True(t, sup.Stat().Malformed > 0)
	assert.True(t, port.BytesRead.Value() > 0)
}
