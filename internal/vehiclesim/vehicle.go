// Package vehiclesim pretends to be flight controller on the other end of serial link.
// It streams attitude state and records heartbeats received from the bridge.
package vehiclesim

import (
	"context"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aerolink/mavbridge/helpers"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultRate = 20 * time.Millisecond

// Vehicle flies slow circle around Home.
type Vehicle struct {
	Log         *log2.Log
	SystemID    uint8
	ComponentID uint8
	Rate        time.Duration
	Home        mavlink.Position
	// every NoiseEvery-th frame is preceded by random garbage, 0 disables
	NoiseEvery int

	alive *alive.Alive
	rw    io.ReadWriter
	seq   mavlink.Sequence
	rand  *rand.Rand
	sent  int

	mu         sync.Mutex
	heartbeats []mavlink.Heartbeat
}

func New(rw io.ReadWriter, log *log2.Log) *Vehicle {
	return &Vehicle{
		Log:         log,
		SystemID:    1,
		ComponentID: 1,
		Rate:        DefaultRate,
		Home:        mavlink.Position{Lat: 55.7558, Lon: 37.6173, Alt: 150},
		alive:       alive.NewAlive(),
		rw:          rw,
		rand:        helpers.RandUnix(),
	}
}

// State at time since start. Deterministic.
func (self *Vehicle) State(elapsed time.Duration) mavlink.AttitudeState {
	const radius = 0.0005 // degrees
	const period = 60 * time.Second
	phase := 2 * math.Pi * float64(elapsed%period) / float64(period)
	omega := 2 * math.Pi / period.Seconds()
	yaw := phase + math.Pi/2
	speed := radius * 111000 * omega
	return mavlink.AttitudeState{
		TimeUsec:   uint64(elapsed / time.Microsecond),
		Quaternion: [4]float32{float32(math.Cos(yaw / 2)), 0, 0, float32(math.Sin(yaw / 2))},
		Rates:      [3]float32{0, 0, float32(omega)},
		Position: &mavlink.Position{
			Lat: self.Home.Lat + radius*math.Sin(phase),
			Lon: self.Home.Lon + radius*math.Cos(phase),
			Alt: self.Home.Alt,
		},
		Velocity:     &mavlink.Vec3{X: speed * math.Cos(phase), Y: -speed * math.Sin(phase)},
		Acceleration: &mavlink.Vec3{Z: -9.80665},
		IndAirspeed:  speed,
		TrueAirspeed: speed,
	}
}

func (self *Vehicle) header() mavlink.Header {
	return mavlink.Header{Seq: self.seq.Next(), SysID: self.SystemID, CompID: self.ComponentID}
}

func (self *Vehicle) write(msg mavlink.Message) error {
	b, err := mavlink.Marshal(self.header(), msg)
	if err != nil {
		return errors.Trace(err)
	}
	self.sent++
	if self.NoiseEvery > 0 && self.sent%self.NoiseEvery == 0 {
		noise := make([]byte, 1+self.rand.Intn(16))
		_, _ = self.rand.Read(noise)
		b = append(noise, b...)
	}
	return helpers.WriteAll(self.rw, b)
}

func (self *Vehicle) SendState(s mavlink.AttitudeState) error { return self.write(s) }

// SendHeartbeat announces quadrotor autopilot, active.
func (self *Vehicle) SendHeartbeat() error {
	return self.write(mavlink.Heartbeat{
		Type:           mavlink.MavTypeQuadrotor,
		Autopilot:      mavlink.MavAutopilotPX4,
		SystemStatus:   mavlink.MavStateActive,
		MavlinkVersion: 3,
	})
}

// Heartbeats received so far.
func (self *Vehicle) Heartbeats() []mavlink.Heartbeat {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]mavlink.Heartbeat(nil), self.heartbeats...)
}

// Run sends state every Rate and heartbeat every second until ctx done or link fails.
func (self *Vehicle) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var fatal helpers.AtomicError
	self.alive.Add(2)
	go func() {
		defer self.alive.Done()
		if err := self.sender(); err != nil {
			fatal.StoreOnce(err)
		}
		self.alive.Stop()
	}()
	go func() {
		defer self.alive.Done()
		if err := self.receiver(); err != nil {
			fatal.StoreOnce(err)
		}
		self.alive.Stop()
	}()
	go helpers.AliveContext(ctx, self.alive)
	self.alive.Wait()
	err, _ := fatal.Load()
	return err
}

func (self *Vehicle) sender() error {
	rate := self.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	tick := time.NewTicker(rate)
	defer tick.Stop()
	start := time.Now()
	lastHeartbeat := time.Time{}
	stopch := self.alive.StopChan()
	for {
		select {
		case now := <-tick.C:
			if now.Sub(lastHeartbeat) >= time.Second {
				lastHeartbeat = now
				if err := self.SendHeartbeat(); err != nil {
					self.Log.Errorf("vehicle heartbeat err=%v", err)
				}
			}
			if err := self.SendState(self.State(now.Sub(start))); err != nil {
				self.Log.Errorf("vehicle state err=%v", err)
				if errors.Cause(err) == io.ErrClosedPipe {
					return errors.Annotate(err, "vehicle send")
				}
			}

		case <-stopch:
			return nil
		}
	}
}

func (self *Vehicle) receiver() error {
	d := mavlink.NewDecoder(self.rw)
	for self.alive.IsRunning() {
		msg, err := d.DecodeNext()
		switch mavlink.FaultOf(err) {
		case mavlink.FaultNone:
			if hb, ok := msg.(mavlink.Heartbeat); ok {
				self.Log.Debugf("vehicle received %s from %s", hb.String(), d.Header().String())
				helpers.WithLock(&self.mu, func() { self.heartbeats = append(self.heartbeats, hb) })
			}
		case mavlink.FaultWouldBlock:
			select {
			case <-time.After(time.Millisecond):
			case <-self.alive.StopChan():
			}
		case mavlink.FaultMalformed:
			self.Log.Debugf("vehicle skip err=%v", err)
		case mavlink.FaultTransport:
			if !self.alive.IsRunning() {
				return nil
			}
			return errors.Annotate(err, "vehicle receive")
		}
	}
	return nil
}
