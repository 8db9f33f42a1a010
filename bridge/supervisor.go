// Package bridge relays flight controller telemetry to message bus.
//
// Supervisor owns serial link and bus session, runs heartbeat emitter and decode loop
// concurrently. Transport fault of serial link stops everything, there is no reconnect.
package bridge

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/aerolink/mavbridge/bus"
	"github.com/aerolink/mavbridge/helpers"
	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/aerolink/mavbridge/serial"
	"github.com/aerolink/mavbridge/telemetry"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const (
	DefaultSystemID    = 1
	DefaultComponentID = 191 // MAV_COMP_ID_ONBOARD_COMPUTER

	DefaultMalformedReportInterval = 10 * time.Second
)

type Config struct {
	Serial          serial.Config
	Bus             bus.Config
	HeartbeatPeriod time.Duration
	SystemID        uint8
	ComponentID     uint8
	Routes          Routes
}

type Stat struct {
	Decoded          uint64
	Published        uint64
	PublishErrors    uint64
	LogOnly          uint64
	Ignored          uint64
	Malformed        uint64
	WouldBlock       uint64
	HeartbeatsSent   uint64
	HeartbeatsFailed uint64
}

type Supervisor struct {
	stat Stat // atomic align

	Log *log2.Log

	// Malformed input is reported at info level at most once per interval.
	MalformedReportInterval time.Duration

	alive   *alive.Alive
	backoff helpers.Backoff
	config  Config
	emitter *Emitter
	fatal   helpers.AtomicError
	link    io.ReadWriter
	pub     bus.Publisher
	closers []io.Closer
}

func NewSupervisor(c Config, log *log2.Log) *Supervisor {
	if c.SystemID == 0 {
		c.SystemID = DefaultSystemID
	}
	if c.ComponentID == 0 {
		c.ComponentID = DefaultComponentID
	}
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	return &Supervisor{
		Log:                     log,
		MalformedReportInterval: DefaultMalformedReportInterval,
		alive:                   alive.NewAlive(),
		backoff: helpers.Backoff{
			Min: 1 * time.Millisecond,
			Max: 50 * time.Millisecond,
			K:   2,
		},
		config: c,
	}
}

// Open serial link then bus session. Serial failure is fatal for the bridge.
func (self *Supervisor) Open() error {
	port, err := serial.Open(self.config.Serial)
	if err != nil {
		return errors.Annotate(err, "bridge open")
	}
	self.Log.Infof("serial open device=%s", port.String())
	session, err := bus.NewSession(self.config.Bus, self.Log)
	if err != nil {
		_ = port.Close()
		return errors.Annotate(err, "bridge open")
	}
	for _, topic := range telemetry.Topics {
		if _, err = session.Declare(topic); err != nil {
			_ = session.Close()
			_ = port.Close()
			return errors.Annotate(err, "bridge open")
		}
	}
	self.Attach(port, session)
	self.closers = append(self.closers, session, port)
	return nil
}

// Attach uses given link and publisher instead of Open.
func (self *Supervisor) Attach(link io.ReadWriter, pub bus.Publisher) {
	self.link = link
	self.pub = pub
	self.emitter = NewEmitter(link, self.Log.Component("heartbeat"))
	self.emitter.Period = self.config.HeartbeatPeriod
	self.emitter.SystemID = self.config.SystemID
	self.emitter.ComponentID = self.config.ComponentID
}

// Run returns first fatal error, nil when stopped by ctx or Stop().
func (self *Supervisor) Run(ctx context.Context) error {
	if self.link == nil || self.pub == nil {
		return errors.NotValidf("code error bridge Run before Open")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !self.alive.Add(2) {
		return errors.Errorf("bridge already stopped")
	}
	go func() {
		defer self.alive.Done()
		self.emitter.Run(ctx)
	}()
	go func() {
		defer self.alive.Done()
		self.decodeLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-self.alive.StopChan():
	}
	self.alive.Stop()
	cancel()
	self.alive.Wait()

	err, _ := self.fatal.Load()
	return err
}

func (self *Supervisor) Stop() { self.alive.Stop() }

func (self *Supervisor) Close() error {
	errs := make([]error, 0, len(self.closers))
	for _, c := range self.closers {
		errs = append(errs, c.Close())
	}
	self.closers = nil
	return helpers.FoldErrors(errs)
}

func (self *Supervisor) Stat() Stat {
	s := Stat{
		Decoded:       atomic.LoadUint64(&self.stat.Decoded),
		Published:     atomic.LoadUint64(&self.stat.Published),
		PublishErrors: atomic.LoadUint64(&self.stat.PublishErrors),
		LogOnly:       atomic.LoadUint64(&self.stat.LogOnly),
		Ignored:       atomic.LoadUint64(&self.stat.Ignored),
		Malformed:     atomic.LoadUint64(&self.stat.Malformed),
		WouldBlock:    atomic.LoadUint64(&self.stat.WouldBlock),
	}
	if self.emitter != nil {
		s.HeartbeatsSent = self.emitter.Sent()
		s.HeartbeatsFailed = self.emitter.Failed()
	}
	return s
}

func (self *Supervisor) decodeLoop(ctx context.Context) {
	d := mavlink.NewDecoder(self.link)
	donech := ctx.Done()
	stopch := self.alive.StopChan()
	var reportedAt time.Time
	unreported := 0
	defer func() {
		if unreported != 0 {
			self.Log.Infof("decode malformed count=%d", unreported)
		}
	}()
	for self.alive.IsRunning() && ctx.Err() == nil {
		bytesBefore := d.Stat().Bytes
		msg, err := d.DecodeNext()
		switch mavlink.FaultOf(err) {
		case mavlink.FaultNone:
			if err != nil {
				self.die(errors.Annotate(err, "code error decoder"))
				return
			}
			self.backoff.Reset()
			atomic.AddUint64(&self.stat.Decoded, 1)
			self.handle(ctx, d.Header(), msg)

		case mavlink.FaultWouldBlock:
			atomic.AddUint64(&self.stat.WouldBlock, 1)
			if d.Stat().Bytes != bytesBefore {
				// partial frame, read again right away
				self.backoff.Reset()
				continue
			}
			delay := self.backoff.DelayAfter(false)
			select {
			case <-time.After(delay):
			case <-donech:
				return
			case <-stopch:
				return
			}

		case mavlink.FaultMalformed:
			atomic.AddUint64(&self.stat.Malformed, 1)
			self.Log.Debugf("decode skip err=%v", err)
			unreported++
			if now := time.Now(); now.Sub(reportedAt) >= self.MalformedReportInterval {
				self.Log.Infof("decode malformed count=%d last=%v", unreported, err)
				reportedAt, unreported = now, 0
			}

		case mavlink.FaultTransport:
			self.die(errors.Annotate(err, "serial link"))
			return
		}
	}
}

func (self *Supervisor) die(err error) {
	if _, set := self.fatal.StoreOnce(err); !set {
		self.Log.Errorf("fatal %v", err)
	}
	self.alive.Stop()
}

func (self *Supervisor) handle(ctx context.Context, h mavlink.Header, msg mavlink.Message) {
	for _, a := range Classify(msg, self.config.Routes) {
		switch a.Verdict {
		case VerdictPublish:
			if err := self.pub.Publish(ctx, a.Topic, a.Payload); err != nil {
				atomic.AddUint64(&self.stat.PublishErrors, 1)
				self.Log.Errorf("publish dropped topic=%s err=%v", a.Topic, err)
				continue
			}
			atomic.AddUint64(&self.stat.Published, 1)

		case VerdictLogOnly:
			atomic.AddUint64(&self.stat.LogOnly, 1)
			self.Log.Debugf("%s %v", h.String(), msg)

		case VerdictIgnore:
			atomic.AddUint64(&self.stat.Ignored, 1)
		}
	}
}
