package bridge

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/juju/errors"
)

const DefaultHeartbeatPeriod = time.Second

// NewHeartbeatRecord announces the bridge as onboard computer, disarmed and standing by.
func NewHeartbeatRecord() mavlink.Heartbeat {
	return mavlink.Heartbeat{
		Type:           mavlink.MavTypeOnboardController,
		Autopilot:      mavlink.MavAutopilotInvalid,
		BaseMode:       0,
		CustomMode:     0,
		SystemStatus:   mavlink.MavStateStandby,
		MavlinkVersion: mavlink.ProtocolVersion,
	}
}

// Emitter writes heartbeat frame every Period.
// Write failures are counted and logged, next tick is unaffected.
type Emitter struct {
	sent   uint64 // atomic
	failed uint64 // atomic

	Period      time.Duration
	SystemID    uint8
	ComponentID uint8

	log *log2.Log
	seq mavlink.Sequence
	w   io.Writer
}

func NewEmitter(w io.Writer, log *log2.Log) *Emitter {
	return &Emitter{
		Period: DefaultHeartbeatPeriod,
		log:    log,
		w:      w,
	}
}

// Run blocks until ctx is done.
func (self *Emitter) Run(ctx context.Context) {
	period := self.Period
	if period <= 0 {
		period = DefaultHeartbeatPeriod
	}
	tick := time.NewTicker(period)
	defer tick.Stop()
	donech := ctx.Done()
	for {
		select {
		case <-tick.C:
			_ = self.Send()

		case <-donech:
			return
		}
	}
}

// Send writes one heartbeat frame.
func (self *Emitter) Send() error {
	h := mavlink.Header{Seq: self.seq.Next(), SysID: self.SystemID, CompID: self.ComponentID}
	b, err := mavlink.Marshal(h, NewHeartbeatRecord())
	if err != nil {
		panic("code error marshal heartbeat: " + errors.ErrorStack(err))
	}
	if _, err = self.w.Write(b); err != nil {
		n := atomic.AddUint64(&self.failed, 1)
		self.log.Errorf("heartbeat seq=%d failed=%d err=%v", h.Seq, n, err)
		return errors.Annotate(err, "heartbeat")
	}
	atomic.AddUint64(&self.sent, 1)
	self.log.Debugf("heartbeat seq=%d", h.Seq)
	return nil
}

func (self *Emitter) Sent() uint64   { return atomic.LoadUint64(&self.sent) }
func (self *Emitter) Failed() uint64 { return atomic.LoadUint64(&self.failed) }
