package bridge

import (
	"fmt"

	"github.com/aerolink/mavbridge/mavlink"
	"github.com/aerolink/mavbridge/telemetry"
)

type Verdict uint8

const (
	VerdictIgnore Verdict = iota
	VerdictLogOnly
	VerdictPublish
)

func (v Verdict) String() string {
	switch v {
	case VerdictIgnore:
		return "ignore"
	case VerdictLogOnly:
		return "log-only"
	case VerdictPublish:
		return "publish"
	}
	return fmt.Sprintf("verdict(%d)", uint8(v))
}

// Action is one step of handling decoded message.
// Topic and Payload are set only for VerdictPublish.
type Action struct {
	Verdict Verdict
	Topic   string
	Payload []byte
}

func (self Action) String() string {
	if self.Verdict != VerdictPublish {
		return self.Verdict.String()
	}
	return fmt.Sprintf("publish topic=%s payload=%x", self.Topic, self.Payload)
}

// Routes are optional publish rules, zero value is the default routing.
type Routes struct {
	// publish position block delivered as its own message
	PositionMessages bool
	// publish full state snapshot after attitude
	StateSnapshot bool
}

func publish(topic string, r telemetry.Record) Action {
	return Action{Verdict: VerdictPublish, Topic: topic, Payload: telemetry.Encode(topic, r)}
}

// Classify is pure: same message and routes always give same actions in same order.
func Classify(msg mavlink.Message, routes Routes) []Action {
	switch m := msg.(type) {
	case mavlink.Heartbeat:
		return []Action{{Verdict: VerdictLogOnly}}

	case mavlink.AttitudeState:
		as := make([]Action, 0, 5)
		as = append(as, publish(telemetry.TopicAttitude, telemetry.AttitudeRecord(m)))
		if m.Position != nil {
			as = append(as, publish(telemetry.TopicPosition, telemetry.PositionRecord(m.TimeUsec, *m.Position)))
		}
		if m.Velocity != nil {
			as = append(as, publish(telemetry.TopicVelocity, telemetry.VelocityRecord(m.TimeUsec, *m.Velocity)))
		}
		if m.Acceleration != nil {
			as = append(as, publish(telemetry.TopicAcceleration, telemetry.AccelerationRecord(m.TimeUsec, *m.Acceleration)))
		}
		if routes.StateSnapshot {
			as = append(as, publish(telemetry.TopicState, telemetry.StateRecord(m)))
		}
		return as

	case mavlink.PositionVelocityAccel:
		if !routes.PositionMessages {
			return []Action{{Verdict: VerdictLogOnly}}
		}
		return []Action{
			publish(telemetry.TopicPosition, telemetry.PositionRecord(m.TimeUsec, m.Position)),
			publish(telemetry.TopicVelocity, telemetry.VelocityRecord(m.TimeUsec, m.Velocity)),
			publish(telemetry.TopicAcceleration, telemetry.AccelerationRecord(m.TimeUsec, m.Acceleration)),
		}

	case mavlink.ActuatorStatus:
		return []Action{{Verdict: VerdictLogOnly}}
	}
	return []Action{{Verdict: VerdictIgnore}}
}
