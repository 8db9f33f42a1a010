// Package telemetry is the single wire format of everything the bridge publishes.
//
// Record is u32 little endian length of the rest, then protobuf Envelope
// (telemetry.proto): schema version, layout id, topic, timestamp and
// packed float64 values in layout order.
//
// One record per publish, never batched or split.
package telemetry

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
)

const SchemaVersion uint8 = 1

// Bus topics.
const (
	TopicAttitude     = "telemetry/attitude"
	TopicPosition     = "telemetry/position"
	TopicVelocity     = "telemetry/velocity"
	TopicAcceleration = "telemetry/acceleration"
	TopicState        = "telemetry/state"
)

// Topics lists every topic the bridge may publish.
var Topics = []string{TopicAttitude, TopicPosition, TopicVelocity, TopicAcceleration, TopicState}

type Layout uint8

const (
	LayoutInvalid Layout = iota
	LayoutAttitude
	LayoutPosition
	LayoutVelocity
	LayoutAcceleration
	LayoutState
)

var layoutFields = map[Layout][]string{
	LayoutAttitude:     {"qw", "qx", "qy", "qz", "rollspeed", "pitchspeed", "yawspeed"},
	LayoutPosition:     {"lat", "lon", "alt"},
	LayoutVelocity:     {"vx", "vy", "vz"},
	LayoutAcceleration: {"ax", "ay", "az"},
	LayoutState: {"qw", "qx", "qy", "qz", "rollspeed", "pitchspeed", "yawspeed",
		"lat", "lon", "alt", "vx", "vy", "vz", "ax", "ay", "az", "ind_airspeed", "true_airspeed"},
}

func (l Layout) String() string {
	switch l {
	case LayoutAttitude:
		return "attitude"
	case LayoutPosition:
		return "position"
	case LayoutVelocity:
		return "velocity"
	case LayoutAcceleration:
		return "acceleration"
	case LayoutState:
		return "state"
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

// Fields returns value names in wire order, nil for unknown layout.
func (l Layout) Fields() []string { return layoutFields[l] }

type Record struct {
	Layout   Layout
	TimeUsec uint64
	Values   []float64
}

func (self Record) String() string {
	return fmt.Sprintf("%s ts=%d values=%v", self.Layout.String(), self.TimeUsec, self.Values)
}

// Value by field name, ok=false if layout has no such field.
func (self Record) Value(name string) (float64, bool) {
	for i, f := range self.Layout.Fields() {
		if f == name && i < len(self.Values) {
			return self.Values[i], true
		}
	}
	return 0, false
}

const lengthPrefix = 4

// Encode never fails for record built by this package constructors.
// Mismatch of Values and Layout is code error and panics.
func Encode(topic string, r Record) []byte {
	fields := r.Layout.Fields()
	if fields == nil || len(fields) != len(r.Values) {
		panic(fmt.Sprintf("code error telemetry.Encode topic=%s layout=%s values=%d", topic, r.Layout.String(), len(r.Values)))
	}
	e := &Envelope{
		SchemaVersion: uint32(SchemaVersion),
		Layout:        uint32(r.Layout),
		Topic:         topic,
		TimeUsec:      r.TimeUsec,
		Values:        r.Values,
	}
	buf := proto.NewBuffer(make([]byte, lengthPrefix, lengthPrefix+proto.Size(e)))
	if err := buf.Marshal(e); err != nil {
		panic(fmt.Sprintf("code error telemetry.Encode topic=%s err=%v", topic, err))
	}
	b := buf.Bytes()
	binary.LittleEndian.PutUint32(b, uint32(len(b)-lengthPrefix))
	return b
}

// Decode parses one record, b must contain exactly one record.
func Decode(b []byte) (topic string, r Record, err error) {
	if len(b) < lengthPrefix {
		return "", r, errors.NotValidf("telemetry record length=%d < %d", len(b), lengthPrefix)
	}
	bodyLen := int(binary.LittleEndian.Uint32(b))
	if bodyLen != len(b)-lengthPrefix {
		return "", r, errors.NotValidf("telemetry record=%x claims length=%d actual=%d", b, bodyLen, len(b)-lengthPrefix)
	}
	var e Envelope
	if err = proto.Unmarshal(b[lengthPrefix:], &e); err != nil {
		return "", r, errors.NewNotValid(err, fmt.Sprintf("telemetry record=%x", b))
	}
	if e.SchemaVersion != uint32(SchemaVersion) {
		return "", r, errors.NotSupportedf("telemetry schema version=%d", e.SchemaVersion)
	}
	if e.Layout > 0xff || Layout(e.Layout).Fields() == nil {
		return "", r, errors.NotValidf("telemetry layout=%d", e.Layout)
	}
	if e.Topic == "" {
		return "", r, errors.NotValidf("telemetry record=%x topic empty", b)
	}
	r.Layout = Layout(e.Layout)
	if expect := len(r.Layout.Fields()); len(e.Values) != expect {
		return "", r, errors.NotValidf("telemetry layout=%s values=%d expected=%d", r.Layout.String(), len(e.Values), expect)
	}
	r.TimeUsec = e.TimeUsec
	r.Values = e.Values
	return e.Topic, r, nil
}
