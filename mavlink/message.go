package mavlink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MAVLink message ids understood by the bridge.
const (
	MsgIDHeartbeat            uint32 = 0
	MsgIDHilState             uint32 = 90
	MsgIDHilStateQuaternion   uint32 = 115
	MsgIDActuatorOutputStatus uint32 = 375
)

// HEARTBEAT enum values used by the bridge.
const (
	MavTypeQuadrotor         uint8 = 2
	MavTypeGCS               uint8 = 6
	MavTypeOnboardController uint8 = 18

	MavAutopilotGeneric uint8 = 0
	MavAutopilotPX4     uint8 = 12
	MavAutopilotInvalid uint8 = 8

	MavModeFlagSafetyArmed uint8 = 0x80

	MavStateStandby uint8 = 3
	MavStateActive  uint8 = 4
)

const standardGravity = 9.80665

type Kind uint8

const (
	KindOther Kind = iota
	KindHeartbeat
	KindAttitudeState
	KindPositionVelocityAccel
	KindActuatorStatus
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindHeartbeat:
		return "heartbeat"
	case KindAttitudeState:
		return "attitude-state"
	case KindPositionVelocityAccel:
		return "position-velocity-accel"
	case KindActuatorStatus:
		return "actuator-status"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is one decoded protocol message. Values are immutable after decode.
type Message interface {
	MsgID() uint32
	Kind() Kind
}

// payloadMarshaler is implemented by messages the bridge can also send.
type payloadMarshaler interface {
	Message
	marshalPayload() []byte
}

type Vec3 struct{ X, Y, Z float64 }

func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Position in WGS84: Lat, Lon degrees, Alt meters MSL.
type Position struct{ Lat, Lon, Alt float64 }

func (p Position) Array() [3]float64 { return [3]float64{p.Lat, p.Lon, p.Alt} }

type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

func (Heartbeat) MsgID() uint32 { return MsgIDHeartbeat }
func (Heartbeat) Kind() Kind    { return KindHeartbeat }

func (self Heartbeat) Armed() bool { return self.BaseMode&MavModeFlagSafetyArmed != 0 }

func (self Heartbeat) String() string {
	return fmt.Sprintf("heartbeat type=%d autopilot=%d base_mode=%02x custom_mode=%d status=%d version=%d",
		self.Type, self.Autopilot, self.BaseMode, self.CustomMode, self.SystemStatus, self.MavlinkVersion)
}

func (self Heartbeat) marshalPayload() []byte {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint32(b[0:], self.CustomMode)
	b[4] = self.Type
	b[5] = self.Autopilot
	b[6] = self.BaseMode
	b[7] = self.SystemStatus
	b[8] = self.MavlinkVersion
	return b
}

func unmarshalHeartbeat(b []byte) Message {
	return Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(b[0:]),
		Type:           b[4],
		Autopilot:      b[5],
		BaseMode:       b[6],
		SystemStatus:   b[7],
		MavlinkVersion: b[8],
	}
}

// AttitudeState is vehicle state with attitude as quaternion (HIL_STATE_QUATERNION).
// Position, Velocity, Acceleration are nil when not populated.
type AttitudeState struct {
	TimeUsec     uint64
	Quaternion   [4]float32 // w, x, y, z
	Rates        [3]float32 // roll, pitch, yaw rad/s
	Position     *Position
	Velocity     *Vec3 // m/s
	Acceleration *Vec3 // m/s2
	IndAirspeed  float64
	TrueAirspeed float64
}

func (AttitudeState) MsgID() uint32 { return MsgIDHilStateQuaternion }
func (AttitudeState) Kind() Kind    { return KindAttitudeState }

func (self AttitudeState) String() string {
	return fmt.Sprintf("attitude ts=%d q=%v rates=%v position=%v velocity=%v acceleration=%v",
		self.TimeUsec, self.Quaternion, self.Rates, self.Position, self.Velocity, self.Acceleration)
}

func (self AttitudeState) marshalPayload() []byte {
	b := make([]byte, 64)
	le := binary.LittleEndian
	le.PutUint64(b[0:], self.TimeUsec)
	for i, q := range self.Quaternion {
		le.PutUint32(b[8+4*i:], math.Float32bits(q))
	}
	for i, r := range self.Rates {
		le.PutUint32(b[24+4*i:], math.Float32bits(r))
	}
	if p := self.Position; p != nil {
		putPosition(b[36:], *p)
	}
	if v := self.Velocity; v != nil {
		putVelocity(b[48:], *v)
	}
	le.PutUint16(b[54:], uint16(math.Round(self.IndAirspeed*100)))
	le.PutUint16(b[56:], uint16(math.Round(self.TrueAirspeed*100)))
	if a := self.Acceleration; a != nil {
		putAcceleration(b[58:], *a)
	}
	return b
}

func unmarshalAttitudeState(b []byte) Message {
	le := binary.LittleEndian
	m := AttitudeState{TimeUsec: le.Uint64(b[0:])}
	for i := range m.Quaternion {
		m.Quaternion[i] = math.Float32frombits(le.Uint32(b[8+4*i:]))
	}
	for i := range m.Rates {
		m.Rates[i] = math.Float32frombits(le.Uint32(b[24+4*i:]))
	}
	// wire message always carries position block
	p := getPosition(b[36:])
	v := getVelocity(b[48:])
	a := getAcceleration(b[58:])
	m.Position, m.Velocity, m.Acceleration = &p, &v, &a
	m.IndAirspeed = float64(le.Uint16(b[54:])) / 100
	m.TrueAirspeed = float64(le.Uint16(b[56:])) / 100
	return m
}

// PositionVelocityAccel is position block delivered as its own message (HIL_STATE).
// Airspeed is nil when carrier message has none.
type PositionVelocityAccel struct {
	TimeUsec     uint64
	Attitude     Vec3 // roll, pitch, yaw rad
	Rates        Vec3 // rad/s
	Position     Position
	Velocity     Vec3
	Acceleration Vec3
	Airspeed     *float64
}

func (PositionVelocityAccel) MsgID() uint32 { return MsgIDHilState }
func (PositionVelocityAccel) Kind() Kind    { return KindPositionVelocityAccel }

func (self PositionVelocityAccel) String() string {
	return fmt.Sprintf("position ts=%d position=%v velocity=%v acceleration=%v",
		self.TimeUsec, self.Position, self.Velocity, self.Acceleration)
}

func (self PositionVelocityAccel) marshalPayload() []byte {
	b := make([]byte, 56)
	le := binary.LittleEndian
	le.PutUint64(b[0:], self.TimeUsec)
	angles := []float64{
		self.Attitude.X, self.Attitude.Y, self.Attitude.Z,
		self.Rates.X, self.Rates.Y, self.Rates.Z,
	}
	for i, f := range angles {
		le.PutUint32(b[8+4*i:], math.Float32bits(float32(f)))
	}
	putPosition(b[32:], self.Position)
	putVelocity(b[44:], self.Velocity)
	putAcceleration(b[50:], self.Acceleration)
	return b
}

func unmarshalPositionVelocityAccel(b []byte) Message {
	le := binary.LittleEndian
	f := func(off int) float64 { return float64(math.Float32frombits(le.Uint32(b[off:]))) }
	return PositionVelocityAccel{
		TimeUsec:     le.Uint64(b[0:]),
		Attitude:     Vec3{f(8), f(12), f(16)},
		Rates:        Vec3{f(20), f(24), f(28)},
		Position:     getPosition(b[32:]),
		Velocity:     getVelocity(b[44:]),
		Acceleration: getAcceleration(b[50:]),
	}
}

// ActuatorStatus is ACTUATOR_OUTPUT_STATUS.
type ActuatorStatus struct {
	TimeUsec uint64
	Active   uint32
	Actuator [32]float32
}

func (ActuatorStatus) MsgID() uint32 { return MsgIDActuatorOutputStatus }
func (ActuatorStatus) Kind() Kind    { return KindActuatorStatus }

func (self ActuatorStatus) String() string {
	n := self.Active
	if n > uint32(len(self.Actuator)) {
		n = uint32(len(self.Actuator))
	}
	return fmt.Sprintf("actuator ts=%d active=%d outputs=%v", self.TimeUsec, self.Active, self.Actuator[:n])
}

func (self ActuatorStatus) marshalPayload() []byte {
	b := make([]byte, 140)
	le := binary.LittleEndian
	le.PutUint64(b[0:], self.TimeUsec)
	le.PutUint32(b[8:], self.Active)
	for i, a := range self.Actuator {
		le.PutUint32(b[12+4*i:], math.Float32bits(a))
	}
	return b
}

func unmarshalActuatorStatus(b []byte) Message {
	le := binary.LittleEndian
	m := ActuatorStatus{TimeUsec: le.Uint64(b[0:]), Active: le.Uint32(b[8:])}
	for i := range m.Actuator {
		m.Actuator[i] = math.Float32frombits(le.Uint32(b[12+4*i:]))
	}
	return m
}

// Other marks a frame seen and ignored.
type Other struct{ ID uint32 }

func (self Other) MsgID() uint32 { return self.ID }
func (Other) Kind() Kind         { return KindOther }

func (self Other) String() string { return fmt.Sprintf("other msgid=%d", self.ID) }

// lat, lon degE7 int32; alt mm int32
func putPosition(b []byte, p Position) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(int32(math.Round(p.Lat*1e7))))
	le.PutUint32(b[4:], uint32(int32(math.Round(p.Lon*1e7))))
	le.PutUint32(b[8:], uint32(int32(math.Round(p.Alt*1000))))
}

func getPosition(b []byte) Position {
	le := binary.LittleEndian
	return Position{
		Lat: float64(int32(le.Uint32(b[0:]))) / 1e7,
		Lon: float64(int32(le.Uint32(b[4:]))) / 1e7,
		Alt: float64(int32(le.Uint32(b[8:]))) / 1000,
	}
}

// cm/s int16
func putVelocity(b []byte, v Vec3) {
	for i, x := range v.Array() {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(math.Round(x*100))))
	}
}

func getVelocity(b []byte) Vec3 {
	le := binary.LittleEndian
	return Vec3{
		X: float64(int16(le.Uint16(b[0:]))) / 100,
		Y: float64(int16(le.Uint16(b[2:]))) / 100,
		Z: float64(int16(le.Uint16(b[4:]))) / 100,
	}
}

// mG int16
func putAcceleration(b []byte, a Vec3) {
	for i, x := range a.Array() {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(math.Round(x*1000/standardGravity))))
	}
}

func getAcceleration(b []byte) Vec3 {
	le := binary.LittleEndian
	g := func(off int) float64 { return float64(int16(le.Uint16(b[off:]))) * standardGravity / 1000 }
	return Vec3{X: g(0), Y: g(2), Z: g(4)}
}

type messageSpec struct {
	length    uint8
	crcExtra  byte
	unmarshal func([]byte) Message
}

var messageSpecs = map[uint32]messageSpec{
	MsgIDHeartbeat:            {9, 50, unmarshalHeartbeat},
	MsgIDHilState:             {56, 183, unmarshalPositionVelocityAccel},
	MsgIDHilStateQuaternion:   {64, 4, unmarshalAttitudeState},
	MsgIDActuatorOutputStatus: {140, 251, unmarshalActuatorStatus},
}
