package telemetry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/aerolink/mavbridge/helpers"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeExact(t *testing.T) {
	t.Parallel()

	r := Record{Layout: LayoutPosition, TimeUsec: 100, Values: []float64{1, 2, 3}}
	b := Encode("p", r)
	expect := helpers.MustHex("23000000" +
		"0801" + "1002" + "1a0170" + "2064" +
		"2a18" + "000000000000f03f" + "0000000000000040" + "0000000000000840")
	assert.Equal(t, expect, b)
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	m := mavlink.AttitudeState{
		TimeUsec:     100,
		Quaternion:   [4]float32{1, 0, 0, 0},
		Rates:        [3]float32{0.25, -0.5, 0},
		Position:     &mavlink.Position{Lat: 1, Lon: 2, Alt: 3},
		Velocity:     &mavlink.Vec3{X: 0.5},
		IndAirspeed:  12.5,
		TrueAirspeed: 13,
	}
	cases := []struct {
		topic string
		r     Record
	}{
		{TopicAttitude, AttitudeRecord(m)},
		{TopicPosition, PositionRecord(m.TimeUsec, *m.Position)},
		{TopicVelocity, VelocityRecord(m.TimeUsec, *m.Velocity)},
		{TopicAcceleration, AccelerationRecord(m.TimeUsec, mavlink.Vec3{Z: -9.80665})},
		{TopicState, StateRecord(m)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.topic, func(t *testing.T) {
			b := Encode(c.topic, c.r)
			topic, r, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, c.topic, topic)
			assert.Equal(t, c.r, r)
		})
	}

	r := StateRecord(m)
	require.Len(t, r.Values, len(LayoutState.Fields()))
	v, ok := r.Value("lat")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = r.Value("az")
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	v, ok = r.Value("true_airspeed")
	assert.True(t, ok)
	assert.Equal(t, 13.0, v)
	_, ok = r.Value("nope")
	assert.False(t, ok)
}

func TestEncodeSpecialValues(t *testing.T) {
	t.Parallel()

	r := Record{Layout: LayoutVelocity, TimeUsec: math.MaxUint64, Values: []float64{math.Inf(-1), 0, math.MaxFloat64}}
	_, got, err := Decode(Encode(TopicVelocity, r))
	require.NoError(t, err)
	assert.Equal(t, r, got)

	r.Values[1] = math.NaN()
	_, got, err = Decode(Encode(TopicVelocity, r))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Values[1]))
}

func TestEncodeMismatchPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Encode(TopicPosition, Record{Layout: LayoutPosition, Values: []float64{1}}) })
	assert.Panics(t, func() { Encode(TopicPosition, Record{Layout: LayoutInvalid}) })
}

func withLength(body []byte) []byte {
	b := make([]byte, lengthPrefix, lengthPrefix+len(body))
	binary.LittleEndian.PutUint32(b, uint32(len(body)))
	return append(b, body...)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	good := Encode(TopicPosition, PositionRecord(7, mavlink.Position{Lat: 1, Lon: 2, Alt: 3}))
	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}
	envelope := func(e *Envelope) []byte {
		body, err := proto.Marshal(e)
		require.NoError(t, err)
		return withLength(body)
	}
	cases := []struct {
		name  string
		input []byte
		check func(error) bool
	}{
		{"empty", nil, errors.IsNotValid},
		{"truncated", good[:len(good)-1], errors.IsNotValid},
		{"trailing", append(append([]byte(nil), good...), 0), errors.IsNotValid},
		{"length", mutate(func(b []byte) []byte { b[0]++; return b }), errors.IsNotValid},
		{"protobuf", withLength([]byte{0xff}), errors.IsNotValid},
		{"version", mutate(func(b []byte) []byte { b[5] = 9; return b }), errors.IsNotSupported},
		{"layout", mutate(func(b []byte) []byte { b[7] = 0x7e; return b }), errors.IsNotValid},
		{"count", envelope(&Envelope{SchemaVersion: 1, Layout: uint32(LayoutPosition), Topic: TopicPosition, Values: []float64{1, 2}}), errors.IsNotValid},
		{"topic-empty", envelope(&Envelope{SchemaVersion: 1, Layout: uint32(LayoutPosition), Values: []float64{1, 2, 3}}), errors.IsNotValid},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, _, err := Decode(c.input)
			require.Error(t, err)
			assert.True(t, c.check(err), err.Error())
		})
	}
}
