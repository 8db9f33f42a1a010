package telemetry

import "github.com/aerolink/mavbridge/mavlink"

func f32s(fs ...float32) []float64 {
	r := make([]float64, len(fs))
	for i, f := range fs {
		r[i] = float64(f)
	}
	return r
}

func AttitudeRecord(m mavlink.AttitudeState) Record {
	q, w := m.Quaternion, m.Rates
	return Record{
		Layout:   LayoutAttitude,
		TimeUsec: m.TimeUsec,
		Values:   f32s(q[0], q[1], q[2], q[3], w[0], w[1], w[2]),
	}
}

func PositionRecord(ts uint64, p mavlink.Position) Record {
	return Record{Layout: LayoutPosition, TimeUsec: ts, Values: []float64{p.Lat, p.Lon, p.Alt}}
}

func VelocityRecord(ts uint64, v mavlink.Vec3) Record {
	return Record{Layout: LayoutVelocity, TimeUsec: ts, Values: []float64{v.X, v.Y, v.Z}}
}

func AccelerationRecord(ts uint64, a mavlink.Vec3) Record {
	return Record{Layout: LayoutAcceleration, TimeUsec: ts, Values: []float64{a.X, a.Y, a.Z}}
}

// StateRecord is full snapshot, missing subfields encode as zero.
func StateRecord(m mavlink.AttitudeState) Record {
	var p mavlink.Position
	var v, a mavlink.Vec3
	if m.Position != nil {
		p = *m.Position
	}
	if m.Velocity != nil {
		v = *m.Velocity
	}
	if m.Acceleration != nil {
		a = *m.Acceleration
	}
	values := AttitudeRecord(m).Values
	values = append(values, p.Lat, p.Lon, p.Alt, v.X, v.Y, v.Z, a.X, a.Y, a.Z, m.IndAirspeed, m.TrueAirspeed)
	return Record{Layout: LayoutState, TimeUsec: m.TimeUsec, Values: values}
}
