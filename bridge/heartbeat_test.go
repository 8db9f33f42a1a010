package bridge

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aerolink/mavbridge/log2"
	"github.com/aerolink/mavbridge/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	sync.Mutex
	b    bytes.Buffer
	fail bool
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	if s.fail {
		return 0, fmt.Errorf("link write failed")
	}
	return s.b.Write(p)
}

func (s *syncBuffer) Read(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	return s.b.Read(p)
}

func TestHeartbeatRecord(t *testing.T) {
	t.Parallel()

	hb := NewHeartbeatRecord()
	assert.Equal(t, uint8(18), hb.Type)
	assert.Equal(t, uint8(8), hb.Autopilot)
	assert.Equal(t, uint8(0), hb.BaseMode)
	assert.Equal(t, uint32(0), hb.CustomMode)
	assert.Equal(t, uint8(3), hb.SystemStatus)
	assert.Equal(t, uint8(2), hb.MavlinkVersion)
	assert.False(t, hb.Armed())
}

func TestEmitterSend(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	e := NewEmitter(buf, log2.NewTest(t, log2.LDebug))
	e.SystemID = 1
	e.ComponentID = 191
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Send())
	}
	assert.Equal(t, uint64(3), e.Sent())

	d := mavlink.NewDecoder(buf)
	for i := 0; i < 3; i++ {
		msg, err := d.DecodeNext()
		require.NoError(t, err)
		assert.Equal(t, NewHeartbeatRecord(), msg)
		h := d.Header()
		assert.Equal(t, uint8(i), h.Seq)
		assert.Equal(t, uint8(1), h.SysID)
		assert.Equal(t, uint8(191), h.CompID)
		assert.Equal(t, uint8(2), h.Version)
	}
}

func TestEmitterRun(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fail bool
	}{
		{"ok", false},
		{"write-fails", true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			buf := &syncBuffer{fail: c.fail}
			e := NewEmitter(buf, log2.NewTest(t, log2.LError))
			e.Period = 20 * time.Millisecond
			ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
			defer cancel()
			e.Run(ctx)

			// 5 ticks expected, scheduler jitter allowed
			total := e.Sent() + e.Failed()
			assert.True(t, total >= 3 && total <= 6, "ticks=%d", total)
			if c.fail {
				assert.Equal(t, uint64(0), e.Sent())
			} else {
				assert.Equal(t, uint64(0), e.Failed())
			}
		})
	}
}
