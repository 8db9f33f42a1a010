package helpers

import (
	"bytes"
	"expvar"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteAll(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer(nil)
	frame := MustHex("fd09000000ff000000000000000000000000000000")
	tw := &throttleWriter{buf, 7}
	n, err := tw.Write(frame[:2])
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, buf.Len())
	buf.Reset()
	n, err = tw.Write(frame)
	assert.NoError(t, err)
	assert.Equal(t, tw.n, n)
	assert.Equal(t, tw.n, buf.Len())
	buf.Reset()
	err = WriteAll(tw, frame)
	assert.NoError(t, err)
	assert.Equal(t, frame, buf.Bytes())
}

func TestCountReader(t *testing.T) {
	t.Parallel()
	var counter expvar.Int
	r := CountReader{R: strings.NewReader(strings.Repeat(".", 20)), V: &counter}
	buf := make([]byte, 17)
	_, _ = r.Read(buf[:0])
	assert.Equal(t, int64(0), counter.Value())
	_, _ = r.Read(buf[:5])
	assert.Equal(t, int64(5), counter.Value())
	_, _ = r.Read(buf)
	assert.Equal(t, int64(20), counter.Value())
	_, err := r.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(20), counter.Value())
}

func TestCountWriter(t *testing.T) {
	t.Parallel()
	var counter expvar.Int
	w := CountWriter{W: bytes.NewBuffer(nil), V: &counter}
	buf := make([]byte, 17)
	_, _ = w.Write(buf[:5])
	assert.Equal(t, int64(5), counter.Value())
	_, _ = w.Write(buf)
	assert.Equal(t, int64(22), counter.Value())
}

type throttleWriter struct {
	w io.Writer
	n int
}

func (tw *throttleWriter) Write(p []byte) (n int, err error) {
	limit := len(p)
	if limit > tw.n {
		limit = tw.n
	}
	return tw.w.Write(p[:limit])
}
