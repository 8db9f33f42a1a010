// Package serial is the link to the flight controller.
// Reads and writes are independent streams: a blocked read never delays heartbeat writes.
package serial

import (
	"expvar"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/aerolink/mavbridge/helpers"
	"github.com/juju/errors"
	tarm "github.com/tarm/serial"
	"golang.org/x/sys/unix"
)

const (
	DefaultDevice      = "/dev/ttyTHS1"
	DefaultBaud        = 921600
	DefaultReadTimeout = 100 * time.Millisecond
)

type errWouldBlockT string

func (e errWouldBlockT) Error() string { return string(e) }
func (errWouldBlockT) Timeout() bool   { return true }

// ErrWouldBlock means read timeout expired with no data. Never fatal.
var ErrWouldBlock error = errWouldBlockT("serial: no data")

type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// Port is open serial device. Read from one goroutine, Write from any.
type Port struct {
	name string
	rw   io.ReadWriteCloser
	r    io.Reader
	w    io.Writer
	wmu  sync.Mutex

	BytesRead    expvar.Int
	BytesWritten expvar.Int
}

func Open(c Config) (*Port, error) {
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	sp, err := tarm.OpenPort(&tarm.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "serial open device=%s baud=%d", c.Device, c.Baud)
	}
	return NewPort(c.Device, sp), nil
}

// NewPort wraps any stream, tests use pipes.
func NewPort(name string, rw io.ReadWriteCloser) *Port {
	p := &Port{name: name, rw: rw}
	p.r = helpers.CountReader{R: rw, V: &p.BytesRead}
	p.w = helpers.CountWriter{W: rw, V: &p.BytesWritten}
	return p
}

func (self *Port) String() string { return self.name }

func (self *Port) Read(b []byte) (int, error) {
	n, err := self.r.Read(b)
	if n == 0 && (err == nil || isWouldBlock(err)) {
		return 0, ErrWouldBlock
	}
	if err != nil && isWouldBlock(err) {
		err = nil
	}
	return n, err
}

// Write sends whole b or fails. Concurrent writes never interleave.
func (self *Port) Write(b []byte) (int, error) {
	self.wmu.Lock()
	defer self.wmu.Unlock()
	if err := helpers.WriteAll(self.w, b); err != nil {
		return 0, errors.Annotatef(err, "serial write device=%s", self.name)
	}
	return len(b), nil
}

func (self *Port) Close() error { return self.rw.Close() }

func isWouldBlock(err error) bool {
	if err == io.EOF {
		return true
	}
	var errno syscall.Errno
	if pe, ok := err.(*os.PathError); ok {
		err = pe.Err
	}
	if e, ok := err.(syscall.Errno); ok {
		errno = e
	}
	switch errno {
	case unix.EAGAIN, unix.EINTR:
		return true
	}
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}
