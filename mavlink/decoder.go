package mavlink

import (
	"io"
	"sync/atomic"

	"github.com/aerolink/mavbridge/helpers/atomic_clock"
)

const decoderBufferSize = 4 * FrameMaxLength

type Stat struct {
	Bytes      uint64
	Frames     uint32
	Unknown    uint32
	Malformed  uint32
	WouldBlock uint32
	Transport  uint32
}

// Decoder turns byte stream from serial link into messages.
// Not safe for concurrent use, owned by single decode loop.
type Decoder struct {
	stat    Stat // atomic align
	r       io.Reader
	buf     []byte
	start   int // buf[:start] consumed
	end     int // buf[start:end] pending, buf[end:] space for reads
	header  Header
	pending error // read error to report after buffered frames
	last    atomic_clock.Clock
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, decoderBufferSize),
	}
}

// DecodeNext returns next message or DecodeError, never blocks longer than one Read.
// When no complete frame is buffered, returns FaultWouldBlock.
// Partial frames stay buffered across calls.
func (self *Decoder) DecodeNext() (Message, error) {
	if msg, err, ok := self.parseBuffered(); ok {
		return msg, err
	}
	if self.pending != nil {
		err := self.pending
		self.pending = nil
		atomic.AddUint32(&self.stat.Transport, 1)
		return nil, newTransportError(err)
	}

	self.compact()
	n, err := self.r.Read(self.buf[self.end:])
	if n > 0 {
		self.end += n
		atomic.AddUint64(&self.stat.Bytes, uint64(n))
	}
	if err != nil && !isTimeout(err) {
		if n == 0 {
			atomic.AddUint32(&self.stat.Transport, 1)
			return nil, newTransportError(err)
		}
		self.pending = err
	}

	if msg, err, ok := self.parseBuffered(); ok {
		return msg, err
	}
	atomic.AddUint32(&self.stat.WouldBlock, 1)
	return nil, errWouldBlock
}

// Header of last successfully decoded frame.
func (self *Decoder) Header() Header { return self.header }

// Buffered returns count of bytes waiting for complete frame.
func (self *Decoder) Buffered() int { return self.end - self.start }

// LastFrame is timestamp of last successfully decoded frame, zero if none.
func (self *Decoder) LastFrame() *atomic_clock.Clock { return &self.last }

func (self *Decoder) Stat() Stat {
	return Stat{
		Bytes:      atomic.LoadUint64(&self.stat.Bytes),
		Frames:     atomic.LoadUint32(&self.stat.Frames),
		Unknown:    atomic.LoadUint32(&self.stat.Unknown),
		Malformed:  atomic.LoadUint32(&self.stat.Malformed),
		WouldBlock: atomic.LoadUint32(&self.stat.WouldBlock),
		Transport:  atomic.LoadUint32(&self.stat.Transport),
	}
}

func (self *Decoder) parseBuffered() (Message, error, bool) {
	h, msg, n, err := parseFrame(self.buf[self.start:self.end])
	if err == errShort {
		return nil, nil, false
	}
	self.start += n
	if err != nil {
		atomic.AddUint32(&self.stat.Malformed, 1)
		return nil, err, true
	}
	self.header = h
	self.last.SetNow()
	atomic.AddUint32(&self.stat.Frames, 1)
	if msg.Kind() == KindOther {
		atomic.AddUint32(&self.stat.Unknown, 1)
	}
	return msg, nil, true
}

// move pending bytes to buffer start
func (self *Decoder) compact() {
	if self.start == 0 {
		return
	}
	copy(self.buf, self.buf[self.start:self.end])
	self.end -= self.start
	self.start = 0
}
