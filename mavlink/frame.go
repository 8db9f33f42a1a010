package mavlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/aerolink/mavbridge/crc"
	"github.com/juju/errors"
)

const (
	MagicV1 byte = 0xfe
	MagicV2 byte = 0xfd

	// ProtocolVersion is negotiated after connect, outgoing frames are always v2.
	ProtocolVersion = 2

	headerLenV1    = 6
	headerLenV2    = 10
	checksumLen    = 2
	signatureLen   = 13
	FrameMaxLength = headerLenV2 + 255 + checksumLen + signatureLen
	incompatSigned = 0x01
	incompatKnown  = incompatSigned
)

type Header struct {
	Version       uint8 // 1 or 2
	Length        uint8 // payload length on wire
	IncompatFlags uint8
	CompatFlags   uint8
	Seq           uint8
	SysID         uint8
	CompID        uint8
	MsgID         uint32
}

func (h Header) Signed() bool { return h.IncompatFlags&incompatSigned != 0 }

func (h Header) String() string {
	return fmt.Sprintf("v%d seq=%d sys=%d comp=%d msgid=%d len=%d", h.Version, h.Seq, h.SysID, h.CompID, h.MsgID, h.Length)
}

// Sequence generates outgoing frame sequence numbers.
type Sequence struct{ v uint32 }

func (s *Sequence) Next() uint8 { return uint8(atomic.AddUint32(&s.v, 1) - 1) }

func isMagic(b byte) bool { return b == MagicV1 || b == MagicV2 }

// errShort is internal signal: buffer holds prefix of a frame, read more.
var errShort = errors.New("frame incomplete")

// parseFrame attempts to parse one frame at the start of b.
// Returns consumed byte count n:
// - errShort: n=0, need more input
// - malformed DecodeError: n>0 bytes must be dropped to resync
// - nil: n is full frame length
func parseFrame(b []byte) (Header, Message, int, error) {
	var h Header
	if len(b) == 0 {
		return h, nil, 0, errShort
	}
	if !isMagic(b[0]) {
		skip := len(b)
		if i := bytes.IndexByte(b, MagicV2); i >= 0 && i < skip {
			skip = i
		}
		if i := bytes.IndexByte(b, MagicV1); i >= 0 && i < skip {
			skip = i
		}
		return h, nil, skip, newMalformed("skipped %d bytes before start marker data=%x", skip, b[:skip])
	}

	var headerLen int
	if b[0] == MagicV2 {
		headerLen = headerLenV2
	} else {
		headerLen = headerLenV1
	}
	if len(b) < headerLen {
		return h, nil, 0, errShort
	}
	h.Length = b[1]
	if b[0] == MagicV2 {
		h.Version = 2
		h.IncompatFlags = b[2]
		h.CompatFlags = b[3]
		h.Seq = b[4]
		h.SysID = b[5]
		h.CompID = b[6]
		h.MsgID = uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
		if h.IncompatFlags&^incompatKnown != 0 {
			return h, nil, 1, newMalformed("frame %s unknown incompat_flags=%02x", h.String(), h.IncompatFlags)
		}
	} else {
		h.Version = 1
		h.Seq = b[2]
		h.SysID = b[3]
		h.CompID = b[4]
		h.MsgID = uint32(b[5])
	}
	spec, known := messageSpecs[h.MsgID]
	switch {
	case !known && h.Version == 1:
		// v2 is negotiated, v1 is accepted only for messages with verifiable checksum
		return h, nil, 1, newMalformed("frame %s unknown v1 message", h.String())
	case known && h.Version == 1 && h.Length != spec.length:
		return h, nil, 1, newMalformed("frame %s length expected=%d", h.String(), spec.length)
	case known && h.Length > spec.length:
		return h, nil, 1, newMalformed("frame %s length > max=%d", h.String(), spec.length)
	}
	total := headerLen + int(h.Length) + checksumLen
	if h.Signed() {
		total += signatureLen
	}
	if len(b) < total {
		return h, nil, 0, errShort
	}

	payload := b[headerLen : headerLen+int(h.Length)]
	if !known {
		// CRC_EXTRA unknown, checksum can not be verified.
		// Accept only if next frame starts right after this one.
		if len(b) > total && !isMagic(b[total]) {
			return h, nil, 1, newMalformed("frame %s unknown message not followed by start marker next=%02x", h.String(), b[total])
		}
		return h, Other{ID: h.MsgID}, total, nil
	}
	crcIn := binary.LittleEndian.Uint16(b[headerLen+int(h.Length):])
	crcLocal := crc.Frame(b[1:headerLen+int(h.Length)], spec.crcExtra)
	if crcIn != crcLocal {
		return h, nil, 1, newMalformed("frame %s crc=%04x actual=%04x", h.String(), crcIn, crcLocal)
	}
	// v2 truncates trailing zero bytes of payload
	full := make([]byte, spec.length)
	copy(full, payload)
	return h, spec.unmarshal(full), total, nil
}

// Marshal encodes msg into v2 frame. Header Version, Length, MsgID are ignored.
func Marshal(h Header, msg Message) ([]byte, error) {
	pm, ok := msg.(payloadMarshaler)
	if !ok {
		return nil, errors.NotSupportedf("mavlink marshal msgid=%d kind=%s", msg.MsgID(), msg.Kind().String())
	}
	spec, ok := messageSpecs[msg.MsgID()]
	if !ok {
		return nil, errors.NotFoundf("mavlink message spec msgid=%d", msg.MsgID())
	}
	payload := pm.marshalPayload()
	// trailing zero truncation, at least one byte stays
	for len(payload) > 1 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}

	id := msg.MsgID()
	buf := make([]byte, headerLenV2, headerLenV2+len(payload)+checksumLen)
	buf[0] = MagicV2
	buf[1] = uint8(len(payload))
	buf[2] = 0 // unsigned
	buf[3] = h.CompatFlags
	buf[4] = h.Seq
	buf[5] = h.SysID
	buf[6] = h.CompID
	buf[7] = byte(id)
	buf[8] = byte(id >> 8)
	buf[9] = byte(id >> 16)
	buf = append(buf, payload...)
	sum := crc.Frame(buf[1:], spec.crcExtra)
	buf = append(buf, byte(sum), byte(sum>>8))
	return buf, nil
}

// MarshalV1 encodes msg into v1 frame, full payload length, msgid must fit one byte.
func MarshalV1(h Header, msg Message) ([]byte, error) {
	pm, ok := msg.(payloadMarshaler)
	if !ok {
		return nil, errors.NotSupportedf("mavlink marshal msgid=%d kind=%s", msg.MsgID(), msg.Kind().String())
	}
	id := msg.MsgID()
	if id > 0xff {
		return nil, errors.NotValidf("mavlink v1 msgid=%d", id)
	}
	spec := messageSpecs[id]
	payload := pm.marshalPayload()
	buf := make([]byte, headerLenV1, headerLenV1+len(payload)+checksumLen)
	buf[0] = MagicV1
	buf[1] = uint8(len(payload))
	buf[2] = h.Seq
	buf[3] = h.SysID
	buf[4] = h.CompID
	buf[5] = byte(id)
	buf = append(buf, payload...)
	sum := crc.Frame(buf[1:], spec.crcExtra)
	buf = append(buf, byte(sum), byte(sum>>8))
	return buf, nil
}
