package crc

import (
	"testing"
)

func makeCheck(fun func([]byte) uint16, tag string) func(t *testing.T, vs []byte, expect uint16) {
	return func(t *testing.T, vs []byte, expect uint16) {
		if actual := fun(vs); actual != expect {
			t.Errorf("%s(%x) = %04x expected=%04x", tag, vs, actual, expect)
		}
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()
	check := makeCheck(Checksum, "Checksum")
	// standard check value of CRC-16/MCRF4XX
	check(t, []byte("123456789"), 0x6f91)
	check(t, []byte{}, 0xffff)
}

func TestFrame(t *testing.T) {
	t.Parallel()
	data := []byte("123456789")
	if Frame(data, 0) == Checksum(data) {
		t.Errorf("extra byte must affect checksum")
	}
	check := makeCheck(func(b []byte) uint16 { return Frame(b, 0x32) }, "Frame")
	check(t, data, Checksum(append(append([]byte{}, data...), 0x32)))
}
