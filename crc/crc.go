// Package crc implements MAVLink frame checksum:
// CRC-16/MCRF4XX (X.25 polynomial 0x1021 reflected, init 0xffff)
// over frame header and payload, then accumulated with per-message CRC_EXTRA seed.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MCRF4XX)

func Init() uint16 { return crc16.Init(table) }

func Update(crc uint16, data []byte) uint16 { return crc16.Update(crc, data, table) }

func Complete(crc uint16) uint16 { return crc16.Complete(crc, table) }

// Checksum of data without CRC_EXTRA.
func Checksum(data []byte) uint16 { return crc16.Checksum(data, table) }

// Frame returns checksum of data (bytes after start marker up to end of payload)
// with message specific extra seed.
func Frame(data []byte, extra byte) uint16 {
	c := Update(Init(), data)
	c = Update(c, []byte{extra})
	return Complete(c)
}
