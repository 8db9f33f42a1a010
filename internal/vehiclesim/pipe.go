package vehiclesim

import (
	"net"
	"time"
)

// pipeEnd behaves like serial port with read timeout: Read returns timeout error when idle.
type pipeEnd struct {
	net.Conn
	timeout time.Duration
}

func (p pipeEnd) Read(b []byte) (int, error) {
	_ = p.Conn.SetReadDeadline(time.Now().Add(p.timeout))
	return p.Conn.Read(b)
}

func (p pipeEnd) Write(b []byte) (int, error) {
	_ = p.Conn.SetWriteDeadline(time.Now().Add(p.timeout))
	return p.Conn.Write(b)
}

// Pipe connects vehicle and bridge in memory. Closing either end fails both.
func Pipe(timeout time.Duration) (vehicle, bridge net.Conn) {
	a, b := net.Pipe()
	return pipeEnd{a, timeout}, pipeEnd{b, timeout}
}
