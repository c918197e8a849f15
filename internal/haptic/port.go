// Package haptic owns the serial link to the haptic controller: frame
// encoding, the best-effort ready handshake, rate-limited density frames and
// the offline/demo fallback used when no hardware is attached.
package haptic

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Porter is the minimal interface the session needs from a serial port.
// The abstraction enables unit testing without real hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with a read timeout. Real serial ports
// implement it; the handshake uses it to poll the inbound stream without
// blocking past its window.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// PortFactory opens serial ports. Injecting a factory lets tests substitute
// in-memory ports and lets the session defer opening until Connect.
type PortFactory interface {
	Open(path string, baudRate int) (Porter, error)
}

type serialPortFactory struct{}

// NewSerialPortFactory returns a PortFactory backed by real serial ports
// (8 data bits, no parity, one stop bit; the controller's fixed framing).
func NewSerialPortFactory() PortFactory {
	return serialPortFactory{}
}

func (serialPortFactory) Open(path string, baudRate int) (Porter, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}
