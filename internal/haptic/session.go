package haptic

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haptic-histology/tissue.scanner/internal/monitoring"
)

// ReadyToken is the line the controller emits once its firmware has booted.
// Receiving it is best-effort: a controller that stays silent is still usable.
const ReadyToken = "MCU_READY"

const (
	// DefaultBaudRate matches the controller firmware.
	DefaultBaudRate = 115200
	// DefaultSendInterval caps density frames at 100 Hz so a 60 Hz+ polling
	// loop cannot flood the narrow MCU link.
	DefaultSendInterval = 10 * time.Millisecond
	// DefaultHandshakeTimeout bounds the wait for the ready token.
	DefaultHandshakeTimeout = 3 * time.Second

	// handshakeReadTimeout is the per-read poll interval during the handshake
	// window, applied when the port supports read timeouts.
	handshakeReadTimeout = 100 * time.Millisecond
)

// ErrWriteFailed indicates a short write to the serial port.
var ErrWriteFailed = errors.New("failed to write to serial port")

// State describes the session's position in its lifecycle.
type State int

const (
	// StateDisconnected is the initial state, before Connect.
	StateDisconnected State = iota
	// StateReady means the port is open and frames are being sent.
	StateReady
	// StateOffline means the port could not be opened or a write failed;
	// all sends are silent no-ops (demo mode).
	StateOffline
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReady:
		return "ready"
	case StateOffline:
		return "offline"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionParams configures a transport session.
type SessionParams struct {
	PortPath         string
	BaudRate         int           // zero selects DefaultBaudRate
	SendInterval     time.Duration // zero selects DefaultSendInterval
	HandshakeTimeout time.Duration // zero selects DefaultHandshakeTimeout
	Factory          PortFactory   // nil selects the real serial factory
}

// Session owns the bidirectional serial connection to the haptic controller.
// It is created once at startup, attempts connection once, and is torn down
// exactly once at shutdown. Any transport fault is absorbed locally: the
// session degrades to offline mode and the rest of the system runs unmodified.
type Session struct {
	mu sync.Mutex

	portPath         string
	baudRate         int
	sendInterval     time.Duration
	handshakeTimeout time.Duration
	factory          PortFactory

	port      Porter
	offline   bool
	closed    bool
	handshook bool
	mode      Mode
	lastSend  time.Time

	now func() time.Time // injectable for rate-limit tests
}

// NewSession creates a disconnected session. Call Connect to open the port.
func NewSession(p SessionParams) *Session {
	if p.BaudRate <= 0 {
		p.BaudRate = DefaultBaudRate
	}
	if p.SendInterval <= 0 {
		p.SendInterval = DefaultSendInterval
	}
	if p.HandshakeTimeout <= 0 {
		p.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if p.Factory == nil {
		p.Factory = NewSerialPortFactory()
	}
	return &Session{
		portPath:         p.PortPath,
		baudRate:         p.BaudRate,
		sendInterval:     p.SendInterval,
		handshakeTimeout: p.HandshakeTimeout,
		factory:          p.Factory,
		now:              time.Now,
	}
}

// Connect opens the configured serial endpoint and waits up to the handshake
// timeout for the controller's ready token. Failure to open the port is never
// fatal: the session enters offline/demo mode and every later send becomes a
// silent no-op, so segmentation and feedback computation keep working without
// hardware.
func (s *Session) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.port != nil {
		return
	}

	port, err := s.factory.Open(s.portPath, s.baudRate)
	if err != nil {
		s.offline = true
		monitoring.Logf("haptic: cannot open %s: %v, running in demo mode", s.portPath, err)
		return
	}
	s.port = port
	monitoring.Logf("haptic: connected to controller on %s", s.portPath)

	if s.awaitReadyLocked() {
		s.handshook = true
		monitoring.Logf("haptic: controller handshake complete")
	} else {
		monitoring.Logf("haptic: no ready token within %v, continuing anyway", s.handshakeTimeout)
	}
}

// awaitReadyLocked polls the inbound stream for the ready token until the
// handshake window elapses. Read errors and EOF end the wait quietly.
func (s *Session) awaitReadyLocked() bool {
	if tp, ok := s.port.(TimeoutPorter); ok {
		if err := tp.SetReadTimeout(handshakeReadTimeout); err != nil {
			return false
		}
	}

	deadline := s.now().Add(s.handshakeTimeout)
	buf := make([]byte, 64)
	var line []byte
	for s.now().Before(deadline) {
		n, err := s.port.Read(buf)
		if err != nil {
			return false
		}
		for _, b := range buf[:n] {
			if b != '\n' {
				line = append(line, b)
				continue
			}
			if strings.TrimSpace(string(line)) == ReadyToken {
				return true
			}
			line = line[:0]
		}
	}
	return false
}

// SendDensity encodes and sends a density frame, at most one per send
// interval. Calls arriving faster are dropped silently: the link only needs
// the current cadence, not every sample. Values are clamped to [0,255].
// A write failure demotes the session to offline instead of propagating.
func (s *Session) SendDensity(density int) {
	if density < 0 {
		density = 0
	} else if density > 255 {
		density = 255
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.onlineLocked() {
		return
	}

	now := s.now()
	if now.Sub(s.lastSend) < s.sendInterval {
		return
	}
	if err := s.writeFrameLocked(fmt.Sprintf("D:%d\n", density)); err != nil {
		s.demoteLocked(err)
		return
	}
	s.lastSend = now
}

// SetMode sends a mode frame and records the mode locally. Mode changes are
// user-driven and rare, so they bypass the rate limit. The local mode updates
// even when the session is offline or the write fails.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	if !s.onlineLocked() {
		return
	}
	if err := s.writeFrameLocked("M:" + string(mode) + "\n"); err != nil {
		s.demoteLocked(err)
	}
}

// Mode returns the currently selected haptic mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case s.offline:
		return StateOffline
	case s.port != nil:
		return StateReady
	default:
		return StateDisconnected
	}
}

// Handshook reports whether the ready token was observed during Connect.
func (s *Session) Handshook() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshook
}

// Close flushes a zero-density motor-off frame and releases the connection.
// The motor-off frame is a safety requirement and is attempted even after a
// write failure demoted the session. Close is idempotent and safe if the
// session never connected.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.port == nil {
		return nil
	}
	if err := s.writeFrameLocked("D:0\n"); err != nil {
		monitoring.Logf("haptic: motor-off frame failed: %v", err)
	}
	return s.port.Close()
}

func (s *Session) onlineLocked() bool {
	return !s.closed && !s.offline && s.port != nil
}

func (s *Session) writeFrameLocked(frame string) error {
	n, err := s.port.Write([]byte(frame))
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

func (s *Session) demoteLocked(err error) {
	s.offline = true
	monitoring.Logf("haptic: serial write failed: %v, entering offline mode", err)
}
