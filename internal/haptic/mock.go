package haptic

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

// TestablePort implements Porter with configurable behaviour for tests:
// scripted inbound data, captured outbound frames, injectable errors.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data returned by Read calls; empty reads return EOF.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port.
	WriteBuffer *bytes.Buffer

	// WriteError is returned by the next Write call if set.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// WriteCalls records the number of Write calls.
	WriteCalls int

	// ReadTimeout records the most recent SetReadTimeout value.
	ReadTimeout time.Duration
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData queues inbound data for subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// Frames returns the newline-terminated frames written so far.
func (t *TestablePort) Frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw := strings.TrimSuffix(t.WriteBuffer.String(), "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// StubPortFactory implements PortFactory, handing out a fixed port or error
// and recording every Open call.
type StubPortFactory struct {
	mu sync.Mutex

	// Port is returned by Open when Err is nil.
	Port Porter

	// Err is returned by Open if set.
	Err error

	// Opens records the (path, baud) of each Open call.
	Opens []StubOpenCall
}

// StubOpenCall records the arguments of one Open call.
type StubOpenCall struct {
	Path string
	Baud int
}

func (f *StubPortFactory) Open(path string, baudRate int) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opens = append(f.Opens, StubOpenCall{Path: path, Baud: baudRate})
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}
