package haptic

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, port *TestablePort) *Session {
	t.Helper()
	s := NewSession(SessionParams{
		PortPath: "/dev/ttyTEST",
		Factory:  &StubPortFactory{Port: port},
	})
	return s
}

func TestConnectObservesReadyToken(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	port.AddReadData([]byte("boot log line\nMCU_READY\n"))
	s := newTestSession(t, port)

	s.Connect()

	assert.Equal(t, StateReady, s.State())
	assert.True(t, s.Handshook())
	assert.Equal(t, handshakeReadTimeout, port.ReadTimeout)
}

func TestConnectToleratesMissingHandshake(t *testing.T) {
	t.Parallel()
	port := NewTestablePort() // empty inbound stream: immediate EOF
	s := newTestSession(t, port)

	s.Connect()

	assert.Equal(t, StateReady, s.State())
	assert.False(t, s.Handshook())
}

func TestConnectOpenFailureEntersOfflineMode(t *testing.T) {
	t.Parallel()
	s := NewSession(SessionParams{
		PortPath: "/dev/ttyMISSING",
		Factory:  &StubPortFactory{Err: errors.New("no such device")},
	})

	s.Connect()
	assert.Equal(t, StateOffline, s.State())

	// Every subsequent call returns normally and local state still updates.
	s.SendDensity(120)
	s.SetMode(ModeTumorLock)
	assert.Equal(t, ModeTumorLock, s.Mode())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestSendDensityRateLimit(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	// A tight burst over 50ms at a 10ms interval: at most floor(T/interval)+1
	// frames survive.
	const step = 100 * time.Microsecond
	for i := 0; i < 500; i++ {
		s.SendDensity(i % 256)
		now = now.Add(step)
	}

	frames := port.Frames()
	elapsed := 500 * step
	maxFrames := int(elapsed/s.sendInterval) + 1
	assert.LessOrEqual(t, len(frames), maxFrames)
	assert.Equal(t, 5, len(frames), "one frame per elapsed interval")
	assert.Equal(t, "D:0", frames[0])
}

func TestSendDensityClampsRange(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	s.SendDensity(-5)
	now = now.Add(time.Second)
	s.SendDensity(300)

	assert.Equal(t, []string{"D:0", "D:255"}, port.Frames())
}

func TestSetModeBypassesRateLimit(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	s.SetMode(ModeDirect)
	s.SetMode(ModeTexture)
	s.SetMode(ModeEdgeDetect)

	assert.Equal(t, []string{"M:DIRECT", "M:TEXTURE", "M:EDGE_DETECT"}, port.Frames())
	assert.Equal(t, ModeEdgeDetect, s.Mode())
}

func TestUnrecognizedModeForwardedAsIs(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	s.SetMode(Mode("SPECTRAL"))

	assert.Equal(t, []string{"M:SPECTRAL"}, port.Frames())
	assert.Equal(t, Mode("SPECTRAL"), s.Mode())
}

func TestWriteFailureDemotesToOffline(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	port.WriteError = errors.New("device unplugged")
	s.SendDensity(42)

	assert.Equal(t, StateOffline, s.State())
	assert.Empty(t, port.Frames())

	// Later sends are silent no-ops but local mode still tracks.
	s.SendDensity(99)
	s.SetMode(ModeDirect)
	assert.Equal(t, ModeDirect, s.Mode())
	assert.Empty(t, port.Frames())
}

func TestCloseSendsMotorOffAndIsIdempotent(t *testing.T) {
	t.Parallel()
	port := NewTestablePort()
	s := newTestSession(t, port)
	s.Connect()

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	s.SendDensity(200)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	frames := port.Frames()
	require.NotEmpty(t, frames)
	assert.Equal(t, "D:0", frames[len(frames)-1], "final wire write must be the motor-off frame")
	assert.True(t, port.Closed)

	// Closed sessions drop everything.
	s.SendDensity(50)
	assert.Equal(t, frames, port.Frames())
	assert.Equal(t, StateClosed, s.State())
}

func TestCloseSafeWhenNeverConnected(t *testing.T) {
	t.Parallel()
	s := NewSession(SessionParams{PortPath: "/dev/ttyTEST", Factory: &StubPortFactory{Port: NewTestablePort()}})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestConnectUsesConfiguredEndpoint(t *testing.T) {
	t.Parallel()
	factory := &StubPortFactory{Port: NewTestablePort()}
	s := NewSession(SessionParams{PortPath: "/dev/ttyS7", BaudRate: 57600, Factory: factory})
	s.Connect()

	require.Len(t, factory.Opens, 1)
	assert.Equal(t, "/dev/ttyS7", factory.Opens[0].Path)
	assert.Equal(t, 57600, factory.Opens[0].Baud)

	// Connect is one-shot: a second call does not reopen.
	s.Connect()
	assert.Len(t, factory.Opens, 1)
}
