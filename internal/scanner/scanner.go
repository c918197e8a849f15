// Package scanner runs the control loop of the virtual biopsy demonstrator:
// each tick it samples the cursor, looks up the haptic density under it,
// dispatches the value to the transport session and publishes the current
// state for observers.
package scanner

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/haptic-histology/tissue.scanner/internal/haptic"
	"github.com/haptic-histology/tissue.scanner/internal/monitoring"
	"github.com/haptic-histology/tissue.scanner/internal/segmentation"
	"github.com/haptic-histology/tissue.scanner/internal/telemetry"
)

// DefaultTargetFPS bounds the control loop tick rate. The transport applies
// its own, independent rate limit on top.
const DefaultTargetFPS = 60

// CursorSource supplies the live cursor position, in working-resolution pixel
// coordinates. The presentation layer implements it.
type CursorSource interface {
	Position() (x, y int)
}

// Params configures a Scanner.
type Params struct {
	Session *haptic.Session
	Cursor  CursorSource

	// Telemetry is optional; nil disables sample recording.
	Telemetry *telemetry.Store

	TargetFPS    int
	WorkingSize  int
	KMeansRounds int
	ClusterCount int
	DensityBands []uint8

	// EdgeThreshold is the gradient above which a density transition counts
	// as an edge, for telemetry in EDGE_DETECT mode. The far-end controller
	// does the actual edge-triggered shaping; the loop never reshapes values.
	EdgeThreshold int
}

// Scanner owns the trained model/map pair and the published density state.
// Both live behind one mutex and are exposed only through accessor methods.
type Scanner struct {
	session *haptic.Session
	cursor  CursorSource
	store   *telemetry.Store

	targetFPS     int
	workingSize   int
	rounds        int
	clusterCount  int
	bands         []uint8
	edgeThreshold int

	mu          sync.Mutex
	model       *segmentation.ClusterModel
	hmap        *segmentation.HapticMap
	current     int
	prev        int
	gradient    int
	edge        bool
	telemetryID string

	closeOnce sync.Once
	closeErr  error
}

// New creates a Scanner. Session and Cursor are required.
func New(p Params) *Scanner {
	if p.TargetFPS <= 0 {
		p.TargetFPS = DefaultTargetFPS
	}
	if p.ClusterCount == 0 {
		p.ClusterCount = segmentation.DefaultClusterCount
	}
	return &Scanner{
		session:       p.Session,
		cursor:        p.Cursor,
		store:         p.Telemetry,
		targetFPS:     p.TargetFPS,
		workingSize:   p.WorkingSize,
		rounds:        p.KMeansRounds,
		clusterCount:  p.ClusterCount,
		bands:         p.DensityBands,
		edgeThreshold: p.EdgeThreshold,
	}
}

// Train fits the segmentation model on the given image and replaces the
// model/map pair by reference: a lookup in flight observes either the fully
// old or fully new map, never a mix. Returns segmentation.ErrImageDecode or
// segmentation.ErrInvalidConfiguration on bad input; transport state is not
// touched.
func (s *Scanner) Train(img image.Image, clusterCount int) error {
	gray, err := segmentation.FromImage(img, s.workingSize)
	if err != nil {
		return err
	}
	model, hmap, err := segmentation.Fit(gray, segmentation.FitParams{
		ClusterCount: clusterCount,
		Rounds:       s.rounds,
		DensityBands: s.bands,
	})
	if err != nil {
		return err
	}
	monitoring.Logf("scanner: trained %d-cluster model, centroids %v", clusterCount, model.Centroids)

	s.mu.Lock()
	s.model = model
	s.hmap = hmap
	s.clusterCount = clusterCount
	s.mu.Unlock()

	s.beginTelemetrySession(hmap.Width, hmap.Height, clusterCount)
	return nil
}

func (s *Scanner) beginTelemetrySession(w, h, clusterCount int) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	old := s.telemetryID
	s.mu.Unlock()
	if old != "" {
		if err := s.store.EndSession(old); err != nil {
			monitoring.Logf("scanner: failed to end telemetry session: %v", err)
		}
	}
	id, err := s.store.BeginSession(string(s.session.Mode()), w, h, clusterCount)
	if err != nil {
		monitoring.Logf("scanner: failed to begin telemetry session: %v", err)
		return
	}
	s.mu.Lock()
	s.telemetryID = id
	s.mu.Unlock()
}

// Run drives the tick loop at the target rate until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.targetFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick executes one control loop iteration: sample cursor, look up density,
// dispatch, publish. Cursor positions outside the map skip density
// recomputation and dispatch; the previous density is retained.
func (s *Scanner) Tick() {
	x, y := s.cursor.Position()

	s.mu.Lock()
	if !s.hmap.Contains(x, y) {
		s.mu.Unlock()
		return
	}
	s.prev = s.current
	s.current = int(s.hmap.At(x, y))
	mode := s.session.Mode()
	if mode == haptic.ModeEdgeDetect {
		// Gradient is telemetry only; the far-end controller does the
		// edge-triggered pulse shaping.
		s.gradient = abs(s.current - s.prev)
		s.edge = s.gradient > s.edgeThreshold
	} else {
		s.gradient = 0
		s.edge = false
	}
	density := s.current
	gradient := s.gradient
	changed := s.current != s.prev
	id := s.telemetryID
	s.mu.Unlock()

	s.session.SendDensity(density)

	if s.store != nil && id != "" && changed {
		if err := s.store.RecordSample(id, x, y, density, gradient, string(mode)); err != nil {
			monitoring.Logf("scanner: failed to record sample: %v", err)
		}
	}
}

// CurrentDensity returns the most recently published density.
func (s *Scanner) CurrentDensity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// EdgeGradient returns the last computed density gradient (nonzero only in
// EDGE_DETECT mode).
func (s *Scanner) EdgeGradient() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gradient
}

// EdgeDetected reports whether the last transition exceeded the edge
// threshold while in EDGE_DETECT mode.
func (s *Scanner) EdgeDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edge
}

// CurrentMode returns the active haptic mode.
func (s *Scanner) CurrentMode() haptic.Mode {
	return s.session.Mode()
}

// SetMode forwards a mode change to the controller. Modes switch only on
// explicit external command; the loop never auto-switches. Unrecognized names
// are forwarded as-is.
func (s *Scanner) SetMode(mode haptic.Mode) {
	s.session.SetMode(mode)
}

// QueryDensityAt returns the density at working-resolution pixel coordinates,
// clamped into bounds. Zero before the first Train.
func (s *Scanner) QueryDensityAt(x, y int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hmap.At(x, y)
}

// QueryDensityNormalized returns the density at normalized coordinates in
// [0,1]. Zero before the first Train.
func (s *Scanner) QueryDensityNormalized(xn, yn float64) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hmap.AtNormalized(xn, yn)
}

// Model returns the current cluster model, or nil before the first Train.
func (s *Scanner) Model() *segmentation.ClusterModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// MapBounds returns the haptic map dimensions, or zeros before the first
// Train.
func (s *Scanner) MapBounds() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hmap == nil {
		return 0, 0
	}
	return s.hmap.Width, s.hmap.Height
}

// Close shuts the transport session down exactly once, guaranteeing the
// actuator ends at zero density, and stamps the telemetry session. Safe to
// call from any exit path.
func (s *Scanner) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
		s.mu.Lock()
		id := s.telemetryID
		s.mu.Unlock()
		if s.store != nil && id != "" {
			if err := s.store.EndSession(id); err != nil {
				monitoring.Logf("scanner: failed to end telemetry session: %v", err)
			}
		}
	})
	return s.closeErr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
