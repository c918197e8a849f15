package haptic

// Mode selects the actuation shaping behaviour applied by the downstream
// controller. The set below is what the shipped firmware understands, but the
// session forwards unrecognized names untouched so the controller-side
// vocabulary can evolve independently.
type Mode string

const (
	// ModeDirect maps density straight to motor drive.
	ModeDirect Mode = "DIRECT"
	// ModeTexture adds a fine vibration component proportional to density.
	ModeTexture Mode = "TEXTURE"
	// ModeTumorLock ramps resistance sharply above the tumor threshold.
	ModeTumorLock Mode = "TUMOR_LOCK"
	// ModeEdgeDetect pulses on density transitions.
	ModeEdgeDetect Mode = "EDGE_DETECT"
)
