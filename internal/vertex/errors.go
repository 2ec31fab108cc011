package vertex

import "errors"

// Error kinds surfaced by Fit. All are fatal to the fit call: a partial
// result from a numerically singular step is never returned.
var (
	// ErrSingularCovariance reports a track or constraint covariance
	// that is not invertible.
	ErrSingularCovariance = errors.New("singular covariance")

	// ErrSingularInformation reports a non-invertible information
	// matrix: a degenerate track configuration (for example all tracks
	// parallel, or a track whose momentum is unconstrained).
	ErrSingularInformation = errors.New("singular information matrix")

	// ErrPropagation reports that a track could not be linearized at
	// the current expansion point.
	ErrPropagation = errors.New("track propagation failed")
)
