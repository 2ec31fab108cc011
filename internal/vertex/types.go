package vertex

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/track"
)

// Constraint is an optional prior on the vertex position, such as a beam
// spot. It is folded into the fit as an extra pseudo-measurement. A nil
// covariance or one with zero trace means "unconstrained".
type Constraint struct {
	Position   [3]float64
	Covariance *mat.SymDense // 3x3
}

// Active reports whether the constraint participates in the fit.
func (c *Constraint) Active() bool {
	if c == nil || c.Covariance == nil {
		return false
	}
	return mat.Trace(c.Covariance) != 0
}

// Config holds the fit engine tunables.
type Config struct {
	// MaxIterations is the outer iteration budget. The engine runs the
	// full budget and keeps the best-scoring iterate unless
	// ConvergenceDelta enables early exit. Must be positive.
	MaxIterations int

	// ConvergenceDelta, when positive, stops iterating once the total
	// chi-square changes by less than this between consecutive
	// iterations. Zero (the default) disables early exit.
	ConvergenceDelta float64

	// Constraint is the optional vertex position prior.
	Constraint *Constraint
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ConvergenceDelta < 0 {
		return fmt.Errorf("convergence delta must be non-negative, got %v", c.ConvergenceDelta)
	}
	if c.Constraint.Active() {
		if n := c.Constraint.Covariance.SymmetricDim(); n != 3 {
			return fmt.Errorf("constraint covariance must be 3x3, got %dx%d", n, n)
		}
	}
	return nil
}

// TrackAtVertex is one refit track record in a fitted vertex: the original
// input track, its chi-square contribution, and its refit perigee state
// expressed relative to the fitted vertex position (impact parameters are
// zero there by construction).
type TrackAtVertex struct {
	Track      track.Track
	Chi2       float64
	Parameters track.Parameters
}

// Vertex is a fitted vertex: position, covariance, fit quality and the
// refit track records in input order. Immutable once returned.
type Vertex struct {
	Position   [3]float64
	Covariance *mat.SymDense // 3x3
	Chi2       float64
	NDF        int
	Tracks     []TrackAtVertex
}
