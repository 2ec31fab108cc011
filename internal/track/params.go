// Package track defines the five-parameter perigee representation of a
// reconstructed charged-particle trajectory and the narrow capability
// interface the vertex fitter consumes. Callers with their own track
// representation adapt to Track rather than converting their storage.
package track

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Indices into the five-parameter perigee state vector.
const (
	ParamD0     = 0 // signed transverse impact parameter (mm)
	ParamZ0     = 1 // longitudinal impact parameter (mm)
	ParamPhi    = 2 // azimuthal angle of the momentum at PCA (rad, (-pi, pi])
	ParamTheta  = 3 // polar angle of the momentum (rad, [0, pi])
	ParamQOverP = 4 // charge over momentum magnitude (1/GeV)

	// NumParams is the dimension of the perigee state vector.
	NumParams = 5
)

// Parameters holds a perigee state vector and its covariance, expressed
// relative to some reference point. The covariance must be a 5x5 symmetric
// positive semi-definite matrix; a nil covariance means "unknown" and is
// rejected by the fitter.
type Parameters struct {
	Vec [NumParams]float64
	Cov *mat.SymDense
}

// D0 returns the signed transverse impact parameter.
func (p Parameters) D0() float64 { return p.Vec[ParamD0] }

// Z0 returns the longitudinal impact parameter.
func (p Parameters) Z0() float64 { return p.Vec[ParamZ0] }

// Phi returns the azimuthal angle.
func (p Parameters) Phi() float64 { return p.Vec[ParamPhi] }

// Theta returns the polar angle.
func (p Parameters) Theta() float64 { return p.Vec[ParamTheta] }

// QOverP returns charge over momentum.
func (p Parameters) QOverP() float64 { return p.Vec[ParamQOverP] }

// Charge returns the particle charge inferred from the sign of q/p.
// A zero q/p denotes a neutral particle.
func (p Parameters) Charge() float64 {
	switch {
	case p.Vec[ParamQOverP] > 0:
		return 1
	case p.Vec[ParamQOverP] < 0:
		return -1
	default:
		return 0
	}
}

// Validate checks the state vector for finite entries and the covariance
// for presence and correct shape. It does not check positive-definiteness;
// the fitter discovers singular covariances when it inverts them.
func (p Parameters) Validate() error {
	for i, v := range p.Vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %d is not finite: %v", i, v)
		}
	}
	if p.Cov == nil {
		return fmt.Errorf("missing covariance")
	}
	if n := p.Cov.SymmetricDim(); n != NumParams {
		return fmt.Errorf("covariance must be %dx%d, got %dx%d", NumParams, NumParams, n, n)
	}
	return nil
}

// Track is the capability the vertex fitter requires from any caller
// representation: extraction of a perigee state with covariance, and the
// reference point that state is expressed against.
type Track interface {
	// Parameters returns the perigee state and covariance.
	Parameters() (Parameters, error)
	// Reference returns the point (mm, world frame) the perigee
	// parameters are relative to.
	Reference() [3]float64
}

// ParamTrack is the trivial Track implementation: a parameter set carried
// by value. Used by the API layer and by tests.
type ParamTrack struct {
	Par Parameters
	Ref [3]float64
}

// Parameters implements Track.
func (t ParamTrack) Parameters() (Parameters, error) {
	if err := t.Par.Validate(); err != nil {
		return Parameters{}, err
	}
	return t.Par, nil
}

// Reference implements Track.
func (t ParamTrack) Reference() [3]float64 { return t.Ref }
