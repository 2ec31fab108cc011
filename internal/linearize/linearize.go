// Package linearize builds first-order models of track parameters as a
// function of vertex position and momentum, expanded around a chosen point.
// The vertex fitter consumes the model shape only; this package provides a
// concrete factory based on central finite differences over the analytic
// perigee propagation.
package linearize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/propagate"
	"github.com/banshee-data/vertexfit/internal/track"
)

// Model is the linear expansion of a track's perigee parameters around an
// expansion point: p(V, q) ~ ParametersAtPCA + PositionJacobian*(V - V0)
// + MomentumJacobian*(q - q0), where q is the (phi, theta, q/p) momentum
// triple at the PCA.
type Model struct {
	ParametersAtPCA  *mat.VecDense // 5, relative to ExpansionPoint
	Covariance       *mat.SymDense // 5x5, transported to the new perigee
	PositionJacobian *mat.Dense    // 5x3
	MomentumJacobian *mat.Dense    // 5x3
	ExpansionPoint   [3]float64
}

// Linearizer produces a Model for a track around an expansion point.
// Implementations must be deterministic for fixed inputs and safe for
// concurrent independent invocations.
type Linearizer interface {
	Linearize(trk track.Track, expansionPoint [3]float64) (*Model, error)
}

// Default finite-difference step sizes. Central differences halve at these
// scales without hitting floating-point roundoff for mm/GeV magnitudes.
const (
	defaultPosStep = 1e-4 // mm
	defaultAngStep = 1e-5 // rad
	defaultQOPStep = 1e-5 // relative on q/p
	minQOPStep     = 1e-8 // absolute floor on the q/p step
)

// NumericalLinearizer differentiates the perigee map numerically. The zero
// value is not usable; construct with NewNumericalLinearizer.
type NumericalLinearizer struct {
	prop    propagate.Propagator
	posStep float64
	angStep float64
	qopStep float64
}

// NewNumericalLinearizer returns a linearizer over the given propagator
// with default step sizes.
func NewNumericalLinearizer(prop propagate.Propagator) *NumericalLinearizer {
	return &NumericalLinearizer{
		prop:    prop,
		posStep: defaultPosStep,
		angStep: defaultAngStep,
		qopStep: defaultQOPStep,
	}
}

// Linearize implements Linearizer.
func (nl *NumericalLinearizer) Linearize(trk track.Track, expansionPoint [3]float64) (*Model, error) {
	for _, v := range expansionPoint {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite expansion point")
		}
	}

	par, err := trk.Parameters()
	if err != nil {
		return nil, fmt.Errorf("extract track parameters: %w", err)
	}
	if err := par.Validate(); err != nil {
		return nil, fmt.Errorf("invalid track parameters: %w", err)
	}

	// Propagate to the PCA around the expansion point. The PCA position
	// and the momentum there are the base point of the expansion.
	pos0, phi0, theta0, qop0 := propagate.GlobalState(par, trk.Reference())
	base, err := nl.prop.ToPerigee(pos0, phi0, theta0, qop0, expansionPoint)
	if err != nil {
		return nil, fmt.Errorf("propagate to expansion point: %w", err)
	}
	pcaPos := base.Position
	pcaPhi := base.Params[track.ParamPhi]
	pcaTheta := base.Params[track.ParamTheta]
	pcaQOP := base.Params[track.ParamQOverP]

	posJac := mat.NewDense(track.NumParams, 3, nil)
	for j := 0; j < 3; j++ {
		up, dn := pcaPos, pcaPos
		up[j] += nl.posStep
		dn[j] -= nl.posStep
		pUp, err := nl.prop.ToPerigee(up, pcaPhi, pcaTheta, pcaQOP, expansionPoint)
		if err != nil {
			return nil, fmt.Errorf("position jacobian column %d: %w", j, err)
		}
		pDn, err := nl.prop.ToPerigee(dn, pcaPhi, pcaTheta, pcaQOP, expansionPoint)
		if err != nil {
			return nil, fmt.Errorf("position jacobian column %d: %w", j, err)
		}
		setDiffColumn(posJac, j, pUp.Params, pDn.Params, 2*nl.posStep)
	}

	momJac := mat.NewDense(track.NumParams, 3, nil)
	momSteps := [3]float64{nl.angStep, nl.angStep, nl.qopStep * math.Max(math.Abs(pcaQOP), 1)}
	if momSteps[2] < minQOPStep {
		momSteps[2] = minQOPStep
	}
	for j := 0; j < 3; j++ {
		mUp := [3]float64{pcaPhi, pcaTheta, pcaQOP}
		mDn := mUp
		mUp[j] += momSteps[j]
		mDn[j] -= momSteps[j]
		pUp, err := nl.prop.ToPerigee(pcaPos, mUp[0], mUp[1], mUp[2], expansionPoint)
		if err != nil {
			return nil, fmt.Errorf("momentum jacobian column %d: %w", j, err)
		}
		pDn, err := nl.prop.ToPerigee(pcaPos, mDn[0], mDn[1], mDn[2], expansionPoint)
		if err != nil {
			return nil, fmt.Errorf("momentum jacobian column %d: %w", j, err)
		}
		setDiffColumn(momJac, j, pUp.Params, pDn.Params, 2*momSteps[j])
	}

	cov, err := nl.transportCovariance(par, trk.Reference(), expansionPoint)
	if err != nil {
		return nil, fmt.Errorf("transport covariance: %w", err)
	}

	return &Model{
		ParametersAtPCA:  mat.NewVecDense(track.NumParams, base.Params[:]),
		Covariance:       cov,
		PositionJacobian: posJac,
		MomentumJacobian: momJac,
		ExpansionPoint:   expansionPoint,
	}, nil
}

// transportCovariance moves the 5x5 covariance from the track's own
// reference point to the perigee around the expansion point, using a
// finite-difference Jacobian of the reference-change map.
func (nl *NumericalLinearizer) transportCovariance(par track.Parameters, oldRef, expansionPoint [3]float64) (*mat.SymDense, error) {
	steps := [track.NumParams]float64{
		nl.posStep, nl.posStep, nl.angStep, nl.angStep,
		math.Max(nl.qopStep*math.Abs(par.QOverP()), minQOPStep),
	}

	jac := mat.NewDense(track.NumParams, track.NumParams, nil)
	for j := 0; j < track.NumParams; j++ {
		up, dn := par, par
		up.Vec[j] += steps[j]
		dn.Vec[j] -= steps[j]

		posU, phiU, thetaU, qopU := propagate.GlobalState(up, oldRef)
		pU, err := nl.prop.ToPerigee(posU, phiU, thetaU, qopU, expansionPoint)
		if err != nil {
			return nil, err
		}
		posD, phiD, thetaD, qopD := propagate.GlobalState(dn, oldRef)
		pD, err := nl.prop.ToPerigee(posD, phiD, thetaD, qopD, expansionPoint)
		if err != nil {
			return nil, err
		}
		setDiffColumn(jac, j, pU.Params, pD.Params, 2*steps[j])
	}

	var jc mat.Dense
	jc.Mul(jac, par.Cov)
	var full mat.Dense
	full.Mul(&jc, jac.T())

	// Symmetrise: the finite-difference product is symmetric only up to
	// truncation error.
	out := mat.NewSymDense(track.NumParams, nil)
	for i := 0; i < track.NumParams; i++ {
		for j := i; j < track.NumParams; j++ {
			out.SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
		}
	}
	return out, nil
}

// setDiffColumn writes a central-difference column, wrapping the azimuth
// row so a difference straddling the -pi/pi seam stays small.
func setDiffColumn(dst *mat.Dense, col int, up, dn [track.NumParams]float64, denom float64) {
	for i := 0; i < track.NumParams; i++ {
		d := up[i] - dn[i]
		if i == track.ParamPhi {
			for d > math.Pi {
				d -= 2 * math.Pi
			}
			for d <= -math.Pi {
				d += 2 * math.Pi
			}
		}
		dst.Set(i, col, d/denom)
	}
}
