// Package propagate advances trajectories to their transverse point of
// closest approach (PCA) around a reference point. Charged tracks in a
// uniform axial field follow a helix; neutral tracks, or any track when the
// field is off, follow a straight line. The PCA is computed analytically in
// the transverse plane in both cases.
package propagate

import (
	"fmt"
	"math"

	"github.com/banshee-data/vertexfit/internal/track"
	"github.com/banshee-data/vertexfit/internal/units"
)

// minSinTheta rejects trajectories too close to the beam axis, where the
// transverse PCA is undefined.
const minSinTheta = 1e-9

// minAxisDistance rejects a reference point sitting on the helix axis,
// where every point of the circle is equally close.
const minAxisDistance = 1e-9

// PerigeeState is the result of a propagation: the perigee parameters
// relative to the reference point plus the global PCA position.
type PerigeeState struct {
	Params   [track.NumParams]float64
	Position [3]float64
}

// Propagator advances a trajectory, given by a point it passes through and
// its momentum direction there, to the PCA around ref.
type Propagator interface {
	ToPerigee(position [3]float64, phi, theta, qOverP float64, ref [3]float64) (PerigeeState, error)
}

// HelixPropagator is the analytic propagator for a uniform magnetic field
// along +z. A zero field yields exact straight-line propagation.
type HelixPropagator struct {
	Bz float64 // axial field in Tesla
}

// NewHelixPropagator returns a propagator for the given axial field.
func NewHelixPropagator(bzTesla float64) *HelixPropagator {
	return &HelixPropagator{Bz: bzTesla}
}

// ToPerigee implements Propagator.
func (h *HelixPropagator) ToPerigee(position [3]float64, phi, theta, qOverP float64, ref [3]float64) (PerigeeState, error) {
	for _, v := range []float64{position[0], position[1], position[2], phi, theta, qOverP, ref[0], ref[1], ref[2]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PerigeeState{}, fmt.Errorf("non-finite propagation input")
		}
	}

	sinTheta := math.Sin(theta)
	if math.Abs(sinTheta) < minSinTheta {
		return PerigeeState{}, fmt.Errorf("trajectory parallel to beam axis (theta=%v)", theta)
	}
	cotTheta := math.Cos(theta) / sinTheta

	charge := 0.0
	pT := 0.0
	if qOverP > 0 {
		charge = 1
		pT = sinTheta / qOverP
	} else if qOverP < 0 {
		charge = -1
		pT = -sinTheta / qOverP
	}

	rho := units.BendingRadius(pT, charge, h.Bz)
	if rho == 0 {
		return h.linePerigee(position, phi, theta, qOverP, cotTheta, ref)
	}
	return h.helixPerigee(position, phi, theta, qOverP, cotTheta, rho, ref)
}

// linePerigee computes the straight-line PCA in the transverse plane.
func (h *HelixPropagator) linePerigee(pos [3]float64, phi, theta, qOverP, cotTheta float64, ref [3]float64) (PerigeeState, error) {
	cosPhi := math.Cos(phi)
	sinPhi := math.Sin(phi)

	// Transverse arc length from pos to the PCA.
	l := -((pos[0]-ref[0])*cosPhi + (pos[1]-ref[1])*sinPhi)

	pcaX := pos[0] + cosPhi*l
	pcaY := pos[1] + sinPhi*l
	pcaZ := pos[2] + cotTheta*l

	d0 := -(pcaX-ref[0])*sinPhi + (pcaY-ref[1])*cosPhi
	z0 := pcaZ - ref[2]

	return PerigeeState{
		Params:   [track.NumParams]float64{d0, z0, phi, theta, qOverP},
		Position: [3]float64{pcaX, pcaY, pcaZ},
	}, nil
}

// helixPerigee computes the PCA of the helix's transverse circle. rho is
// the signed bending radius in millimetres.
func (h *HelixPropagator) helixPerigee(pos [3]float64, phi, theta, qOverP, cotTheta, rho float64, ref [3]float64) (PerigeeState, error) {
	cosPhi := math.Cos(phi)
	sinPhi := math.Sin(phi)

	// Circle centre in the transverse plane. The centre sits at 90 degrees
	// to the momentum direction, on the side the Lorentz force points to.
	cx := pos[0] + rho*sinPhi
	cy := pos[1] - rho*cosPhi

	dx := ref[0] - cx
	dy := ref[1] - cy
	dist := math.Hypot(dx, dy)
	if dist < minAxisDistance {
		return PerigeeState{}, fmt.Errorf("reference point on helix axis")
	}

	absRho := math.Abs(rho)
	pcaX := cx + absRho*dx/dist
	pcaY := cy + absRho*dy/dist

	// Momentum direction at the PCA, from the circle phase there.
	phiPCA := math.Atan2(-(pcaX-cx)/rho, (pcaY-cy)/rho)

	// Turning angle from pos to the PCA, and the transverse arc length.
	dPhi := phiPCA - phi
	for dPhi > math.Pi {
		dPhi -= 2 * math.Pi
	}
	for dPhi <= -math.Pi {
		dPhi += 2 * math.Pi
	}
	l := -rho * dPhi

	pcaZ := pos[2] + cotTheta*l

	d0 := -(pcaX-ref[0])*math.Sin(phiPCA) + (pcaY-ref[1])*math.Cos(phiPCA)
	z0 := pcaZ - ref[2]

	return PerigeeState{
		Params:   [track.NumParams]float64{d0, z0, phiPCA, theta, qOverP},
		Position: [3]float64{pcaX, pcaY, pcaZ},
	}, nil
}

// GlobalState converts perigee parameters relative to ref back to a global
// PCA position and momentum angles. It is the inverse of ToPerigee at the
// PCA itself.
func GlobalState(par track.Parameters, ref [3]float64) (position [3]float64, phi, theta, qOverP float64) {
	phi = par.Phi()
	theta = par.Theta()
	qOverP = par.QOverP()
	position = [3]float64{
		ref[0] - par.D0()*math.Sin(phi),
		ref[1] + par.D0()*math.Cos(phi),
		ref[2] + par.Z0(),
	}
	return position, phi, theta, qOverP
}
