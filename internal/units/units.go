// Package units provides shared constants and conversions for the detector
// unit system: lengths in millimetres, momenta in GeV, magnetic field in
// Tesla, angles in radians.
package units

// Length constants, expressed in millimetres.
const (
	Millimetre = 1.0
	Micrometre = 1e-3
	Metre      = 1e3
)

// Momentum constants, expressed in GeV.
const (
	GeV = 1.0
	MeV = 1e-3
)

// CurvatureFactor converts momentum and field to a bending radius:
// for transverse momentum pT (GeV), charge q (e) and axial field Bz (T),
// the signed radius in millimetres is pT / (CurvatureFactor * q * Bz).
const CurvatureFactor = 0.299792458e-3 // GeV / (T * mm)

// BendingRadius returns the signed helix radius in millimetres for the
// given transverse momentum (GeV), unit charge and axial field (Tesla).
// Returns 0 when the track does not bend (neutral particle or no field).
func BendingRadius(pT, charge, bzTesla float64) float64 {
	if charge == 0 || bzTesla == 0 {
		return 0
	}
	return pT / (CurvatureFactor * charge * bzTesla)
}
