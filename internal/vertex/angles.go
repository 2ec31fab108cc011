package vertex

import "math"

// WrapPhi reduces an azimuthal angle modulo 2*pi into (-pi, pi].
func WrapPhi(phi float64) float64 {
	phi = math.Mod(phi, 2*math.Pi)
	if phi <= -math.Pi {
		phi += 2 * math.Pi
	} else if phi > math.Pi {
		phi -= 2 * math.Pi
	}
	return phi
}

// NormalizeAngles restores a (phi, theta) direction pair to its canonical
// domain: theta in [0, pi] and phi in (-pi, pi]. When theta has to be
// reflected back into range, the direction it pointed to survives only if
// phi is simultaneously shifted by pi, so the reflection and the shift
// happen in the same step. Raw additive momentum updates can push the pair
// arbitrarily far outside the domain, so theta is first folded into
// [0, 2*pi) to make a single reflection sufficient.
func NormalizeAngles(phi, theta float64) (float64, float64) {
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if theta > math.Pi {
		theta = 2*math.Pi - theta
		phi += math.Pi
	}
	return WrapPhi(phi), theta
}
