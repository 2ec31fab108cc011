package vertex

import (
	"math"
	"testing"
)

func TestWrapPhi(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"in range positive", 1.5, 1.5},
		{"in range negative", -1.5, -1.5},
		{"pi stays pi", math.Pi, math.Pi},
		{"negative pi wraps to pi", -math.Pi, math.Pi},
		{"just above pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"just below negative pi", -math.Pi - 0.1, math.Pi - 0.1},
		{"full turn", 2 * math.Pi, 0},
		{"many turns", 7 * math.Pi, math.Pi},
		{"many negative turns", -6*math.Pi - 0.5, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapPhi(tt.in)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("WrapPhi(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAngles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		phi       float64
		theta     float64
		wantPhi   float64
		wantTheta float64
	}{
		{"already canonical", 0.5, 1.0, 0.5, 1.0},
		{"theta slightly negative reflects with phi flip", 0.5, -0.1, 0.5 - math.Pi, 0.1},
		{"theta above pi reflects with phi flip", 0.5, math.Pi + 0.2, 0.5 - math.Pi, math.Pi - 0.2},
		{"theta zero stays", 1.0, 0, 1.0, 0},
		{"theta pi stays", 1.0, math.Pi, 1.0, math.Pi},
		{"theta full turn plus a bit", 0.3, 2*math.Pi + 0.4, 0.3, 0.4},
		{"phi alone wraps", 4 * math.Pi, 1.0, 0, 1.0},
		{"both out of range", math.Pi + 0.25, -0.1, 0.25, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phi, theta := NormalizeAngles(tt.phi, tt.theta)
			if math.Abs(phi-tt.wantPhi) > 1e-12 || math.Abs(theta-tt.wantTheta) > 1e-12 {
				t.Errorf("NormalizeAngles(%v, %v) = (%v, %v), want (%v, %v)",
					tt.phi, tt.theta, phi, theta, tt.wantPhi, tt.wantTheta)
			}
		})
	}
}

// The normalized pair must describe the same direction in space as the input.
func TestNormalizeAnglesPreservesDirection(t *testing.T) {
	t.Parallel()

	inputs := []struct{ phi, theta float64 }{
		{0.5, -0.1},
		{2.0, 3.5},
		{-3.0, 7.0},
		{1.2, -4.9},
	}
	for _, in := range inputs {
		phi, theta := NormalizeAngles(in.phi, in.theta)

		dir := func(p, th float64) [3]float64 {
			return [3]float64{
				math.Sin(th) * math.Cos(p),
				math.Sin(th) * math.Sin(p),
				math.Cos(th),
			}
		}
		want := dir(in.phi, in.theta)
		got := dir(phi, theta)
		for i := 0; i < 3; i++ {
			if math.Abs(got[i]-want[i]) > 1e-12 {
				t.Errorf("direction changed for (%v, %v): got %v, want %v", in.phi, in.theta, got, want)
			}
		}
		if theta < 0 || theta > math.Pi {
			t.Errorf("theta %v out of [0, pi] for input (%v, %v)", theta, in.phi, in.theta)
		}
		if phi <= -math.Pi || phi > math.Pi {
			t.Errorf("phi %v out of (-pi, pi] for input (%v, %v)", phi, in.phi, in.theta)
		}
	}
}
