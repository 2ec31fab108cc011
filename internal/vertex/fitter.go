// Package vertex implements an iterative Billoir-style least-squares fit
// of a common origin point for a set of reconstructed tracks. Each outer
// iteration relinearizes every track around the current vertex estimate,
// solves the momentum-marginalized system for a position update, refits
// the per-track momenta, and scores the iterate by total chi-square; the
// engine keeps the best-scoring iterate across the configured budget.
package vertex

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/linearize"
	"github.com/banshee-data/vertexfit/internal/track"
)

// Fitter is the vertex fit engine. A Fitter is safe for concurrent use
// provided its linearizer is; each Fit call owns all of its working state.
type Fitter struct {
	cfg Config
	lin linearize.Linearizer
}

// NewFitter validates the configuration and returns a fit engine bound to
// the given linearizer.
func NewFitter(cfg Config, lin linearize.Linearizer) (*Fitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fitter config: %w", err)
	}
	if lin == nil {
		return nil, fmt.Errorf("fitter requires a linearizer")
	}
	return &Fitter{cfg: cfg, lin: lin}, nil
}

// Fit estimates the common vertex of the given tracks. With zero tracks it
// short-circuits to a degenerate vertex at the origin with no fit quality.
// Any singular matrix or failed linearization aborts the fit with no
// partial result.
func (f *Fitter) Fit(tracks []track.Track) (*Vertex, error) {
	if len(tracks) == 0 {
		return &Vertex{Covariance: mat.NewSymDense(3, nil)}, nil
	}

	ndf := 2*len(tracks) - 3
	if len(tracks) < 2 {
		ndf = 1
	}

	constrained := f.cfg.Constraint.Active()
	var constraintWeight *mat.SymDense
	var constraintPos [3]float64
	if constrained {
		w, err := invertSPD(f.cfg.Constraint.Covariance)
		if err != nil {
			return nil, fmt.Errorf("%w: constraint covariance", ErrSingularCovariance)
		}
		constraintWeight = w
		constraintPos = f.cfg.Constraint.Position
		ndf += 3
	}

	// Seed the expansion point from the constraint (origin otherwise)
	// and the momentum guesses from each track's own observed state.
	var expansion [3]float64
	if constrained {
		expansion = constraintPos
	}
	guesses := make([][3]float64, len(tracks))
	for i, trk := range tracks {
		par, err := trk.Parameters()
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		guesses[i] = [3]float64{par.Phi(), par.Theta(), par.QOverP()}
	}

	var best *Vertex
	prevChi2 := math.Inf(1)

	for iter := 0; iter < f.cfg.MaxIterations; iter++ {
		bts := make([]*billoirTrack, len(tracks))
		sums := newVertexSums()
		for i, trk := range tracks {
			model, err := f.lin.Linearize(trk, expansion)
			if err != nil {
				return nil, fmt.Errorf("%w (track %d): %v", ErrPropagation, i, err)
			}
			bt, err := newBilloirTrack(model, guesses[i])
			if err != nil {
				return nil, fmt.Errorf("%w (track %d)", err, i)
			}
			bts[i] = bt
			sums.add(bt)
		}

		var shift *mat.VecDense
		if constrained {
			shift = mat.NewVecDense(3, []float64{
				constraintPos[0] - expansion[0],
				constraintPos[1] - expansion[1],
				constraintPos[2] - expansion[2],
			})
		}
		info, r := sums.reduce(constraintWeight, shift)

		covV, err := invertSPD(info)
		if err != nil {
			// A lone track constrains only the directions transverse
			// to its trajectory, so its marginalized information is
			// rank deficient by construction. The pseudo-inverse gives
			// the minimum-norm update onto the trajectory. With two or
			// more tracks a failed factorization means the geometry
			// itself is degenerate.
			if len(tracks) > 1 {
				return nil, fmt.Errorf("%w: degenerate track configuration", ErrSingularInformation)
			}
			covV, err = pseudoInvertSym(info)
			if err != nil {
				return nil, fmt.Errorf("%w: degenerate track configuration", ErrSingularInformation)
			}
		}
		deltaV := &mat.VecDense{}
		deltaV.MulVec(covV, r)

		newPos := [3]float64{
			expansion[0] + deltaV.AtVec(0),
			expansion[1] + deltaV.AtVec(1),
			expansion[2] + deltaV.AtVec(2),
		}

		chi2 := 0.0
		newGuesses := make([][3]float64, len(tracks))
		for i, bt := range bts {
			bt.solveMomentum(deltaV)
			phi := guesses[i][0] + bt.deltaQ.AtVec(0)
			theta := guesses[i][1] + bt.deltaQ.AtVec(1)
			qop := guesses[i][2] + bt.deltaQ.AtVec(2)
			phi, theta = NormalizeAngles(phi, theta)
			newGuesses[i] = [3]float64{phi, theta, qop}
			chi2 += bt.chi2
		}
		if constrained {
			diff := mat.NewVecDense(3, []float64{
				constraintPos[0] - newPos[0],
				constraintPos[1] - newPos[1],
				constraintPos[2] - newPos[2],
			})
			chi2 += mat.Inner(diff, constraintWeight, diff)
		}

		guesses = newGuesses
		expansion = newPos

		if best == nil || chi2 < best.Chi2 {
			best = f.assemble(tracks, bts, newGuesses, newPos, covV, chi2, ndf)
		}

		if f.cfg.ConvergenceDelta > 0 && math.Abs(chi2-prevChi2) < f.cfg.ConvergenceDelta {
			break
		}
		prevChi2 = chi2
	}

	return best, nil
}

// assemble builds the output vertex for one iterate: refit parameter
// vectors are expressed at the fitted vertex, so the impact parameters are
// zero and only the momentum triple and the mapped covariance carry
// information.
func (f *Fitter) assemble(tracks []track.Track, bts []*billoirTrack, guesses [][3]float64, pos [3]float64, covV *mat.SymDense, chi2 float64, ndf int) *Vertex {
	tav := make([]TrackAtVertex, len(tracks))
	for i, bt := range bts {
		tav[i] = TrackAtVertex{
			Track: tracks[i],
			Chi2:  bt.chi2,
			Parameters: track.Parameters{
				Vec: [track.NumParams]float64{0, 0, guesses[i][0], guesses[i][1], guesses[i][2]},
				Cov: bt.refitCovariance(covV),
			},
		}
	}
	return &Vertex{
		Position:   pos,
		Covariance: covV,
		Chi2:       chi2,
		NDF:        ndf,
		Tracks:     tav,
	}
}
