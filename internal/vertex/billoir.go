package vertex

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/vertexfit/internal/linearize"
	"github.com/banshee-data/vertexfit/internal/track"
)

// invertSPD inverts a symmetric positive-definite matrix via Cholesky
// factorization. A failed factorization reports singularity instead of
// letting NaNs leak into the fit.
func invertSPD(s *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, errors.New("matrix is not positive definite")
	}
	inv := mat.NewSymDense(s.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}
	for i := 0; i < inv.SymmetricDim(); i++ {
		if v := inv.At(i, i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("inverse is not finite")
		}
	}
	return inv, nil
}

// pseudoInvertSym inverts a symmetric positive semi-definite matrix by
// eigendecomposition, dropping directions whose eigenvalue is negligible
// against the largest. Solving with the result yields the minimum-norm
// update along the uninformative directions.
func pseudoInvertSym(s *mat.SymDense) (*mat.SymDense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, errors.New("eigendecomposition failed")
	}
	vals := eig.Values(nil)
	maxVal := 0.0
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		return nil, errors.New("matrix has no positive eigenvalues")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	const rankTol = 1e-10
	n := s.SymmetricDim()
	inv := mat.NewSymDense(n, nil)
	for k := 0; k < n; k++ {
		if vals[k] <= rankTol*maxVal {
			continue
		}
		w := 1 / vals[k]
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				inv.SetSym(i, j, inv.At(i, j)+w*vecs.At(i, k)*vecs.At(j, k))
			}
		}
	}
	return inv, nil
}

// symmetrize averages a nearly-symmetric product into a SymDense. Matrix
// products of the form J*M*J^T are symmetric only up to floating-point
// error, which Cholesky factorization is sensitive to.
func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return out
}

// billoirTrack holds the matrices derived from one track's linear model
// for one iteration. Built fresh each outer iteration and discarded after
// the momentum update and refit covariance are computed.
type billoirTrack struct {
	model  *linearize.Model
	weight *mat.SymDense // 5x5 inverse covariance
	dq     *mat.VecDense // 5 residual vs expansion point and momentum guess
	g      *mat.SymDense // 3x3 momentum information E^T W E
	c      *mat.SymDense // 3x3 inverse of g
	b      *mat.Dense    // 3x3 cross term D^T W E
	bc     *mat.Dense    // 3x3 b*c
	u      *mat.VecDense // 3 weighted momentum residual E^T W dq

	// Per-track contributions to the vertex sums.
	aPart *mat.Dense    // 3x3 D^T W D
	tPart *mat.VecDense // 3 D^T W dq

	deltaQ *mat.VecDense // 3 momentum update, filled by the solve step
	chi2   float64
}

// newBilloirTrack derives the per-track working state from a linear model
// and the track's current (phi, theta, q/p) momentum guess.
func newBilloirTrack(model *linearize.Model, guess [3]float64) (*billoirTrack, error) {
	weight, err := invertSPD(model.Covariance)
	if err != nil {
		return nil, ErrSingularCovariance
	}

	d := model.PositionJacobian
	e := model.MomentumJacobian

	var wd, we mat.Dense // 5x3 weighted jacobians
	wd.Mul(weight, d)
	we.Mul(weight, e)

	var gFull mat.Dense
	gFull.Mul(e.T(), &we)
	g := symmetrize(&gFull)

	c, err := invertSPD(g)
	if err != nil {
		return nil, ErrSingularInformation
	}

	b := &mat.Dense{}
	b.Mul(d.T(), &we)

	// Residual: impact parameters are zero at the expansion point by
	// construction, so their residual is the observed value itself; the
	// momentum components are observed minus current guess, with the
	// azimuth difference kept off the -pi/pi seam.
	p := model.ParametersAtPCA
	dq := mat.NewVecDense(track.NumParams, []float64{
		p.AtVec(track.ParamD0),
		p.AtVec(track.ParamZ0),
		WrapPhi(p.AtVec(track.ParamPhi) - guess[0]),
		p.AtVec(track.ParamTheta) - guess[1],
		p.AtVec(track.ParamQOverP) - guess[2],
	})

	var wdq mat.VecDense
	wdq.MulVec(weight, dq)

	u := &mat.VecDense{}
	u.MulVec(e.T(), &wdq)

	bc := &mat.Dense{}
	bc.Mul(b, c)

	aPart := &mat.Dense{}
	aPart.Mul(d.T(), &wd)

	tPart := &mat.VecDense{}
	tPart.MulVec(d.T(), &wdq)

	return &billoirTrack{
		model:  model,
		weight: weight,
		dq:     dq,
		g:      g,
		c:      c,
		b:      b,
		bc:     bc,
		u:      u,
		aPart:  aPart,
		tPart:  tPart,
	}, nil
}

// solveMomentum computes this track's momentum update for a given vertex
// position update and records the track chi-square for the iteration.
func (bt *billoirTrack) solveMomentum(deltaV *mat.VecDense) {
	var btv mat.VecDense // B^T * deltaV
	btv.MulVec(bt.b.T(), deltaV)

	var rhs mat.VecDense
	rhs.SubVec(bt.u, &btv)

	bt.deltaQ = &mat.VecDense{}
	bt.deltaQ.MulVec(bt.c, &rhs)

	// chi2 = (dq - D*deltaV - E*deltaQ)^T W (dq - D*deltaV - E*deltaQ)
	var dv, eq, res mat.VecDense
	dv.MulVec(bt.model.PositionJacobian, deltaV)
	eq.MulVec(bt.model.MomentumJacobian, bt.deltaQ)
	res.SubVec(bt.dq, &dv)
	res.SubVec(&res, &eq)
	bt.chi2 = mat.Inner(&res, bt.weight, &res)
}

// refitCovariance maps the stacked (vertex position, momentum) covariance
// through the parameter transform to the track's 5x5 refit covariance.
func (bt *billoirTrack) refitCovariance(covV *mat.SymDense) *mat.SymDense {
	// 6x6 block covariance over (V, q).
	cov6 := mat.NewDense(6, 6, nil)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cov6.Set(i, j, covV.At(i, j))
		}
	}

	var cross mat.Dense // -covV * BC
	cross.Mul(covV, bt.bc)
	cross.Scale(-1, &cross)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cov6.Set(i, 3+j, cross.At(i, j))
			cov6.Set(3+j, i, cross.At(i, j))
		}
	}

	var vbc, momCov mat.Dense // C + BC^T * covV * BC
	vbc.Mul(covV, bt.bc)
	momCov.Mul(bt.bc.T(), &vbc)
	momCov.Add(&momCov, bt.c)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cov6.Set(3+i, 3+j, momCov.At(i, j))
		}
	}

	// 5x6 transform: the impact-parameter rows come from the first two
	// rows of the position jacobian, the momentum rows are identity.
	jac := mat.NewDense(track.NumParams, 6, nil)
	for j := 0; j < 3; j++ {
		jac.Set(0, j, bt.model.PositionJacobian.At(0, j))
		jac.Set(1, j, bt.model.PositionJacobian.At(1, j))
	}
	for i := 0; i < 3; i++ {
		jac.Set(2+i, 3+i, 1)
	}

	var jc, cov5 mat.Dense
	jc.Mul(jac, cov6)
	cov5.Mul(&jc, jac.T())
	return symmetrize(&cov5)
}

// vertexSums aggregates the per-track contributions needed to solve for
// the vertex position update. Built fresh each iteration.
type vertexSums struct {
	a   *mat.Dense    // 3x3 sum of D^T W D
	t   *mat.VecDense // 3 sum of D^T W dq
	bcb *mat.Dense    // 3x3 sum of BC * B^T
	bcu *mat.VecDense // 3 sum of BC * U
}

func newVertexSums() *vertexSums {
	return &vertexSums{
		a:   mat.NewDense(3, 3, nil),
		t:   mat.NewVecDense(3, nil),
		bcb: mat.NewDense(3, 3, nil),
		bcu: mat.NewVecDense(3, nil),
	}
}

func (vs *vertexSums) add(bt *billoirTrack) {
	vs.a.Add(vs.a, bt.aPart)
	vs.t.AddVec(vs.t, bt.tPart)

	var bcb mat.Dense
	bcb.Mul(bt.bc, bt.b.T())
	vs.bcb.Add(vs.bcb, &bcb)

	var bcu mat.VecDense
	bcu.MulVec(bt.bc, bt.u)
	vs.bcu.AddVec(vs.bcu, &bcu)
}

// reduce marginalizes the momentum contributions and folds in an optional
// constraint, returning the vertex information matrix and weighted
// residual. constraintWeight and constraintShift may be nil together.
func (vs *vertexSums) reduce(constraintWeight *mat.SymDense, constraintShift *mat.VecDense) (*mat.SymDense, *mat.VecDense) {
	var infoFull mat.Dense
	infoFull.Sub(vs.a, vs.bcb)
	info := symmetrize(&infoFull)

	r := mat.NewVecDense(3, nil)
	r.SubVec(vs.t, vs.bcu)

	if constraintWeight != nil {
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				info.SetSym(i, j, info.At(i, j)+constraintWeight.At(i, j))
			}
		}
		var cw mat.VecDense
		cw.MulVec(constraintWeight, constraintShift)
		r.AddVec(r, &cw)
	}

	return info, r
}
