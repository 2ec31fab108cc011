package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestParametersAccessors(t *testing.T) {
	t.Parallel()

	p := Parameters{Vec: [NumParams]float64{0.1, -0.2, 0.3, 1.4, -0.5}}
	assert.Equal(t, 0.1, p.D0())
	assert.Equal(t, -0.2, p.Z0())
	assert.Equal(t, 0.3, p.Phi())
	assert.Equal(t, 1.4, p.Theta())
	assert.Equal(t, -0.5, p.QOverP())
}

func TestParametersCharge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		qop  float64
		want float64
	}{
		{"positive", 0.5, 1},
		{"negative", -0.5, -1},
		{"neutral", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parameters{Vec: [NumParams]float64{0, 0, 0, 1, tt.qop}}
			assert.Equal(t, tt.want, p.Charge())
		})
	}
}

func TestParametersValidate(t *testing.T) {
	t.Parallel()

	good := Parameters{
		Vec: [NumParams]float64{0, 0, 0.3, 1.2, 0.8},
		Cov: mat.NewSymDense(NumParams, nil),
	}
	assert.NoError(t, good.Validate())

	nan := good
	nan.Vec[0] = math.NaN()
	assert.Error(t, nan.Validate())

	inf := good
	inf.Vec[3] = math.Inf(-1)
	assert.Error(t, inf.Validate())

	noCov := good
	noCov.Cov = nil
	assert.Error(t, noCov.Validate())

	wrongDim := good
	wrongDim.Cov = mat.NewSymDense(3, nil)
	assert.Error(t, wrongDim.Validate())
}

func TestParamTrack(t *testing.T) {
	t.Parallel()

	trk := ParamTrack{
		Par: Parameters{
			Vec: [NumParams]float64{0.1, 0.2, 0.3, 1.2, 0.8},
			Cov: mat.NewSymDense(NumParams, nil),
		},
		Ref: [3]float64{1, 2, 3},
	}
	par, err := trk.Parameters()
	assert.NoError(t, err)
	assert.Equal(t, trk.Par.Vec, par.Vec)
	assert.Equal(t, [3]float64{1, 2, 3}, trk.Reference())

	trk.Par.Cov = nil
	_, err = trk.Parameters()
	assert.Error(t, err)
}
