package track

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// measurement is a 1x4 observation vector: center x, center y, aspect
// ratio and height of a detector box.
type measurement []float32

// stateMean is the 1x8 filter state: the measurement components plus
// their velocities.
type stateMean []float32

// stateCov is the 8x8 state covariance matrix.
type stateCov struct {
	*mat.Dense
}

// kalmanFilter implements a constant-velocity Kalman filter over box
// center, aspect ratio and height. It is shared by all tracks of one
// tracker since it holds only the motion and observation models.
type kalmanFilter struct {
	posWeight float32
	velWeight float32
	motionMat *mat.Dense
	updateMat *mat.Dense
}

// newKalmanFilter builds the filter with its standard deviation weights
// for the position and velocity components.
func newKalmanFilter(posWeight, velWeight float32) *kalmanFilter {
	const ndim = 4
	dt := 1.0

	motionMat := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, 1.0)
	}
	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, dt)
	}

	updateMat := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &kalmanFilter{
		posWeight: posWeight,
		velWeight: velWeight,
		motionMat: motionMat,
		updateMat: updateMat,
	}
}

// initiate seeds the state from a first measurement. Velocities start
// at zero with a wide variance so early motion is absorbed quickly.
func (kf *kalmanFilter) initiate(mean stateMean, cov *stateCov, m measurement) {
	copy(mean[:4], m[:4])
	for i := 4; i < 8; i++ {
		mean[i] = 0
	}

	std := make(stateMean, 8)
	std[0] = 2 * kf.posWeight * m[3]
	std[1] = 2 * kf.posWeight * m[3]
	std[2] = 1e-2
	std[3] = 2 * kf.posWeight * m[3]
	std[4] = 10 * kf.velWeight * m[3]
	std[5] = 10 * kf.velWeight * m[3]
	std[6] = 1e-5
	std[7] = 10 * kf.velWeight * m[3]

	for i, v := range std {
		cov.Set(i, i, float64(v*v))
	}
}

// predict advances the state one frame using the constant-velocity
// motion model.
func (kf *kalmanFilter) predict(mean stateMean, cov *stateCov) {
	std := make(stateMean, 8)
	std[0] = kf.posWeight * mean[3]
	std[1] = kf.posWeight * mean[3]
	std[2] = 1e-2
	std[3] = kf.posWeight * mean[3]
	std[4] = kf.velWeight * mean[3]
	std[5] = kf.velWeight * mean[3]
	std[6] = 1e-5
	std[7] = kf.velWeight * mean[3]

	motionCov := mat.NewDense(8, 8, nil)
	for i, v := range std {
		motionCov.Set(i, i, float64(v*v))
	}

	meanVec := mat.NewDense(8, 1, nil)
	for i, v := range mean {
		meanVec.Set(i, 0, float64(v))
	}

	meanVec.Mul(kf.motionMat, meanVec)
	for i := range mean {
		mean[i] = float32(meanVec.At(i, 0))
	}

	c := cov.Dense
	c.Mul(kf.motionMat, c)
	c.Mul(c, kf.motionMat.T())
	c.Add(c, motionCov)
}

// update folds a fresh measurement into the state.
func (kf *kalmanFilter) update(mean stateMean, cov *stateCov, m measurement) error {
	projMean, projCov := kf.project(mean, cov)

	var chol mat.Cholesky
	if ok := chol.Factorize(projCov); !ok {
		return errors.New("projected covariance not positive definite")
	}

	b := mat.NewDense(8, 4, nil)
	b.Mul(cov.Dense, kf.updateMat.T())

	var gain mat.Dense
	if err := chol.SolveTo(&gain, b.T()); err != nil {
		return fmt.Errorf("kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)
	for i := 0; i < 4; i++ {
		innovation.SetVec(i, float64(m[i]-projMean[i]))
	}

	delta := mat.NewVecDense(8, nil)
	delta.MulVec(gain.T(), innovation)
	for i := range mean {
		mean[i] += float32(delta.AtVec(i))
	}

	tmp := mat.NewDense(8, 4, nil)
	tmp.Mul(gain.T(), projCov)
	reduce := mat.NewDense(8, 8, nil)
	reduce.Mul(tmp, &gain)

	next := mat.NewDense(8, 8, nil)
	next.Sub(cov.Dense, reduce)
	cov.Dense = next

	return nil
}

// project maps the state into measurement space, adding observation
// noise scaled by the current height.
func (kf *kalmanFilter) project(mean stateMean, cov *stateCov) (measurement, *mat.SymDense) {
	std := make(measurement, 4)
	std[0] = kf.posWeight * mean[3]
	std[1] = kf.posWeight * mean[3]
	std[2] = 1e-1
	std[3] = kf.posWeight * mean[3]

	obsCov := mat.NewSymDense(4, nil)
	for i, v := range std {
		obsCov.SetSym(i, i, float64(v*v))
	}

	meanData := make([]float64, 8)
	for i, v := range mean {
		meanData[i] = float64(v)
	}

	projVec := mat.NewVecDense(4, nil)
	projVec.MulVec(kf.updateMat, mat.NewVecDense(8, meanData))

	tmp := mat.NewDense(4, 8, nil)
	tmp.Mul(kf.updateMat, cov.Dense)
	full := mat.NewDense(4, 4, nil)
	full.Mul(tmp, kf.updateMat.T())

	projCov := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projCov.SetSym(i, j, full.At(i, j))
		}
	}
	projCov.AddSym(projCov, obsCov)

	projMean := make(measurement, 4)
	for i := 0; i < 4; i++ {
		projMean[i] = float32(projVec.AtVec(i))
	}

	return projMean, projCov
}
