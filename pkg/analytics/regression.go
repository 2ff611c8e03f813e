package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/olistflow/olistflow/pkg/errors"
)

// Regression holds an ordinary least squares fit of y on x.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	RSquared  float64 `json:"r_squared"`
	PValue    float64 `json:"p_value"`
	StdErr    float64 `json:"std_err"`
	N         int     `json:"n"`
}

// Linregress fits y = intercept + slope*x by ordinary least squares and
// reports the two-sided p-value for the null hypothesis slope == 0.
func Linregress(x, y []float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, errors.New(errors.ErrorTypeValidation,
			"regression inputs differ in length")
	}
	if len(x) < 3 {
		return Regression{}, errors.New(errors.ErrorTypeValidation,
			"regression needs at least 3 observations")
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)
	r2 := r * r
	n := float64(len(x))

	// Standard error of the slope from the residual variance.
	sdX := math.Sqrt(stat.Variance(x, nil))
	sdY := math.Sqrt(stat.Variance(y, nil))
	df := n - 2

	var stdErr, pValue float64
	switch {
	case sdX == 0:
		return Regression{}, errors.New(errors.ErrorTypeValidation,
			"regression x values are constant")
	case sdY == 0:
		// Constant y: flat fit, correlation undefined. Report zero
		// slope and correlation with p = 1.
		slope = 0
		r = 0
		r2 = 0
		stdErr = 0
		pValue = 1
	case r2 >= 1:
		// Perfect fit: zero residuals, p-value degenerates.
		stdErr = 0
		pValue = 0
	default:
		stdErr = (sdY / sdX) * math.Sqrt((1-r2)/df)
		t := slope / stdErr
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		pValue = 2 * dist.CDF(-math.Abs(t))
	}

	return Regression{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		RSquared:  r2,
		PValue:    pValue,
		StdErr:    stdErr,
		N:         len(x),
	}, nil
}
