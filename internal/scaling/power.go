package scaling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Power applies a Yeo-Johnson transform with the lambda that maximises the
// Gaussian log-likelihood of the transformed column, then optionally
// standardises the result.
type Power struct {
	Standardize bool
}

func (Power) Name() string { return NamePower }
func (Power) sealed()      {}

func (s Power) Transform(values []float64) ([]float64, error) {
	obs := observed(values)
	if len(obs) == 0 {
		return append([]float64(nil), values...), nil
	}

	lambda, err := fitYeoJohnson(obs)
	if err != nil {
		return nil, err
	}

	out := mapEach(values, func(v float64) float64 { return yeoJohnson(v, lambda) })
	if !s.Standardize {
		return out, nil
	}
	return NewStandard().Transform(out)
}

func yeoJohnson(x, lambda float64) float64 {
	if x >= 0 {
		if math.Abs(lambda) < epsilon {
			return math.Log1p(x)
		}
		return (math.Pow(x+1, lambda) - 1) / lambda
	}
	if math.Abs(lambda-2) > epsilon {
		return -(math.Pow(1-x, 2-lambda) - 1) / (2 - lambda)
	}
	return -math.Log1p(-x)
}

func yeoJohnsonNegLogLikelihood(obs []float64, lambda float64) float64 {
	transformed := make([]float64, len(obs))
	for i, x := range obs {
		transformed[i] = yeoJohnson(x, lambda)
	}
	_, std := stat.PopMeanStdDev(transformed, nil)
	variance := std * std
	if variance < math.SmallestNonzeroFloat64 || math.IsNaN(variance) {
		return math.Inf(1)
	}

	loglike := -float64(len(obs)) / 2 * math.Log(variance)
	jacobian := 0.0
	for _, x := range obs {
		sign := 1.0
		if x < 0 {
			sign = -1
		}
		jacobian += sign * math.Log1p(math.Abs(x))
	}
	loglike += (lambda - 1) * jacobian
	return -loglike
}

func fitYeoJohnson(obs []float64) (float64, error) {
	distinct := false
	for _, x := range obs[1:] {
		if x != obs[0] {
			distinct = true
			break
		}
	}
	if !distinct {
		return 1, nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return yeoJohnsonNegLogLikelihood(obs, x[0]) },
	}
	result, err := optimize.Minimize(problem, []float64{1}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, fmt.Errorf("fitting yeo-johnson lambda: %w", err)
	}
	return result.X[0], nil
}
