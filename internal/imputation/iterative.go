package imputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Iterative models each incomplete column as a ridge regression on every
// other column and cycles through the columns, fewest missing first, until
// the imputed values settle or MaxIter rounds have run.
type Iterative struct {
	MaxIter int
	Tol     float64
	Alpha   float64
	Logger  *slog.Logger
}

// NewIterative returns ten rounds with a 1e-3 relative tolerance.
func NewIterative() Iterative {
	return Iterative{MaxIter: 10, Tol: 1e-3, Alpha: 1e-3}
}

func (Iterative) Name() string { return NameIterative }
func (Iterative) sealed()      {}

func (it Iterative) Impute(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	logger := loggerOr(it.Logger)
	return withoutAllNull(ctx, logger, it.Name(), f, func(sub *frame.Frame) (*frame.Frame, error) {
		return it.fit(ctx, logger, sub)
	})
}

func (it Iterative) fit(ctx context.Context, logger *slog.Logger, f *frame.Frame) (*frame.Frame, error) {
	cols := f.Columns()
	n, p := f.Len(), len(cols)

	data := make([][]float64, p)
	missing := make([][]bool, p)
	maxAbs := 0.0
	for j, c := range cols {
		data[j] = f.Column(c)
		missing[j] = make([]bool, n)
		mean, _ := Mean.Fill(data[j])
		for i, v := range data[j] {
			if math.IsNaN(v) {
				missing[j][i] = true
				data[j][i] = mean
				continue
			}
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}

	var order []int
	counts := make([]int, p)
	for j := range cols {
		for _, m := range missing[j] {
			if m {
				counts[j]++
			}
		}
		if counts[j] > 0 {
			order = append(order, j)
		}
	}
	if len(order) == 0 {
		return f.Clone(), nil
	}
	if p < 2 {
		// nothing to regress on, the mean fill is the answer
		return fromColumns(f.Index(), cols, data)
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] < counts[order[b]] })

	tol := it.Tol * maxAbs
	for round := 1; round <= it.MaxIter; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		previous := make([][]float64, p)
		for j := range data {
			previous[j] = append([]float64(nil), data[j]...)
		}

		for _, target := range order {
			if err := it.regress(data, missing, target); err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[target], err)
			}
		}

		change := 0.0
		for i := 0; i < n; i++ {
			row := 0.0
			for j := range data {
				row += math.Abs(data[j][i] - previous[j][i])
			}
			change = math.Max(change, row)
		}
		if change < tol {
			logger.DebugContext(ctx, "iterative imputation converged", "rounds", round, "change", change)
			break
		}
	}

	return fromColumns(f.Index(), cols, data)
}

func fromColumns(index, cols []string, data [][]float64) (*frame.Frame, error) {
	out := frame.MustNew(index)
	for j, c := range cols {
		if err := out.SetColumn(c, data[j]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// regress refits the target column on the rows where it was observed and
// overwrites its missing cells with the predictions.
func (it Iterative) regress(data [][]float64, missing [][]bool, target int) error {
	n := len(data[target])
	var predictors []int
	for j := range data {
		if j != target {
			predictors = append(predictors, j)
		}
	}
	k := len(predictors)

	var train []int
	for i := 0; i < n; i++ {
		if !missing[target][i] {
			train = append(train, i)
		}
	}
	if len(train) == 0 {
		return nil
	}

	xMean := make([]float64, k)
	yMean := 0.0
	for _, i := range train {
		yMean += data[target][i]
		for a, j := range predictors {
			xMean[a] += data[j][i]
		}
	}
	yMean /= float64(len(train))
	for a := range xMean {
		xMean[a] /= float64(len(train))
	}

	x := mat.NewDense(len(train), k, nil)
	y := mat.NewVecDense(len(train), nil)
	for r, i := range train {
		y.SetVec(r, data[target][i]-yMean)
		for a, j := range predictors {
			x.Set(r, a, data[j][i]-xMean[a])
		}
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for a := 0; a < k; a++ {
		gram.Set(a, a, gram.At(a, a)+it.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		// an ill-conditioned system still yields a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) {
			return fmt.Errorf("solving ridge system: %w", err)
		}
	}

	for i := 0; i < n; i++ {
		if !missing[target][i] {
			continue
		}
		pred := yMean
		for a, j := range predictors {
			pred += (data[j][i] - xMean[a]) * beta.AtVec(a)
		}
		data[target][i] = pred
	}
	return nil
}
