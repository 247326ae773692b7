package imputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// DefaultNeighbors is the neighbour count used when none is configured.
const DefaultNeighbors = 5

// KNN fills a missing cell with the unweighted mean of that column over
// the nearest rows that observed it. Distance is Euclidean over the
// coordinates both rows observed, scaled up for the ones they did not.
type KNN struct {
	Neighbors int
	Logger    *slog.Logger
}

// NewKNN validates the neighbour count.
func NewKNN(neighbors int) (KNN, error) {
	if neighbors < 1 {
		return KNN{}, fmt.Errorf("n_neighbors must be at least 1, got %d", neighbors)
	}
	return KNN{Neighbors: neighbors}, nil
}

func (KNN) Name() string { return NameKNN }
func (KNN) sealed()      {}

func (k KNN) Impute(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	return withoutAllNull(ctx, loggerOr(k.Logger), k.Name(), f, func(sub *frame.Frame) (*frame.Frame, error) {
		return k.fit(sub)
	})
}

func (k KNN) fit(f *frame.Frame) (*frame.Frame, error) {
	cols := f.Columns()
	rows := f.Index()
	data := make([][]float64, len(rows))
	for i, code := range rows {
		data[i] = f.Row(code)
	}

	neighbors := k.Neighbors
	if neighbors < 1 {
		neighbors = DefaultNeighbors
	}

	out := f.Clone()
	for j, c := range cols {
		var donors []int
		for i := range data {
			if !math.IsNaN(data[i][j]) {
				donors = append(donors, i)
			}
		}
		colMean, _ := Mean.Fill(f.Column(c))

		for i := range data {
			if !math.IsNaN(data[i][j]) {
				continue
			}
			v := k.estimate(data, i, j, donors, neighbors)
			if math.IsNaN(v) {
				v = colMean
			}
			if err := out.Set(rows[i], c, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

type donor struct {
	row  int
	dist float64
}

// estimate averages column j over the closest donors to row i. Donors
// sharing no observed coordinate with the row do not count.
func (k KNN) estimate(data [][]float64, i, j int, donors []int, neighbors int) float64 {
	candidates := make([]donor, 0, len(donors))
	for _, d := range donors {
		candidates = append(candidates, donor{row: d, dist: nanEuclidean(data[i], data[d])})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		da, db := candidates[a].dist, candidates[b].dist
		if math.IsNaN(da) {
			return false
		}
		if math.IsNaN(db) {
			return true
		}
		return da < db
	})

	if neighbors > len(candidates) {
		neighbors = len(candidates)
	}
	sum, n := 0.0, 0
	for _, c := range candidates[:neighbors] {
		if math.IsNaN(c.dist) {
			continue
		}
		sum += data[c.row][j]
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// nanEuclidean is sqrt(total/present * sum of squared differences) over the
// coordinates where both rows are observed, or NaN if there are none.
func nanEuclidean(a, b []float64) float64 {
	sum, present := 0.0, 0
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		d := a[i] - b[i]
		sum += d * d
		present++
	}
	if present == 0 {
		return math.NaN()
	}
	return math.Sqrt(float64(len(a)) / float64(present) * sum)
}
