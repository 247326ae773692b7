package index

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// PCAResult holds principal component loadings of the aggregate table.
// Components[i][j] is the loading of Columns[j] on component i.
type PCAResult struct {
	Columns           []string    `json:"columns"`
	Components        [][]float64 `json:"components"`
	ExplainedVariance []float64   `json:"explained_variance"`
	// Rows is the number of complete rows the analysis used.
	Rows int `json:"rows"`
}

// PCALoadings runs principal component analysis over the countries with
// no missing values in the aggregate table.
func (ix *Index) PCALoadings() (*PCAResult, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	cols := data.Columns()
	if len(cols) < 2 {
		return nil, apperrors.NewAppValidationError("principal components need at least two columns")
	}

	var rows [][]float64
	for _, code := range data.Index() {
		row := data.Row(code)
		complete := true
		for _, v := range row {
			if frame.IsNull(v) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return nil, apperrors.NewAppValidationError("principal components need at least two complete rows")
	}

	x := mat.NewDense(len(rows), len(cols), nil)
	for i, row := range rows {
		x.SetRow(i, row)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, apperrors.NewAppValidationError("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	total := 0.0
	for _, v := range vars {
		total += v
	}
	_, k := vecs.Dims()
	res := &PCAResult{Columns: cols, Rows: len(rows)}
	for i := 0; i < k && i < len(vars); i++ {
		res.Components = append(res.Components, mat.Col(nil, i, &vecs))
		ratio := 0.0
		if total > 0 {
			ratio = vars[i] / total
		}
		res.ExplainedVariance = append(res.ExplainedVariance, ratio)
	}
	return res, nil
}
