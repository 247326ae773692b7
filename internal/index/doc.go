// Package index builds the composite country index from its indicators.
//
// Data moves through three levels:
//
//  1. Indicator: one measured quantity keyed by ISO-3166 alpha-3 code. It
//     validates the raw table (iso_code, value and an optional date),
//     drops unrecognised codes and conforms the rows to a fixed country
//     list when one is given.
//  2. Dimension: a named group of indicators pivoted into a wide table, one
//     row per country and one column per indicator.
//  3. Index: the outer join of every dimension's wide table, scored.
//
// # Pipeline
//
// Compute runs four phases in order:
//
//   - rescale every indicator with one scaler, always starting from the
//     raw values
//   - impute missing cells of the assembled wide table
//   - negate the columns of indicators where more is better, so that a
//     larger value is worse in every column
//   - optionally average each row into a score and sort countries
//     worst-first
//
// The aggregate table is reassembled from the dimensions on every run, so
// running Compute twice never flips a column back.
//
// # Diagnostics
//
// CheckCollinearity, CheckMissingData, CheckZeros and CheckOutliers audit
// the data without changing it. TestStability and TuneNeighbors work on
// clones and never mutate the receiver: the first withholds a sample of
// countries and reports how far each country's rank moves when its values
// are imputed from its income group; the second masks known values and
// measures how well k-nearest-neighbour imputation recovers them.
// PCALoadings reports principal component loadings of the complete rows.
//
// # Usage Example
//
//	food, err := index.NewIndicator(df, "Insufficient food consumption",
//	    index.WithCountries(study),
//	    index.WithFillValue(0),
//	)
//	if err != nil {
//	    return err
//	}
//	dim, err := index.NewDimension("Food", food, inflation)
//	if err != nil {
//	    return err
//	}
//	ix, err := index.New([]*index.Dimension{dim, debt})
//	if err != nil {
//	    return err
//	}
//	scores, err := ix.Compute(ctx, index.ComputeOptions{
//	    Scaler:    scaling.NewStandard(),
//	    Imputer:   imputation.KNN{Neighbors: 10},
//	    Summarize: true,
//	})
package index
