package frame

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsDuplicateCodes(t *testing.T) {
	_, err := New([]string{"KEN", "UGA", "KEN"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateKey))
}

func TestReindex(t *testing.T) {
	f := MustNew([]string{"KEN", "UGA", "TZA"})
	require.NoError(t, f.SetColumn("inflation", []float64{5, 7, 9}))

	out, err := f.Reindex([]string{"TZA", "RWA", "KEN"})
	require.NoError(t, err)

	assert.Equal(t, []string{"TZA", "RWA", "KEN"}, out.Index())
	col := out.Column("inflation")
	assert.Equal(t, 9.0, col[0])
	assert.True(t, math.IsNaN(col[1]))
	assert.Equal(t, 5.0, col[2])
}

func TestOuterJoin(t *testing.T) {
	a := MustNew([]string{"KEN", "UGA"})
	require.NoError(t, a.SetColumn("debt", []float64{1, 2}))
	b := MustNew([]string{"UGA", "SSD"})
	require.NoError(t, b.SetColumn("hunger", []float64{3, 4}))

	out, err := OuterJoin(a, b)
	require.NoError(t, err)

	assert.Equal(t, []string{"KEN", "UGA", "SSD"}, out.Index())
	assert.Equal(t, []string{"debt", "hunger"}, out.Columns())
	assert.True(t, math.IsNaN(out.Value("KEN", "hunger")))
	assert.Equal(t, 3.0, out.Value("UGA", "hunger"))
	assert.True(t, math.IsNaN(out.Value("SSD", "debt")))

	t.Run("repeated column", func(t *testing.T) {
		_, err := OuterJoin(a, a)
		assert.True(t, errors.Is(err, apperrors.ErrDuplicateKey))
	})
}

func TestRowMeansAndSort(t *testing.T) {
	f := MustNew([]string{"AAA", "BBB", "CCC", "DDD"})
	require.NoError(t, f.SetColumn("x", []float64{1, math.NaN(), 5, math.NaN()}))
	require.NoError(t, f.SetColumn("y", []float64{3, 4, math.NaN(), math.NaN()}))

	means := f.RowMeans()
	assert.Equal(t, 2.0, means[0])
	assert.Equal(t, 4.0, means[1])
	assert.Equal(t, 5.0, means[2])
	assert.True(t, math.IsNaN(means[3]))

	require.NoError(t, f.SetColumn("score", means))
	sorted, err := f.SortBy("score")
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC", "BBB", "AAA", "DDD"}, sorted.Index())
}

func TestCloneIsIndependent(t *testing.T) {
	f := MustNew([]string{"AAA"})
	require.NoError(t, f.SetColumn("x", []float64{1}))

	c := f.Clone()
	require.NoError(t, c.Set("AAA", "x", 99))

	assert.Equal(t, 1.0, f.Value("AAA", "x"))
	assert.Equal(t, 99.0, c.Value("AAA", "x"))
}

func TestRound(t *testing.T) {
	f := MustNew([]string{"AAA", "BBB"})
	require.NoError(t, f.SetColumn("score", []float64{12.345, math.NaN()}))

	r := f.Round(1)
	assert.Equal(t, 12.3, r.Value("AAA", "score"))
	assert.True(t, math.IsNaN(r.Value("BBB", "score")))
}

func TestDropColumn(t *testing.T) {
	f := MustNew([]string{"AAA"})
	require.NoError(t, f.SetColumn("a", []float64{1}))
	require.NoError(t, f.SetColumn("b", []float64{2}))

	f.DropColumn("a")
	assert.Equal(t, []string{"b"}, f.Columns())
	assert.False(t, f.Has("a"))
}
