package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterNilLowersToNil(t *testing.T) {
	var f *Filter
	qf, err := f.toQdrant()
	require.NoError(t, err)
	assert.Nil(t, qf)

	qf, err = (&Filter{}).toQdrant()
	require.NoError(t, err)
	assert.Nil(t, qf)
}

func TestFilterMatchConditions(t *testing.T) {
	f := MatchField("document_type", "norm").And("document_id", int64(42))

	qf, err := f.toQdrant()
	require.NoError(t, err)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 2)
	assert.Empty(t, qf.MustNot)
}

func TestFilterRangeCondition(t *testing.T) {
	gte := 0.5
	lte := 0.9
	f := (&Filter{}).AndRange("page_number", &gte, &lte)

	qf, err := f.toQdrant()
	require.NoError(t, err)
	require.Len(t, qf.Must, 1)

	rng := qf.Must[0].GetField().GetRange()
	require.NotNil(t, rng)
	assert.Equal(t, 0.5, *rng.Gte)
	assert.Equal(t, 0.9, *rng.Lte)
}

func TestFilterOpenEndedRange(t *testing.T) {
	gte := 2.0
	f := (&Filter{}).AndRange("chunk_index", &gte, nil)

	qf, err := f.toQdrant()
	require.NoError(t, err)

	rng := qf.Must[0].GetField().GetRange()
	require.NotNil(t, rng)
	assert.Equal(t, 2.0, *rng.Gte)
	assert.Nil(t, rng.Lte)
}

func TestFilterRejectsUnsupportedMatchType(t *testing.T) {
	f := MatchField("weights", []float64{1, 2})

	_, err := f.toQdrant()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported match value type")
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.2))
	assert.Equal(t, 1.0, clampScore(1.3))
	assert.Equal(t, 0.87, clampScore(0.87))
}
