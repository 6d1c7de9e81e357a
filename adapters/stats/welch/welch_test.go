package welch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permscreen/domain/core"
)

func TestTTestKnownValues(t *testing.T) {
	// Classic textbook fixture: clearly separated groups
	a := []float64{27.5, 21.0, 19.0, 23.6, 17.0, 17.9, 16.9, 20.1, 21.9, 22.6, 23.1, 19.6, 19.0, 21.7, 21.4}
	b := []float64{27.1, 22.0, 20.8, 23.4, 23.4, 23.5, 25.8, 22.0, 24.8, 20.2, 21.9, 22.1, 22.9, 30.5, 31.2, 23.9, 19.8, 26.2, 26.8, 24.1}

	result, err := TTest(core.VariableKey("x"), a, b)
	require.NoError(t, err)

	// Reference values from scipy.stats.ttest_ind(equal_var=False)
	assert.InDelta(t, -3.3008, result.T, 1e-3)
	assert.InDelta(t, 31.6896, result.DF, 1e-3)
	assert.InDelta(t, 0.00239, result.PValue, 1e-4)
	assert.Equal(t, 15, result.NA)
	assert.Equal(t, 20, result.NB)
}

func TestTTestOmitsMissing(t *testing.T) {
	a := []float64{1, 2, 3, math.NaN()}
	b := []float64{math.NaN(), 4, 5, 6}

	result, err := TTest(core.VariableKey("x"), a, b)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NA)
	assert.Equal(t, 3, result.NB)
	assert.InDelta(t, 2.0, result.MeanA, 1e-12)
	assert.InDelta(t, 5.0, result.MeanB, 1e-12)
	assert.Less(t, result.T, 0.0)
}

func TestTTestDegenerateGroups(t *testing.T) {
	_, err := TTest(core.VariableKey("x"), []float64{1}, []float64{2, 3, 4})
	require.Error(t, err)
	assert.True(t, core.IsDegenerateGroup(err))

	_, err = TTest(core.VariableKey("x"), []float64{1, 2, 3}, []float64{math.NaN(), math.NaN(), 5})
	require.Error(t, err)
	assert.True(t, core.IsDegenerateGroup(err))
}

func TestTTestZeroVariance(t *testing.T) {
	_, err := TTest(core.VariableKey("x"), []float64{5, 5, 5}, []float64{5, 5, 5})
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))
}

func TestTTestNoDifference(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1.1, 2.1, 2.9, 4.0, 5.0}

	result, err := TTest(core.VariableKey("x"), a, b)
	require.NoError(t, err)
	assert.Greater(t, result.PValue, 0.5)
}
