package forecast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(i)
	}
	return s
}

func TestMakeWindowsCount(t *testing.T) {
	ds, err := MakeWindows(seq(15), 10, 1)
	require.NoError(t, err)
	defer ds.Release()

	require.Equal(t, 5, ds.Len())
	require.Equal(t, seq(15)[0:10], ds.Inputs[0])
	require.Equal(t, []float64{10}, ds.Targets[0])
	require.Equal(t, seq(15)[4:14], ds.Inputs[4])
	require.Equal(t, []float64{14}, ds.Targets[4])
}

func TestMakeWindowsMultiStepHorizon(t *testing.T) {
	ds, err := MakeWindows(seq(20), 10, 5)
	require.NoError(t, err)
	defer ds.Release()

	// count = len - l - h + 1
	require.Equal(t, 6, ds.Len())
	require.Len(t, ds.Targets[0], 5)
	require.Equal(t, []float64{10, 11, 12, 13, 14}, ds.Targets[0])
}

func TestMakeWindowsInsufficient(t *testing.T) {
	_, err := MakeWindows(seq(10), 10, 1)
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 11, insufficient.Required)
	require.Equal(t, 10, insufficient.Actual)
}

func TestMakeWindowsRejectsBadShape(t *testing.T) {
	var invalid *InvalidInputError
	_, err := MakeWindows(seq(20), 0, 1)
	require.ErrorAs(t, err, &invalid)
	_, err = MakeWindows(seq(20), 10, 0)
	require.ErrorAs(t, err, &invalid)
}

func TestSplitKeepsMostRecentForValidation(t *testing.T) {
	ds, err := MakeWindows(seq(30), 10, 1)
	require.NoError(t, err)
	defer ds.Release()

	train, val := ds.Split(0.2)
	require.Equal(t, ds.Len(), train.Len()+val.Len())
	require.GreaterOrEqual(t, val.Len(), 1)
	// Validation windows are the temporal suffix.
	require.Equal(t, ds.Inputs[train.Len()], val.Inputs[0])
}

func TestSplitAlwaysYieldsValidationSample(t *testing.T) {
	ds, err := MakeWindows(seq(12), 10, 1)
	require.NoError(t, err)
	defer ds.Release()

	train, val := ds.Split(0.2)
	require.Equal(t, 1, val.Len())
	require.Equal(t, 1, train.Len())
}

func TestReleaseIsIdempotentAndTracksHandles(t *testing.T) {
	before := LiveHandles()
	ds, err := MakeWindows(seq(15), 10, 1)
	require.NoError(t, err)
	require.Equal(t, before+1, LiveHandles())

	// Split views hold no handles of their own.
	train, val := ds.Split(0.2)
	require.Equal(t, before+1, LiveHandles())
	train.Release()
	val.Release()
	require.Equal(t, before+1, LiveHandles())

	ds.Release()
	require.Equal(t, before, LiveHandles())
	ds.Release()
	require.Equal(t, before, LiveHandles())
}
