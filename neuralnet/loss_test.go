package neuralnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var (
	_ Loss = (*BinaryCrossentropy)(nil)
	_ Loss = (*MeanSquaredError)(nil)
	_ Loss = (*GenericLoss)(nil)
)

// dense builds a float64 tensor for tests.
func dense(shape []int, data []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// squaredError is the elementwise (target-pred)^2, used to exercise the
// generic wrapper with an externally supplied formula.
func squaredError(pred, target tensor.Tensor) (tensor.Tensor, error) {
	diff, err := tensor.Sub(target, pred)
	if err != nil {
		return nil, err
	}
	return tensor.Mul(diff, diff)
}

// squaredErrorGrad is d/dpred of the mean of squaredError.
func squaredErrorGrad(dvalues, target tensor.Tensor) (tensor.Tensor, error) {
	diff, err := tensor.Sub(target, dvalues)
	if err != nil {
		return nil, err
	}
	raw, err := tensor.Mul(diff, -2.0)
	if err != nil {
		return nil, err
	}
	return tensor.Div(raw, float64(dvalues.Shape().TotalSize()))
}

func TestNewLossRequiresLossFunction(t *testing.T) {
	_, err := NewLoss(nil, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewLoss(nil, squaredErrorGrad)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewLoss(squaredError, nil)
	require.NoError(t, err)
}

func TestGenericLossCalculate(t *testing.T) {
	l, err := NewLoss(squaredError, nil)
	require.NoError(t, err)

	pred := dense([]int{1, 2}, []float64{1, 2})
	target := dense([]int{1, 2}, []float64{1, 0})

	got, err := l.Calculate(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-12) // mean of [0, 4]
}

func TestGenericLossMeanUsesCachedOutput(t *testing.T) {
	l, err := NewLoss(squaredError, nil)
	require.NoError(t, err)

	_, err = l.Mean()
	require.ErrorIs(t, err, ErrInvalidOperation)

	pred := dense([]int{1, 2}, []float64{1, 2})
	target := dense([]int{1, 2}, []float64{1, 0})
	_, err = l.Forward(pred, target)
	require.NoError(t, err)

	got, err := l.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-12)
}

func TestGenericLossBackwardUnconfigured(t *testing.T) {
	l, err := NewLoss(squaredError, nil)
	require.NoError(t, err)

	pred := dense([]int{1, 2}, []float64{1, 2})
	target := dense([]int{1, 2}, []float64{1, 0})
	err = l.Backward(pred, target)
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Nil(t, l.Gradient())
}

func TestGenericLossBackwardStoresGradient(t *testing.T) {
	l, err := NewLoss(squaredError, squaredErrorGrad)
	require.NoError(t, err)

	pred := dense([]int{1, 2}, []float64{1, 2})
	target := dense([]int{1, 2}, []float64{1, 0})

	require.NoError(t, l.Backward(pred, target))
	grad := l.Gradient()
	require.NotNil(t, grad)
	assert.InDeltaSlice(t, []float64{0, 2}, grad.Data().([]float64), 1e-12)

	// each Backward call overwrites the slot
	other := dense([]int{1, 2}, []float64{0, 0})
	require.NoError(t, l.Backward(other, target))
	assert.InDeltaSlice(t, []float64{-1, 0}, l.Gradient().Data().([]float64), 1e-12)
}

func TestGenericLossShapeMismatch(t *testing.T) {
	l, err := NewLoss(squaredError, squaredErrorGrad)
	require.NoError(t, err)

	pred := dense([]int{2, 2}, []float64{1, 2, 3, 4})
	target := dense([]int{1, 2}, []float64{1, 0})

	_, err = l.Calculate(pred, target)
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = l.Forward(pred, target)
	require.ErrorIs(t, err, ErrShapeMismatch)

	err = l.Backward(pred, target)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
