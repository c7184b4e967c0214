package neuralnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// MeanSquaredError is the squared-error loss for real-valued predictions.
type MeanSquaredError struct {
	lossState
}

// NewMeanSquaredError returns a ready-to-use mean squared error loss.
func NewMeanSquaredError() *MeanSquaredError {
	return &MeanSquaredError{}
}

// Forward computes (target-pred)^2 reduced by mean over the feature axes,
// yielding one loss per batch row with shape (batch,). The row array is
// cached as the variant's output and returned; Mean reduces it to the
// scalar batch loss.
func (m *MeanSquaredError) Forward(pred, target tensor.Tensor) (tensor.Tensor, error) {
	if err := checkShapes(pred, target); err != nil {
		return nil, err
	}
	shape := pred.Shape()
	if len(shape) < 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected a (batch, outputs) layout, got %v", shape)
	}

	diff, err := tensor.Sub(target, pred)
	if err != nil {
		return nil, errors.Wrap(err, "target - pred")
	}
	squared, err := tensor.Mul(diff, diff)
	if err != nil {
		return nil, errors.Wrap(err, "square difference")
	}

	featureAxes := make([]int, 0, len(shape)-1)
	for axis := 1; axis < len(shape); axis++ {
		featureAxes = append(featureAxes, axis)
	}
	rowSums, err := tensor.Sum(squared, featureAxes...)
	if err != nil {
		return nil, errors.Wrap(err, "sum over feature axes")
	}
	features := shape.TotalSize() / shape[0]
	rows, err := tensor.Div(rowSums, float64(features))
	if err != nil {
		return nil, errors.Wrap(err, "mean over feature axes")
	}
	// flatten to one loss per batch row
	if err := rows.Reshape(shape[0]); err != nil {
		return nil, errors.Wrap(err, "flatten row losses")
	}

	m.output = rows
	return rows, nil
}

// Calculate computes Forward and returns the mean of the per-row losses,
// the overall scalar batch loss.
func (m *MeanSquaredError) Calculate(pred, target tensor.Tensor) (float64, error) {
	rows, err := m.Forward(pred, target)
	if err != nil {
		return 0, err
	}
	return meanOf(rows)
}

// Backward computes the analytic gradient of the squared error,
//
//	-2*(target - dvalues) / outputs / samples
//
// and stores it in the gradient slot.
func (m *MeanSquaredError) Backward(dvalues, target tensor.Tensor) error {
	if err := checkShapes(dvalues, target); err != nil {
		return err
	}
	samples, outputs, err := batchDims(dvalues)
	if err != nil {
		return err
	}

	diff, err := tensor.Sub(target, dvalues)
	if err != nil {
		return errors.Wrap(err, "target - dvalues")
	}
	raw, err := tensor.Mul(diff, -2.0)
	if err != nil {
		return errors.Wrap(err, "scale difference")
	}

	dinputs, err := scaleGradient(raw, samples, outputs)
	if err != nil {
		return err
	}
	m.dinputs = dinputs
	return nil
}
