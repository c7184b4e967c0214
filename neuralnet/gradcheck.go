package neuralnet

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gorgonia.org/tensor"
)

// ErrGradientMismatch is returned by CheckGradient when the analytic and
// finite-difference gradients disagree beyond the tolerance.
var ErrGradientMismatch = errors.New("analytic and numeric gradients disagree")

// CheckGradient verifies that a variant's Backward is the derivative of its
// Calculate: it computes the central finite-difference gradient of the
// scalar loss at pred and compares it elementwise with the analytic
// gradient slot. Both built-in variants normalize Backward by samples and
// outputs, exactly the denominator of the full mean, so the two sides are
// directly comparable.
//
// The check runs Forward and Backward on l, overwriting its cached state.
// Predictions and targets must be float64 tensors.
func CheckGradient(l Loss, pred, target tensor.Tensor, tol float64) error {
	if l == nil {
		return errors.Wrap(ErrInvalidArgument, "nil loss")
	}
	if err := checkShapes(pred, target); err != nil {
		return err
	}
	base, ok := pred.Data().([]float64)
	if !ok {
		return errors.Wrap(ErrInvalidArgument, "gradient check requires float64 predictions")
	}

	if err := l.Backward(pred, target); err != nil {
		return err
	}
	analytic, ok := l.Gradient().Data().([]float64)
	if !ok {
		return errors.Wrap(ErrInvalidArgument, "gradient check requires a float64 gradient")
	}

	var evalErr error
	scalarLoss := func(x []float64) float64 {
		backing := make([]float64, len(x))
		copy(backing, x)
		probe := tensor.New(tensor.WithShape(pred.Shape()...), tensor.WithBacking(backing))
		v, err := l.Calculate(probe, target)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		return v
	}

	point := make([]float64, len(base))
	copy(point, base)
	numeric := fd.Gradient(nil, scalarLoss, point, &fd.Settings{Formula: fd.Central})
	if evalErr != nil {
		return evalErr
	}

	for i := range numeric {
		if math.Abs(numeric[i]-analytic[i]) > tol {
			return errors.Wrapf(ErrGradientMismatch,
				"element %d: numeric %g, analytic %g, tolerance %g", i, numeric[i], analytic[i], tol)
		}
	}
	return nil
}
