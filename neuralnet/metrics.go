package neuralnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Accuracy reports the fraction of predictions that agree with binary
// targets after thresholding at 0.5. It is a companion signal to the loss
// for logging and convergence checks.
func Accuracy(pred, target tensor.Tensor) (float64, error) {
	if err := checkShapes(pred, target); err != nil {
		return 0, err
	}
	predictions, ok := pred.Data().([]float64)
	if !ok {
		return 0, errors.Wrap(ErrInvalidArgument, "accuracy requires float64 predictions")
	}
	targets, ok := target.Data().([]float64)
	if !ok {
		return 0, errors.Wrap(ErrInvalidArgument, "accuracy requires float64 targets")
	}

	correct := 0
	for i, p := range predictions {
		predicted := 0.0
		if p >= 0.5 {
			predicted = 1.0
		}
		if predicted == targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(predictions)), nil
}
