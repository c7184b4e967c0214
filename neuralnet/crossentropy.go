package neuralnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// BinaryCrossentropy is the log-loss for probability predictions against
// binary targets. Predictions are clipped into [epsilon, 1-epsilon] before
// every log and division, so saturated predictions never produce infinities.
type BinaryCrossentropy struct {
	lossState
}

// NewBinaryCrossentropy returns a ready-to-use binary cross-entropy loss.
func NewBinaryCrossentropy() *BinaryCrossentropy {
	return &BinaryCrossentropy{}
}

// Forward computes the per-element log-loss
//
//	-(target*log(pred) + (1-target)*log(1-pred))
//
// on clipped predictions and caches it as the variant's output.
func (b *BinaryCrossentropy) Forward(pred, target tensor.Tensor) (tensor.Tensor, error) {
	if err := checkShapes(pred, target); err != nil {
		return nil, err
	}

	clipped, err := tensor.Clamp(pred, epsilon, 1-epsilon)
	if err != nil {
		return nil, errors.Wrap(err, "clip predictions")
	}
	logPred, err := tensor.Log(clipped)
	if err != nil {
		return nil, errors.Wrap(err, "log predictions")
	}
	truePart, err := tensor.Mul(target, logPred)
	if err != nil {
		return nil, errors.Wrap(err, "target * log(pred)")
	}

	complTarget, err := tensor.Sub(1.0, target)
	if err != nil {
		return nil, errors.Wrap(err, "1 - target")
	}
	complPred, err := tensor.Sub(1.0, clipped)
	if err != nil {
		return nil, errors.Wrap(err, "1 - pred")
	}
	logCompl, err := tensor.Log(complPred)
	if err != nil {
		return nil, errors.Wrap(err, "log(1 - pred)")
	}
	falsePart, err := tensor.Mul(complTarget, logCompl)
	if err != nil {
		return nil, errors.Wrap(err, "(1 - target) * log(1 - pred)")
	}

	likelihood, err := tensor.Add(truePart, falsePart)
	if err != nil {
		return nil, errors.Wrap(err, "combine likelihood terms")
	}
	losses, err := tensor.Neg(likelihood)
	if err != nil {
		return nil, errors.Wrap(err, "negate likelihood")
	}

	b.output = losses
	return losses, nil
}

// Calculate computes Forward and returns the mean loss over all elements.
func (b *BinaryCrossentropy) Calculate(pred, target tensor.Tensor) (float64, error) {
	losses, err := b.Forward(pred, target)
	if err != nil {
		return 0, err
	}
	return meanOf(losses)
}

// Backward computes the analytic gradient of the log-loss,
//
//	-(target/dvalues - (1-target)/(1-dvalues)) / outputs / samples
//
// on clipped dvalues, and stores it in the gradient slot.
func (b *BinaryCrossentropy) Backward(dvalues, target tensor.Tensor) error {
	if err := checkShapes(dvalues, target); err != nil {
		return err
	}
	samples, outputs, err := batchDims(dvalues)
	if err != nil {
		return err
	}

	// clip to prevent division by zero
	clipped, err := tensor.Clamp(dvalues, epsilon, 1-epsilon)
	if err != nil {
		return errors.Wrap(err, "clip dvalues")
	}
	truePart, err := tensor.Div(target, clipped)
	if err != nil {
		return errors.Wrap(err, "target / dvalues")
	}
	complTarget, err := tensor.Sub(1.0, target)
	if err != nil {
		return errors.Wrap(err, "1 - target")
	}
	complValues, err := tensor.Sub(1.0, clipped)
	if err != nil {
		return errors.Wrap(err, "1 - dvalues")
	}
	falsePart, err := tensor.Div(complTarget, complValues)
	if err != nil {
		return errors.Wrap(err, "(1 - target) / (1 - dvalues)")
	}
	diff, err := tensor.Sub(truePart, falsePart)
	if err != nil {
		return errors.Wrap(err, "combine gradient terms")
	}
	raw, err := tensor.Neg(diff)
	if err != nil {
		return errors.Wrap(err, "negate gradient")
	}

	dinputs, err := scaleGradient(raw, samples, outputs)
	if err != nil {
		return err
	}
	b.dinputs = dinputs
	return nil
}
