package neuralnet

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// epsilon bounds probability-like values away from the domain edges of log
// and division: clipped values stay inside [epsilon, 1-epsilon].
const epsilon = 1e-7

// Contract violations reported by loss operations. They indicate misuse by
// the surrounding training loop, not recoverable runtime conditions.
var (
	// ErrShapeMismatch is returned when prediction and target shapes differ.
	ErrShapeMismatch = errors.New("shape mismatch between predictions and targets")
	// ErrInvalidArgument is returned when a constructor or helper receives an unusable value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidOperation is returned when an operation is invoked in a state that cannot serve it.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Loss is the contract shared by every loss variant. A variant owns two
// mutable slots: the per-sample losses cached by Forward and the gradient
// stored by Backward. One training step owns an instance at a time; callers
// evaluating the same variant concurrently must use one instance per
// goroutine or serialize access.
type Loss interface {
	// Forward computes the variant's per-sample loss array for pred against
	// target and caches it. Re-entering Forward replaces the cached array.
	Forward(pred, target tensor.Tensor) (tensor.Tensor, error)
	// Calculate runs Forward and reduces the per-sample losses to their
	// arithmetic mean, the scalar batch loss.
	Calculate(pred, target tensor.Tensor) (float64, error)
	// Mean reduces the losses cached by the most recent Forward to the
	// scalar batch loss. Calling it before any Forward returns
	// ErrInvalidOperation.
	Mean() (float64, error)
	// Backward computes dL/dpred from dvalues and target and stores it in
	// the gradient slot. Each call overwrites the previous gradient.
	Backward(dvalues, target tensor.Tensor) error
	// Gradient returns the slot populated by the most recent Backward,
	// shaped like the dvalues it was derived from. Nil before the first
	// Backward call.
	Gradient() tensor.Tensor
}

// lossState holds the two mutable slots every variant carries.
type lossState struct {
	output  tensor.Tensor
	dinputs tensor.Tensor
}

func (s *lossState) Mean() (float64, error) {
	if s.output == nil {
		return 0, errors.Wrap(ErrInvalidOperation, "Mean called before Forward")
	}
	return meanOf(s.output)
}

func (s *lossState) Gradient() tensor.Tensor { return s.dinputs }

// LossFunc computes a per-sample loss array from predictions and targets.
type LossFunc func(pred, target tensor.Tensor) (tensor.Tensor, error)

// GradFunc computes the gradient of a loss with respect to its predictions.
type GradFunc func(dvalues, target tensor.Tensor) (tensor.Tensor, error)

// GenericLoss adapts an externally supplied loss function, and optionally
// its gradient, into the Loss contract.
type GenericLoss struct {
	lossState
	fn   LossFunc
	grad GradFunc
}

// NewLoss wraps fn and grad into a Loss. fn is required; grad may be nil,
// in which case Backward reports ErrInvalidOperation.
func NewLoss(fn LossFunc, grad GradFunc) (*GenericLoss, error) {
	if fn == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "loss function must not be nil")
	}
	return &GenericLoss{fn: fn, grad: grad}, nil
}

// Forward invokes the wrapped loss function and caches its result.
func (g *GenericLoss) Forward(pred, target tensor.Tensor) (tensor.Tensor, error) {
	if err := checkShapes(pred, target); err != nil {
		return nil, err
	}
	losses, err := g.fn(pred, target)
	if err != nil {
		return nil, errors.Wrap(err, "wrapped loss function")
	}
	g.output = losses
	return losses, nil
}

// Calculate invokes the wrapped loss function and returns the mean of the
// per-sample losses it produced.
func (g *GenericLoss) Calculate(pred, target tensor.Tensor) (float64, error) {
	losses, err := g.Forward(pred, target)
	if err != nil {
		return 0, err
	}
	return meanOf(losses)
}

// Backward invokes the wrapped gradient function and stores its result.
func (g *GenericLoss) Backward(dvalues, target tensor.Tensor) error {
	if g.grad == nil {
		return errors.Wrap(ErrInvalidOperation, "no gradient function configured")
	}
	if err := checkShapes(dvalues, target); err != nil {
		return err
	}
	dinputs, err := g.grad(dvalues, target)
	if err != nil {
		return errors.Wrap(err, "wrapped gradient function")
	}
	g.dinputs = dinputs
	return nil
}

// checkShapes enforces exact shape equality; compatible-but-unequal shapes
// are never silently broadcast.
func checkShapes(pred, target tensor.Tensor) error {
	if pred == nil || target == nil {
		return errors.Wrap(ErrInvalidArgument, "nil tensor")
	}
	if !pred.Shape().Eq(target.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "predictions %v, targets %v", pred.Shape(), target.Shape())
	}
	return nil
}

// batchDims extracts the sample and output-feature counts from a
// (batch, outputs, ...) shaped tensor.
func batchDims(t tensor.Tensor) (samples, outputs int, err error) {
	shape := t.Shape()
	if len(shape) < 2 {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "gradient requires a (batch, outputs) layout, got %v", shape)
	}
	return shape[0], shape[1], nil
}

// scaleGradient divides a raw gradient by the output-feature count and the
// sample count so its magnitude is invariant to batch size and output width.
func scaleGradient(raw tensor.Tensor, samples, outputs int) (tensor.Tensor, error) {
	scaled, err := tensor.Div(raw, float64(outputs))
	if err != nil {
		return nil, errors.Wrap(err, "divide by outputs")
	}
	scaled, err = tensor.Div(scaled, float64(samples))
	if err != nil {
		return nil, errors.Wrap(err, "divide by samples")
	}
	return scaled, nil
}

// meanOf reduces a loss array to the arithmetic mean of all its elements.
func meanOf(t tensor.Tensor) (float64, error) {
	if d, ok := t.(*tensor.Dense); ok {
		sum, err := d.Sum()
		if err != nil {
			return 0, errors.Wrap(err, "mean losses")
		}
		v, err := scalarOf(sum)
		if err != nil {
			return 0, err
		}
		return v / float64(d.Shape().TotalSize()), nil
	}
	// non-dense engine tensors only expose Sum
	total, err := tensor.Sum(t)
	if err != nil {
		return 0, errors.Wrap(err, "sum losses")
	}
	v, err := scalarOf(total)
	if err != nil {
		return 0, err
	}
	return v / float64(t.Shape().TotalSize()), nil
}

// scalarOf unpacks a fully reduced tensor into a float64.
func scalarOf(t tensor.Tensor) (float64, error) {
	switch v := t.Data().(type) {
	case float64:
		return v, nil
	case []float64:
		if len(v) == 1 {
			return v[0], nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "expected a float64 scalar reduction, got shape %v", t.Shape())
}
