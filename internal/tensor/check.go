package tensor

import (
	"github.com/pkg/errors"
)

// Contract violations detected before any kernel launch.
var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrTypeMismatch  = errors.New("type mismatch")
)

// CheckDims checks that the shape has the given dimensions and rank. A value
// of -1 in dimensions means it can take any value and is not checked.
//
// The returned error wraps ErrShapeMismatch.
func (s Shape) CheckDims(dimensions ...int) error {
	if s.Rank() != len(dimensions) {
		return errors.Wrapf(ErrShapeMismatch, "shape %v has incompatible rank %d (wanted %d)", s, s.Rank(), len(dimensions))
	}
	for ii, wantDim := range dimensions {
		if wantDim != -1 && s[ii] != wantDim {
			return errors.Wrapf(ErrShapeMismatch, "shape %v axis %d has dimension %d, wanted %d (shape wanted=%v)",
				s, ii, s[ii], wantDim, dimensions)
		}
	}
	return nil
}

// Check verifies the tensor's dtype and dimensions. A nil tensor fails with
// ErrShapeMismatch.
func (r *RawTensor) Check(dtype DataType, dimensions ...int) error {
	if r == nil {
		return errors.Wrap(ErrShapeMismatch, "tensor is nil")
	}
	if r.dtype != dtype {
		return errors.Wrapf(ErrTypeMismatch, "tensor of shape %v has dtype %s (wanted %s)", r.shape, r.dtype, dtype)
	}
	return r.shape.CheckDims(dimensions...)
}
