// Package attention is the entry point for banded (sliding-window) attention.
//
// Every operation validates ranks, dimensions, dtypes and the window against
// each other and returns an error before any kernel is launched. The
// backend then runs the blocked band kernels on already validated inputs.
package attention

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/internal/tensor"
)

// ErrInvalidWindow reports a window that is odd, non-positive or longer
// than the sequence.
var ErrInvalidWindow = errors.New("invalid window")

// Backend runs the four banded attention kernels. Implementations may panic
// on invalid inputs; the package-level functions validate first.
type Backend interface {
	tensor.Backend

	LocalDotProduct(q, k, mask, keyLengths *tensor.RawTensor, window int) *tensor.RawTensor
	LocalDotBackward(q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor)
	LocalWeightedAverage(attn, v *tensor.RawTensor) *tensor.RawTensor
	LocalWeightedAverageBackward(attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor)
}

// LocalDotProduct returns the banded scores
//
//	scores[n, h, l, k] = q[n, h, l] . k[n, h, l-C/2+k] + mask[l, l-C/2+k]
//
// of shape (N, H, L, C), with -Inf where the key lies outside [0, L).
func LocalDotProduct(b Backend, q, k, mask, keyLengths *tensor.RawTensor, window int) (*tensor.RawTensor, error) {
	if err := checkDotInputs(q, k, keyLengths, window); err != nil {
		return nil, errors.WithMessage(err, "LocalDotProduct")
	}
	length := q.Shape()[2]
	if err := mask.Check(tensor.Float32, length, length); err != nil {
		return nil, errors.WithMessage(err, "LocalDotProduct: mask")
	}
	klog.V(2).Infof("attention: LocalDotProduct on %s q=%v C=%d", b.Name(), q.Shape(), window)
	return b.LocalDotProduct(q, k, mask, keyLengths, window), nil
}

// LocalDotBackward returns the gradients of LocalDotProduct with respect to
// q and k for the upstream gradient gradScores of shape (N, H, L, C).
func LocalDotBackward(b Backend, q, k, keyLengths, gradScores *tensor.RawTensor, window int) (gradQ, gradK *tensor.RawTensor, err error) {
	if err = checkDotInputs(q, k, keyLengths, window); err != nil {
		return nil, nil, errors.WithMessage(err, "LocalDotBackward")
	}
	s := q.Shape()
	if err = gradScores.Check(tensor.Float32, s[0], s[1], s[2], window); err != nil {
		return nil, nil, errors.WithMessage(err, "LocalDotBackward: gradScores")
	}
	klog.V(2).Infof("attention: LocalDotBackward on %s q=%v C=%d", b.Name(), s, window)
	gradQ, gradK = b.LocalDotBackward(q, k, keyLengths, gradScores, window)
	return gradQ, gradK, nil
}

// LocalWeightedAverage returns
//
//	out[n, h, l, e] = sum_k attn[n, h, l, k] * v[n, h, l-C/2+k, e]
//
// of shape (N, H, L, E). The window C is the last dimension of attn.
func LocalWeightedAverage(b Backend, attn, v *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := checkAverageInputs(attn, v); err != nil {
		return nil, errors.WithMessage(err, "LocalWeightedAverage")
	}
	klog.V(2).Infof("attention: LocalWeightedAverage on %s v=%v C=%d", b.Name(), v.Shape(), attn.Shape()[3])
	return b.LocalWeightedAverage(attn, v), nil
}

// LocalWeightedAverageBackward returns the gradients of LocalWeightedAverage
// with respect to attn and v for the upstream gradient gradOut of shape
// (N, H, L, E).
func LocalWeightedAverageBackward(b Backend, attn, v, gradOut *tensor.RawTensor) (gradAttn, gradV *tensor.RawTensor, err error) {
	if err = checkAverageInputs(attn, v); err != nil {
		return nil, nil, errors.WithMessage(err, "LocalWeightedAverageBackward")
	}
	s := v.Shape()
	if err = gradOut.Check(tensor.Float32, s...); err != nil {
		return nil, nil, errors.WithMessage(err, "LocalWeightedAverageBackward: gradOut")
	}
	klog.V(2).Infof("attention: LocalWeightedAverageBackward on %s v=%v C=%d", b.Name(), s, attn.Shape()[3])
	gradAttn, gradV = b.LocalWeightedAverageBackward(attn, v, gradOut)
	return gradAttn, gradV, nil
}
