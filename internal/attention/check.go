package attention

import (
	"github.com/pkg/errors"

	"github.com/born-ml/localattn/internal/tensor"
)

// checkWindow requires an even window in (0, length].
func checkWindow(window, length int) error {
	if window <= 0 || window%2 != 0 {
		return errors.Wrapf(ErrInvalidWindow, "window %d must be even and positive", window)
	}
	if window > length {
		return errors.Wrapf(ErrInvalidWindow, "window %d exceeds sequence length %d", window, length)
	}
	return nil
}

// checkSequence requires a float32 (N, H, L, E) tensor.
func checkSequence(name string, x *tensor.RawTensor) error {
	if err := x.Check(tensor.Float32, -1, -1, -1, -1); err != nil {
		return errors.WithMessage(err, name)
	}
	return nil
}

// checkKeyLengths requires an int64 tensor of shape (N) or (N, H).
func checkKeyLengths(keyLengths *tensor.RawTensor, batch, heads int) error {
	if keyLengths == nil {
		return errors.Wrap(tensor.ErrShapeMismatch, "keyLengths is nil")
	}
	if keyLengths.Shape().Rank() == 2 {
		return errors.WithMessage(keyLengths.Check(tensor.Int64, batch, heads), "keyLengths")
	}
	return errors.WithMessage(keyLengths.Check(tensor.Int64, batch), "keyLengths")
}

func checkDotInputs(q, k, keyLengths *tensor.RawTensor, window int) error {
	if err := checkSequence("q", q); err != nil {
		return err
	}
	s := q.Shape()
	if err := k.Check(tensor.Float32, s...); err != nil {
		return errors.WithMessage(err, "k")
	}
	if err := checkKeyLengths(keyLengths, s[0], s[1]); err != nil {
		return err
	}
	return checkWindow(window, s[2])
}

func checkAverageInputs(attn, v *tensor.RawTensor) error {
	if err := checkSequence("v", v); err != nil {
		return err
	}
	s := v.Shape()
	if err := attn.Check(tensor.Float32, s[0], s[1], s[2], -1); err != nil {
		return errors.WithMessage(err, "attn")
	}
	return checkWindow(attn.Shape()[3], s[2])
}
