package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/attention"
	"github.com/born-ml/localattn/internal/reference"
	"github.com/born-ml/localattn/internal/serialization"
	"github.com/born-ml/localattn/tensor"
)

// Tensor names of a stored problem. Outputs are the reference results.
const (
	fixtureWindow = "window"

	nameQ, nameK, nameV, nameMask, nameKeyLengths = "q", "k", "v", "mask", "key_lengths"
	nameAttn, nameGradScores, nameGradOut         = "attn", "grad_scores", "grad_out"

	nameScores, nameGradQ, nameGradK = "scores", "grad_q", "grad_k"
	nameOut, nameGradAttn, nameGradV = "out", "grad_attn", "grad_v"
)

// fixture is one stored attention problem with its expected outputs.
type fixture struct {
	window   int
	in       inputs
	expected map[string]*tensor.RawTensor
}

// referenceFixture computes the expected outputs of in with the dense
// reference.
func referenceFixture(in inputs, window int) fixture {
	scores := reference.LocalDotProduct(in.q, in.k, in.mask, window)
	gq, gk := reference.LocalDotBackward(in.q, in.k, in.gradScores, window)
	out := reference.LocalWeightedAverage(in.attn, in.v)
	ga, gv := reference.LocalWeightedAverageBackward(in.attn, in.v, in.gradOut)
	return fixture{
		window: window,
		in:     in,
		expected: map[string]*tensor.RawTensor{
			nameScores: scores, nameGradQ: gq, nameGradK: gk,
			nameOut: out, nameGradAttn: ga, nameGradV: gv,
		},
	}
}

func (f fixture) file() serialization.File {
	tensors := map[string]*tensor.RawTensor{
		nameQ: f.in.q, nameK: f.in.k, nameV: f.in.v, nameMask: f.in.mask, nameKeyLengths: f.in.keyLengths,
		nameAttn: f.in.attn, nameGradScores: f.in.gradScores, nameGradOut: f.in.gradOut,
	}
	for name, t := range f.expected {
		tensors[name] = t
	}
	return serialization.File{
		Tensors:  tensors,
		Metadata: map[string]string{fixtureWindow: strconv.Itoa(f.window)},
	}
}

func loadFixture(path string) (fixture, error) {
	file, err := serialization.ReadFile(path)
	if err != nil {
		return fixture{}, err
	}
	window, err := strconv.Atoi(file.Metadata[fixtureWindow])
	if err != nil {
		return fixture{}, errors.Wrapf(err, "fixture %q: metadata %q", path, fixtureWindow)
	}

	get := func(name string) *tensor.RawTensor {
		if t, found := file.Tensors[name]; found {
			return t
		}
		if err == nil {
			err = errors.Errorf("fixture %q: missing tensor %q", path, name)
		}
		return nil
	}
	f := fixture{
		window: window,
		in: inputs{
			q: get(nameQ), k: get(nameK), v: get(nameV), mask: get(nameMask), keyLengths: get(nameKeyLengths),
			attn: get(nameAttn), gradScores: get(nameGradScores), gradOut: get(nameGradOut),
		},
		expected: map[string]*tensor.RawTensor{},
	}
	for _, name := range []string{nameScores, nameGradQ, nameGradK, nameOut, nameGradAttn, nameGradV} {
		f.expected[name] = get(name)
	}
	if err != nil {
		return fixture{}, err
	}
	if err := f.in.checkTypes(); err != nil {
		return fixture{}, errors.WithMessagef(err, "fixture %q", path)
	}
	return f, nil
}

// checkTypes verifies the dtype of every input: int64 key lengths and
// float32 for the rest.
func (in inputs) checkTypes() error {
	for name, t := range map[string]*tensor.RawTensor{
		nameQ: in.q, nameK: in.k, nameV: in.v, nameMask: in.mask,
		nameAttn: in.attn, nameGradScores: in.gradScores, nameGradOut: in.gradOut,
	} {
		if t.DType() != tensor.Float32 {
			return errors.Wrapf(tensor.ErrTypeMismatch, "tensor %q has dtype %s (wanted %s)", name, t.DType(), tensor.Float32)
		}
	}
	if in.keyLengths.DType() != tensor.Int64 {
		return errors.Wrapf(tensor.ErrTypeMismatch, "tensor %q has dtype %s (wanted %s)", nameKeyLengths, in.keyLengths.DType(), tensor.Int64)
	}
	return nil
}

// compare runs the four operations on f's inputs and reports the relative
// error of every output against the expected one. Result names are prefixed
// with source.
func (f fixture) compare(b attention.Backend, source string, tolerance float64) ([]checkResult, error) {
	in := f.in
	got := map[string]*tensor.RawTensor{}
	var err error

	if got[nameScores], err = attention.LocalDotProduct(b, in.q, in.k, in.mask, in.keyLengths, f.window); err != nil {
		return nil, err
	}
	if got[nameGradQ], got[nameGradK], err = attention.LocalDotBackward(b, in.q, in.k, in.keyLengths, in.gradScores, f.window); err != nil {
		return nil, err
	}
	if got[nameOut], err = attention.LocalWeightedAverage(b, in.attn, in.v); err != nil {
		return nil, err
	}
	if got[nameGradAttn], got[nameGradV], err = attention.LocalWeightedAverageBackward(b, in.attn, in.v, in.gradOut); err != nil {
		return nil, err
	}

	results := make([]checkResult, 0, len(got))
	for _, name := range []string{nameScores, nameGradQ, nameGradK, nameOut, nameGradAttn, nameGradV} {
		want := f.expected[name]
		if err := want.Check(tensor.Float32, got[name].Shape()...); err != nil {
			return nil, errors.WithMessagef(err, "%s %s", source, name)
		}
		results = append(results, checkResult{source + " " + name, reference.MaxRelError(got[name].AsFloat32(), want.AsFloat32()), tolerance})
	}
	return results, nil
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Write a random problem and its reference outputs as SafeTensors",
		Args:  cobra.ExactArgs(1),
		RunE:  dumpHandler,
	}
	addDimFlags(cmd, dims{Batch: 2, Heads: 2, Length: 70, Features: 40, Window: 8})
	cmd.Flags().Int64("seed", 1, "Seed of the random inputs")
	return cmd
}

func dumpHandler(cmd *cobra.Command, args []string) error {
	d := readDims(cmd)
	if err := d.validate(); err != nil {
		return err
	}
	seed, _ := cmd.Flags().GetInt64("seed")

	f := referenceFixture(newInputs(d, seed), d.Window)
	if err := serialization.WriteFile(args[0], f.file()); err != nil {
		return err
	}
	klog.V(1).Infof("dump: wrote %d tensors to %s", len(f.expected)+8, args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}
