package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/localattn/attention"
	"github.com/born-ml/localattn/internal/reference"
	"github.com/born-ml/localattn/tensor"
)

// dims are the problem sizes shared by bench and check.
type dims struct {
	Batch    int `json:"batch"`
	Heads    int `json:"heads"`
	Length   int `json:"length"`
	Features int `json:"features"`
	Window   int `json:"window"`
}

func (d dims) shape() tensor.Shape {
	return tensor.Shape{d.Batch, d.Heads, d.Length, d.Features}
}

func (d dims) bandShape() tensor.Shape {
	return tensor.Shape{d.Batch, d.Heads, d.Length, d.Window}
}

// validate rejects windows the reference cannot evaluate.
func (d dims) validate() error {
	if d.Window <= 0 || d.Window%2 != 0 || d.Window > d.Length {
		return errors.Wrapf(attention.ErrInvalidWindow, "window %d for sequence length %d", d.Window, d.Length)
	}
	return nil
}

func addDimFlags(cmd *cobra.Command, d dims) {
	cmd.Flags().Int("batch", d.Batch, "Batch size N")
	cmd.Flags().Int("heads", d.Heads, "Heads H")
	cmd.Flags().Int("length", d.Length, "Sequence length L")
	cmd.Flags().Int("features", d.Features, "Features per head E")
	cmd.Flags().Int("window", d.Window, "Even window width C")
}

func readDims(cmd *cobra.Command) dims {
	var d dims
	d.Batch, _ = cmd.Flags().GetInt("batch")
	d.Heads, _ = cmd.Flags().GetInt("heads")
	d.Length, _ = cmd.Flags().GetInt("length")
	d.Features, _ = cmd.Flags().GetInt("features")
	d.Window, _ = cmd.Flags().GetInt("window")
	return d
}

// inputs holds one randomly initialised problem.
type inputs struct {
	q, k, v, mask, keyLengths *tensor.RawTensor
	attn, gradScores, gradOut *tensor.RawTensor
}

func newInputs(d dims, seed int64) inputs {
	return inputs{
		q:          reference.Random(d.shape(), seed),
		k:          reference.Random(d.shape(), seed+1),
		v:          reference.Random(d.shape(), seed+2),
		mask:       reference.Random(tensor.Shape{d.Length, d.Length}, seed+3),
		keyLengths: reference.KeyLengths(d.Batch, d.Length),
		attn:       reference.Random(d.bandShape(), seed+4),
		gradScores: reference.Random(d.bandShape(), seed+5),
		gradOut:    reference.Random(d.shape(), seed+6),
	}
}

// operation runs one of the four public operations.
type operation struct {
	name string
	run  func(b attention.Backend, in inputs, window int) error
}

var operations = []operation{
	{"LocalDotProduct", func(b attention.Backend, in inputs, window int) error {
		_, err := attention.LocalDotProduct(b, in.q, in.k, in.mask, in.keyLengths, window)
		return err
	}},
	{"LocalDotBackward", func(b attention.Backend, in inputs, window int) error {
		_, _, err := attention.LocalDotBackward(b, in.q, in.k, in.keyLengths, in.gradScores, window)
		return err
	}},
	{"LocalWeightedAverage", func(b attention.Backend, in inputs, _ int) error {
		_, err := attention.LocalWeightedAverage(b, in.attn, in.v)
		return err
	}},
	{"LocalWeightedAverageBackward", func(b attention.Backend, in inputs, _ int) error {
		_, _, err := attention.LocalWeightedAverageBackward(b, in.attn, in.v, in.gradOut)
		return err
	}},
}

type benchResult struct {
	Operation string        `json:"operation"`
	Iters     int           `json:"iters"`
	Mean      time.Duration `json:"mean_ns"`
	Min       time.Duration `json:"min_ns"`
}

type benchReport struct {
	RunID        string        `json:"run_id"`
	Backend      string        `json:"backend"`
	Dims         dims          `json:"dims"`
	InputBytes   uint64        `json:"input_bytes"`
	ScratchBytes uint64        `json:"scratch_bytes,omitempty"`
	Results      []benchResult `json:"results"`
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the four banded attention operations",
		Args:  cobra.NoArgs,
		RunE:  benchHandler,
	}
	addDimFlags(cmd, dims{Batch: 1, Heads: 4, Length: 512, Features: 64, Window: 32})
	cmd.Flags().Int("iters", 5, "Timed iterations per operation")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func benchHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, release, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer release()

	d := readDims(cmd)
	iters, _ := cmd.Flags().GetInt("iters")
	if iters < 1 {
		return errors.Errorf("iters must be >= 1, got %d", iters)
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	in := newInputs(d, 1)
	report := benchReport{
		RunID:   uuid.NewString(),
		Backend: backend.Name(),
		Dims:    d,
		//nolint:gosec // G115: byte sizes are non-negative
		InputBytes: uint64(3*in.q.ByteSize() + in.mask.ByteSize()),
	}
	if s, ok := backend.(interface{ ScratchBytes(batchHeads, window int) int }); ok {
		//nolint:gosec // G115: byte sizes are non-negative
		report.ScratchBytes = uint64(s.ScratchBytes(d.Batch*d.Heads, d.Window))
	}

	for _, op := range operations {
		// Warm-up call validates the inputs and compiles GPU pipelines.
		if err := op.run(backend, in, d.Window); err != nil {
			return err
		}
		res := benchResult{Operation: op.name, Iters: iters}
		var total time.Duration
		for i := 0; i < iters; i++ {
			start := time.Now()
			if err := op.run(backend, in, d.Window); err != nil {
				return err
			}
			elapsed := time.Since(start)
			total += elapsed
			if i == 0 || elapsed < res.Min {
				res.Min = elapsed
			}
		}
		res.Mean = total / time.Duration(iters)
		klog.V(1).Infof("bench %s: mean %s", op.name, res.Mean)
		report.Results = append(report.Results, res)
	}

	if asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s on %s: N=%d H=%d L=%d E=%d C=%d, inputs %s",
		report.RunID, report.Backend, d.Batch, d.Heads, d.Length, d.Features, d.Window, humanize.Bytes(report.InputBytes))
	if report.ScratchBytes > 0 {
		fmt.Fprintf(w, ", scratch %s", humanize.Bytes(report.ScratchBytes))
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"OPERATION", "MEAN", "MIN", "ITERS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, r := range report.Results {
		table.Append([]string{r.Operation, r.Mean.String(), r.Min.String(), humanize.Comma(int64(r.Iters))})
	}
	table.Render()
	return nil
}
