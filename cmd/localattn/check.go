package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/localattn/attention"
	"github.com/born-ml/localattn/internal/reference"
)

// errCheckFailed is returned when a result exceeds its tolerance.
var errCheckFailed = errors.New("check failed")

// checkResult is one comparison of a backend output against a reference.
type checkResult struct {
	name      string
	err       float64
	tolerance float64
}

func (r checkResult) ok() bool {
	return r.err <= r.tolerance
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the backend against the dense reference and finite differences",
		Args:  cobra.NoArgs,
		RunE:  checkHandler,
	}
	addDimFlags(cmd, dims{Batch: 2, Heads: 2, Length: 70, Features: 40, Window: 8})
	cmd.Flags().Int64("seed", 1, "Seed of the random inputs")
	cmd.Flags().Float64("tolerance", 1e-4, "Maximum relative error against the dense reference")
	cmd.Flags().String("fixture", "", "Compare against the outputs stored in a SafeTensors file written by dump")
	return cmd
}

func checkHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, release, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer release()

	seed, _ := cmd.Flags().GetInt64("seed")
	tolerance, _ := cmd.Flags().GetFloat64("tolerance")

	var results []checkResult
	if path, _ := cmd.Flags().GetString("fixture"); path != "" {
		f, err := loadFixture(path)
		if err != nil {
			return err
		}
		if results, err = f.compare(backend, "fixture", tolerance); err != nil {
			return err
		}
	} else {
		d := readDims(cmd)
		if err := d.validate(); err != nil {
			return err
		}
		f := referenceFixture(newInputs(d, seed), d.Window)
		if results, err = f.compare(backend, "reference", tolerance); err != nil {
			return err
		}
	}
	gradResults, err := gradientChecks(backend, seed)
	if err != nil {
		return err
	}
	results = append(results, gradResults...)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"CHECK", "MAX REL ERROR", "TOLERANCE", "STATUS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	failed := 0
	for _, r := range results {
		status := "ok"
		if !r.ok() {
			status = "FAIL"
			failed++
		}
		table.Append([]string{r.name, fmt.Sprintf("%.3g", r.err), fmt.Sprintf("%.0e", r.tolerance), status})
	}
	table.Render()

	if failed > 0 {
		return errors.Wrapf(errCheckFailed, "%d of %d comparisons on %s", failed, len(results), backend.Name())
	}
	return nil
}

// gradientChecks compares both backward operations with central finite
// differences on a problem small enough to perturb every element.
func gradientChecks(b attention.Backend, seed int64) ([]checkResult, error) {
	const (
		eps       = 0.5 // every loss is linear in each perturbed element
		tolerance = 1e-3
	)
	d := dims{Batch: 1, Heads: 2, Length: 10, Features: 3, Window: 4}
	in := newInputs(d, seed)
	var results []checkResult
	var lossErr error

	dotLoss := func() float64 {
		scores, err := attention.LocalDotProduct(b, in.q, in.k, in.mask, in.keyLengths, d.Window)
		if err != nil {
			lossErr = err
			return 0
		}
		return reference.Dot(scores.AsFloat32(), in.gradScores.AsFloat32())
	}
	gq, gk, err := attention.LocalDotBackward(b, in.q, in.k, in.keyLengths, in.gradScores, d.Window)
	if err != nil {
		return nil, err
	}
	results = append(results,
		checkResult{"finite difference q", reference.MaxRelError64(gq.AsFloat32(), reference.NumericalGradient(dotLoss, in.q.AsFloat32(), eps)), tolerance},
		checkResult{"finite difference k", reference.MaxRelError64(gk.AsFloat32(), reference.NumericalGradient(dotLoss, in.k.AsFloat32(), eps)), tolerance},
	)

	avgLoss := func() float64 {
		out, err := attention.LocalWeightedAverage(b, in.attn, in.v)
		if err != nil {
			lossErr = err
			return 0
		}
		return reference.Dot(out.AsFloat32(), in.gradOut.AsFloat32())
	}
	ga, gv, err := attention.LocalWeightedAverageBackward(b, in.attn, in.v, in.gradOut)
	if err != nil {
		return nil, err
	}
	results = append(results,
		checkResult{"finite difference attn", reference.MaxRelError64(ga.AsFloat32(), reference.NumericalGradient(avgLoss, in.attn.AsFloat32(), eps)), tolerance},
		checkResult{"finite difference v", reference.MaxRelError64(gv.AsFloat32(), reference.NumericalGradient(avgLoss, in.v.AsFloat32(), eps)), tolerance},
	)

	return results, lossErr
}
