// Command localattn benchmarks and checks the banded attention kernels.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	cobra.CheckErr(newCLI().ExecuteContext(context.Background()))
}

func newCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "localattn",
		Short: "Banded (sliding-window) attention kernels",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().String("config", "", "YAML engine configuration file")
	rootCmd.PersistentFlags().String("backend", "", "Backend to run on (cpu or webgpu); overrides the config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "localattn %s\n", version)
		},
	}

	rootCmd.AddCommand(newBenchCmd(), newCheckCmd(), newDumpCmd(), versionCmd)
	return rootCmd
}
