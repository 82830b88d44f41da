package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	capacityOverride  uint64
	alignmentOverride uint64
	suggest           bool
	showBarriers      bool
	detailed          bool
	jsonOut           bool
	logViolations     bool
)

var rootCmd = &cobra.Command{
	Use:   "heapplan <script>",
	Short: "Plan the size of a transient aliased heap from a frame script",
	Long: `heapplan replays a JSON frame script of attachment activations and deactivations
against a transient aliased heap. It reports where each attachment was placed, the
high water mark of the frame, and optionally the smallest heap that would have held it.

Example:
  heapplan frame.json
  heapplan frame.json --capacity 67108864 --json --detailed
  heapplan frame.json --suggest
  heapplan frame.json --barriers`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd.OutOrStdout(), args[0])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().Uint64Var(&capacityOverride, "capacity", 0, "Heap capacity in bytes, overriding the script")
	rootCmd.Flags().Uint64Var(&alignmentOverride, "alignment", 0, "Heap alignment in bytes, overriding the script")
	rootCmd.Flags().BoolVar(&suggest, "suggest", false, "Report the smallest capacity that holds the frame")
	rootCmd.Flags().BoolVar(&showBarriers, "barriers", false, "Place resources for real and list the aliasing barriers")
	rootCmd.Flags().BoolVar(&detailed, "detailed", false, "Include every attachment and the allocator layout in JSON output")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.Flags().BoolVarP(&logViolations, "log", "l", false, "Log protocol violations to stderr")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resetFlags returns every flag to its default value
func resetFlags() {
	capacityOverride = 0
	alignmentOverride = 0
	suggest = false
	showBarriers = false
	detailed = false
	jsonOut = false
	logViolations = false
}
