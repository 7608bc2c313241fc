package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cachesync/internal/harness"
)

// SimulationResult holds the outcome of one scenario.
type SimulationResult struct {
	Name   string               `json:"name" yaml:"name"`
	Pass   bool                 `json:"pass" yaml:"pass"`
	Trace  []harness.TraceEvent `json:"trace" yaml:"trace"`
	Errors []string             `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// SimulateResult holds every scenario run by one invocation.
type SimulateResult struct {
	Scenarios []SimulationResult `json:"scenarios" yaml:"scenarios"`
	Passed    int                `json:"passed" yaml:"passed"`
	Failed    int                `json:"failed" yaml:"failed"`
}

// Text renders each trace followed by its assertion failures.
func (r SimulateResult) Text() string {
	var b strings.Builder
	for _, s := range r.Scenarios {
		status := "PASS"
		if !s.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "=== %s %s\n", status, s.Name)
		b.WriteString(harness.FormatTrace(s.Trace))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed\n", r.Passed, r.Failed)
	return b.String()
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay touch scenarios against a simulated clock",
		Long: `Run YAML touch scenarios through the persister and runner with a
simulated clock and print the resulting trace.

Exit codes:
  0 - All scenario assertions held
  1 - One or more assertions failed
  2 - Command error (missing or invalid scenario file)

Example:
  cachesync simulate scenarios/ceiling.yaml
  cachesync simulate scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSimulate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	result := SimulateResult{Scenarios: []SimulationResult{}}

	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", path), err)
		}
		out.VerboseLog("running scenario %s", scenario.Name)

		res, err := harness.Run(scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to run %s", scenario.Name), err)
		}

		result.Scenarios = append(result.Scenarios, SimulationResult{
			Name:   scenario.Name,
			Pass:   res.Pass,
			Trace:  res.Trace,
			Errors: res.Errors,
		})
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
