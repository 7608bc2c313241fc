// Package harness runs persister scenarios against a deterministic clock
// and records what happened as a line-oriented trace.
//
// A scenario is a YAML file naming the debounce settings, a timeline of
// steps (touch, run, shutdown) and assertions over the resulting saves.
// The harness wires the real persister and runner together:
//
//   - testutil.FakeClock drives every timer, so traces are reproducible
//   - runner.Runner executes units via Drain on the harness goroutine
//   - runner spans are recorded with an in-memory span recorder and become
//     "ran" trace lines
//
// Between steps the clock advances one due timer at a time, and the runner
// queue is drained at each instant, so a save is stamped with the time its
// timer fired.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/ceiling.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
//
// Golden traces live in testdata/golden. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
