package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/cachesync/internal/persister"
	"github.com/roach88/cachesync/internal/runner"
	"github.com/roach88/cachesync/internal/testutil"
)

// Result holds the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool

	// Trace is the ordered event log.
	Trace []TraceEvent

	// SaveTimesMS are the offsets of every save attempt.
	SaveTimesMS []int64

	// Failed counts save attempts that returned an error.
	Failed int

	// MaxConcurrent is the most saves ever in flight at once.
	MaxConcurrent int

	// FinalHandle is the ID of the handle stored in the cell at the end.
	FinalHandle string

	// Errors lists failed assertions.
	Errors []string
}

// harness is the state of one scenario run.
type harness struct {
	scenario *Scenario
	clock    *testutil.FakeClock
	runner   *runner.Runner
	spans    *tracetest.SpanRecorder
	seen     int
	saver    *traceSaver
	cell     *persister.Cell
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Each run builds a fresh clock, runner and persister chain, so results
// are reproducible. Run returns an error only if the scenario could not be
// executed; failed assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer provider.Shutdown(context.Background())

	h := &harness{
		scenario: scenario,
		clock:    testutil.NewFakeClock(),
		spans:    spans,
		result:   &Result{},
	}
	h.runner = runner.New(
		runner.WithLogger(logger),
		runner.WithTracer(provider.Tracer("harness")),
	)
	h.saver = newTraceSaver(h, scenario.FailSaves)

	opts := []persister.Option{
		persister.WithClock(h.clock),
		persister.WithIDGenerator(persister.NewSequenceGenerator("epoch")),
		persister.WithLogger(logger),
	}
	if scenario.WaitMS > 0 {
		opts = append(opts, persister.WithWait(ms(scenario.WaitMS)))
	}
	if scenario.MaxWaitMS > 0 {
		opts = append(opts, persister.WithMaxWait(ms(scenario.MaxWaitMS)))
	}
	h.cell = persister.NewCell(persister.New(h.runner, h.saver, opts...))

	ctx := context.Background()
	for _, step := range scenario.Steps {
		h.advanceTo(ctx, ms(step.AtMS))
		h.apply(ctx, step)
	}
	h.advanceTo(ctx, ms(scenario.UntilMS))

	h.result.FinalHandle = h.cell.Current().ID()
	h.result.MaxConcurrent = h.saver.maxConcurrent()
	h.record("end", fmt.Sprintf("saves=%d failed=%d handle=%s",
		len(h.result.SaveTimesMS), h.result.Failed, h.result.FinalHandle))

	evaluateAssertions(scenario.Assertions, h.result)
	h.result.Pass = len(h.result.Errors) == 0
	return h.result, nil
}

// advanceTo moves the clock to target one due timer at a time, draining
// the runner at every instant a timer fires.
func (h *harness) advanceTo(ctx context.Context, target time.Duration) {
	end := testutil.Epoch.Add(target)
	for {
		next, ok := h.clock.NextDeadline()
		if !ok || next.After(end) {
			break
		}
		h.clock.AdvanceTo(next)
		h.runner.Drain(ctx)
		h.collectSpans()
	}
	h.clock.AdvanceTo(end)
}

func (h *harness) apply(ctx context.Context, step Step) {
	switch step.Op {
	case OpTouch:
		err := h.cell.Touch(ctx)
		p := h.cell.Current()
		detail := p.ID()
		if p.Detached() {
			detail += " detached"
		} else if deadline, ok := p.Deadline(); ok {
			detail += fmt.Sprintf(" deadline=%d", deadline.Sub(testutil.Epoch).Milliseconds())
		}
		h.record("touch", withError(detail, err))

	case OpRun:
		p := h.cell.Current()
		err := p.Run(ctx)
		h.record("run", withError(p.ID(), err))

	case OpShutdown:
		h.record("shutdown", "")
		err := h.runner.Shutdown(ctx)
		h.collectSpans()
		if err != nil {
			h.record("shutdown", "error="+err.Error())
		}
	}
}

// collectSpans turns newly ended runner spans into "ran" events.
func (h *harness) collectSpans() {
	ended := h.spans.Ended()
	for _, span := range ended[h.seen:] {
		var id, reason string
		for _, kv := range span.Attributes() {
			switch kv.Key {
			case "cachesync.unit.id":
				id = kv.Value.AsString()
			case "cachesync.unit.reason":
				reason = kv.Value.AsString()
			}
		}
		status := "ok"
		if span.Status().Code == codes.Error {
			status = "error"
		}
		h.record("ran", fmt.Sprintf("%s reason=%s status=%s", id, reason, status))
	}
	h.seen = len(ended)
}

func (h *harness) record(kind, detail string) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		AtMS:   h.clock.Elapsed().Milliseconds(),
		Kind:   kind,
		Detail: detail,
	})
}

func withError(detail string, err error) string {
	if err == nil {
		return detail
	}
	return detail + " error=" + err.Error()
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
