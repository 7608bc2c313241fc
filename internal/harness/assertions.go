package harness

import (
	"fmt"
	"slices"
)

// evaluateAssertions appends a message to result.Errors for every
// assertion that does not hold.
func evaluateAssertions(assertions []Assertion, result *Result) {
	for i, a := range assertions {
		if err := evaluateAssertion(a, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
}

func evaluateAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertSaveCount:
		if got := len(result.SaveTimesMS); got != a.Count {
			return fmt.Errorf("expected %d saves, got %d", a.Count, got)
		}
	case AssertFailedCount:
		if result.Failed != a.Count {
			return fmt.Errorf("expected %d failed saves, got %d", a.Count, result.Failed)
		}
	case AssertSaveTimes:
		want := make([]int64, len(a.TimesMS))
		for i, t := range a.TimesMS {
			want[i] = int64(t)
		}
		if !slices.Equal(want, result.SaveTimesMS) {
			return fmt.Errorf("expected saves at %v, got %v", want, result.SaveTimesMS)
		}
	case AssertMaxConcurrent:
		if result.MaxConcurrent > a.Count {
			return fmt.Errorf("expected at most %d concurrent saves, got %d", a.Count, result.MaxConcurrent)
		}
	case AssertFinalHandle:
		if result.FinalHandle != a.Handle {
			return fmt.Errorf("expected final handle %q, got %q", a.Handle, result.FinalHandle)
		}
	default:
		return fmt.Errorf("unknown assertion type")
	}
	return nil
}
