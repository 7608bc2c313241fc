package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	AtMS   int64  `json:"at_ms" yaml:"at_ms"`
	Kind   string `json:"kind" yaml:"kind"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// String formats the event as "t=<ms> <kind> <detail>".
func (e TraceEvent) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("t=%d %s", e.AtMS, e.Kind)
	}
	return fmt.Sprintf("t=%d %s %s", e.AtMS, e.Kind, e.Detail)
}

// FormatTrace renders events one per line with a trailing newline.
func FormatTrace(events []TraceEvent) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
