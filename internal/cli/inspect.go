package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cachesync/internal/artifact"
	"github.com/roach88/cachesync/internal/store"
)

// InspectResult is the newest snapshot of an artifact.
type InspectResult struct {
	Artifact string            `json:"artifact" yaml:"artifact"`
	Seq      int64             `json:"seq" yaml:"seq"`
	Version  int64             `json:"version" yaml:"version"`
	Checksum string            `json:"checksum" yaml:"checksum"`
	Verified bool              `json:"verified" yaml:"verified"`
	SavedAt  time.Time         `json:"saved_at" yaml:"saved_at"`
	Entries  map[string]string `json:"entries" yaml:"entries"`
}

// Text renders metadata followed by one key=value line per entry.
func (r InspectResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "artifact %s seq %d version %d (%d entries)\n", r.Artifact, r.Seq, r.Version, len(r.Entries))
	fmt.Fprintf(&b, "saved %s checksum %s", r.SavedAt.Format(time.RFC3339), r.Checksum)
	if !r.Verified {
		b.WriteString(" MISMATCH")
	}
	b.WriteByte('\n')

	keys := make([]string, 0, len(r.Entries))
	for k := range r.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, r.Entries[k])
	}
	return b.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the newest snapshot of an artifact",
		Long: `Print the newest saved snapshot of an artifact and verify its checksum.

Exit codes:
  0 - Snapshot found and checksum verified
  1 - Checksum mismatch
  2 - Command error (database or snapshot not found)

Example:
  cachesync inspect --db ./cache.db --artifact sessions
  cachesync inspect --db ./cache.db --format yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openExisting(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	out := opts.formatter(cmd)
	snap, err := st.ReadLatest(cmd.Context(), cfg.Artifact)
	if errors.Is(err, store.ErrNotFound) {
		var details any
		if known, listErr := st.Artifacts(cmd.Context()); listErr == nil && len(known) > 0 {
			details = map[string][]string{"artifacts": known}
		}
		_ = out.Error("NOT_FOUND", fmt.Sprintf("no snapshot for artifact %q", cfg.Artifact), details)
		return WrapExitError(ExitCommandError, "snapshot not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	entries, err := artifact.Decode(snap.Body)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to decode snapshot", err)
	}

	result := InspectResult{
		Artifact: snap.Artifact,
		Seq:      snap.Seq,
		Version:  snap.Version,
		Checksum: snap.Checksum,
		Verified: artifact.Checksum(snap.Body) == snap.Checksum,
		SavedAt:  snap.SavedAt,
		Entries:  entries,
	}
	if err := out.Success(result); err != nil {
		return err
	}
	if !result.Verified {
		return NewExitError(ExitFailure, fmt.Sprintf("checksum mismatch at seq %d", snap.Seq))
	}
	return nil
}
