package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cachesync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Prune int // keep only the newest N snapshots before listing
}

// HistoryEntry is one row of snapshot history.
type HistoryEntry struct {
	Seq      int64     `json:"seq" yaml:"seq"`
	Version  int64     `json:"version" yaml:"version"`
	Entries  int       `json:"entries" yaml:"entries"`
	Checksum string    `json:"checksum" yaml:"checksum"`
	SavedAt  time.Time `json:"saved_at" yaml:"saved_at"`
}

// HistoryResult lists snapshots newest first.
type HistoryResult struct {
	Artifact  string         `json:"artifact" yaml:"artifact"`
	Pruned    int64          `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Snapshots []HistoryEntry `json:"snapshots" yaml:"snapshots"`
}

// Text renders one line per snapshot.
func (r HistoryResult) Text() string {
	var b strings.Builder
	if r.Pruned > 0 {
		fmt.Fprintf(&b, "pruned %d snapshots\n", r.Pruned)
	}
	if len(r.Snapshots) == 0 {
		fmt.Fprintf(&b, "no snapshots for %s\n", r.Artifact)
		return b.String()
	}
	for _, s := range r.Snapshots {
		fmt.Fprintf(&b, "seq=%d version=%d entries=%d saved=%s checksum=%.12s\n",
			s.Seq, s.Version, s.Entries, s.SavedAt.Format(time.RFC3339), s.Checksum)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved snapshots of an artifact",
		Long: `List the snapshot log of an artifact, newest first.

Example:
  cachesync history --db ./cache.db --artifact sessions --limit 5
  cachesync history --db ./cache.db --prune 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum snapshots to list (0 for all)")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "delete all but the newest N snapshots first")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openExisting(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	result := HistoryResult{Artifact: cfg.Artifact, Snapshots: []HistoryEntry{}}

	if opts.Prune > 0 {
		result.Pruned, err = st.Prune(ctx, cfg.Artifact, opts.Prune)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to prune", err)
		}
	}

	snaps, err := st.ListSnapshots(ctx, cfg.Artifact, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}
	for _, s := range snaps {
		result.Snapshots = append(result.Snapshots, HistoryEntry{
			Seq:      s.Seq,
			Version:  s.Version,
			Entries:  s.Entries,
			Checksum: s.Checksum,
			SavedAt:  s.SavedAt,
		})
	}

	return opts.formatter(cmd).Success(result)
}

// openExisting opens a database that must already exist. Read commands
// never create one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
