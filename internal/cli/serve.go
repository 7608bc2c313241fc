package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cachesync/internal/artifact"
	"github.com/roach88/cachesync/internal/persister"
	"github.com/roach88/cachesync/internal/runner"
	"github.com/roach88/cachesync/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Wait            time.Duration // overrides config wait_ms when set
	MaxWait         time.Duration // overrides config max_wait_ms when set
	ShutdownTimeout time.Duration

	// IDGenerator overrides persister instance IDs (for testing).
	IDGenerator persister.IDGenerator
}

// ServeSummary is printed when serve exits.
type ServeSummary struct {
	Artifact string `json:"artifact" yaml:"artifact"`
	Restored bool   `json:"restored" yaml:"restored"`
	Entries  int    `json:"entries" yaml:"entries"`
	Version  int64  `json:"version" yaml:"version"`
	Written  int    `json:"snapshots_written" yaml:"snapshots_written"`
	Ran      int64  `json:"runs" yaml:"runs"`
	Failed   int64  `json:"failed_runs" yaml:"failed_runs"`
}

// Text renders the summary for text output.
func (s ServeSummary) Text() string {
	return fmt.Sprintf("artifact %s: %d entries at version %d, %d snapshots written\n",
		s.Artifact, s.Entries, s.Version, s.Written)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache and persist changes",
		Long: `Load the artifact from its newest snapshot and apply commands read from
stdin, one per line:

  set <key> <value>   store a value
  del <key>           remove a key
  get <key>           print a value
  stats               print runner counters

Every change touches the persister. Saves are debounced by wait and bounded
by max-wait. On EOF, SIGINT or SIGTERM pending changes are flushed before
exit.

Example:
  cachesync serve --db ./cache.db --artifact sessions
  cachesync serve -c cachesync.yaml --wait 500ms < commands.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "debounce quantum (overrides config)")
	cmd.Flags().DurationVar(&opts.MaxWait, "max-wait", 0, "staleness ceiling (overrides config)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for the final flush")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	wait, maxWait := cfg.Wait(), cfg.MaxWait()
	if opts.Wait > 0 {
		wait = opts.Wait
	}
	if opts.MaxWait > 0 {
		maxWait = opts.MaxWait
	}

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := artifact.NewCache(cfg.Artifact)
	saver := artifact.NewSaver(cache, st,
		artifact.WithKeep(cfg.KeepSnapshots),
		artifact.WithSaverLogger(logger),
	)
	restored, err := saver.Restore(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore artifact", err)
	}

	runnerOpts := []runner.Option{runner.WithLogger(logger)}
	if cfg.Retry.MaxAttempts > 0 {
		runnerOpts = append(runnerOpts, runner.WithRetry(uint64(cfg.Retry.MaxAttempts), cfg.RetryInitial()))
	}
	r := runner.New(runnerOpts...)

	persisterOpts := []persister.Option{
		persister.WithWait(wait),
		persister.WithMaxWait(maxWait),
		persister.WithLogger(logger),
	}
	if opts.IDGenerator != nil {
		persisterOpts = append(persisterOpts, persister.WithIDGenerator(opts.IDGenerator))
	}
	cache.Attach(persister.NewCell(persister.New(r, saver, persisterOpts...)))

	logger.Info("serving",
		"artifact", cfg.Artifact,
		"restored", restored,
		"entries", cache.Len(),
		"wait", wait,
		"max_wait", maxWait,
	)

	// The run loop outlives ctx so the shutdown sweep can finish.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancelRun()
		inputErr := serveCommands(gctx, cmd.InOrStdin(), cmd.OutOrStdout(), cache, r, logger)

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down, flushing pending saves")
		return errors.Join(inputErr, r.Shutdown(flushCtx))
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "flush failed", err)
	}

	stats := r.Stats()
	return opts.formatter(cmd).Success(ServeSummary{
		Artifact: cfg.Artifact,
		Restored: restored,
		Entries:  cache.Len(),
		Version:  cache.Version(),
		Written:  saver.Written(),
		Ran:      stats.Ran,
		Failed:   stats.Failed,
	})
}

// serveCommands applies stdin commands until EOF or ctx is done.
// Malformed commands are reported and skipped.
func serveCommands(ctx context.Context, in io.Reader, out io.Writer, cache *artifact.Cache, r *runner.Runner, logger *slog.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("received signal, shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if err := applyCommand(ctx, line, out, cache, r); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				logger.Warn("command failed", "command", line, "error", err)
			}
		}
	}
}

func applyCommand(ctx context.Context, line string, out io.Writer, cache *artifact.Cache, r *runner.Runner) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	switch fields[0] {
	case "set":
		if len(fields) < 3 {
			return fmt.Errorf("usage: set <key> <value>")
		}
		return cache.Set(ctx, fields[1], strings.Join(fields[2:], " "))

	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("usage: del <key>")
		}
		removed, err := cache.Delete(ctx, fields[1])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(out, "%s: not found\n", fields[1])
		}
		return nil

	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		v, ok := cache.Get(fields[1])
		if !ok {
			fmt.Fprintf(out, "%s: not found\n", fields[1])
			return nil
		}
		fmt.Fprintf(out, "%s=%s\n", fields[1], v)
		return nil

	case "stats":
		s := r.Stats()
		fmt.Fprintf(out, "version=%d entries=%d pending=%d ran=%d failed=%d\n",
			cache.Version(), cache.Len(), s.Pending, s.Ran, s.Failed)
		return nil
	}

	return fmt.Errorf("unknown command %q", fields[0])
}
