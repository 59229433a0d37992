package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/usecase/indexing"
)

func newIndexCommand(e *env) *cobra.Command {
	var (
		reset      bool
		kinds      []string
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed published entities and write them to the vector stores",
		Long: `Index embeds every published entity of the selected kinds in batches.
Each committed batch advances a per-kind checkpoint, so an interrupted run
picks up where it stopped. A model change restarts the affected kinds.

Examples:
  versefind-indexer index                 # all configured kinds
  versefind-indexer index --kinds verse   # verses only
  versefind-indexer index --reset         # ignore checkpoints`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := e.kinds(kinds)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := e.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			total := 0
			for _, k := range list {
				n, err := a.Content.CountPublished(ctx, k)
				if err != nil {
					return err
				}
				total += n
			}

			barOut := cmd.ErrOrStderr()
			if noProgress {
				barOut = io.Discard
			}
			bar := newBar(barOut, total)
			p, closeCP, err := e.pipeline(a, func(_ entity.Kind, n int) { _ = bar.Add(n) })
			if err != nil {
				return err
			}
			defer func() { _ = closeCP() }()

			if reset {
				if err := p.Reset(); err != nil {
					return fmt.Errorf("reset checkpoints: %w", err)
				}
			} else if done, err := resumedProgress(p, list, e.cfg.Embedding.Model); err == nil && done > 0 {
				_ = bar.Add(done)
			}

			start := time.Now()
			reports, runErr := p.Run(ctx, list)
			_ = bar.Finish()

			printReports(cmd.OutOrStdout(), reports, time.Since(start))
			return runErr
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear checkpoints and start every kind from the beginning")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "kinds to index (default: indexing.kinds, or all)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}

// kinds resolves --kinds, falling back to the configured list.
func (e *env) kinds(flag []string) ([]entity.Kind, error) {
	if len(flag) > 0 {
		return entity.ParseKinds(flag)
	}
	return e.cfg.Indexing.KindList()
}

// resumedProgress counts entities already covered by checkpoints of the same model.
func resumedProgress(p *indexing.Pipeline, kinds []entity.Kind, model string) (int, error) {
	cursors, err := p.Status()
	if err != nil {
		return 0, err
	}
	wanted := make(map[entity.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	done := 0
	for _, c := range cursors {
		if wanted[c.Kind] && c.Model == model {
			done += c.Processed + c.Skipped + c.Failed
		}
	}
	return done, nil
}

func newBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

func printReports(w io.Writer, reports []indexing.Report, elapsed time.Duration) {
	_, _ = fmt.Fprintf(w, "\nIndexing finished in %s:\n", formatDuration(elapsed))
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
		case r.Resumed:
			status = "ok (resumed)"
		}
		_, _ = fmt.Fprintf(w, "  %-13s processed=%d skipped=%d failed=%d batches=%d  %s\n",
			r.Kind, r.Processed, r.Skipped, r.Failed, r.Batches, status)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
