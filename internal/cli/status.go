package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

func newStatusCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show corpus counts and pending checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			p, closeCP, err := e.pipeline(a, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeCP() }()

			kinds, err := e.kinds(nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			model := e.cfg.Embedding.Model

			_, _ = fmt.Fprintf(out, "Published entities:\n")
			for _, k := range kinds {
				n, err := a.Content.CountPublished(ctx, k)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "  %-13s %d\n", k, n)
			}
			n, err := a.Content.CountEmbeddings(ctx, model)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Embeddings (%s): %d\n", model, n)
			_, _ = fmt.Fprintf(out, "Vector backend: %s\n", a.Vectors.Backend())
			if err := printVectorCount(ctx, out, a.Vectors, model); err != nil {
				return err
			}

			cursors, err := p.Status()
			if err != nil {
				return err
			}
			if len(cursors) == 0 {
				_, _ = fmt.Fprintln(out, "No pending checkpoints")
				return nil
			}
			_, _ = fmt.Fprintln(out, "Pending checkpoints:")
			for _, c := range cursors {
				_, _ = fmt.Fprintf(out, "  %-13s model=%s after=%s processed=%d batches=%d updated=%s\n",
					c.Kind, c.Model, c.LastSlug, c.Processed, c.Batches, c.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

// printVectorCount reports the backend's vector count when it can count.
func printVectorCount(ctx context.Context, out io.Writer, vs vectorstore.Store, model string) error {
	c, ok := vs.(vectorstore.Counter)
	if !ok {
		return nil
	}
	n, err := c.Count(ctx, model)
	if err != nil {
		return fmt.Errorf("count vectors: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Vectors in %s (%s): %d\n", vs.Backend(), model, n)
	return nil
}
