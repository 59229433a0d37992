package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

func newResetCommand(e *env) *cobra.Command {
	var dropIndex bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear indexing checkpoints so the next run starts over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if dropIndex {
				a, err := e.openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				if err := dropVectorIndex(cmd.Context(), out, a.Vectors); err != nil {
					return err
				}
			}

			p, closeCP, err := e.pipeline(nil, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeCP() }()

			if err := p.Reset(); err != nil {
				return fmt.Errorf("reset checkpoints: %w", err)
			}
			_, _ = fmt.Fprintln(out, "Checkpoints cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropIndex, "drop-index", false,
		"also drop the vector search index; it is rebuilt on the next start")
	return cmd
}

// dropVectorIndex drops the backend search index when the backend has one.
func dropVectorIndex(ctx context.Context, out io.Writer, vs vectorstore.Store) error {
	d, ok := vs.(vectorstore.IndexDropper)
	if !ok {
		_, _ = fmt.Fprintf(out, "Vector backend %s has no index to drop\n", vs.Backend())
		return nil
	}
	if err := d.DropIndex(ctx); err != nil {
		return fmt.Errorf("drop vector index: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Vector index dropped (%s)\n", vs.Backend())
	return nil
}
