package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/versefind/internal/domain/search/request"
)

func newQueryCommand(e *env) *cobra.Command {
	var (
		k     int
		model string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a search against the local stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			svc, err := a.SearchService()
			if err != nil {
				return err
			}
			var kp *int
			if cmd.Flags().Changed("limit") {
				kp = &k
			}
			req, err := request.New(strings.Join(args, " "), kp, model, e.cfg.Search.Limits(e.cfg.Embedding.Model))
			if err != nil {
				return err
			}
			resp, err := svc.Search(ctx, &req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Query: %q (mode %s, model %s)\n", resp.Query, resp.Mode, resp.Model)
			if len(resp.Results) == 0 {
				_, _ = fmt.Fprintln(out, "No results")
				return nil
			}
			for i := range resp.Results {
				r := &resp.Results[i]
				_, _ = fmt.Fprintf(out, "%2d. [%.3f] %s:%s %s\n", i+1, r.Score(), r.Kind(), r.Slug(), r.Title())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of results")
	cmd.Flags().StringVar(&model, "model", "", "embedding model (default: embedding.model)")
	return cmd
}
