package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veyralabs/fitlens/internal/observability"
	"github.com/veyralabs/fitlens/internal/store"
)

func newProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List captured products, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := store.Open(ctx, cfg.Store.Path, observability.GetLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			products, err := st.Products(ctx)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no captured products")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCE")
			for _, p := range products {
				source := p.SourceURL
				if source == "" {
					source = "-"
				}
				name := p.Name
				if len(name) > 48 {
					name = strings.TrimSpace(name[:45]) + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, name, source)
			}
			return w.Flush()
		},
	}
}
